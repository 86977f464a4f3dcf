package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/navikt/space-github-relay/internal/github"
	"github.com/navikt/space-github-relay/internal/handlers"
	"github.com/navikt/space-github-relay/internal/msgraph"
	"github.com/navikt/space-github-relay/internal/render"
	"github.com/navikt/space-github-relay/internal/slack"
	"github.com/navikt/space-github-relay/internal/space"
)

const (
	initTimeout     = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("Invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	log.Info("Starting space-github-relay")

	if err := run(cfg, log); err != nil {
		log.Error("Exiting", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config, log *slog.Logger) error {
	if cfg.IgnoredSkipVerification {
		log.Warn("DISABLE_SIGNATURE_VERIFICATION is ignored in production")
	}
	if !cfg.VerifySignatures {
		log.Warn("Webhook signature verification is disabled")
	}

	template, err := render.LoadTemplate(cfg.TemplatePath)
	if err != nil {
		return err
	}

	spaceClient := space.NewClient(cfg.Space, log)
	initCtx, cancel := context.WithTimeout(context.Background(), initTimeout)
	err = spaceClient.Init(initCtx)
	cancel()
	if err != nil {
		return err
	}
	log.Debug("Space issue statuses",
		slog.String("statuses", formatStatuses(spaceClient.IssueStatuses(), spaceClient.DefaultStatusID())))

	handlerCtx := &handlers.HandlerContext{
		Space:            spaceClient,
		Notifiers:        buildNotifiers(cfg, log),
		Template:         template,
		Log:              log,
		WebhookSecret:    cfg.WebhookSecret,
		VerifySignatures: cfg.VerifySignatures,
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newMux(handlerCtx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	handlerCtx.WaitForNotifications()
	return err
}

// newMux routes the webhook to the root path only; every other path is a 404.
func newMux(h *handlers.HandlerContext) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/isready", handlers.HealthCheckHandler)
	mux.HandleFunc("/isalive", handlers.HealthCheckHandler)
	mux.HandleFunc("/{$}", h.IssueEventHandler)
	return mux
}

// buildNotifiers sets up the enabled notifiers. A notifier that fails to
// initialize is left out rather than stopping the relay.
func buildNotifiers(cfg *config, log *slog.Logger) []handlers.Notifier {
	var notifiers []handlers.Notifier

	if cfg.EnableSlack {
		n, err := slack.NewNotifier(log)
		if err != nil {
			log.Warn("Slack notifications disabled", slog.Any("error", err))
		} else {
			notifiers = append(notifiers, n)
		}
	} else {
		log.Info("Slack notifications are disabled by feature toggle")
	}

	if cfg.EnableEmail {
		client, err := msgraph.CreateEmailGraphClient(log)
		if err != nil {
			log.Warn("Email notifications disabled", slog.Any("error", err))
		} else {
			notifiers = append(notifiers, msgraph.NewNotifier(client, cfg.EmailTo))
		}
	} else {
		log.Info("Email notifications are disabled by feature toggle")
	}

	if cfg.EnableBacklink {
		n, err := newBacklinkNotifier()
		if err != nil {
			log.Warn("GitHub backlinks disabled", slog.Any("error", err))
		} else {
			notifiers = append(notifiers, n)
		}
	} else {
		log.Info("GitHub backlinks are disabled by feature toggle")
	}

	return notifiers
}

func newBacklinkNotifier() (*github.BacklinkNotifier, error) {
	appCfg, err := github.LoadGitHubAppConfig()
	if err != nil {
		return nil, err
	}
	client, err := github.NewGraphQLClient(appCfg)
	if err != nil {
		return nil, err
	}
	return github.NewBacklinkNotifier(client), nil
}

func formatStatuses(statuses []space.IssueStatus, defaultID string) string {
	parts := make([]string, 0, len(statuses))
	for _, s := range statuses {
		part := fmt.Sprintf("%s (%s - %s)", s.Name, s.ID, s.Color)
		if s.ID == defaultID {
			part += " default"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", ")
}
