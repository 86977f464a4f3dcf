package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/go-github/v72/github"

	"github.com/navikt/space-github-relay/internal/models"
	"github.com/navikt/space-github-relay/internal/render"
	"github.com/navikt/space-github-relay/internal/space"
)

const (
	// GitHub caps webhook payloads at 25 MB.
	maxPayloadBytes = 25 << 20

	defaultNotifyTimeout = 30 * time.Second
)

// IssueCreator is the part of the Space client the webhook needs.
type IssueCreator interface {
	CreateIssue(ctx context.Context, issue *space.Issue) (*space.Issue, error)
}

// Notifier is told about every issue that was relayed to Space.
type Notifier interface {
	Name() string
	IssueRelayed(ctx context.Context, event *models.IssueEvent, issue *space.Issue) error
}

// HandlerContext holds dependencies for the handlers
type HandlerContext struct {
	Space     IssueCreator
	Notifiers []Notifier
	Template  string
	Log       *slog.Logger

	WebhookSecret string
	// VerifySignatures is only false when verification was explicitly disabled.
	VerifySignatures bool

	// NotifyTimeout bounds one round of notifications. Zero means 30 seconds.
	NotifyTimeout time.Duration

	notifications sync.WaitGroup
}

// WaitForNotifications blocks until notifications started by earlier
// deliveries have finished.
func (h *HandlerContext) WaitForNotifications() {
	h.notifications.Wait()
}

// IssueEventHandler relays newly opened GitHub issues to Space.
func (h *HandlerContext) IssueEventHandler(w http.ResponseWriter, r *http.Request) {
	log := h.Log.With(slog.String("delivery", github.DeliveryID(r)))

	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		log.Error("Invalid request method", slog.String("method", r.Method))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		log.Error("Error reading request body", slog.Any("error", err))
		return
	}

	if h.VerifySignatures {
		signature := r.Header.Get(github.SHA1SignatureHeader)
		if !VerifySignature(body, h.WebhookSecret, signature) {
			http.Error(w, "Invalid HMAC signature", http.StatusUnauthorized)
			log.Error("Invalid HMAC signature", slog.Bool("present", signature != ""))
			return
		}
	}

	event := github.WebHookType(r)
	switch event {
	case "issues":
		h.handleIssuesEvent(r.Context(), w, log, body)
	default:
		log.Debug("Ignoring GitHub event", slog.String("event", event))
		w.WriteHeader(http.StatusOK)
	}
}

func (h *HandlerContext) handleIssuesEvent(ctx context.Context, w http.ResponseWriter, log *slog.Logger, body []byte) {
	var payload models.IssueEvent
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "Error decoding JSON", http.StatusBadRequest)
		log.Error("Error decoding JSON", slog.Any("error", err))
		return
	}
	if payload.Issue == nil {
		http.Error(w, "Missing issue in payload", http.StatusBadRequest)
		log.Error("Issue event has no issue")
		return
	}

	log = log.With(
		slog.String("repository", payload.Repository.FullName),
		slog.Int("issue", payload.Issue.Number),
		slog.String("action", payload.Action))

	if payload.Action != "opened" {
		log.Debug("Ignoring issue event")
		w.WriteHeader(http.StatusOK)
		return
	}

	issue := space.NewIssue(payload.Issue.Title, render.Render(h.Template, &payload))
	created, err := h.Space.CreateIssue(ctx, issue)
	if err != nil {
		http.Error(w, "Failed to create Space issue", http.StatusInternalServerError)
		log.Error("Error creating Space issue", slog.Any("error", err))
		return
	}
	log.Info("Created Space issue",
		slog.String("spaceIssue", created.ID),
		slog.Int("spaceNumber", created.Number))

	w.WriteHeader(http.StatusOK)

	if len(h.Notifiers) > 0 {
		h.notifications.Add(1)
		go h.notify(context.WithoutCancel(ctx), log, &payload, created)
	}
}

// notify runs after the delivery was acknowledged. Failures are only logged.
func (h *HandlerContext) notify(ctx context.Context, log *slog.Logger, event *models.IssueEvent, issue *space.Issue) {
	defer h.notifications.Done()

	timeout := h.NotifyTimeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for _, n := range h.Notifiers {
		if err := n.IssueRelayed(ctx, event, issue); err != nil {
			log.Error("Failed to send notification",
				slog.String("notifier", n.Name()),
				slog.Any("error", err))
		}
	}
}

func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
