package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/navikt/space-github-relay/internal/space"
)

const (
	defaultPort         = "2652"
	defaultSpaceTimeout = 10 * time.Second
)

type config struct {
	Port         string
	TemplatePath string
	LogLevel     slog.Level
	Production   bool

	WebhookSecret    string
	VerifySignatures bool
	// IgnoredSkipVerification is set when verification was asked to be
	// disabled in production.
	IgnoredSkipVerification bool

	Space space.Config

	EnableSlack    bool
	EnableEmail    bool
	EmailTo        string
	EnableBacklink bool
}

// loadConfig reads the environment and then the command line, which wins.
func loadConfig(args []string) (*config, error) {
	cfg := &config{
		Production:       os.Getenv("NODE_ENV") == "production",
		WebhookSecret:    os.Getenv("GITHUB_SECRET"),
		VerifySignatures: true,
		EnableSlack:      isFeatureEnabled("ENABLE_SLACK_NOTIFICATIONS"),
		EnableEmail:      isFeatureEnabled("ENABLE_EMAIL_NOTIFICATIONS"),
		EmailTo:          os.Getenv("EMAIL_TO_ADDRESS"),
		EnableBacklink:   isFeatureEnabled("ENABLE_GITHUB_BACKLINK"),
	}

	fs := pflag.NewFlagSet("space-github-relay", pflag.ContinueOnError)
	fs.StringVar(&cfg.Port, "port", envOr("PORT", defaultPort), "port to listen on")
	fs.StringVar(&cfg.TemplatePath, "template", os.Getenv("TEMPLATE_PATH"), "issue description template (built-in template if empty)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	level, err := parseLogLevel(os.Getenv("LOG_LEVEL"), cfg.Production)
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if isFeatureEnabled("DISABLE_SIGNATURE_VERIFICATION") {
		if cfg.Production {
			cfg.IgnoredSkipVerification = true
		} else {
			cfg.VerifySignatures = false
		}
	}
	if cfg.VerifySignatures && cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("missing required environment variable: GITHUB_SECRET")
	}

	timeout := defaultSpaceTimeout
	if v := os.Getenv("SPACE_TIMEOUT"); v != "" {
		timeout, err = time.ParseDuration(v)
		if err != nil || timeout <= 0 {
			return nil, fmt.Errorf("invalid SPACE_TIMEOUT %q", v)
		}
	}
	cfg.Space = space.Config{
		BaseURL:         os.Getenv("SPACE_URL"),
		Project:         os.Getenv("SPACE_PROJECT"),
		Token:           os.Getenv("SPACE_TOKEN"),
		DefaultStatusID: os.Getenv("SPACE_DEFAULT_STATUS"),
		Timeout:         timeout,
	}
	for _, required := range []struct{ name, value string }{
		{"SPACE_URL", cfg.Space.BaseURL},
		{"SPACE_PROJECT", cfg.Space.Project},
		{"SPACE_TOKEN", cfg.Space.Token},
		{"SPACE_DEFAULT_STATUS", cfg.Space.DefaultStatusID},
	} {
		if required.value == "" {
			return nil, fmt.Errorf("missing required environment variable: %s", required.name)
		}
	}

	if cfg.EnableEmail && cfg.EmailTo == "" {
		return nil, fmt.Errorf("missing required environment variable: EMAIL_TO_ADDRESS")
	}

	return cfg, nil
}

// parseLogLevel accepts level names as well as the numeric levels used by
// older deployments (0=info, 1=warn, 2=error, 3=debug).
func parseLogLevel(value string, production bool) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		if production {
			return slog.LevelInfo, nil
		}
		return slog.LevelDebug, nil
	case "debug", "3":
		return slog.LevelDebug, nil
	case "info", "0":
		return slog.LevelInfo, nil
	case "warn", "warning", "1":
		return slog.LevelWarn, nil
	case "error", "2":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid LOG_LEVEL %q", value)
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// isFeatureEnabled checks if a feature toggle is enabled via environment variable
// Returns true if the environment variable is set to "true", "yes", "1", or "on" (case insensitive)
func isFeatureEnabled(envVarName string) bool {
	value := strings.ToLower(os.Getenv(envVarName))
	return value == "true" || value == "yes" || value == "1" || value == "on"
}
