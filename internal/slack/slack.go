package slack

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/slack-go/slack"

	"github.com/navikt/space-github-relay/internal/models"
	"github.com/navikt/space-github-relay/internal/space"
)

// Notifier posts a message to a Slack channel for every relayed issue.
type Notifier struct {
	api       *slack.Client
	channelID string
	log       *slog.Logger
}

// NewNotifier creates a Slack notifier from SLACK_BOT_TOKEN and SLACK_CHANNEL_ID.
func NewNotifier(log *slog.Logger) (*Notifier, error) {
	token, err := getOAuthToken()
	if err != nil {
		return nil, err
	}
	channelID := os.Getenv("SLACK_CHANNEL_ID")
	if channelID == "" {
		return nil, fmt.Errorf("missing required environment variable: SLACK_CHANNEL_ID")
	}
	return newNotifier(slack.New(token), channelID, log), nil
}

func newNotifier(api *slack.Client, channelID string, log *slog.Logger) *Notifier {
	return &Notifier{api: api, channelID: channelID, log: log}
}

func getOAuthToken() (string, error) {
	token := os.Getenv("SLACK_BOT_TOKEN")
	if token == "" {
		return "", fmt.Errorf("missing required environment variable: SLACK_BOT_TOKEN")
	}
	return token, nil
}

func (n *Notifier) Name() string { return "slack" }

// IssueRelayed announces the new Space issue in the configured channel.
func (n *Notifier) IssueRelayed(ctx context.Context, event *models.IssueEvent, issue *space.Issue) error {
	_, ts, err := n.api.PostMessageContext(ctx, n.channelID,
		slack.MsgOptionText(issueMessage(event, issue), false),
		slack.MsgOptionDisableLinkUnfurl())
	if err != nil {
		return fmt.Errorf("failed to post Slack message: %w", err)
	}
	n.log.Debug("Posted Slack notification",
		slog.String("channel", n.channelID),
		slog.String("ts", ts))
	return nil
}

func issueMessage(event *models.IssueEvent, issue *space.Issue) string {
	return fmt.Sprintf("New GitHub issue <%s|%s> in *%s* by %s was copied to Space as issue #%d",
		event.Issue.HTMLURL,
		event.Issue.Title,
		event.Repository.FullName,
		event.Issue.User.Login,
		issue.Number)
}
