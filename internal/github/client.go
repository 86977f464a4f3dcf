package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/shurcooL/githubv4"

	"github.com/navikt/space-github-relay/internal/models"
	"github.com/navikt/space-github-relay/internal/space"
)

const requestTimeout = 10 * time.Second

// GitHubAppConfig identifies the GitHub App installation used for write access.
type GitHubAppConfig struct {
	AppID          int64
	InstallationID int64
	PrivateKey     []byte
}

// LoadGitHubAppConfig reads GITHUB_APP_ID, GITHUB_APP_INSTALLATION_ID and
// GITHUB_APP_PRIVATE_KEY.
func LoadGitHubAppConfig() (*GitHubAppConfig, error) {
	appID := os.Getenv("GITHUB_APP_ID")
	if appID == "" {
		return nil, fmt.Errorf("missing required environment variable: GITHUB_APP_ID")
	}
	installationID := os.Getenv("GITHUB_APP_INSTALLATION_ID")
	if installationID == "" {
		return nil, fmt.Errorf("missing required environment variable: GITHUB_APP_INSTALLATION_ID")
	}
	privateKey := os.Getenv("GITHUB_APP_PRIVATE_KEY")
	if privateKey == "" {
		return nil, fmt.Errorf("missing required environment variable: GITHUB_APP_PRIVATE_KEY")
	}

	appIDInt, err := strconv.ParseInt(appID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid GITHUB_APP_ID: %w", err)
	}
	installationIDInt, err := strconv.ParseInt(installationID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid GITHUB_APP_INSTALLATION_ID: %w", err)
	}

	return &GitHubAppConfig{
		AppID:          appIDInt,
		InstallationID: installationIDInt,
		PrivateKey:     []byte(privateKey),
	}, nil
}

// NewGraphQLClient creates a GitHub-v4 client authenticated as the App installation.
// Installation tokens are refreshed by the transport.
func NewGraphQLClient(cfg *GitHubAppConfig) (*githubv4.Client, error) {
	itr, err := ghinstallation.New(http.DefaultTransport, cfg.AppID, cfg.InstallationID, cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub installation transport: %w", err)
	}
	return githubv4.NewClient(&http.Client{Transport: itr, Timeout: requestTimeout}), nil
}

// AddComment posts body as a comment on the issue or pull request with the
// given node id and returns the new comment's node id.
func AddComment(ctx context.Context, client *githubv4.Client, subjectID, body string) (string, error) {
	var m struct {
		AddComment struct {
			CommentEdge struct {
				Node struct {
					ID string
				}
			}
		} `graphql:"addComment(input: $input)"`
	}
	input := githubv4.AddCommentInput{
		SubjectID: githubv4.ID(subjectID),
		Body:      githubv4.String(body),
	}
	if err := client.Mutate(ctx, &m, input, nil); err != nil {
		return "", err
	}
	return m.AddComment.CommentEdge.Node.ID, nil
}

// BacklinkNotifier comments on the source GitHub issue with the Space issue it
// was copied to.
type BacklinkNotifier struct {
	client *githubv4.Client
}

func NewBacklinkNotifier(client *githubv4.Client) *BacklinkNotifier {
	return &BacklinkNotifier{client: client}
}

func (b *BacklinkNotifier) Name() string { return "github-backlink" }

func (b *BacklinkNotifier) IssueRelayed(ctx context.Context, event *models.IssueEvent, issue *space.Issue) error {
	if event.Issue.NodeID == "" {
		return errors.New("issue event has no node_id")
	}
	_, err := AddComment(ctx, b.client, event.Issue.NodeID, backlinkComment(issue))
	if err != nil {
		return fmt.Errorf("failed to comment on GitHub issue: %w", err)
	}
	return nil
}

func backlinkComment(issue *space.Issue) string {
	return fmt.Sprintf("This issue is tracked in JetBrains Space as issue #%d (`%s`).", issue.Number, issue.ID)
}
