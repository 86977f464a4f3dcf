// Package space is a minimal client for the JetBrains Space planning API.
package space

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const defaultTimeout = 10 * time.Second

type Config struct {
	BaseURL         string
	Project         string
	Token           string
	DefaultStatusID string
	// Timeout bounds every call to Space. Zero means 10 seconds.
	Timeout time.Duration
	// HTTPClient supplies the base transport. Optional.
	HTTPClient *http.Client
}

// Client talks to a single Space project. Init must succeed before any other
// remote operation; the status list it fetches is never refreshed.
type Client struct {
	baseURL         string
	project         string
	defaultStatusID string
	httpClient      *http.Client
	log             *slog.Logger

	statuses []IssueStatus
	ready    bool
}

// NewClient builds a client that authenticates with cfg.Token as a bearer token.
func NewClient(cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	ctx := context.Background()
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	// oauth2.Transport sets "Authorization: Bearer <token>" on every request
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	httpClient.Timeout = timeout

	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		project:         cfg.Project,
		defaultStatusID: cfg.DefaultStatusID,
		httpClient:      httpClient,
		log:             log,
	}
}

// Init fetches the project's issue statuses and checks that the default status
// is one of them.
func (c *Client) Init(ctx context.Context) error {
	statuses, err := c.fetchIssueStatuses(ctx)
	if err != nil {
		return &InitError{Reason: "failed to fetch issue statuses", Err: err}
	}
	if len(statuses) == 0 {
		return &InitError{Reason: "no issue statuses found"}
	}
	if !slices.ContainsFunc(statuses, func(s IssueStatus) bool { return s.ID == c.defaultStatusID }) {
		return &InitError{Reason: fmt.Sprintf("default issue status %q not found", c.defaultStatusID)}
	}

	c.statuses = statuses
	c.ready = true
	c.log.Debug("Space client initialized",
		slog.String("project", c.project),
		slog.Int("statuses", len(statuses)))
	return nil
}

// IssueStatuses returns the statuses cached by Init.
func (c *Client) IssueStatuses() []IssueStatus {
	return slices.Clone(c.statuses)
}

// DefaultStatusID is the status given to every issue this client writes.
func (c *Client) DefaultStatusID() string {
	return c.defaultStatusID
}

// CreateIssue creates issue in Space with the default status. On success the
// remote id and number are stored on issue and the created issue is returned.
func (c *Client) CreateIssue(ctx context.Context, issue *Issue) (*Issue, error) {
	const op = "create issue"
	if !c.ready {
		return nil, ErrNotReady
	}

	var resp issueResponse
	err := c.do(ctx, op, http.MethodPost, "/planning/issues", c.issueRequest(issue), &resp)
	if err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, &DecodeError{Op: op, Err: errors.New("missing issue id")}
	}

	issue.ID = resp.ID
	issue.Number = resp.Number
	c.log.Debug("Created Space issue",
		slog.String("id", resp.ID),
		slog.Int("number", resp.Number))
	return resp.toIssue(), nil
}

// GetIssue reads a single issue by id.
func (c *Client) GetIssue(ctx context.Context, id string) (*Issue, error) {
	const op = "get issue"
	if !c.ready {
		return nil, ErrNotReady
	}

	var resp issueResponse
	if err := c.do(ctx, op, http.MethodGet, issuePath(id), nil, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, &DecodeError{Op: op, Err: errors.New("missing issue id")}
	}
	return resp.toIssue(), nil
}

// UpdateIssue overwrites title and description of an existing issue and
// resets its status to the default.
func (c *Client) UpdateIssue(ctx context.Context, issue *Issue) (*Issue, error) {
	const op = "update issue"
	if !c.ready {
		return nil, ErrNotReady
	}
	if issue.ID == "" {
		return nil, fmt.Errorf("%s: issue has no id", op)
	}

	var resp issueResponse
	err := c.do(ctx, op, http.MethodPost, issuePath(issue.ID), c.issueRequest(issue), &resp)
	if err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, &DecodeError{Op: op, Err: errors.New("missing issue id")}
	}
	return resp.toIssue(), nil
}

func (c *Client) fetchIssueStatuses(ctx context.Context) ([]IssueStatus, error) {
	const op = "get issue statuses"

	var statuses []IssueStatus
	if err := c.do(ctx, op, http.MethodGet, "/planning/issues/statuses", nil, &statuses); err != nil {
		return nil, err
	}
	for i, s := range statuses {
		if s.ID == "" {
			return nil, &DecodeError{Op: op, Err: fmt.Errorf("status at index %d has no id", i)}
		}
	}
	return statuses, nil
}

func issuePath(id string) string {
	return "/planning/issues/id:" + url.PathEscape(id)
}

func (c *Client) issueRequest(issue *Issue) issueRequest {
	return issueRequest{
		Title:       issue.Title,
		Description: issue.Description,
		Status:      c.defaultStatusID,
	}
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	target := c.baseURL + "/api/http/projects/id:" + c.project + endpoint
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return &RemoteError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(respBody),
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &DecodeError{Op: op, Err: err}
	}
	return nil
}
