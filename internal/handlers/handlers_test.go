package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navikt/space-github-relay/internal/models"
	"github.com/navikt/space-github-relay/internal/space"
)

const (
	testSecret   = "secret"
	testTemplate = "{{body}} ({{author}}, {{repository}}) labels: {{labels}}"
)

const openedPayload = `{"action":"opened","issue":{"title":"Bug","body":"desc","html_url":"http://x","user":{"login":"a","html_url":"http://a"},"created_at":"t1","updated_at":"t2","labels":[{"name":"bug"}],"comments":0,"reactions":{"total_count":0}},"repository":{"name":"r"}}`

const closedPayload = `{"action":"closed","issue":{"title":"Bug","body":"desc","html_url":"http://x","user":{"login":"a","html_url":"http://a"},"created_at":"t1","updated_at":"t2","labels":[{"name":"bug"}],"comments":0,"reactions":{"total_count":0}},"repository":{"name":"r"}}`

// mockSpace records CreateIssue calls
type mockSpace struct {
	Created []*space.Issue
	Err     error
}

func (m *mockSpace) CreateIssue(_ context.Context, issue *space.Issue) (*space.Issue, error) {
	m.Created = append(m.Created, issue)
	if m.Err != nil {
		return nil, m.Err
	}
	issue.ID = "space-1"
	issue.Number = 1
	return issue, nil
}

type mockNotifier struct {
	mu     sync.Mutex
	Issues []*space.Issue
	Err    error
}

func (m *mockNotifier) Name() string { return "mock" }

func (m *mockNotifier) IssueRelayed(_ context.Context, _ *models.IssueEvent, issue *space.Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Issues = append(m.Issues, issue)
	return m.Err
}

// blockingNotifier holds every notification until release is closed.
type blockingNotifier struct {
	release chan struct{}
	done    chan error
}

func (b *blockingNotifier) Name() string { return "blocking" }

func (b *blockingNotifier) IssueRelayed(ctx context.Context, _ *models.IssueEvent, _ *space.Issue) error {
	select {
	case <-b.release:
		b.done <- ctx.Err()
		return nil
	case <-ctx.Done():
		b.done <- ctx.Err()
		return ctx.Err()
	}
}

func newTestHandler(s IssueCreator, notifiers ...Notifier) *HandlerContext {
	return &HandlerContext{
		Space:            s,
		Notifiers:        notifiers,
		Template:         testTemplate,
		Log:              slog.New(slog.NewTextHandler(io.Discard, nil)),
		WebhookSecret:    testSecret,
		VerifySignatures: true,
	}
}

func webhookRequest(event, body, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(body)))
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", "delivery-1")
	if signature != "" {
		req.Header.Set("X-Hub-Signature", signature)
	}
	return req
}

func signed(event, body string) *http.Request {
	return webhookRequest(event, body, generateHMAC([]byte(body), testSecret))
}

func serve(h *HandlerContext, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.IssueEventHandler(rr, req)
	return rr
}

func TestIssueEventHandler_OpenedIssue(t *testing.T) {
	mock := &mockSpace{}
	h := newTestHandler(mock)

	rr := serve(h, signed("issues", openedPayload))

	assert.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, mock.Created, 1)
	assert.Equal(t, "Bug", mock.Created[0].Title)
	assert.Equal(t, "desc (a, r) labels: bug", mock.Created[0].Description)
}

func TestIssueEventHandler_IgnoredActions(t *testing.T) {
	for _, action := range []string{"closed", "edited", "labeled", "reopened", ""} {
		t.Run("action "+action, func(t *testing.T) {
			mock := &mockSpace{}
			h := newTestHandler(mock)
			body := `{"action":"` + action + `","issue":{"title":"Bug"},"repository":{"name":"r"}}`

			rr := serve(h, signed("issues", body))

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Empty(t, mock.Created)
		})
	}

	t.Run("closed issue from full payload", func(t *testing.T) {
		mock := &mockSpace{}
		rr := serve(newTestHandler(mock), signed("issues", closedPayload))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, mock.Created)
	})
}

func TestIssueEventHandler_OtherEvents(t *testing.T) {
	mock := &mockSpace{}
	h := newTestHandler(mock)

	// Not valid JSON: a 200 shows the body was never decoded.
	for _, event := range []string{"push", "ping", "pull_request", ""} {
		rr := serve(h, signed(event, `{not json`))
		assert.Equal(t, http.StatusOK, rr.Code, "event %q", event)
	}
	assert.Empty(t, mock.Created)
}

func TestIssueEventHandler_InvalidHMAC(t *testing.T) {
	mock := &mockSpace{}
	h := newTestHandler(mock)

	rr := serve(h, webhookRequest("issues", openedPayload, "sha1=invalidsignature"))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, mock.Created)
}

func TestIssueEventHandler_MissingSignature(t *testing.T) {
	mock := &mockSpace{}
	h := newTestHandler(mock)

	rr := serve(h, webhookRequest("issues", openedPayload, ""))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, mock.Created)
}

func TestIssueEventHandler_BadSignatureOnMalformedBody(t *testing.T) {
	// 401 rather than 400 shows the body is not parsed before verification.
	mock := &mockSpace{}
	rr := serve(newTestHandler(mock), webhookRequest("issues", `{invalid json}`, "sha1=00"))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestIssueEventHandler_VerificationDisabled(t *testing.T) {
	mock := &mockSpace{}
	h := newTestHandler(mock)
	h.VerifySignatures = false

	rr := serve(h, webhookRequest("issues", openedPayload, ""))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, mock.Created, 1)
}

func TestIssueEventHandler_MalformedPayload(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"invalid json", `{invalid json}`},
		{"empty body", ``},
		{"missing issue", `{"action":"opened","repository":{"name":"r"}}`},
		{"null issue", `{"action":"opened","issue":null}`},
		{"wrong type", `{"action":"opened","issue":"Bug"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mock := &mockSpace{}
			rr := serve(newTestHandler(mock), signed("issues", tc.body))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Empty(t, mock.Created)
		})
	}
}

func TestIssueEventHandler_SpaceErrors(t *testing.T) {
	testCases := []struct {
		name string
		err  error
	}{
		{"remote error", &space.RemoteError{Op: "create issue", StatusCode: 500, Status: "500 Internal Server Error", Body: "boom"}},
		{"network error", &space.NetworkError{Op: "create issue", Err: errors.New("connection refused")}},
		{"decode error", &space.DecodeError{Op: "create issue", Err: errors.New("missing issue id")}},
		{"not ready", space.ErrNotReady},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mock := &mockSpace{Err: tc.err}
			notifier := &mockNotifier{}

			h := newTestHandler(mock, notifier)
			rr := serve(h, signed("issues", openedPayload))
			h.WaitForNotifications()

			assert.Equal(t, http.StatusInternalServerError, rr.Code)
			assert.Len(t, mock.Created, 1)
			assert.Empty(t, notifier.Issues)
			assert.NotContains(t, rr.Body.String(), "boom")
		})
	}
}

func TestIssueEventHandler_Notifiers(t *testing.T) {
	t.Run("notified with created issue", func(t *testing.T) {
		notifier := &mockNotifier{}
		h := newTestHandler(&mockSpace{}, notifier)
		rr := serve(h, signed("issues", openedPayload))
		h.WaitForNotifications()

		assert.Equal(t, http.StatusOK, rr.Code)
		require.Len(t, notifier.Issues, 1)
		assert.Equal(t, "space-1", notifier.Issues[0].ID)
	})

	t.Run("notifier failure does not fail the webhook", func(t *testing.T) {
		failing := &mockNotifier{Err: errors.New("slack down")}
		after := &mockNotifier{}
		h := newTestHandler(&mockSpace{}, failing, after)
		rr := serve(h, signed("issues", openedPayload))
		h.WaitForNotifications()

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, failing.Issues, 1)
		assert.Len(t, after.Issues, 1)
	})

	t.Run("slow notifier does not hold back the response", func(t *testing.T) {
		slow := &blockingNotifier{release: make(chan struct{}), done: make(chan error, 1)}
		mock := &mockSpace{}
		h := newTestHandler(mock, slow)

		rr := serve(h, signed("issues", openedPayload))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, mock.Created, 1)
		select {
		case <-slow.done:
			t.Fatal("notifier finished before the response was written")
		default:
		}

		close(slow.release)
		h.WaitForNotifications()
		assert.NoError(t, <-slow.done)
	})

	t.Run("notifications outlive the request context", func(t *testing.T) {
		slow := &blockingNotifier{release: make(chan struct{}), done: make(chan error, 1)}
		h := newTestHandler(&mockSpace{}, slow)
		ctx, cancel := context.WithCancel(context.Background())
		req := signed("issues", openedPayload).WithContext(ctx)

		rr := serve(h, req)
		cancel()
		close(slow.release)
		h.WaitForNotifications()

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NoError(t, <-slow.done)
	})

	t.Run("notifications are bounded by a timeout", func(t *testing.T) {
		slow := &blockingNotifier{release: make(chan struct{}), done: make(chan error, 1)}
		h := newTestHandler(&mockSpace{}, slow)
		h.NotifyTimeout = 50 * time.Millisecond

		serve(h, signed("issues", openedPayload))
		h.WaitForNotifications()

		assert.ErrorIs(t, <-slow.done, context.DeadlineExceeded)
	})
}

func TestIssueEventHandler_MethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rr := serve(newTestHandler(&mockSpace{}), req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestIssueEventHandler_Redelivery(t *testing.T) {
	// Redelivered webhooks are not deduplicated.
	mock := &mockSpace{}
	h := newTestHandler(mock)

	serve(h, signed("issues", openedPayload))
	serve(h, signed("issues", openedPayload))

	assert.Len(t, mock.Created, 2)
}

func TestHealthCheckHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthCheckHandler(rr, httptest.NewRequest(http.MethodGet, "/isalive", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestIssueEventHandler_EndToEnd(t *testing.T) {
	var created []map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/http/projects/id:proj/planning/issues/statuses":
			io.WriteString(w, `[{"id":"open","name":"Open","color":"00FF00","resolved":false,"archived":false}]`)
		case r.Method == http.MethodPost && r.URL.Path == "/api/http/projects/id:proj/planning/issues":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			created = append(created, body)
			io.WriteString(w, `{"id":"space-9","number":9}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	client := space.NewClient(space.Config{
		BaseURL:         ts.URL,
		Project:         "proj",
		Token:           "token",
		DefaultStatusID: "open",
		HTTPClient:      ts.Client(),
	}, nil)
	require.NoError(t, client.Init(context.Background()))
	notifier := &mockNotifier{}
	h := newTestHandler(client, notifier)

	rr := serve(h, signed("issues", openedPayload))
	h.WaitForNotifications()

	assert.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, created, 1)
	assert.Equal(t, map[string]string{
		"title":       "Bug",
		"description": "desc (a, r) labels: bug",
		"status":      "open",
	}, created[0])
	require.Len(t, notifier.Issues, 1)
	assert.Equal(t, 9, notifier.Issues[0].Number)
}
