// Package msgraph provides integration with Microsoft Graph API
package msgraph

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	graph "github.com/microsoftgraph/msgraph-sdk-go"
	graphmodels "github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/users"

	"github.com/navikt/space-github-relay/internal/models"
	"github.com/navikt/space-github-relay/internal/space"
)

const sendTimeout = 30 * time.Second

//go:embed templates/*.md
var templateFS embed.FS

// EmailClient handles sending emails via Microsoft Graph API
type EmailClient interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SentEmail represents an email that was sent for testing
type SentEmail struct {
	To      string
	Subject string
	Body    string
}

// MockEmailClient implements the EmailClient interface for testing
type MockEmailClient struct {
	SendEmailError error
	SentEmails     []SentEmail
}

// SendEmail mocks sending an email for testing
func (m *MockEmailClient) SendEmail(_ context.Context, to, subject, body string) error {
	if m.SendEmailError != nil {
		return m.SendEmailError
	}
	m.SentEmails = append(m.SentEmails, SentEmail{To: to, Subject: subject, Body: body})
	return nil
}

// graphSDKClient implements EmailClient interface using the Microsoft Graph SDK
type graphSDKClient struct {
	graphClient *graph.GraphServiceClient
	fromEmail   string
	log         *slog.Logger
}

// CreateEmailGraphClient creates a new MS Graph API client for sending emails using the official SDK
func CreateEmailGraphClient(log *slog.Logger) (EmailClient, error) {
	tenantID := os.Getenv("AZURE_APP_TENANT_ID")
	clientID := os.Getenv("AZURE_APP_CLIENT_ID")
	clientSecret := os.Getenv("AZURE_APP_CLIENT_SECRET")

	if tenantID == "" || clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("missing required environment variables: AZURE_APP_CLIENT_ID, AZURE_APP_CLIENT_SECRET, or AZURE_APP_TENANT_ID")
	}

	fromEmail := os.Getenv("EMAIL_FROM_ADDRESS")
	if fromEmail == "" {
		return nil, fmt.Errorf("missing required environment variable: EMAIL_FROM_ADDRESS")
	}

	credential, err := azidentity.NewClientSecretCredential(
		tenantID,
		clientID,
		clientSecret,
		&azidentity.ClientSecretCredentialOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	graphClient, err := graph.NewGraphServiceClientWithCredentials(
		credential,
		[]string{"https://graph.microsoft.com/.default"},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create MS Graph client: %w", err)
	}

	log.Info("Created MS Graph email client", slog.String("from", fromEmail))
	return &graphSDKClient{
		graphClient: graphClient,
		fromEmail:   fromEmail,
		log:         log,
	}, nil
}

// SendEmail sends a plain text email from the configured mailbox
func (g *graphSDKClient) SendEmail(ctx context.Context, to, subject, body string) error {
	message := graphmodels.NewMessage()
	message.SetSubject(&subject)

	itemBody := graphmodels.NewItemBody()
	contentType := graphmodels.TEXT_BODYTYPE
	itemBody.SetContentType(&contentType)
	itemBody.SetContent(&body)
	message.SetBody(itemBody)

	toRecipient := graphmodels.NewRecipient()
	emailAddress := graphmodels.NewEmailAddress()
	emailAddress.SetAddress(&to)
	toRecipient.SetEmailAddress(emailAddress)
	message.SetToRecipients([]graphmodels.Recipientable{toRecipient})

	requestBody := users.NewItemSendMailPostRequestBody()
	requestBody.SetMessage(message)
	requestBody.SetSaveToSentItems(boolPtr(false))

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := g.graphClient.Users().ByUserId(g.fromEmail).SendMail().Post(ctx, requestBody, nil); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	g.log.Debug("Sent email using Graph SDK", slog.String("to", to))
	return nil
}

// Notifier emails a notice about every relayed issue to a fixed recipient.
type Notifier struct {
	client EmailClient
	to     string
}

func NewNotifier(client EmailClient, to string) *Notifier {
	return &Notifier{client: client, to: to}
}

func (n *Notifier) Name() string { return "email" }

func (n *Notifier) IssueRelayed(ctx context.Context, event *models.IssueEvent, issue *space.Issue) error {
	notice := issueNotice{
		Repository:       event.Repository.FullName,
		Title:            event.Issue.Title,
		URL:              event.Issue.HTMLURL,
		Author:           event.Issue.User.Login,
		Labels:           event.Issue.LabelNames(),
		SpaceIssueID:     issue.ID,
		SpaceIssueNumber: issue.Number,
	}
	body, err := generateNoticeBody(notice)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("[%s] %s", notice.Repository, notice.Title)
	return n.client.SendEmail(ctx, n.to, subject, body)
}

type issueNotice struct {
	Repository       string
	Title            string
	URL              string
	Author           string
	Labels           []string
	SpaceIssueID     string
	SpaceIssueNumber int
}

// generateNoticeBody renders the embedded notice template
func generateNoticeBody(notice issueNotice) (string, error) {
	tmplFile, err := templateFS.ReadFile("templates/issue_relayed.md")
	if err != nil {
		return "", fmt.Errorf("failed to read email template file: %w", err)
	}

	tmpl, err := template.New("issueRelayed").
		Funcs(template.FuncMap{"join": strings.Join}).
		Parse(string(tmplFile))
	if err != nil {
		return "", fmt.Errorf("failed to parse email template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, notice); err != nil {
		return "", fmt.Errorf("failed to execute email template: %w", err)
	}

	return buf.String(), nil
}

// Helper function to create bool pointers
func boolPtr(b bool) *bool {
	return &b
}
