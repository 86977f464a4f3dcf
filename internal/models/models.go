package models

// https://docs.github.com/en/webhooks/webhook-events-and-payloads#issues
type WebhookPayload struct {
	Ref        string     `json:"ref"`
	Repository Repository `json:"repository"`
}

type Repository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
	GitURL   string `json:"git_url"`
	SSHURL   string `json:"ssh_url"`
}

// IssueEvent is the payload of an "issues" webhook delivery.
type IssueEvent struct {
	WebhookPayload
	Action string        `json:"action"` // opened, closed, edited, labeled, ...
	Issue  *IssueDetails `json:"issue"`
}

type IssueDetails struct {
	Number    int        `json:"number"`
	NodeID    string     `json:"node_id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	HTMLURL   string     `json:"html_url"`
	User      GithubUser `json:"user"`
	Labels    []Label    `json:"labels"`
	Comments  int        `json:"comments"`
	CreatedAt string     `json:"created_at"`
	UpdatedAt string     `json:"updated_at"`
	Reactions Reactions  `json:"reactions"`
}

type GithubUser struct {
	Login   string `json:"login"`
	HTMLURL string `json:"html_url"`
}

type Label struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
	Default     bool   `json:"default"`
}

type Reactions struct {
	TotalCount int `json:"total_count"`
}

// LabelNames returns the label names in payload order.
func (i *IssueDetails) LabelNames() []string {
	names := make([]string, 0, len(i.Labels))
	for _, l := range i.Labels {
		names = append(names, l.Name)
	}
	return names
}
