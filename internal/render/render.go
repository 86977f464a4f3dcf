// Package render turns GitHub issue events into Space issue descriptions.
package render

import (
	"embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/navikt/space-github-relay/internal/models"
)

//go:embed templates/*.txt
var templateFS embed.FS

const defaultTemplate = "templates/issue.txt"

// LoadTemplate reads the issue template from path. An empty path selects the
// built-in template.
func LoadTemplate(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = templateFS.ReadFile(defaultTemplate)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read issue template: %w", err)
	}
	return string(data), nil
}

// Render substitutes the event's fields into tmpl.
//
// Each placeholder is replaced at its first occurrence only; later copies of
// the same placeholder are left in the output. Values are inserted verbatim,
// and unknown placeholders are kept as they are.
func Render(tmpl string, event *models.IssueEvent) string {
	issue := event.Issue
	if issue == nil {
		issue = &models.IssueDetails{}
	}

	// Substituted values are not protected from later placeholders in this list.
	replacements := []struct{ placeholder, value string }{
		{"{{title}}", issue.Title},
		{"{{body}}", issue.Body},
		{"{{url}}", issue.HTMLURL},
		{"{{author}}", issue.User.Login},
		{"{{author_url}}", issue.User.HTMLURL},
		{"{{created_at}}", issue.CreatedAt},
		{"{{updated_at}}", issue.UpdatedAt},
		{"{{labels}}", strings.Join(issue.LabelNames(), ", ")},
		{"{{comments}}", strconv.Itoa(issue.Comments)},
		{"{{reactions}}", strconv.Itoa(issue.Reactions.TotalCount)},
		{"{{repository}}", event.Repository.Name},
	}

	out := tmpl
	for _, r := range replacements {
		out = strings.Replace(out, r.placeholder, r.value, 1)
	}
	return out
}
