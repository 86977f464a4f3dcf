package space

import "slices"

// Issue is a Space planning issue. ID stays empty until Space has created it.
type Issue struct {
	ID          string
	Number      int
	Title       string
	Description string
	Tags        []string
}

func NewIssue(title, description string) *Issue {
	return &Issue{Title: title, Description: description}
}

// AddTag appends tag. Duplicates are kept.
func (i *Issue) AddTag(tag string) {
	i.Tags = append(i.Tags, tag)
}

// RemoveTag drops the first occurrence of tag, if any.
func (i *Issue) RemoveTag(tag string) {
	if idx := slices.Index(i.Tags, tag); idx >= 0 {
		i.Tags = slices.Delete(i.Tags, idx, idx+1)
	}
}

// IssueStatus is one of the project's issue statuses as reported by Space.
type IssueStatus struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	Resolved bool   `json:"resolved"`
	Archived bool   `json:"archived"`
}

type issueRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

type issueResponse struct {
	ID          string `json:"id"`
	Number      int    `json:"number"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (r *issueResponse) toIssue() *Issue {
	return &Issue{
		ID:          r.ID,
		Number:      r.Number,
		Title:       r.Title,
		Description: r.Description,
	}
}
