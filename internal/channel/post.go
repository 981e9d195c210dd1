// Package channel queues posts for an output destination and disseminates
// them through a sender.
package channel

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/feedherald/internal/report"
)

// ErrEmptyPost is returned for posts without a body.
var ErrEmptyPost = errors.New("post body is empty")

// Post is the unit a channel queues and sends.
type Post struct {
	ID        string
	Body      string
	Tags      []string
	CreatedAt time.Time
}

// NewPost builds a post with a fresh ID. Tags lose any leading '#' and are
// deduplicated case-insensitively.
func NewPost(body string, tags []string) (Post, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Post{}, ErrEmptyPost
	}
	return Post{
		ID:        uuid.NewString(),
		Body:      body,
		Tags:      cleanTags(tags),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// FromReport renders a report as its title, a blank line, then its text.
func FromReport(r *report.Report) (Post, error) {
	if r == nil {
		return Post{}, ErrEmptyPost
	}
	body := r.Title()
	if text := r.Text(); text != "" {
		body += "\n\n" + text
	}
	return NewPost(body, r.Tags())
}

// Serialize renders the post as sent: body, blank line, "#tag" list.
func (p Post) Serialize() string {
	if len(p.Tags) == 0 {
		return p.Body
	}
	tags := make([]string, len(p.Tags))
	for i, t := range p.Tags {
		tags[i] = "#" + t
	}
	return p.Body + "\n\n" + strings.Join(tags, " ")
}

func cleanTags(tags []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range tags {
		t = strings.Join(strings.Fields(strings.TrimLeft(strings.TrimSpace(t), "#")), "")
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}
