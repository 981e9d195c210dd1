package digest

import (
	"encoding/json"
	"io"
	"time"
)

type jsonDigest struct {
	Meta    jsonMeta   `json:"meta"`
	Reports []jsonItem `json:"reports"`
}

type jsonMeta struct {
	Count       int    `json:"count"`
	GeneratedAt string `json:"generated_at,omitempty"`
}

type jsonItem struct {
	Index   int      `json:"index"`
	ID      int64    `json:"id"`
	Source  string   `json:"source"`
	Key     string   `json:"key"`
	Title   string   `json:"title"`
	Summary string   `json:"summary,omitempty"`
	Text    string   `json:"text,omitempty"`
	When    string   `json:"when,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Status  string   `json:"status"`
}

// JSONFormatter formats a batch as JSON.
type JSONFormatter struct{}

// NewJSON creates a JSON formatter.
func NewJSON() *JSONFormatter {
	return &JSONFormatter{}
}

func (f *JSONFormatter) Format(w io.Writer, input Input) error {
	out := jsonDigest{
		Meta:    jsonMeta{Count: len(input.Items)},
		Reports: make([]jsonItem, 0, len(input.Items)),
	}
	if !input.Now.IsZero() {
		out.Meta.GeneratedAt = input.Now.UTC().Format(time.RFC3339)
	}
	for _, item := range input.Items {
		rec := item.Record
		ji := jsonItem{
			Index:   item.Index,
			ID:      rec.ID,
			Source:  rec.Source,
			Key:     rec.Key,
			Title:   rec.Title,
			Summary: rec.Summary,
			Text:    rec.Text,
			Tags:    rec.Tags,
			Status:  rec.Status,
		}
		if !rec.When.IsZero() {
			ji.When = rec.When.UTC().Format(time.RFC3339)
		}
		out.Reports = append(out.Reports, ji)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
