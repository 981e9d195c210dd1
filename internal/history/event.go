// Package history reads Pleiades revision histories and summarizes recent
// modifications in prose.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Workflow actions recorded in Pleiades revision histories.
const (
	ActionPublish  = "Publish externally"
	ActionBaseline = "Baseline created"
	ActionCreate   = "Create"
	ActionSubmit   = "Submit for review"
)

// Event is one revision record. Exactly one of Action and Comment is set.
type Event struct {
	Modified   time.Time
	ModifiedBy string
	Action     string
	Comment    string
}

// Status returns the action if present, otherwise the comment.
func (e Event) Status() string {
	if e.Action != "" {
		return e.Action
	}
	return e.Comment
}

// Actors splits ModifiedBy into individual actor identifiers. Some records
// list several people in one free-text field.
func (e Event) Actors() []string {
	fields := strings.FieldsFunc(e.ModifiedBy, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimPrefix(strings.TrimSpace(f), "@")
		if f != "" && !strings.EqualFold(f, "and") {
			out = append(out, f)
		}
	}
	return out
}

type rawEvent struct {
	Modified   string `json:"modified"`
	ModifiedBy string `json:"modifiedBy"`
	Action     string `json:"action"`
	Comment    string `json:"comment"`
}

// UnmarshalJSON decodes a history record. When both action and comment are
// present the action wins; a record with neither is rejected.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	modified, err := ParseTime(raw.Modified)
	if err != nil {
		return fmt.Errorf("history event: modified: %w", err)
	}

	action := strings.TrimSpace(raw.Action)
	comment := strings.TrimSpace(raw.Comment)
	if action == "" && comment == "" {
		return errors.New("history event: neither action nor comment present")
	}

	*e = Event{
		Modified:   modified,
		ModifiedBy: strings.TrimSpace(raw.ModifiedBy),
	}
	if action != "" {
		e.Action = action
	} else {
		e.Comment = comment
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime accepts the datetime shapes found in Pleiades JSON. Values
// without a zone are taken as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty datetime")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", s)
}
