// Package report defines the normalized unit produced from a detected change.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrBlankMarkdown is returned when a markdown body normalizes to nothing.
	ErrBlankMarkdown = errors.New("report: markdown body is blank")
	// ErrBlankTitle is returned when a title normalizes to nothing.
	ErrBlankTitle = errors.New("report: title is blank")
	// ErrWhenType is returned when SetWhen receives something other than a
	// time.Time or an ISO-8601 string.
	ErrWhenType = errors.New("report: when must be a time.Time or an ISO-8601 string")
)

// Report is a normalized, disseminable description of one detected change.
// All mutation goes through the normalizing setters.
type Report struct {
	source  string
	key     string
	title   string
	summary string
	md      string
	text    string
	when    time.Time
	tags    []string
}

// New returns a report with the given title. Source and key identify the
// item the report describes and are used to deduplicate redelivery.
func New(source, key, title string) (*Report, error) {
	r := &Report{source: source, key: key}
	if err := r.SetTitle(title); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Report) Source() string { return r.source }
func (r *Report) Key() string    { return r.key }

func (r *Report) Title() string { return r.title }

// SetTitle normalizes unicode and whitespace. Titles may not be blank.
func (r *Report) SetTitle(s string) error {
	t := Norm(s)
	if t == "" {
		return ErrBlankTitle
	}
	r.title = t
	return nil
}

func (r *Report) Summary() string { return r.summary }

// SetSummary normalizes unicode and whitespace.
func (r *Report) SetSummary(s string) {
	r.summary = Norm(s)
}

func (r *Report) Markdown() string { return r.md }

// SetMarkdown normalizes whitespace within lines and strips leading and
// trailing newlines. A body that normalizes to nothing is rejected.
func (r *Report) SetMarkdown(s string) error {
	md := NormLines(s)
	if md == "" {
		return ErrBlankMarkdown
	}
	r.md = md
	return nil
}

// SetText sets an explicit plain-text rendering that Text returns verbatim.
func (r *Report) SetText(s string) {
	r.text = s
}

// Text returns the explicit plain text if one was set, otherwise the
// markdown body rendered as plain text.
func (r *Report) Text() string {
	if r.text != "" {
		return r.text
	}
	if r.md == "" {
		return ""
	}
	return PlainText(r.md)
}

// String returns the plain-text body.
func (r *Report) String() string { return r.Text() }

func (r *Report) When() time.Time { return r.when }

// SetWhen accepts a time.Time or an ISO-8601 string carrying a zone offset.
func (r *Report) SetWhen(v any) error {
	switch w := v.(type) {
	case time.Time:
		if w.IsZero() {
			return fmt.Errorf("report: when is zero")
		}
		r.when = w.UTC()
	case *time.Time:
		if w == nil || w.IsZero() {
			return fmt.Errorf("report: when is zero")
		}
		r.when = w.UTC()
	case string:
		t, err := ParseISO(w)
		if err != nil {
			return err
		}
		r.when = t
	default:
		return fmt.Errorf("%w: got %T", ErrWhenType, v)
	}
	return nil
}

// Tags returns the tags in insertion order.
func (r *Report) Tags() []string {
	out := make([]string, len(r.tags))
	copy(out, r.tags)
	return out
}

// AddTags appends tags that are not already present. A leading '#' and
// surrounding whitespace are dropped; blank tags are ignored.
func (r *Report) AddTags(tags ...string) {
	for _, t := range tags {
		t = strings.TrimPrefix(Norm(t), "#")
		t = strings.ReplaceAll(t, " ", "")
		if t == "" || r.hasTag(t) {
			continue
		}
		r.tags = append(r.tags, t)
	}
}

func (r *Report) hasTag(t string) bool {
	for _, existing := range r.tags {
		if strings.EqualFold(existing, t) {
			return true
		}
	}
	return false
}

// ParseISO parses an ISO-8601 instant. A zone offset is required.
func ParseISO(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999999-0700", "2006-01-02T15:04:05-0700"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("report: %q is not an ISO-8601 instant with zone", s)
}
