// Package privacy redacts configured patterns from text before it leaves
// the process.
package privacy

import (
	"fmt"
	"regexp"
)

// DefaultPlaceholder replaces each redacted match.
const DefaultPlaceholder = "[REDACTED]"

// Redactor replaces matches of its patterns. A nil Redactor leaves text
// unchanged.
type Redactor struct {
	patterns    []*regexp.Regexp
	placeholder string
}

// New compiles patterns. An empty placeholder means DefaultPlaceholder.
func New(patterns []string, placeholder string) (*Redactor, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile redact pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}
	return &Redactor{patterns: compiled, placeholder: placeholder}, nil
}

// Apply returns text with every match replaced.
func (r *Redactor) Apply(text string) string {
	if r == nil {
		return text
	}
	for _, re := range r.patterns {
		text = re.ReplaceAllString(text, r.placeholder)
	}
	return text
}

// Len is the number of compiled patterns.
func (r *Redactor) Len() int {
	if r == nil {
		return 0
	}
	return len(r.patterns)
}
