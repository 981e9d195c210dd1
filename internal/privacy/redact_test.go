package privacy

import (
	"testing"
)

func TestNew_Invalid(t *testing.T) {
	if _, err := New([]string{`[invalid`}, ""); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestNew_Empty(t *testing.T) {
	r, err := New(nil, "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("got %d patterns, want 0", r.Len())
	}
	if got := r.Apply("unchanged"); got != "unchanged" {
		t.Errorf("got %q, want unchanged", got)
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name        string
		patterns    []string
		placeholder string
		in          string
		want        string
	}{
		{"email", []string{`[\w.+-]+@[\w-]+\.[\w.]+`}, "", "Contact jane@example.org for access", "Contact [REDACTED] for access"},
		{"several patterns", []string{`(?i)token`, `(?i)secret`}, "", "Token and Secret values", "[REDACTED] and [REDACTED] values"},
		{"repeated match", []string{`(?i)password`}, "", "password is password", "[REDACTED] is [REDACTED]"},
		{"custom placeholder", []string{`@\w+`}, "someone", "added by @rtalbert", "added by someone"},
		{"no match", []string{`(?i)token`}, "", "nothing to redact here", "nothing to redact here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.patterns, tt.placeholder)
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			if got := r.Apply(tt.in); got != tt.want {
				t.Errorf("Apply(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestApply_NilRedactor(t *testing.T) {
	var r *Redactor
	if got := r.Apply("should not change"); got != "should not change" {
		t.Errorf("got %q, want unchanged", got)
	}
}
