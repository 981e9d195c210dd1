package report

import (
	"strings"
	"testing"
)

func TestLead(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		want   string
	}{
		{"empty", "", 50, ""},
		{"single sentence", "A new gazetteer release.", 50, "A new gazetteer release."},
		{"first of two", "First one. Second one.", 50, "First one."},
		{"first paragraph", "Intro line\nwraps here\n\nNext paragraph.", 50, "Intro line wraps here"},
		{"decimal kept", "Version 2.5 ships today", 50, "Version 2.5 ships today"},
		{"truncated at space", "alpha beta gamma delta", 12, "alpha beta..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Lead(tt.text, tt.maxLen); got != tt.want {
				t.Errorf("Lead(%q, %d) = %q, want %q", tt.text, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestLeadMultibyte(t *testing.T) {
	text := strings.Repeat("ä", 20)
	got := Lead(text, 10)
	if got != strings.Repeat("ä", 10)+"..." {
		t.Errorf("Lead = %q", got)
	}
}
