package report

import (
	"strings"
	"unicode/utf8"
)

// MaxSummary bounds summaries derived from body text.
const MaxSummary = 280

// Lead returns the first sentence of text, capped at maxLen runes. A capped
// sentence is cut at the last space and ends with "...".
func Lead(text string, maxLen int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	// First paragraph only.
	end := len(text)
	if idx := strings.Index(text, "\n\n"); idx >= 0 {
		end = idx
	}

	// First ". " or ".\n" ends the sentence.
	for i := 0; i < end-1; i++ {
		if text[i] == '.' && (text[i+1] == ' ' || text[i+1] == '\n') {
			end = i + 1
			break
		}
	}

	lead := Norm(text[:end])
	if utf8.RuneCountInString(lead) <= maxLen {
		return lead
	}

	cut := string([]rune(lead)[:maxLen])
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}
