package report

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// Norm applies NFC normalization and collapses all whitespace runs to a
// single space.
func Norm(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// NormLines normalizes like Norm within each line but keeps line breaks.
// Runs of more than one blank line are reduced to one, and the result has
// no leading or trailing newlines.
func NormLines(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	s = strings.Join(lines, "\n")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.Trim(s, "\n")
}
