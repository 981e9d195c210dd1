package digest

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	sourceStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	indexStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

// TerminalFormatter lists reports grouped by source.
type TerminalFormatter struct {
	color bool
}

// NewTerminal creates a terminal formatter. Set color=true for styled output.
func NewTerminal(color bool) *TerminalFormatter {
	return &TerminalFormatter{color: color}
}

func (f *TerminalFormatter) Format(w io.Writer, input Input) error {
	order, groups := groupBySource(input.Items)
	fmt.Fprintln(w, f.style(headerStyle, fmt.Sprintf("feedherald: %d reports from %d sources", len(input.Items), len(order))))
	fmt.Fprintln(w)

	if len(input.Items) == 0 {
		fmt.Fprintln(w, "No reports pending.")
		return nil
	}

	for _, src := range order {
		items := groups[src]
		fmt.Fprintln(w, f.style(sourceStyle, fmt.Sprintf("--- %s (%d) ---", src, len(items))))
		for _, item := range items {
			f.writeItem(w, item, input)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func (f *TerminalFormatter) writeItem(w io.Writer, item Item, input Input) {
	rec := item.Record
	when := ""
	if !rec.When.IsZero() {
		if input.Now.IsZero() {
			when = " " + f.style(dimStyle, humanize.Time(rec.When))
		} else {
			when = " " + f.style(dimStyle, humanize.RelTime(rec.When, input.Now, "ago", "from now"))
		}
	}
	fmt.Fprintf(w, "  %s %s%s\n", f.style(indexStyle, fmt.Sprintf("[%d]", item.Index)), rec.Title, when)
	if rec.Summary != "" {
		fmt.Fprintf(w, "      %s\n", rec.Summary)
	}
	if len(rec.Tags) > 0 {
		fmt.Fprintf(w, "      %s\n", f.style(dimStyle, "#"+strings.Join(rec.Tags, " #")))
	}
}

func (f *TerminalFormatter) style(s lipgloss.Style, text string) string {
	if !f.color {
		return text
	}
	return s.Render(text)
}
