package digest

import (
	"fmt"
	"io"
	"strings"
)

// MarkdownFormatter writes each report's markdown body under a heading.
type MarkdownFormatter struct{}

// NewMarkdown creates a Markdown formatter.
func NewMarkdown() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

func (f *MarkdownFormatter) Format(w io.Writer, input Input) error {
	order, groups := groupBySource(input.Items)
	fmt.Fprintf(w, "# feedherald reports\n\n")

	if len(input.Items) == 0 {
		fmt.Fprintln(w, "No reports pending.")
		return nil
	}

	for _, src := range order {
		items := groups[src]
		fmt.Fprintf(w, "## %s (%d)\n\n", src, len(items))
		for _, item := range items {
			rec := item.Record
			fmt.Fprintf(w, "### [%d] %s\n\n", item.Index, rec.Title)
			if !rec.When.IsZero() {
				fmt.Fprintf(w, "*%s*\n\n", rec.When.UTC().Format("2006-01-02 15:04 MST"))
			}
			if body := strings.TrimSpace(rec.Markdown); body != "" {
				fmt.Fprintf(w, "%s\n\n", body)
			}
			if len(rec.Tags) > 0 {
				parts := make([]string, len(rec.Tags))
				for i, t := range rec.Tags {
					parts[i] = "`#" + t + "`"
				}
				fmt.Fprintf(w, "Tags: %s\n\n", strings.Join(parts, " "))
			}
		}
	}
	return nil
}
