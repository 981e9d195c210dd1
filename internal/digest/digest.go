// Package digest renders a batch of reports for review or export.
package digest

import (
	"io"
	"time"

	"github.com/ppiankov/feedherald/internal/store"
)

// Item is a report with its 1-based position in the batch under review.
type Item struct {
	Index  int
	Record store.ReportRecord
}

// Input is the full input for a formatter.
type Input struct {
	Items []Item
	Now   time.Time
}

// Formatter writes a formatted batch to w.
type Formatter interface {
	Format(w io.Writer, input Input) error
}

// Number assigns batch positions in record order.
func Number(records []store.ReportRecord) []Item {
	items := make([]Item, len(records))
	for i, rec := range records {
		items[i] = Item{Index: i + 1, Record: rec}
	}
	return items
}

// groupBySource keeps sources in first-seen order.
func groupBySource(items []Item) (order []string, groups map[string][]Item) {
	groups = make(map[string][]Item)
	for _, item := range items {
		src := item.Record.Source
		if _, ok := groups[src]; !ok {
			order = append(order, src)
		}
		groups[src] = append(groups[src], item)
	}
	return order, groups
}
