package source

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ppiankov/feedherald/internal/report"
)

// paragraphs extracts readable paragraphs from feed HTML. Content without
// block elements comes back as a single paragraph.
func paragraphs(html string) []string {
	if strings.TrimSpace(html) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		if t := report.Norm(html); t != "" {
			return []string{t}
		}
		return nil
	}
	doc.Find("script, style").Remove()

	var out []string
	doc.Find("p, li, blockquote, h1, h2, h3, h4, h5, h6").Each(func(_ int, sel *goquery.Selection) {
		if sel.Find("p, li").Length() > 0 {
			return
		}
		if t := report.Norm(sel.Text()); t != "" {
			out = append(out, t)
		}
	})
	if len(out) == 0 {
		if t := report.Norm(doc.Text()); t != "" {
			out = append(out, t)
		}
	}
	return out
}
