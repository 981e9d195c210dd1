package report

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// PlainText renders markdown as plain text. Formatting marks are dropped,
// link targets follow their text in parentheses, and block elements are
// separated by blank lines.
func PlainText(md string) string {
	src := []byte(md)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				buf.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				buf.Write(node.Value)
			}
		case *ast.AutoLink:
			if entering {
				buf.Write(node.URL(src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.Link:
			if !entering {
				dest := string(node.Destination)
				if dest != "" && dest != string(node.Text(src)) {
					buf.WriteString(" (" + dest + ")")
				}
			}
		case *ast.Image:
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					buf.Write(seg.Value(src))
				}
				buf.WriteString("\n\n")
			}
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			if !entering {
				buf.WriteByte('\n')
			}
		case *ast.List:
			if !entering {
				buf.WriteByte('\n')
			}
		case *ast.Paragraph, *ast.Heading, *ast.TextBlock, *ast.Blockquote, *ast.ThematicBreak:
			if !entering {
				if _, inItem := n.Parent().(*ast.ListItem); inItem {
					break
				}
				buf.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})

	return NormLines(buf.String())
}
