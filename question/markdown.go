package question

import (
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var md = goldmark.New()

// stripMarkdown renders one line of markdown as plain text. Emphasis,
// headings, links and code spans are reduced to their text; images are
// kept as ![alt](dest) so resolved URLs survive. Raw HTML is kept
// verbatim.
func stripMarkdown(line string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return ""
	}
	source := []byte(trimmed)
	doc := md.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			b.Write(plainSegment(node.Segment.Value(source)))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.Image:
			b.WriteString("![")
			b.WriteString(plainText(node, source))
			b.WriteString("](")
			b.Write(node.Destination)
			b.WriteString(")")
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			b.Write(node.URL(source))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			// Comparisons such as x<y and y>z parse as inline tags.
			for i := 0; i < node.Segments.Len(); i++ {
				seg := node.Segments.At(i)
				b.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			if list, ok := node.Parent().(*ast.List); ok {
				if list.IsOrdered() {
					b.WriteString(strconv.Itoa(list.Start))
					b.WriteByte(list.Marker)
					b.WriteByte(' ')
				} else {
					b.WriteByte(list.Marker)
					b.WriteByte(' ')
				}
			}
		}
		return ast.WalkContinue, nil
	})

	out := collapseSpaces(b.String())
	if out == "" {
		return trimmed
	}
	return out
}

// plainSegment resolves backslash escapes and character references.
func plainSegment(v []byte) []byte {
	v = util.UnescapePunctuations(v)
	v = util.ResolveNumericReferences(v)
	return util.ResolveEntityNames(v)
}

// plainText concatenates the text children of n.
func plainText(n ast.Node, source []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			b.Write(plainSegment(t.Segment.Value(source)))
			continue
		}
		b.WriteString(plainText(c, source))
	}
	return b.String()
}

// collapseSpaces trims s and folds runs of whitespace into one space.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
