package parser

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/dealmap/internal/docmap"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark. "[PAGE n]" markers
// split pages; headings become outline entries on the page they sit on.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*Source, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	out := &Source{Name: filepath.Base(filename)}
	md := goldmark.New()
	for i, page := range SplitPages(string(src)) {
		pageSrc := []byte(page)
		doc := md.Parser().Parse(text.NewReader(pageSrc))

		var lines []string
		for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
			switch node := n.(type) {
			case *ast.Heading:
				title := strings.TrimSpace(extractText(node, pageSrc))
				if title == "" {
					continue
				}
				lines = append(lines, title)
				out.Outline = append(out.Outline, docmap.OutlineEntry{Title: title, Page: i + 1, Level: node.Level})
			case *ast.ThematicBreak:
				continue
			default:
				if t := extractText(n, pageSrc); t != "" {
					lines = append(lines, t)
				}
			}
		}
		out.Pages = append(out.Pages, strings.Join(lines, "\n"))
	}
	return out, nil
}

// extractText gets the text content of a goldmark AST node.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock && n.ChildCount() == 0 {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
			continue
		}
		buf.WriteString(extractText(c, src))
		if c.Type() == ast.TypeBlock {
			buf.WriteByte('\n')
		}
	}
	return strings.TrimSpace(buf.String())
}
