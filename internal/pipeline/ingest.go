package pipeline

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/dgallion1/dealmap/internal/docmap"
	"github.com/dgallion1/dealmap/internal/parser"
)

// NewDocument turns a parsed source into a document with id doc-{index}.
// Page text is NFKC-normalized so ligatures and full-width forms read as
// plain letters. A source with no text at all is an extraction failure.
func NewDocument(src *parser.Source, index int) (*docmap.Document, error) {
	if src == nil || len(src.Pages) == 0 {
		name := ""
		if src != nil {
			name = src.Name
		}
		return nil, &parser.ExtractionFailure{Name: name, Reason: "no pages"}
	}
	pages := make([]string, len(src.Pages))
	empty := true
	for i, p := range src.Pages {
		pages[i] = norm.NFKC.String(p)
		if strings.TrimSpace(pages[i]) != "" {
			empty = false
		}
	}
	if empty {
		return nil, &parser.ExtractionFailure{Name: src.Name, Reason: "no extractable text"}
	}
	outline := make([]docmap.OutlineEntry, 0, len(src.Outline))
	for _, e := range src.Outline {
		e.Title = norm.NFKC.String(e.Title)
		outline = append(outline, e)
	}
	return &docmap.Document{
		ID:         docmap.DocumentID(index),
		Name:       src.Name,
		Path:       src.Path,
		Pages:      pages,
		TotalPages: len(pages),
		Outline:    outline,
	}, nil
}

// Blocks splits page text into trimmed, non-empty lines.
func Blocks(page string) []string {
	var out []string
	for _, raw := range strings.Split(page, "\n") {
		if line := strings.TrimSpace(raw); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// pageAnchors holds one document's anchors grouped by page.
type pageAnchors struct {
	docID  string
	byPage map[int][]docmap.Anchor
	all    []docmap.Anchor
}

// anchorize assigns "{doc}:p{page}:b{block}" anchors to every block. When
// placeholder is set, an empty page gets a single "Page n" block.
func anchorize(doc *docmap.Document, placeholder bool) *pageAnchors {
	pa := &pageAnchors{docID: doc.ID, byPage: make(map[int][]docmap.Anchor, len(doc.Pages))}
	for i, text := range doc.Pages {
		page := i + 1
		blocks := Blocks(text)
		if len(blocks) == 0 && placeholder {
			blocks = []string{"Page " + strconv.Itoa(page)}
		}
		for j, b := range blocks {
			a := docmap.Anchor{
				ID:         docmap.AnchorID(doc.ID, page, j+1),
				DocumentID: doc.ID,
				Page:       page,
				Block:      j + 1,
				Text:       b,
			}
			pa.byPage[page] = append(pa.byPage[page], a)
			pa.all = append(pa.all, a)
		}
	}
	return pa
}

func (pa *pageAnchors) page(n int) []docmap.Anchor {
	return pa.byPage[n]
}

// first returns the first anchor id of a page, or "".
func (pa *pageAnchors) first(page int) string {
	if blocks := pa.byPage[page]; len(blocks) > 0 {
		return blocks[0].ID
	}
	return ""
}
