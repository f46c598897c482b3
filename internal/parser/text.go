package parser

import (
	"io"
	"path/filepath"
	"regexp"
	"strings"
)

var pageMarkerRe = regexp.MustCompile(`\n\s*\[PAGE\s+\d+\][ \t\r]*\n`)

// SplitPages splits text on "[PAGE n]" marker lines. Empty pages are
// dropped; text without markers, or with nothing but markers, is one page.
// A marker on the very first line is honored too.
func SplitPages(text string) []string {
	var pages []string
	for _, part := range pageMarkerRe.Split("\n"+text, -1) {
		if p := strings.TrimSpace(part); p != "" {
			pages = append(pages, p)
		}
	}
	if len(pages) == 0 && strings.TrimSpace(text) != "" {
		return []string{text}
	}
	return pages
}

// TextParser handles plain text files with optional page markers.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*Source, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text := strings.ToValidUTF8(string(data), "")
	return &Source{
		Name:  filepath.Base(filename),
		Pages: SplitPages(text),
	}, nil
}
