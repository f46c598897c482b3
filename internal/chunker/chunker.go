// Package chunker turns a document map into retrieval chunks: one per
// section and one per defined term. It also provides a plain sliding-window
// splitter for loose text.
package chunker

import (
	"fmt"
	"strings"

	"github.com/dgallion1/dealmap/internal/docmap"
)

// Kind labels what a chunk was cut from.
type Kind string

const (
	KindSection    Kind = "section"
	KindDefinition Kind = "definition"
	KindText       Kind = "text"
)

// Chunk is one retrievable unit of text.
type Chunk struct {
	ID         string `json:"chunk_id"`
	Kind       Kind   `json:"kind"`
	DocumentID string `json:"doc_id,omitempty"`
	SectionNo  string `json:"section_no,omitempty"`
	Title      string `json:"title,omitempty"`
	Term       string `json:"term,omitempty"`
	Anchor     string `json:"anchor,omitempty"`
	PageStart  int    `json:"page_start,omitempty"`
	PageEnd    int    `json:"page_end,omitempty"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Text       string `json:"text"`
	Tokens     int    `json:"tokens"`
}

// Options controls map chunking.
type Options struct {
	MaxChars int // cap on chunk text, default 1200
}

// DefaultOptions returns the standard chunking settings.
func DefaultOptions() Options {
	return Options{MaxChars: 1200}
}

// FromMap produces one chunk per section, in map order, followed by one
// per definition. Section text starts with the section's heading line and
// continues with the blocks of its page range from BlockStart on. Sections
// with no text are skipped.
func FromMap(m *docmap.Map, opts Options) []Chunk {
	if m == nil {
		return nil
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultOptions().MaxChars
	}

	var chunks []Chunk
	for _, s := range m.Sections {
		text := docmap.Truncate(sectionText(m, s), opts.MaxChars)
		if strings.TrimSpace(text) == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			ID:         fmt.Sprintf("chunk-%d", len(chunks)),
			Kind:       KindSection,
			DocumentID: s.DocumentID,
			SectionNo:  s.SectionNo,
			Title:      s.Title,
			Anchor:     s.Anchor,
			PageStart:  s.PageStart,
			PageEnd:    s.PageEnd,
			End:        len(text),
			Text:       text,
			Tokens:     EstimateTokens(text),
		})
	}
	for _, d := range m.Definitions {
		text := docmap.Truncate(d.Term+" means "+d.Text, opts.MaxChars)
		page := 0
		if a, ok := m.Anchor(d.Anchor); ok {
			page = a.Page
		}
		chunks = append(chunks, Chunk{
			ID:         fmt.Sprintf("chunk-%d", len(chunks)),
			Kind:       KindDefinition,
			DocumentID: d.DocumentID,
			Term:       d.Term,
			Anchor:     d.Anchor,
			PageStart:  page,
			PageEnd:    page,
			End:        len(text),
			Text:       text,
			Tokens:     EstimateTokens(text),
		})
	}
	return chunks
}

func sectionText(m *docmap.Map, s docmap.Section) string {
	heading := s.Title
	if !s.IsTOCPlaceholder() {
		heading = strings.TrimSpace(s.SectionNo + " " + s.Title)
	}
	var lines []string
	if heading != "" {
		lines = append(lines, heading)
	}
	for page := s.PageStart; page <= s.PageEnd; page++ {
		for _, a := range m.PageBlocks(s.DocumentID, page) {
			if page == s.PageStart && a.Block < s.BlockStart {
				continue
			}
			if a.ID == s.Anchor {
				continue
			}
			lines = append(lines, a.Text)
		}
	}
	return strings.Join(lines, "\n")
}

// SplitText cuts text into fixed windows of size characters, each starting
// size-overlap after the previous one. Offsets are byte positions in the
// trimmed text.
func SplitText(text string, size, overlap int) []Chunk {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return nil
	}
	if size <= 0 {
		size = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	step := max(1, size-overlap)

	var chunks []Chunk
	for i := 0; i < len(cleaned); i += step {
		end := min(i+size, len(cleaned))
		part := cleaned[i:end]
		chunks = append(chunks, Chunk{
			ID:     fmt.Sprintf("chunk-%d", len(chunks)),
			Kind:   KindText,
			Start:  i,
			End:    end,
			Text:   part,
			Tokens: EstimateTokens(part),
		})
	}
	return chunks
}
