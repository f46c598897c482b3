// Package docmap holds the addressable representation of a set of indexed
// documents: anchors, sections, section trees, definitions and
// cross-references. A Map is immutable once built; Merge returns a new one.
package docmap

import (
	"fmt"
	"strings"

	"github.com/dgallion1/dealmap/internal/detect"
)

// Anchor is a stable address for one block of text.
type Anchor struct {
	ID         string `json:"id"`
	DocumentID string `json:"doc_id"`
	Page       int    `json:"page"`
	Block      int    `json:"block"`
	Text       string `json:"text"`
}

// AnchorID formats the "{doc}:p{page}:b{block}" address.
func AnchorID(docID string, page, block int) string {
	return fmt.Sprintf("%s:p%d:b%d", docID, page, block)
}

// OutlineEntry is one bookmark or heading taken from the source file.
type OutlineEntry struct {
	Title string `json:"title"`
	Page  int    `json:"page"`
	Level int    `json:"level"`
}

// Document is a loaded source file split into pages.
type Document struct {
	ID         string         `json:"doc_id"`
	Name       string         `json:"name"`
	Path       string         `json:"path"`
	Pages      []string       `json:"pages"`
	TotalPages int            `json:"total_pages"`
	Outline    []OutlineEntry `json:"outlines,omitempty"`
}

// DocumentID formats a document id from its load index.
func DocumentID(index int) string {
	return fmt.Sprintf("doc-%d", index)
}

// Source records which signal produced a section.
type Source string

const (
	SourceTOC     Source = "toc"
	SourceOutline Source = "outline"
	SourceLLM     Source = "llm"
	SourceGeneric Source = "generic"
	SourceText    Source = "text"
)

// sourcePriority ranks sources when several describe the same section
// number. Higher wins.
var sourcePriority = map[Source]int{
	SourceTOC:     4,
	SourceOutline: 3,
	SourceLLM:     2,
	SourceGeneric: 2,
	SourceText:    1,
}

// Priority returns the rank of s; unknown sources rank lowest.
func (s Source) Priority() int {
	return sourcePriority[s]
}

// Verification is the outcome of checking a TOC entry against the page text.
type Verification string

const (
	Verified   Verification = "verified"
	Corrected  Verification = "corrected"
	Unverified Verification = "unverified"
)

// Section is one logical section of a document.
type Section struct {
	ID           string       `json:"id"`
	DocumentID   string       `json:"doc_id"`
	SectionNo    string       `json:"section_no"`
	Title        string       `json:"title"`
	Level        int          `json:"level"`
	PageStart    int          `json:"page_start"`
	PageEnd      int          `json:"page_end"`
	BlockStart   int          `json:"block_start"`
	Anchor       string       `json:"anchor"`
	Source       Source       `json:"source"`
	Verification Verification `json:"verification,omitempty"`
	Summary      string       `json:"summary,omitempty"`
	KeyEvents    []string     `json:"key_events,omitempty"`
}

// Key is the normalized section number used for dedup and lookup.
func (s Section) Key() string {
	return detect.NormalizeKey(s.SectionNo)
}

// Outranks reports whether s should replace cur as the kept section for a
// shared key: higher source priority wins, then the earlier page.
func (s Section) Outranks(cur Section) bool {
	sp, cp := s.Source.Priority(), cur.Source.Priority()
	if sp != cp {
		return sp > cp
	}
	return s.PageStart < cur.PageStart
}

// Placeholder prefixes for sections that carry no detected number.
const (
	TOCPrefix     = "TOC"
	OutlinePrefix = "OUTLINE"
	LLMPrefix     = "LLM"
)

// IsTOCPlaceholder reports whether the section came from a TOC line that
// carried no section number.
func (s Section) IsTOCPlaceholder() bool {
	return strings.HasPrefix(s.SectionNo, TOCPrefix+"-")
}

// Definition is a defined term and the block that defines it.
type Definition struct {
	ID         string `json:"id"`
	DocumentID string `json:"doc_id"`
	Term       string `json:"term"`
	Anchor     string `json:"anchor"`
	Text       string `json:"text"`
}

// Xref is a reference mention. ResolvedAnchor is empty when unresolved.
type Xref struct {
	ID             string         `json:"id"`
	FromAnchor     string         `json:"from_anchor"`
	RefType        detect.RefType `json:"ref_type"`
	TargetText     string         `json:"target_text"`
	ResolvedAnchor string         `json:"resolved_anchor,omitempty"`
}

// Resolved reports whether the reference points at a known anchor.
func (x Xref) Resolved() bool {
	return x.ResolvedAnchor != ""
}

// XrefID formats the sequential reference id.
func XrefID(n int) string {
	return fmt.Sprintf("xref-%d", n)
}
