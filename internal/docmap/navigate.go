package docmap

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/dealmap/internal/detect"
)

// DocumentInfo is the header of a document without its page text.
type DocumentInfo struct {
	DocumentID string `json:"doc_id"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	TotalPages int    `json:"total_pages"`
}

// OpenDocument returns the header of one document.
func (m *Map) OpenDocument(docID string) (DocumentInfo, error) {
	d, ok := m.Document(docID)
	if !ok {
		return DocumentInfo{}, notFound("doc_id", docID)
	}
	return DocumentInfo{DocumentID: d.ID, Name: d.Name, Path: d.Path, TotalPages: d.TotalPages}, nil
}

// PageView is the raw text of one page.
type PageView struct {
	DocumentID string `json:"doc_id"`
	Page       int    `json:"page"`
	Text       string `json:"text"`
}

// GotoPage returns the text of a page. Pages outside [1, total] are a
// NotFoundError.
func (m *Map) GotoPage(docID string, page int) (PageView, error) {
	d, ok := m.Document(docID)
	if !ok {
		return PageView{}, notFound("doc_id", docID)
	}
	if page < 1 || page > d.TotalPages || page > len(d.Pages) {
		return PageView{}, notFound("page", fmt.Sprintf("%s:%d", docID, page))
	}
	return PageView{DocumentID: docID, Page: page, Text: d.Pages[page-1]}, nil
}

// OpenAnchor returns one anchor.
func (m *Map) OpenAnchor(id string) (Anchor, error) {
	a, ok := m.Anchor(id)
	if !ok {
		return Anchor{}, notFound("anchor", id)
	}
	return a, nil
}

// SpanRequest selects either one anchor or a page range of a document.
// DocumentID may be empty when the map holds a single document.
type SpanRequest struct {
	Anchor     string
	DocumentID string
	PageStart  int
	PageEnd    int
}

// SpanPart locates one piece of a span.
type SpanPart struct {
	Anchor    string `json:"anchor,omitempty"`
	Page      int    `json:"page"`
	Block     int    `json:"block,omitempty"`
	CharStart int    `json:"char_start"`
	CharEnd   int    `json:"char_end"`
}

// Span is text read from the map together with where it came from.
type Span struct {
	DocumentID string     `json:"doc_id"`
	Anchors    []string   `json:"anchors"`
	Text       string     `json:"text"`
	Parts      []SpanPart `json:"spans"`
}

// ReadSpan reads a single anchor, or the pages of a range joined with
// "[PAGE n]" markers. The range end is clipped to the document length.
func (m *Map) ReadSpan(req SpanRequest) (Span, error) {
	if req.Anchor != "" {
		a, ok := m.Anchor(req.Anchor)
		if !ok {
			return Span{}, notFound("anchor", req.Anchor)
		}
		return Span{
			DocumentID: a.DocumentID,
			Anchors:    []string{a.ID},
			Text:       a.Text,
			Parts:      []SpanPart{{Anchor: a.ID, Page: a.Page, Block: a.Block, CharEnd: len(a.Text)}},
		}, nil
	}
	if req.PageStart == 0 {
		return Span{}, fmt.Errorf("read span: need anchor or page range: %w", ErrInvalidArgument)
	}

	docID := req.DocumentID
	if docID == "" {
		if len(m.Documents) != 1 {
			return Span{}, fmt.Errorf("read span: doc_id required with %d documents: %w", len(m.Documents), ErrInvalidArgument)
		}
		docID = m.Documents[0].ID
	}
	start, end := req.PageStart, req.PageEnd
	if end == 0 {
		end = start
	}
	if start < 1 || end < start {
		return Span{}, fmt.Errorf("read span: page range %d-%d: %w", start, end, ErrInvalidArgument)
	}
	d, ok := m.Document(docID)
	if !ok {
		return Span{}, notFound("doc_id", docID)
	}

	span := Span{DocumentID: docID, Anchors: []string{}}
	var parts []string
	for page := start; page <= min(end, d.TotalPages, len(d.Pages)); page++ {
		text := d.Pages[page-1]
		parts = append(parts, fmt.Sprintf("[PAGE %d]\n%s", page, text))
		span.Parts = append(span.Parts, SpanPart{Page: page, CharEnd: len(text)})
	}
	span.Text = strings.Join(parts, "\n\n")
	return span, nil
}

// DefinitionResult is the outcome of a term lookup.
type DefinitionResult struct {
	Found      bool   `json:"found"`
	Term       string `json:"term"`
	Anchor     string `json:"anchor,omitempty"`
	Text       string `json:"text,omitempty"`
	DocumentID string `json:"doc_id,omitempty"`
}

// ReadDefinition looks a term up case-insensitively. An empty docID
// searches every document in load order.
func (m *Map) ReadDefinition(term, docID string) DefinitionResult {
	needle := strings.ToLower(strings.TrimSpace(term))
	if docID != "" {
		if i, ok := m.index().definitions[definitionKey(docID, needle)]; ok {
			return definitionHit(m.Definitions[i])
		}
		return DefinitionResult{Term: term}
	}
	for _, d := range m.Definitions {
		if strings.ToLower(d.Term) == needle {
			return definitionHit(d)
		}
	}
	return DefinitionResult{Term: term}
}

func definitionHit(d Definition) DefinitionResult {
	return DefinitionResult{Found: true, Term: d.Term, Anchor: d.Anchor, Text: d.Text, DocumentID: d.DocumentID}
}

// Quote is a short excerpt of an anchor.
type Quote struct {
	Anchor     string `json:"anchor"`
	DocumentID string `json:"doc_id"`
	Page       int    `json:"page"`
	Excerpt    string `json:"excerpt"`
}

const quoteLimit = 320

// QuoteEvidence returns excerpts for the known anchors among ids, in order.
// Unknown ids are skipped.
func (m *Map) QuoteEvidence(ids []string) []Quote {
	quotes := make([]Quote, 0, len(ids))
	for _, id := range ids {
		a, ok := m.Anchor(id)
		if !ok {
			continue
		}
		quotes = append(quotes, Quote{Anchor: id, DocumentID: a.DocumentID, Page: a.Page, Excerpt: Truncate(a.Text, quoteLimit)})
	}
	return quotes
}

// RefQuery asks for either a recorded reference by id or a free-text
// target within one document.
type RefQuery struct {
	RefID      string
	TargetText string
	DocumentID string
}

// RefResult is the outcome of following a reference.
type RefResult struct {
	Resolved bool   `json:"resolved"`
	Anchor   string `json:"anchor,omitempty"`
	Ref      Xref   `json:"ref"`
}

var (
	refNumberRe  = regexp.MustCompile(`(\d+(?:\.\d+)*)`)
	refArticleRe = regexp.MustCompile(`(?i)article\s+([ivxlcm]+|[a-z])\b`)
)

// FollowReference resolves a reference. A recorded id that is unknown is
// a NotFoundError; a free-text target that matches nothing is returned
// unresolved with type "unknown".
//
// Free-text targets are matched against the document's sections first by
// exact number or article, then by normalized containment in either
// direction, and finally against defined terms.
func (m *Map) FollowReference(q RefQuery) (RefResult, error) {
	if q.RefID != "" {
		x, ok := m.Xref(q.RefID)
		if !ok {
			return RefResult{}, notFound("ref_id", q.RefID)
		}
		return RefResult{Resolved: x.Resolved(), Anchor: x.ResolvedAnchor, Ref: x}, nil
	}
	if q.TargetText == "" || q.DocumentID == "" {
		return RefResult{}, fmt.Errorf("follow reference: need ref_id or target_text and doc_id: %w", ErrInvalidArgument)
	}

	target := detect.NormalizeKey(q.TargetText)
	var number, article string
	if mm := refNumberRe.FindStringSubmatch(q.TargetText); mm != nil {
		number = mm[1]
	}
	if mm := refArticleRe.FindStringSubmatch(q.TargetText); mm != nil {
		article = strings.ToLower(detect.ArticlePrefix + mm[1])
	}
	hit := func(s Section, t detect.RefType) RefResult {
		return RefResult{Resolved: true, Anchor: s.Anchor, Ref: Xref{RefType: t, TargetText: q.TargetText, ResolvedAnchor: s.Anchor}}
	}

	var fuzzy *Section
	var fuzzyType detect.RefType
	for i := range m.Sections {
		s := m.Sections[i]
		if s.DocumentID != q.DocumentID || s.Anchor == "" {
			continue
		}
		key := s.Key()
		if article != "" && key == article {
			return hit(s, detect.RefArticle), nil
		}
		if number != "" && s.SectionNo == number {
			return hit(s, detect.RefSection), nil
		}
		if fuzzy == nil && key != "" && (strings.Contains(key, target) || strings.Contains(target, key)) {
			fuzzy = &m.Sections[i]
			fuzzyType = detect.RefSection
			if strings.HasPrefix(key, strings.ToLower(detect.ArticlePrefix)) {
				fuzzyType = detect.RefArticle
			}
		}
	}
	if fuzzy != nil {
		return hit(*fuzzy, fuzzyType), nil
	}

	if d := m.ReadDefinition(q.TargetText, q.DocumentID); d.Found {
		return RefResult{Resolved: true, Anchor: d.Anchor, Ref: Xref{RefType: detect.RefDefinition, TargetText: q.TargetText, ResolvedAnchor: d.Anchor}}, nil
	}
	return RefResult{Ref: Xref{RefType: detect.RefUnknown, TargetText: q.TargetText}}, nil
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
