package retrieval

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dgallion1/dealmap/internal/docmap"
)

// Scope limits what Search looks at.
type Scope string

const (
	ScopeDoc        Scope = "doc"
	ScopeSection    Scope = "section"
	ScopeDefinition Scope = "definition"
)

// DefaultSearchTopK is the number of results Search returns when asked for
// none.
const DefaultSearchTopK = 8

// ErrInvalidScope is returned by Search for a scope it does not know.
var ErrInvalidScope = errors.New("invalid search scope")

// ParseScope maps a request value to a Scope; empty means ScopeDoc.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeDoc:
		return ScopeDoc, nil
	case ScopeSection:
		return ScopeSection, nil
	case ScopeDefinition:
		return ScopeDefinition, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidScope, s)
}

// Result kinds.
const (
	ResultSection    = "section"
	ResultDefinition = "definition"
	ResultBlock      = "block"
)

// Result is one lexical match.
type Result struct {
	Type       string `json:"type"`
	Score      int    `json:"score"`
	Anchor     string `json:"anchor"`
	DocumentID string `json:"doc_id"`
	SectionNo  string `json:"section_no,omitempty"`
	Title      string `json:"title,omitempty"`
	Term       string `json:"term,omitempty"`
	PageStart  int    `json:"page_start,omitempty"`
	PageEnd    int    `json:"page_end,omitempty"`
	Text       string `json:"text"`

	// Path lists the section numbers of a section result's ancestors,
	// outermost first.
	Path         []string            `json:"path,omitempty"`
	Verification docmap.Verification `json:"verification,omitempty"`
}

// bonus adds 3 to a candidate when the query and the candidate both mention
// one of the words in a family.
type bonus struct {
	query []string
	text  []string
}

var bonuses = []bonus{
	{query: []string{"amount"}, text: []string{"$"}},
	{query: []string{"maturity"}, text: []string{"maturity"}},
	{query: []string{"covenant"}, text: []string{"covenant"}},
	{query: []string{"default"}, text: []string{"default"}},
	{query: facilityWords, text: facilityWords},
	{query: pricingWords, text: pricingWords},
	{query: repaymentWords, text: repaymentWords},
}

var (
	facilityWords  = []string{"facility", "facilities", "tranche", "commitment"}
	pricingWords   = []string{"interest", "rate", "margin", "sofr"}
	repaymentWords = []string{"repayment", "prepayment", "amortization"}
)

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

type scorer struct {
	tokens []string
	query  string
	active []bonus
}

func newScorer(query string) *scorer {
	s := &scorer{tokens: QueryTokens(query), query: strings.ToLower(query)}
	for _, bn := range bonuses {
		if containsAny(s.query, bn.query) {
			s.active = append(s.active, bn)
		}
	}
	return s
}

func (s *scorer) score(text string) int {
	low := strings.ToLower(text)
	n := 0
	for _, t := range s.tokens {
		if strings.Contains(low, t) {
			n++
		}
	}
	for _, bn := range s.active {
		if containsAny(low, bn.text) {
			n += 3
		}
	}
	return n
}

// Search finds tree nodes, definitions and blocks that mention the query's
// terms. Section results come first within a score, then definitions, then
// blocks, each in map order.
func Search(m *docmap.Map, query string, scope Scope, topK int) ([]Result, error) {
	if m == nil {
		return nil, fmt.Errorf("search: no document map: %w", docmap.ErrInvalidArgument)
	}
	if scope == "" {
		scope = ScopeDoc
	}
	if scope != ScopeDoc && scope != ScopeSection && scope != ScopeDefinition {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
	if topK <= 0 {
		topK = DefaultSearchTopK
	}
	sc := newScorer(query)
	if len(sc.tokens) == 0 {
		return nil, nil
	}

	var out []Result
	if scope == ScopeDoc || scope == ScopeSection {
		for _, docID := range m.DocumentIDs() {
			tree := m.Trees[docID]
			if tree == nil {
				continue
			}
			tree.Walk(func(idx int, n *docmap.Node, _ int) bool {
				if strings.HasPrefix(n.SectionNo, docmap.TOCPrefix+"-") {
					return true
				}
				var anchorText string
				if a, ok := m.Anchor(n.Anchor); ok {
					anchorText = a.Text
				}
				text := n.SectionNo + " " + n.Title + " " + anchorText
				if n.Summary != "" {
					text += " " + n.Summary
				}
				if len(n.KeyEvents) > 0 {
					text += " " + strings.Join(n.KeyEvents, " ")
				}
				if s := sc.score(text); s > 0 {
					res := Result{
						Type:       ResultSection,
						Score:      s,
						Anchor:     n.Anchor,
						DocumentID: docID,
						SectionNo:  n.SectionNo,
						Title:      n.Title,
						PageStart:  n.PageStart,
						PageEnd:    n.PageEnd,
						Text:       anchorText,
					}
					for _, p := range tree.Ancestors(idx) {
						res.Path = append(res.Path, tree.Nodes[p].SectionNo)
					}
					if sec, ok := m.Section(n.SectionID); ok {
						res.Verification = sec.Verification
					}
					out = append(out, res)
				}
				return true
			})
		}
	}
	if scope == ScopeDoc || scope == ScopeDefinition {
		for _, d := range m.Definitions {
			if s := sc.score(d.Term + " " + d.Text); s > 0 {
				out = append(out, Result{
					Type:       ResultDefinition,
					Score:      s,
					Anchor:     d.Anchor,
					DocumentID: d.DocumentID,
					Term:       d.Term,
					Text:       d.Text,
				})
			}
		}
	}
	if scope == ScopeDoc {
		for _, a := range m.Anchors {
			if s := sc.score(a.Text); s > 0 {
				out = append(out, Result{
					Type:       ResultBlock,
					Score:      s,
					Anchor:     a.ID,
					DocumentID: a.DocumentID,
					PageStart:  a.Page,
					PageEnd:    a.Page,
					Text:       a.Text,
				})
			}
		}
	}

	slices.SortStableFunc(out, func(x, y Result) int { return y.Score - x.Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}
