package docmap

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Map is a built document map. Fields are exported for encoding; callers
// must treat a Map as read-only once it is published.
type Map struct {
	Documents   []Document       `json:"documents"`
	Sections    []Section        `json:"sections"`
	Trees       map[string]*Tree `json:"section_tree"`
	Definitions []Definition     `json:"definitions"`
	Anchors     []Anchor         `json:"anchors"`
	Xrefs       []Xref           `json:"xrefs"`

	once sync.Once
	idx  *lookup
}

type lookup struct {
	docs        map[string]int
	anchors     map[string]int
	pageFirst   map[pageKey]string
	pageBlocks  map[pageKey][]int
	sections    map[string]int
	definitions map[string]int
	xrefs       map[string]int
}

type pageKey struct {
	doc  string
	page int
}

func (m *Map) index() *lookup {
	m.once.Do(func() {
		l := &lookup{
			docs:        make(map[string]int, len(m.Documents)),
			anchors:     make(map[string]int, len(m.Anchors)),
			pageFirst:   make(map[pageKey]string),
			pageBlocks:  make(map[pageKey][]int),
			sections:    make(map[string]int, len(m.Sections)),
			definitions: make(map[string]int, len(m.Definitions)),
			xrefs:       make(map[string]int, len(m.Xrefs)),
		}
		for i, d := range m.Documents {
			l.docs[d.ID] = i
		}
		for i, a := range m.Anchors {
			l.anchors[a.ID] = i
			k := pageKey{a.DocumentID, a.Page}
			if _, ok := l.pageFirst[k]; !ok {
				l.pageFirst[k] = a.ID
			}
			l.pageBlocks[k] = append(l.pageBlocks[k], i)
		}
		for i, s := range m.Sections {
			l.sections[s.ID] = i
		}
		for i, d := range m.Definitions {
			k := definitionKey(d.DocumentID, d.Term)
			if _, ok := l.definitions[k]; !ok {
				l.definitions[k] = i
			}
		}
		for i, x := range m.Xrefs {
			l.xrefs[x.ID] = i
		}
		m.idx = l
	})
	return m.idx
}

func definitionKey(docID, term string) string {
	return docID + ":" + strings.ToLower(strings.TrimSpace(term))
}

// Document returns the document with the given id.
func (m *Map) Document(id string) (Document, bool) {
	i, ok := m.index().docs[id]
	if !ok {
		return Document{}, false
	}
	return m.Documents[i], true
}

// Anchor returns the anchor with the given id.
func (m *Map) Anchor(id string) (Anchor, bool) {
	i, ok := m.index().anchors[id]
	if !ok {
		return Anchor{}, false
	}
	return m.Anchors[i], true
}

// PageBlocks returns the anchors of one page in block order.
func (m *Map) PageBlocks(docID string, page int) []Anchor {
	idxs := m.index().pageBlocks[pageKey{docID, page}]
	out := make([]Anchor, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, m.Anchors[i])
	}
	return out
}

// Section returns the section with the given id.
func (m *Map) Section(id string) (Section, bool) {
	i, ok := m.index().sections[id]
	if !ok {
		return Section{}, false
	}
	return m.Sections[i], true
}

// Xref returns the reference with the given id.
func (m *Map) Xref(id string) (Xref, bool) {
	i, ok := m.index().xrefs[id]
	if !ok {
		return Xref{}, false
	}
	return m.Xrefs[i], true
}

// DocumentIDs lists document ids in load order.
func (m *Map) DocumentIDs() []string {
	ids := make([]string, len(m.Documents))
	for i, d := range m.Documents {
		ids[i] = d.ID
	}
	return ids
}

// Validate checks the structural invariants of the map and returns every
// violation found, joined.
func (m *Map) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(m.Anchors))
	for _, a := range m.Anchors {
		if seen[a.ID] {
			errs = append(errs, fmt.Errorf("duplicate anchor %s", a.ID))
		}
		seen[a.ID] = true
	}
	for _, s := range m.Sections {
		if s.Anchor != "" && !seen[s.Anchor] {
			errs = append(errs, fmt.Errorf("section %s: unknown anchor %s", s.ID, s.Anchor))
		}
		if s.PageStart > s.PageEnd {
			errs = append(errs, fmt.Errorf("section %s: page_start %d > page_end %d", s.ID, s.PageStart, s.PageEnd))
		}
	}
	for _, x := range m.Xrefs {
		if !seen[x.FromAnchor] {
			errs = append(errs, fmt.Errorf("xref %s: unknown from_anchor %s", x.ID, x.FromAnchor))
		}
		if x.ResolvedAnchor != "" && !seen[x.ResolvedAnchor] {
			errs = append(errs, fmt.Errorf("xref %s: unknown resolved_anchor %s", x.ID, x.ResolvedAnchor))
		}
	}
	for docID, t := range m.Trees {
		for i, n := range t.Nodes {
			if n.Parent < 0 {
				continue
			}
			p := t.Nodes[n.Parent]
			if n.PageStart < p.PageStart || n.PageEnd > p.PageEnd {
				errs = append(errs, fmt.Errorf("tree %s: node %d [%d,%d] outside parent %s [%d,%d]",
					docID, i, n.PageStart, n.PageEnd, p.ID, p.PageStart, p.PageEnd))
			}
		}
	}
	return errors.Join(errs...)
}

// ErrDuplicateDocument is returned by Merge when both maps hold a document
// with the same id.
var ErrDuplicateDocument = errors.New("duplicate document id")

// Merge returns a new map holding the contents of base and add. Neither
// input is modified. References from add are renumbered to follow base's,
// and trees are rebuilt so node ids stay unique across the forest.
func Merge(base, add *Map) (*Map, error) {
	if base == nil {
		base = &Map{}
	}
	if add == nil {
		add = &Map{}
	}
	for _, d := range add.Documents {
		if _, ok := base.Document(d.ID); ok {
			return nil, fmt.Errorf("merge %s: %w", d.ID, ErrDuplicateDocument)
		}
	}

	out := &Map{
		Documents:   append(append([]Document{}, base.Documents...), add.Documents...),
		Sections:    append(append([]Section{}, base.Sections...), add.Sections...),
		Definitions: append(append([]Definition{}, base.Definitions...), add.Definitions...),
		Anchors:     append(append([]Anchor{}, base.Anchors...), add.Anchors...),
		Xrefs:       append([]Xref{}, base.Xrefs...),
	}
	next := len(base.Xrefs)
	for _, x := range add.Xrefs {
		x.ID = XrefID(next)
		next++
		out.Xrefs = append(out.Xrefs, x)
	}
	out.Trees, out.Sections = BuildTrees(out.DocumentIDs(), out.Sections)
	return out, nil
}
