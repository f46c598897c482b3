package docmap

import (
	"fmt"
	"sort"

	"github.com/dgallion1/dealmap/internal/detect"
)

// Node is one section in a document's tree. Parent and Children are
// indexes into Tree.Nodes; Parent is -1 for roots.
type Node struct {
	ID         string   `json:"node_id"`
	SectionID  string   `json:"section_id"`
	DocumentID string   `json:"doc_id"`
	SectionNo  string   `json:"section_no"`
	Title      string   `json:"title"`
	Level      int      `json:"level"`
	PageStart  int      `json:"page_start"`
	PageEnd    int      `json:"page_end"`
	Anchor     string   `json:"anchor"`
	Source     Source   `json:"source"`
	Summary    string   `json:"summary,omitempty"`
	KeyEvents  []string `json:"key_events,omitempty"`
	Parent     int      `json:"parent"`
	Children   []int    `json:"children,omitempty"`
}

// Tree is the section hierarchy of one document, stored flat in pre-order.
type Tree struct {
	DocumentID string `json:"doc_id"`
	Nodes      []Node `json:"nodes"`
	Roots      []int  `json:"roots"`
}

// Walk visits nodes in pre-order. Returning false from fn skips the
// node's children.
func (t *Tree) Walk(fn func(idx int, n *Node, depth int) bool) {
	var visit func(idx, depth int)
	visit = func(idx, depth int) {
		n := &t.Nodes[idx]
		if !fn(idx, n, depth) {
			return
		}
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	for _, r := range t.Roots {
		visit(r, 0)
	}
}

// Ancestors returns the chain of parent indexes from the root down to, but
// not including, idx.
func (t *Tree) Ancestors(idx int) []int {
	var chain []int
	for p := t.Nodes[idx].Parent; p >= 0; p = t.Nodes[p].Parent {
		chain = append(chain, p)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// SortSections orders sections by document order, then page, block and
// section number. docOrder lists document ids in load order; unknown
// documents sort after known ones by id.
func SortSections(docOrder []string, sections []Section) {
	rank := make(map[string]int, len(docOrder))
	for i, id := range docOrder {
		rank[id] = i
	}
	docRank := func(id string) int {
		if r, ok := rank[id]; ok {
			return r
		}
		return len(docOrder)
	}
	sort.SliceStable(sections, func(i, j int) bool {
		a, b := sections[i], sections[j]
		if ra, rb := docRank(a.DocumentID), docRank(b.DocumentID); ra != rb {
			return ra < rb
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		if a.PageStart != b.PageStart {
			return a.PageStart < b.PageStart
		}
		if a.BlockStart != b.BlockStart {
			return a.BlockStart < b.BlockStart
		}
		return detect.CompareSectionNo(a.SectionNo, b.SectionNo) < 0
	})
}

// BuildTrees assembles one tree per document from the picked sections.
// A section's parent is the most recent open section one level shallower
// in the same document; opening a level closes every deeper one. Node ids
// ("N00001", ...) are assigned in pre-order across the whole forest.
//
// Parents whose inferred page range stops short of a descendant are
// widened to cover it. The returned sections carry the same adjustment,
// in tree build order.
func BuildTrees(docOrder []string, sections []Section) (map[string]*Tree, []Section) {
	ordered := make([]Section, len(sections))
	copy(ordered, sections)
	SortSections(docOrder, ordered)

	trees := make(map[string]*Tree)
	var treeOrder []string
	grouped := make(map[string][]int)
	for i, s := range ordered {
		if _, ok := grouped[s.DocumentID]; !ok {
			treeOrder = append(treeOrder, s.DocumentID)
		}
		grouped[s.DocumentID] = append(grouped[s.DocumentID], i)
	}

	counter := 1
	for _, docID := range treeOrder {
		t := assemble(docID, ordered, grouped[docID])
		for i := range t.Nodes {
			t.Nodes[i].ID = fmt.Sprintf("N%05d", counter)
			counter++
		}
		widen(t)
		trees[docID] = t
	}

	bySection := make(map[string]*Node)
	for _, t := range trees {
		for i := range t.Nodes {
			bySection[t.Nodes[i].SectionID] = &t.Nodes[i]
		}
	}
	for i := range ordered {
		if n, ok := bySection[ordered[i].ID]; ok {
			ordered[i].PageEnd = n.PageEnd
		}
	}
	return trees, ordered
}

// assemble links the given sections (indexes into all, already sorted)
// and returns the tree with nodes re-laid in pre-order.
func assemble(docID string, all []Section, members []int) *Tree {
	type draft struct {
		sec      Section
		children []int
	}
	drafts := make([]draft, len(members))
	var roots []int
	open := make(map[int]int)
	for di, si := range members {
		s := all[si]
		drafts[di].sec = s
		level := max(1, s.Level)
		if p, ok := open[level-1]; ok {
			drafts[p].children = append(drafts[p].children, di)
		} else {
			roots = append(roots, di)
		}
		open[level] = di
		for l := range open {
			if l > level {
				delete(open, l)
			}
		}
	}

	t := &Tree{DocumentID: docID, Nodes: make([]Node, 0, len(drafts))}
	var place func(di, parent int) int
	place = func(di, parent int) int {
		s := drafts[di].sec
		idx := len(t.Nodes)
		t.Nodes = append(t.Nodes, Node{
			SectionID:  s.ID,
			DocumentID: s.DocumentID,
			SectionNo:  s.SectionNo,
			Title:      s.Title,
			Level:      max(1, s.Level),
			PageStart:  s.PageStart,
			PageEnd:    s.PageEnd,
			Anchor:     s.Anchor,
			Source:     s.Source,
			Summary:    s.Summary,
			KeyEvents:  s.KeyEvents,
			Parent:     parent,
		})
		for _, c := range drafts[di].children {
			ci := place(c, idx)
			t.Nodes[idx].Children = append(t.Nodes[idx].Children, ci)
		}
		return idx
	}
	for _, r := range roots {
		t.Roots = append(t.Roots, place(r, -1))
	}
	return t
}

// widen extends each parent's PageEnd to its furthest descendant. Nodes are
// in pre-order, so a reverse pass sees children before parents.
func widen(t *Tree) {
	for i := len(t.Nodes) - 1; i >= 0; i-- {
		n := &t.Nodes[i]
		for _, c := range n.Children {
			if end := t.Nodes[c].PageEnd; end > n.PageEnd {
				n.PageEnd = end
			}
		}
	}
}
