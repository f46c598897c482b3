package pipeline

import (
	"strings"

	"github.com/dgallion1/dealmap/internal/detect"
	"github.com/dgallion1/dealmap/internal/docmap"
)

// refIndex maps "{doc}:{key}" to the anchor a reference should land on.
type refIndex struct {
	sections    map[string]string
	definitions map[string]string
}

func newRefIndex() *refIndex {
	return &refIndex{sections: map[string]string{}, definitions: map[string]string{}}
}

func sectionRefKey(docID, sectionNo string) string {
	return docID + ":" + detect.NormalizeKey(sectionNo)
}

func definitionRefKey(docID, term string) string {
	return docID + ":" + lowerTrim(term)
}

func lowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// setSection records an anchor for a section number, replacing any
// earlier one.
func (ri *refIndex) setSection(docID, sectionNo, anchor string) {
	if anchor != "" {
		ri.sections[sectionRefKey(docID, sectionNo)] = anchor
	}
}

// addSection records an anchor only when the number has none yet.
func (ri *refIndex) addSection(docID, sectionNo, anchor string) {
	k := sectionRefKey(docID, sectionNo)
	if _, ok := ri.sections[k]; !ok && anchor != "" {
		ri.sections[k] = anchor
	}
}

// collectMentions records every reference mention in a block as an
// unresolved xref, numbering from *next.
func collectMentions(a docmap.Anchor, next *int) []docmap.Xref {
	var out []docmap.Xref
	for _, m := range detect.References(a.Text) {
		out = append(out, docmap.Xref{
			ID:         docmap.XrefID(*next),
			FromAnchor: a.ID,
			RefType:    m.Type,
			TargetText: m.Target,
		})
		*next++
	}
	return out
}

// resolve fills ResolvedAnchor for each pending reference in place. Refs
// only resolve within the document they appear in; misses stay unresolved.
func (ri *refIndex) resolve(pending []docmap.Xref, docOf func(anchor string) string) {
	for i := range pending {
		x := &pending[i]
		doc := docOf(x.FromAnchor)
		switch x.RefType {
		case detect.RefSection:
			x.ResolvedAnchor = ri.sections[sectionRefKey(doc, x.TargetText)]
		case detect.RefArticle:
			x.ResolvedAnchor = ri.sections[sectionRefKey(doc, detect.ArticleTarget(x.TargetText))]
		case detect.RefDefinition:
			x.ResolvedAnchor = ri.definitions[definitionRefKey(doc, x.TargetText)]
		}
	}
}
