package extract

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/dgallion1/dealmap/internal/docmap"
)

const (
	sectionsPerField = 4
	blocksPerSection = 60
	blocksPerField   = 8
	evidencePerField = 3
	excerptChars     = 220
	snippetChars     = 280
	patternBonus     = 2
	fullConfidence   = 6.0
)

// MissingEvidence is the unresolved dependency recorded for a field with no
// supporting block.
const MissingEvidence = "missing_indexed_evidence"

// Evidence is one anchored excerpt backing a field value.
type Evidence struct {
	Anchor  string `json:"anchor"`
	Excerpt string `json:"excerpt"`
}

// FieldResult is the outcome for one schema field. Value is nil when
// nothing was found.
type FieldResult struct {
	Value                  *string    `json:"value"`
	Found                  bool       `json:"found"`
	Confidence             float64    `json:"confidence"`
	Required               bool       `json:"required"`
	Evidence               []Evidence `json:"evidence"`
	Reason                 string     `json:"reason"`
	UnresolvedDependencies []string   `json:"unresolved_dependencies"`
}

// ValueOr returns the found value or def.
func (f FieldResult) ValueOr(def string) string {
	if f.Value == nil {
		return def
	}
	return *f.Value
}

// SectionRef is a candidate section considered for a field.
type SectionRef struct {
	SectionNo string `json:"section_no"`
	Title     string `json:"title"`
	Anchor    string `json:"anchor"`
	PageStart int    `json:"page_start"`
	PageEnd   int    `json:"page_end"`
}

// StructurePass lists, per field, the sections its evidence was drawn from.
type StructurePass struct {
	SectionFamilies map[string][]SectionRef `json:"section_families"`
}

// Result is a full extraction payload.
type Result struct {
	Instruction   string                 `json:"instruction,omitempty"`
	Signals       map[string][]string    `json:"signals,omitempty"`
	DocumentType  string                 `json:"document_type"`
	SchemaVersion string                 `json:"schema_version"`
	StructurePass StructurePass          `json:"structure_pass"`
	Fields        map[string]FieldResult `json:"field_extraction"`
	Consistency   Consistency            `json:"consistency"`
}

// candidate is a block of text considered as evidence.
type candidate struct {
	anchor string
	text   string
}

// Extract runs schema s over m. A nil map yields a skipped result, not an
// error. Errors are a *SchemaViolation for a malformed schema, ErrContract
// for an inconsistent payload, or the context's error.
func Extract(ctx context.Context, s Schema, m *docmap.Map) (*Result, error) {
	patterns, err := s.compile()
	if err != nil {
		return nil, err
	}
	res := &Result{
		DocumentType:  s.DocumentType,
		SchemaVersion: s.Version,
		StructurePass: StructurePass{SectionFamilies: map[string][]SectionRef{}},
		Fields:        map[string]FieldResult{},
	}
	if m == nil {
		res.Consistency = Consistency{
			Status:   StatusSkipped,
			Issues:   []string{"No document map provided"},
			Warnings: []string{},
		}
		return res, nil
	}

	for i, f := range s.Fields {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sections := rankSections(m, f.SectionHints)
		refs := make([]SectionRef, 0, len(sections))
		for _, sec := range sections {
			refs = append(refs, SectionRef{
				SectionNo: sec.SectionNo,
				Title:     sec.Title,
				Anchor:    sec.Anchor,
				PageStart: sec.PageStart,
				PageEnd:   sec.PageEnd,
			})
		}
		res.StructurePass.SectionFamilies[f.Name] = refs
		res.Fields[f.Name] = extractField(m, f, patterns[i], sections)
	}

	res.Consistency = checkConsistency(s, res.Fields)
	if err := validateContract(s, res); err != nil {
		return nil, err
	}
	return res, nil
}

// hintHits counts the hints contained in text, case-insensitively.
func hintHits(text string, hints []string) int {
	low := strings.ToLower(text)
	n := 0
	for _, h := range hints {
		if strings.Contains(low, strings.ToLower(h)) {
			n++
		}
	}
	return n
}

type scored[T any] struct {
	score int
	item  T
}

// sortByScore orders rows by score, highest first, keeping input order
// among equals.
func sortByScore[T any](rows []scored[T]) {
	slices.SortStableFunc(rows, func(a, b scored[T]) int { return b.score - a.score })
}

func rankSections(m *docmap.Map, hints []string) []docmap.Section {
	var rows []scored[docmap.Section]
	for _, s := range m.Sections {
		hay := strings.Join([]string{s.SectionNo, s.Title, s.Summary, strings.Join(s.KeyEvents, " ")}, " ")
		if n := hintHits(hay, hints); n > 0 {
			rows = append(rows, scored[docmap.Section]{n, s})
		}
	}
	sortByScore(rows)
	out := make([]docmap.Section, 0, min(len(rows), sectionsPerField))
	for _, r := range rows[:min(len(rows), sectionsPerField)] {
		out = append(out, r.item)
	}
	return out
}

// sectionBlocks returns the blocks on a section's pages in page and block
// order, at most 60.
func sectionBlocks(m *docmap.Map, s docmap.Section) []candidate {
	var out []candidate
	for page := s.PageStart; page <= s.PageEnd && len(out) < blocksPerSection; page++ {
		for _, a := range m.PageBlocks(s.DocumentID, page) {
			if len(out) == blocksPerSection {
				break
			}
			out = append(out, candidate{anchor: a.ID, text: a.Text})
		}
	}
	return out
}

func extractField(m *docmap.Map, f Field, re *regexp.Regexp, sections []docmap.Section) FieldResult {
	var pool []candidate
	for _, s := range sections {
		pool = append(pool, sectionBlocks(m, s)...)
	}
	for _, d := range m.Definitions {
		if hintHits(d.Term, f.TermHints) > 0 {
			pool = append(pool, candidate{anchor: d.Anchor, text: d.Term + " means " + d.Text})
		}
	}

	var rows []scored[candidate]
	for _, c := range pool {
		n := hintHits(c.text, f.TermHints)
		if re != nil && re.MatchString(c.text) {
			n += patternBonus
		}
		if n > 0 {
			rows = append(rows, scored[candidate]{n, c})
		}
	}
	sortByScore(rows)
	rows = rows[:min(len(rows), blocksPerField)]

	ranked := make([]candidate, len(rows))
	for i, r := range rows {
		ranked[i] = r.item
	}
	value := patternValue(re, ranked)
	if value == "" {
		value = bestSnippet(ranked, f.TermHints)
	}

	evidence := []Evidence{}
	seen := map[string]bool{}
	for _, c := range ranked[:min(len(ranked), evidencePerField)] {
		if c.anchor == "" || seen[c.anchor] {
			continue
		}
		seen[c.anchor] = true
		evidence = append(evidence, Evidence{Anchor: c.anchor, Excerpt: docmap.Truncate(c.text, excerptChars)})
	}

	top := 0
	if len(rows) > 0 {
		top = rows[0].score
	}
	out := FieldResult{
		Found:                  value != "",
		Confidence:             round(math.Min(1, float64(top)/fullConfidence), 3),
		Required:               f.Required,
		Evidence:               evidence,
		UnresolvedDependencies: []string{},
	}
	if out.Found {
		out.Value = &value
		out.Reason = "Extracted from section-indexed evidence and definition context."
	} else {
		out.Reason = "No matching evidence found in indexed sections/definitions."
		out.UnresolvedDependencies = []string{MissingEvidence}
	}
	return out
}

// patternValue returns the first capture group of the first match in
// ranked order, or the whole match for patterns without groups.
func patternValue(re *regexp.Regexp, ranked []candidate) string {
	if re == nil {
		return ""
	}
	for _, c := range ranked {
		loc := re.FindStringSubmatchIndex(c.text)
		if loc == nil {
			continue
		}
		if re.NumSubexp() > 0 && loc[2] >= 0 {
			return strings.TrimSpace(c.text[loc[2]:loc[3]])
		}
		return strings.TrimSpace(c.text[loc[0]:loc[1]])
	}
	return ""
}

func bestSnippet(ranked []candidate, hints []string) string {
	var rows []scored[string]
	for _, c := range ranked {
		line := strings.TrimSpace(c.text)
		if line == "" {
			continue
		}
		rows = append(rows, scored[string]{hintHits(line, hints), line})
	}
	if len(rows) == 0 {
		return ""
	}
	sortByScore(rows)
	return docmap.Truncate(rows[0].item, snippetChars)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Request is one extraction call. Schema, when set, is used instead of a
// registered schema; otherwise the document type is resolved from the
// hint, instruction and text. Signals are taken from text.
type Request struct {
	Instruction  string
	Text         string
	DocumentType string
	Schema       *Schema
	Map          *docmap.Map
}

// Extractor runs requests against a schema registry.
type Extractor struct {
	registry *Registry
	log      *slog.Logger
}

func NewExtractor(r *Registry, log *slog.Logger) *Extractor {
	if r == nil {
		r = NewRegistry()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{registry: r, log: log}
}

// Registry returns the extractor's schema registry.
func (e *Extractor) Registry() *Registry {
	return e.registry
}

// Run resolves the schema for req and extracts. When req.Text is empty the
// text of the map's pages feeds the signals.
func (e *Extractor) Run(ctx context.Context, req Request) (*Result, error) {
	text := req.Text
	if text == "" && req.Map != nil {
		var pages []string
		for _, d := range req.Map.Documents {
			pages = append(pages, d.Pages...)
		}
		text = strings.Join(pages, "\n")
	}
	var schema Schema
	if req.Schema != nil {
		if err := req.Schema.Validate(); err != nil {
			return nil, err
		}
		schema = *req.Schema
	} else {
		schema = e.registry.Resolve(e.registry.ResolveDocumentType(req.DocumentType, req.Instruction, text))
	}
	docType := schema.DocumentType
	res, err := Extract(ctx, schema, req.Map)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", docType, err)
	}
	res.Instruction = req.Instruction
	res.Signals = Signals(text)

	found := 0
	for _, f := range res.Fields {
		if f.Found {
			found++
		}
	}
	e.log.Info("extraction complete",
		"document_type", docType,
		"fields", len(res.Fields),
		"found", found,
		"status", res.Consistency.Status,
		"issues", len(res.Consistency.Issues),
	)
	return res, nil
}
