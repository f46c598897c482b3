package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/dealmap/internal/detect"
	"github.com/dgallion1/dealmap/internal/docmap"
	"github.com/dgallion1/dealmap/internal/llm"
	"github.com/dgallion1/dealmap/internal/toc"
)

// Strategy selects how sections are found.
type Strategy string

const (
	// StrategyLegal uses TOC lines, headings, outlines and definitions.
	StrategyLegal Strategy = "legal_contract"
	// StrategyGeneric makes one section per page.
	StrategyGeneric Strategy = "generic"
)

// BuildOptions controls a Builder.
type BuildOptions struct {
	Strategy     Strategy
	TOC          toc.Options
	VerifyRadius int
	// Completer proposes sections for documents with no TOC. Nil disables
	// the proposal step.
	Completer llm.Completer
	// MaxConcurrentDeals bounds BuildAll. Zero means unbounded.
	MaxConcurrentDeals int
}

// DefaultBuildOptions returns the legal strategy with standard TOC settings.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		Strategy:     StrategyLegal,
		TOC:          toc.DefaultOptions(),
		VerifyRadius: toc.DefaultRadius,
	}
}

// Builder turns loaded documents into a document map. A Builder holds no
// per-build state and is safe for concurrent use.
type Builder struct {
	opts BuildOptions
	log  *slog.Logger
}

func NewBuilder(opts BuildOptions, log *slog.Logger) *Builder {
	if opts.Strategy == "" {
		opts.Strategy = StrategyLegal
	}
	if opts.VerifyRadius < 0 {
		opts.VerifyRadius = toc.DefaultRadius
	}
	if log == nil {
		log = slog.Default()
	}
	return &Builder{opts: opts, log: log}
}

// build is the working state of one Build call.
type build struct {
	docs     []*docmap.Document
	anchors  map[string]*pageAnchors
	sections []docmap.Section
	defs     []docmap.Definition
	pending  []docmap.Xref
	refs     *refIndex
	nextXref int
}

// Build indexes docs into a new map. Documents are processed in order;
// xref ids run across all of them.
func (b *Builder) Build(ctx context.Context, docs []*docmap.Document) (*docmap.Map, error) {
	st := &build{anchors: make(map[string]*pageAnchors, len(docs)), refs: newRefIndex()}
	for _, doc := range docs {
		if doc == nil {
			return nil, fmt.Errorf("build: nil document: %w", docmap.ErrInvalidArgument)
		}
		if _, dup := st.anchors[doc.ID]; dup {
			return nil, fmt.Errorf("build %s: %w", doc.ID, docmap.ErrDuplicateDocument)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st.docs = append(st.docs, doc)
		if b.opts.Strategy == StrategyGeneric {
			pa := anchorize(doc, true)
			st.anchors[doc.ID] = pa
			st.sections = append(st.sections, genericSections(doc, pa)...)
			continue
		}
		b.scanDocument(ctx, st, doc)
	}
	return b.finish(st)
}

// scanDocument collects the section, definition and reference signals of
// one document under the legal strategy.
func (b *Builder) scanDocument(ctx context.Context, st *build, doc *docmap.Document) {
	log := b.log.With("doc_id", doc.ID, "name", doc.Name)
	pa := anchorize(doc, false)
	st.anchors[doc.ID] = pa

	candidates := toc.Discover(doc.Pages, b.opts.TOC)
	tocSections := toc.Sections(doc.ID, candidates)
	var proposed []docmap.Section
	if len(candidates) == 0 && b.opts.Completer != nil {
		proposed = toc.Propose(ctx, b.opts.Completer, doc, log)
	}

	var textSections []docmap.Section
	defAt := make(map[string]int)
	for _, a := range pa.all {
		if h := detect.DetectHeading(a.Text); h != nil {
			textSections = append(textSections, textSection(a, h))
			st.refs.setSection(doc.ID, h.SectionNo, a.ID)
		}
		if term, text, ok := detect.DetectDefinition(a.Text); ok {
			// A term defined twice in one document resolves to the later
			// clause, kept at the position of the first.
			k := definitionRefKey(doc.ID, term)
			def := docmap.Definition{
				ID:         doc.ID + ":def:" + lowerTrim(term),
				DocumentID: doc.ID,
				Term:       term,
				Anchor:     a.ID,
				Text:       text,
			}
			if i, ok := defAt[k]; ok {
				st.defs[i] = def
			} else {
				defAt[k] = len(st.defs)
				st.defs = append(st.defs, def)
			}
			st.refs.definitions[k] = a.ID
		}
		st.pending = append(st.pending, collectMentions(a, &st.nextXref)...)
	}

	outline := outlineSections(doc, pa)
	for _, s := range outline {
		st.refs.addSection(doc.ID, s.SectionNo, s.Anchor)
	}

	verified := toc.Verify(tocSections, pa.page, b.opts.VerifyRadius)
	counts := map[docmap.Verification]int{}
	for i := range verified {
		s := &verified[i]
		counts[s.Verification]++
		s.PageStart = min(max(s.PageStart, 1), doc.TotalPages)
		s.PageEnd = s.PageStart
	}
	log.Info("document scanned",
		"pages", doc.TotalPages,
		"anchors", len(pa.all),
		"toc_entries", len(candidates),
		"toc_verified", counts[docmap.Verified],
		"toc_corrected", counts[docmap.Corrected],
		"toc_unverified", counts[docmap.Unverified],
		"proposed", len(proposed),
		"headings", len(textSections),
		"outline", len(outline),
	)

	st.sections = append(st.sections, verified...)
	st.sections = append(st.sections, proposed...)
	st.sections = append(st.sections, textSections...)
	st.sections = append(st.sections, outline...)
}

// finish runs the cross-document passes and assembles the map.
func (b *Builder) finish(st *build) (*docmap.Map, error) {
	sections := pick(st.sections)

	for i := range sections {
		s := &sections[i]
		if s.Anchor == "" {
			if pa, ok := st.anchors[s.DocumentID]; ok {
				s.Anchor = pa.first(s.PageStart)
			}
		}
		st.refs.setSection(s.DocumentID, s.SectionNo, s.Anchor)
	}

	docOf := make(map[string]string)
	for _, pa := range st.anchors {
		for _, a := range pa.all {
			docOf[a.ID] = a.DocumentID
		}
	}
	st.refs.resolve(st.pending, func(anchor string) string { return docOf[anchor] })

	order := make([]string, len(st.docs))
	totals := make(map[string]int, len(st.docs))
	for i, d := range st.docs {
		order[i] = d.ID
		totals[d.ID] = d.TotalPages
	}
	docmap.SortSections(order, sections)
	inferPageEnds(sections, totals)
	for i := range sections {
		s := &sections[i]
		s.Summary, s.KeyEvents = summarize(*s, st.anchors[s.DocumentID], totals[s.DocumentID])
	}
	trees, sections := docmap.BuildTrees(order, sections)

	m := &docmap.Map{
		Sections:    sections,
		Trees:       trees,
		Definitions: st.defs,
		Xrefs:       st.pending,
	}
	for _, d := range st.docs {
		m.Documents = append(m.Documents, *d)
		m.Anchors = append(m.Anchors, st.anchors[d.ID].all...)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("build produced an inconsistent map: %w", err)
	}

	unresolved := 0
	for _, x := range m.Xrefs {
		if !x.Resolved() {
			unresolved++
		}
	}
	b.log.Info("document map built",
		"documents", len(m.Documents),
		"sections", len(m.Sections),
		"definitions", len(m.Definitions),
		"xrefs", len(m.Xrefs),
		"xrefs_unresolved", unresolved,
	)
	return m, nil
}

// BuildAll builds several independent deals concurrently. Each deal gets
// its own collections; the first failure cancels the rest.
func (b *Builder) BuildAll(ctx context.Context, batches map[string][]*docmap.Document) (map[string]*docmap.Map, error) {
	g, gctx := errgroup.WithContext(ctx)
	if b.opts.MaxConcurrentDeals > 0 {
		g.SetLimit(b.opts.MaxConcurrentDeals)
	}

	var mu sync.Mutex
	out := make(map[string]*docmap.Map, len(batches))
	for dealID, docs := range batches {
		g.Go(func() error {
			m, err := b.Build(gctx, docs)
			if err != nil {
				return fmt.Errorf("deal %s: %w", dealID, err)
			}
			mu.Lock()
			out[dealID] = m
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
