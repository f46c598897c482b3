package retrieval

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/dgallion1/dealmap/internal/chunker"
	"github.com/dgallion1/dealmap/internal/docmap"
)

func chunks(texts ...string) []chunker.Chunk {
	out := make([]chunker.Chunk, len(texts))
	for i, t := range texts {
		out[i] = chunker.Chunk{ID: fmt.Sprintf("chunk-%d", i), Kind: chunker.KindText, Text: t}
	}
	return out
}

func TestRetrieve_KnownScore(t *testing.T) {
	hits := Build(chunks("alpha beta")).Retrieve("alpha", 0)
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	// ln(4/3) with tf=1 at average length.
	if hits[0].Score != 0.287682 {
		t.Errorf("expected 0.287682, got %v", hits[0].Score)
	}
}

func TestRetrieve_RanksAndExcludes(t *testing.T) {
	idx := Build(chunks(
		"maturity date march 2030",
		"interest rate margin",
		"maturity maturity extension",
	))
	hits := idx.Retrieve("Maturity?", 5)
	if len(hits) != 2 {
		t.Fatalf("expected zero-score chunk excluded, got %+v", hits)
	}
	if hits[0].ID != "chunk-2" || hits[1].ID != "chunk-0" {
		t.Errorf("expected chunk-2 then chunk-0, got %s then %s", hits[0].ID, hits[1].ID)
	}
	for _, h := range hits {
		if scaled := h.Score * 1e6; math.Abs(scaled-math.Round(scaled)) > 1e-6 {
			t.Errorf("score %v not rounded to 6 places", h.Score)
		}
	}
}

func TestRetrieve_MoreOccurrencesScoreHigher(t *testing.T) {
	idx := Build(chunks(
		"loan margin other",
		"loan loan margin",
		"unrelated words here",
	))
	hits := idx.Retrieve("loan", 5)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != "chunk-1" || !(hits[0].Score > hits[1].Score) {
		t.Errorf("expected higher term frequency to score higher, got %+v", hits)
	}
}

func TestRetrieve_RepeatedQueryTerms(t *testing.T) {
	idx := Build(chunks("covenant ratio", "payment schedule"))
	once := idx.Retrieve("covenant", 5)
	twice := idx.Retrieve("covenant covenant", 5)
	if len(once) != 1 || len(twice) != 1 {
		t.Fatalf("expected one hit each, got %d and %d", len(once), len(twice))
	}
	if math.Abs(twice[0].Score-2*once[0].Score) > 1e-5 {
		t.Errorf("expected repeated term to double the score, got %v vs %v", twice[0].Score, once[0].Score)
	}
}

func TestRetrieve_TiesKeepChunkOrderAndTopK(t *testing.T) {
	texts := make([]string, 7)
	for i := range texts {
		texts[i] = "same text"
	}
	hits := Build(chunks(texts...)).Retrieve("same", 0)
	if len(hits) != DefaultTopK {
		t.Fatalf("expected default top k %d, got %d", DefaultTopK, len(hits))
	}
	for i, h := range hits {
		if h.ID != fmt.Sprintf("chunk-%d", i) {
			t.Errorf("position %d: expected chunk-%d, got %s", i, i, h.ID)
		}
	}
}

func TestRetrieve_EmptyInputs(t *testing.T) {
	if hits := Build(nil).Retrieve("anything", 3); hits != nil {
		t.Errorf("expected nil from empty index, got %+v", hits)
	}
	if hits := Build(chunks("alpha")).Retrieve("a ! ?", 3); hits != nil {
		t.Errorf("expected nil for a query with no tokens, got %+v", hits)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	idx := Build(chunks("maturity date march 2030", "interest rate margin", "maturity extension"))
	var buf bytes.Buffer
	if err := Encode(&buf, idx); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := idx.Retrieve("maturity margin", 5)
	have := got.Retrieve("maturity margin", 5)
	if len(want) != len(have) {
		t.Fatalf("expected %d hits after round trip, got %d", len(want), len(have))
	}
	for i := range want {
		if want[i].ID != have[i].ID || want[i].Score != have[i].Score {
			t.Errorf("hit %d differs: %+v vs %+v", i, want[i], have[i])
		}
	}
}

func TestDecode_ChunksOnlyAndInconsistent(t *testing.T) {
	idx, err := Decode(strings.NewReader(`{"chunks":[{"chunk_id":"c1","kind":"text","text":"alpha beta"}]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if hits := idx.Retrieve("alpha", 1); len(hits) != 1 || hits[0].Score != 0.287682 {
		t.Errorf("expected rebuilt statistics, got %+v", hits)
	}

	_, err = Decode(strings.NewReader(`{"chunks":[{"chunk_id":"c1","text":"a"}],"term_freqs":[],"doc_lengths":[1],"doc_count":1}`))
	if err == nil {
		t.Error("expected mismatch error")
	}
}

func searchMap() *docmap.Map {
	anchor := func(page, block int, text string) docmap.Anchor {
		return docmap.Anchor{ID: docmap.AnchorID("doc-1", page, block), DocumentID: "doc-1", Page: page, Block: block, Text: text}
	}
	sections := []docmap.Section{
		{ID: "doc-1:section:TOC-1:toc:1", DocumentID: "doc-1", SectionNo: "TOC-1", Title: "Maturity", Level: 1, PageStart: 1, PageEnd: 1, BlockStart: 1, Anchor: "doc-1:p1:b1", Source: docmap.SourceTOC},
		{ID: "doc-1:section:1.01:text:1:1", DocumentID: "doc-1", SectionNo: "1.01", Title: "Defined Terms", Level: 2, PageStart: 1, PageEnd: 1, BlockStart: 1, Anchor: "doc-1:p1:b1", Source: docmap.SourceText},
		{ID: "doc-1:section:2.01:text:2:1", DocumentID: "doc-1", SectionNo: "2.01", Title: "Commitments", Level: 2, PageStart: 2, PageEnd: 2, BlockStart: 1, Anchor: "doc-1:p2:b1", Source: docmap.SourceText,
			Summary: "The aggregate commitment is $100 million."},
	}
	m := &docmap.Map{
		Documents: []docmap.Document{{ID: "doc-1", TotalPages: 2}},
		Anchors: []docmap.Anchor{
			anchor(1, 1, "Section 1.01 Defined Terms"),
			anchor(1, 2, "\"Maturity Date\" means March 31, 2030."),
			anchor(2, 1, "Section 2.01 Commitments"),
			anchor(2, 2, "The aggregate commitment is $100 million."),
		},
		Definitions: []docmap.Definition{
			{ID: "doc-1:def:maturity date", DocumentID: "doc-1", Term: "Maturity Date", Anchor: "doc-1:p1:b2", Text: "March 31, 2030."},
		},
	}
	m.Trees, m.Sections = docmap.BuildTrees([]string{"doc-1"}, sections)
	return m
}

func TestSearch(t *testing.T) {
	m := searchMap()

	tests := []struct {
		name    string
		query   string
		scope   Scope
		want    []string // type:anchor
		wantTop int
	}{
		{
			name:    "maturity across doc",
			query:   "What is the maturity date?",
			scope:   ScopeDoc,
			want:    []string{"definition:doc-1:p1:b2", "block:doc-1:p1:b2"},
			wantTop: 4,
		},
		{
			name:    "facility amount prefers sections on ties",
			query:   "facility amount",
			scope:   ScopeDoc,
			want:    []string{"section:doc-1:p2:b1", "block:doc-1:p2:b2", "block:doc-1:p2:b1"},
			wantTop: 6,
		},
		{
			name:    "definitions only",
			query:   "maturity",
			scope:   ScopeDefinition,
			want:    []string{"definition:doc-1:p1:b2"},
			wantTop: 4,
		},
		{
			name:  "sections skip toc placeholders",
			query: "maturity",
			scope: ScopeSection,
			want:  nil,
		},
		{
			name:  "stop words only",
			query: "what is the date",
			scope: ScopeDoc,
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Search(m, tt.query, tt.scope, 0)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d results, got %+v", len(tt.want), got)
			}
			for i, r := range got {
				if key := r.Type + ":" + r.Anchor; key != tt.want[i] {
					t.Errorf("result %d: expected %s, got %s", i, tt.want[i], key)
				}
			}
			if len(got) > 0 && got[0].Score != tt.wantTop {
				t.Errorf("expected top score %d, got %d", tt.wantTop, got[0].Score)
			}
		})
	}
}

func TestSearch_TopKAndScope(t *testing.T) {
	m := searchMap()
	got, err := Search(m, "commitment", ScopeDoc, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Type != ResultSection || got[0].PageStart != 2 {
		t.Errorf("expected only the section hit, got %+v", got)
	}

	if _, err := Search(m, "commitment", Scope("everything"), 3); !errors.Is(err, ErrInvalidScope) {
		t.Errorf("expected ErrInvalidScope, got %v", err)
	}
	if _, err := Search(nil, "commitment", ScopeDoc, 3); !errors.Is(err, docmap.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for nil map, got %v", err)
	}
	if _, err := ParseScope("bogus"); !errors.Is(err, ErrInvalidScope) {
		t.Errorf("expected ParseScope to reject bogus, got %v", err)
	}
	if s, err := ParseScope(""); err != nil || s != ScopeDoc {
		t.Errorf("expected empty scope to mean doc, got %q, %v", s, err)
	}
}

func TestSearch_SectionPathAndVerification(t *testing.T) {
	sections := []docmap.Section{
		{ID: "doc-1:section:6:toc:1", DocumentID: "doc-1", SectionNo: "6", Title: "Prepayments", Level: 1, PageStart: 1, PageEnd: 1, BlockStart: 1, Anchor: "doc-1:p1:b1", Source: docmap.SourceTOC, Verification: docmap.Verified},
		{ID: "doc-1:section:6.02:text:1:2", DocumentID: "doc-1", SectionNo: "6.02", Title: "Voluntary Prepayment", Level: 2, PageStart: 1, PageEnd: 1, BlockStart: 2, Anchor: "doc-1:p1:b2", Source: docmap.SourceText},
	}
	m := &docmap.Map{
		Documents: []docmap.Document{{ID: "doc-1", TotalPages: 1}},
		Anchors: []docmap.Anchor{
			{ID: "doc-1:p1:b1", DocumentID: "doc-1", Page: 1, Block: 1, Text: "Section 6 Prepayments"},
			{ID: "doc-1:p1:b2", DocumentID: "doc-1", Page: 1, Block: 2, Text: "Section 6.02 Voluntary Prepayment"},
		},
	}
	m.Trees, m.Sections = docmap.BuildTrees([]string{"doc-1"}, sections)

	got, err := Search(m, "voluntary", ScopeSection, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].SectionNo != "6.02" {
		t.Fatalf("expected 6.02 only, got %+v", got)
	}
	if len(got[0].Path) != 1 || got[0].Path[0] != "6" {
		t.Errorf("expected path [6], got %v", got[0].Path)
	}

	got, err = Search(m, "prepayments", ScopeSection, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 || got[0].SectionNo != "6" || got[0].Verification != docmap.Verified {
		t.Errorf("expected verified section 6 first, got %+v", got)
	}
	if len(got[0].Path) != 0 {
		t.Errorf("expected no path for a root, got %v", got[0].Path)
	}
}
