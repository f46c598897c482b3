package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/dgallion1/dealmap/internal/chunker"
	"github.com/dgallion1/dealmap/internal/docmap"
	"github.com/dgallion1/dealmap/internal/retrieval"
)

func builtMap(t *testing.T, index int) *docmap.Map {
	t.Helper()
	m, err := NewBuilder(DefaultBuildOptions(), quietLog()).Build(context.Background(), []*docmap.Document{creditAgreement(t, index)})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return m
}

func TestDealStore_CreateAndSnapshot(t *testing.T) {
	s := NewDealStore()
	d := s.Create("  Acme Facility ")
	if d.ID == "" || d.Name != "Acme Facility" {
		t.Fatalf("unexpected deal %+v", d)
	}
	snap, err := s.Snapshot(d.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Version != 0 || len(snap.Map.Documents) != 0 || snap.Index.Len() != 0 {
		t.Errorf("expected empty snapshot, got version %d docs %d chunks %d", snap.Version, len(snap.Map.Documents), snap.Index.Len())
	}

	unnamed := s.Create("")
	if unnamed.Name != unnamed.ID {
		t.Errorf("expected unnamed deal to be named by id, got %q", unnamed.Name)
	}
}

func TestDealStore_UnknownDeal(t *testing.T) {
	s := NewDealStore()
	if _, err := s.Snapshot("missing"); !docmap.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := s.Info("missing"); !docmap.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	_, err := s.Update("missing", func(cur *Snapshot) (*Snapshot, error) { return cur, nil })
	if !docmap.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestDealStore_UpdateKeepsOldSnapshot(t *testing.T) {
	s := NewDealStore()
	d := s.Create("deal")
	before, _ := s.Snapshot(d.ID)

	m := builtMap(t, 1)
	after, err := s.Update(d.ID, func(cur *Snapshot) (*Snapshot, error) {
		return &Snapshot{Map: m, Index: retrieval.Build(chunker.FromMap(m, chunker.DefaultOptions()))}, nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if after.Version != 1 || after.Hashes == nil {
		t.Errorf("expected version 1 with hashes, got %d %v", after.Version, after.Hashes)
	}
	if len(before.Map.Documents) != 0 {
		t.Error("expected earlier snapshot to stay unchanged")
	}
	cur, _ := s.Snapshot(d.ID)
	if cur != after {
		t.Error("expected published snapshot to be current")
	}

	boom := errors.New("boom")
	if _, err := s.Update(d.ID, func(*Snapshot) (*Snapshot, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if cur, _ := s.Snapshot(d.ID); cur.Version != 1 {
		t.Errorf("expected failed update to publish nothing, got version %d", cur.Version)
	}

	if _, err := s.Update(d.ID, func(*Snapshot) (*Snapshot, error) { return nil, nil }); !errors.Is(err, docmap.ErrInvalidArgument) {
		t.Errorf("expected invalid argument for empty snapshot, got %v", err)
	}
}

func TestDealStore_SwapDropsStaleHashes(t *testing.T) {
	s := NewDealStore()
	d := s.Create("deal")
	_, err := s.Update(d.ID, func(cur *Snapshot) (*Snapshot, error) {
		return &Snapshot{Map: builtMap(t, 1), Hashes: map[string]string{"h1": "doc-1", "h2": "doc-9"}}, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	snap, err := s.Swap(d.ID, builtMap(t, 1), nil)
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if snap.Version != 2 || snap.Index == nil {
		t.Errorf("unexpected snapshot version %d index %v", snap.Version, snap.Index)
	}
	if snap.Hashes["h1"] != "doc-1" {
		t.Error("expected hash of a kept document to survive")
	}
	if _, ok := snap.Hashes["h2"]; ok {
		t.Error("expected hash of a missing document to be dropped")
	}

	if _, err := s.Swap(d.ID, nil, nil); !errors.Is(err, docmap.ErrInvalidArgument) {
		t.Errorf("expected invalid argument, got %v", err)
	}
}

func TestDealStore_ListAndInfo(t *testing.T) {
	s := NewDealStore()
	a := s.Create("a")
	b := s.Create("b")
	m := builtMap(t, 1)
	if _, err := s.Swap(b.ID, m, retrieval.Build(chunker.FromMap(m, chunker.DefaultOptions()))); err != nil {
		t.Fatal(err)
	}

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 deals, got %d", len(list))
	}
	info, err := s.Info(b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if info.Documents != 1 || info.Sections != len(m.Sections) || info.Chunks == 0 || info.Version != 1 {
		t.Errorf("unexpected info %+v", info)
	}
	for _, d := range list {
		if d.ID == a.ID && d.Documents != 0 {
			t.Errorf("expected deal a to stay empty, got %+v", d)
		}
	}
}

func TestNextDocIndex(t *testing.T) {
	tests := []struct {
		name string
		m    *docmap.Map
		want int
	}{
		{"empty", &docmap.Map{}, 1},
		{"sequential", &docmap.Map{Documents: []docmap.Document{{ID: "doc-1"}, {ID: "doc-2"}}}, 3},
		{"gap after count", &docmap.Map{Documents: []docmap.Document{{ID: "doc-2"}, {ID: "doc-3"}}}, 4},
		{"foreign ids", &docmap.Map{Documents: []docmap.Document{{ID: "loan"}}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextDocIndex(tt.m); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
