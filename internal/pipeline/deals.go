package pipeline

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/dealmap/internal/docmap"
	"github.com/dgallion1/dealmap/internal/retrieval"
)

// Snapshot is one published state of a deal. Snapshots are never modified
// after publication; readers may hold one while a newer one is swapped in.
type Snapshot struct {
	Map   *docmap.Map
	Index *retrieval.Index
	// Hashes maps a parsed-content hash to the document id it produced.
	Hashes    map[string]string
	Version   int
	UpdatedAt time.Time
}

// Deal names a set of documents indexed together.
type Deal struct {
	ID        string    `json:"deal_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// DealInfo describes a deal and its current snapshot.
type DealInfo struct {
	Deal
	Documents   int       `json:"documents"`
	Sections    int       `json:"sections"`
	Definitions int       `json:"definitions"`
	Chunks      int       `json:"chunks"`
	Version     int       `json:"version"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type dealEntry struct {
	deal Deal
	snap *Snapshot
	// write serializes Update calls so merges into one deal never race.
	write sync.Mutex
}

// DealStore holds deals in memory.
type DealStore struct {
	mu    sync.RWMutex
	deals map[string]*dealEntry
}

func NewDealStore() *DealStore {
	return &DealStore{deals: make(map[string]*dealEntry)}
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Map:       &docmap.Map{},
		Index:     retrieval.Build(nil),
		Hashes:    map[string]string{},
		UpdatedAt: time.Now(),
	}
}

// Create registers a new empty deal.
func (s *DealStore) Create(name string) Deal {
	name = strings.TrimSpace(name)
	d := Deal{ID: uuid.NewString(), Name: name, CreatedAt: time.Now()}
	if d.Name == "" {
		d.Name = d.ID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deals[d.ID] = &dealEntry{deal: d, snap: emptySnapshot()}
	return d
}

func (s *DealStore) entry(id string) (*dealEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.deals[id]
	if !ok {
		return nil, &docmap.NotFoundError{Kind: "deal", ID: id}
	}
	return e, nil
}

// Snapshot returns the deal's current snapshot.
func (s *DealStore) Snapshot(id string) (*Snapshot, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return e.snap, nil
}

// Info describes one deal.
func (s *DealStore) Info(id string) (DealInfo, error) {
	e, err := s.entry(id)
	if err != nil {
		return DealInfo{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return describe(e), nil
}

// List describes every deal, oldest first.
func (s *DealStore) List() []DealInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DealInfo, 0, len(s.deals))
	for _, e := range s.deals {
		out = append(out, describe(e))
	}
	slices.SortFunc(out, func(a, b DealInfo) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func describe(e *dealEntry) DealInfo {
	snap := e.snap
	return DealInfo{
		Deal:        e.deal,
		Documents:   len(snap.Map.Documents),
		Sections:    len(snap.Map.Sections),
		Definitions: len(snap.Map.Definitions),
		Chunks:      snap.Index.Len(),
		Version:     snap.Version,
		UpdatedAt:   snap.UpdatedAt,
	}
}

// Update computes the deal's next snapshot from its current one and
// publishes it. Calls for the same deal run one at a time; fn must not
// modify cur. When fn fails nothing is published.
func (s *DealStore) Update(id string, fn func(cur *Snapshot) (*Snapshot, error)) (*Snapshot, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.write.Lock()
	defer e.write.Unlock()

	s.mu.RLock()
	cur := e.snap
	s.mu.RUnlock()

	next, err := fn(cur)
	if err != nil {
		return nil, err
	}
	if next == nil || next.Map == nil {
		return nil, fmt.Errorf("update deal %s: empty snapshot: %w", id, docmap.ErrInvalidArgument)
	}
	if next.Index == nil {
		next.Index = retrieval.Build(nil)
	}
	if next.Hashes == nil {
		next.Hashes = map[string]string{}
	}
	next.Version = cur.Version + 1
	next.UpdatedAt = time.Now()

	s.mu.Lock()
	e.snap = next
	s.mu.Unlock()
	return next, nil
}

// Swap replaces the deal's content with an externally built map and
// index. Content hashes of documents that are still present are kept.
func (s *DealStore) Swap(id string, m *docmap.Map, idx *retrieval.Index) (*Snapshot, error) {
	if m == nil {
		return nil, fmt.Errorf("swap deal %s: nil map: %w", id, docmap.ErrInvalidArgument)
	}
	return s.Update(id, func(cur *Snapshot) (*Snapshot, error) {
		hashes := maps.Clone(cur.Hashes)
		maps.DeleteFunc(hashes, func(_, docID string) bool {
			_, ok := m.Document(docID)
			return !ok
		})
		return &Snapshot{Map: m, Index: idx, Hashes: hashes}, nil
	})
}

// errDuplicate aborts an update whose content the deal already holds.
var errDuplicate = errors.New("duplicate content")

// nextDocIndex returns the lowest document index not used in m, counting
// from one past the number of documents.
func nextDocIndex(m *docmap.Map) int {
	i := len(m.Documents) + 1
	for {
		if _, taken := m.Document(docmap.DocumentID(i)); !taken {
			return i
		}
		i++
	}
}
