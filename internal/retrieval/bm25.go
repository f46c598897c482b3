package retrieval

import (
	"math"
	"slices"

	"github.com/dgallion1/dealmap/internal/chunker"
)

const (
	k1 = 1.5
	b  = 0.75

	// DefaultTopK is the number of hits Retrieve returns when asked for none.
	DefaultTopK = 5
)

// Index is a BM25 index over a fixed set of chunks. It is never mutated
// after Build or Decode, so one Index may be shared by concurrent readers.
type Index struct {
	chunks  []chunker.Chunk
	tf      []map[string]int
	df      map[string]int
	lengths []int
	avgLen  float64
}

// Build computes term statistics for chunks.
func Build(chunks []chunker.Chunk) *Index {
	idx := &Index{
		chunks:  slices.Clone(chunks),
		tf:      make([]map[string]int, len(chunks)),
		df:      make(map[string]int),
		lengths: make([]int, len(chunks)),
	}
	total := 0
	for i, c := range chunks {
		toks := Tokenize(c.Text)
		freqs := make(map[string]int, len(toks))
		for _, t := range toks {
			freqs[t]++
		}
		for t := range freqs {
			idx.df[t]++
		}
		idx.tf[i] = freqs
		idx.lengths[i] = len(toks)
		total += len(toks)
	}
	if len(chunks) > 0 {
		idx.avgLen = float64(total) / float64(len(chunks))
	}
	return idx
}

// Len returns the number of indexed chunks.
func (idx *Index) Len() int {
	return len(idx.chunks)
}

// Chunks returns a copy of the indexed chunks in index order.
func (idx *Index) Chunks() []chunker.Chunk {
	return slices.Clone(idx.chunks)
}

// Hit is a scored chunk.
type Hit struct {
	chunker.Chunk
	Score float64 `json:"score"`
}

// Retrieve scores every chunk against query and returns the best topK,
// highest first. Chunks that share no term with the query are left out.
// Repeated query terms count once per repeat.
func (idx *Index) Retrieve(query string, topK int) []Hit {
	if topK <= 0 {
		topK = DefaultTopK
	}
	terms := Tokenize(query)
	if len(terms) == 0 || len(idx.chunks) == 0 {
		return nil
	}

	n := float64(len(idx.chunks))
	avg := idx.avgLen
	if avg == 0 {
		avg = 1
	}

	var hits []Hit
	for i, c := range idx.chunks {
		norm := k1 * (1 - b + b*float64(idx.lengths[i])/avg)
		score := 0.0
		for _, t := range terms {
			tf := float64(idx.tf[i][t])
			if tf == 0 {
				continue
			}
			df := float64(idx.df[t])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			score += idf * tf * (k1 + 1) / (tf + norm)
		}
		if score <= 0 {
			continue
		}
		hits = append(hits, Hit{Chunk: c, Score: math.Round(score*1e6) / 1e6})
	}

	slices.SortStableFunc(hits, func(x, y Hit) int {
		switch {
		case x.Score > y.Score:
			return -1
		case x.Score < y.Score:
			return 1
		}
		return 0
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}
