package retrieval

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dgallion1/dealmap/internal/chunker"
)

type wireIndex struct {
	Chunks    []chunker.Chunk  `json:"chunks"`
	TermFreqs []map[string]int `json:"term_freqs"`
	DocFreqs  map[string]int   `json:"doc_freqs"`
	Lengths   []int            `json:"doc_lengths"`
	AvgLen    float64          `json:"avg_doc_len"`
	DocCount  int              `json:"doc_count"`
}

// Encode writes idx as JSON, statistics included.
func Encode(w io.Writer, idx *Index) error {
	return json.NewEncoder(w).Encode(wireIndex{
		Chunks:    idx.chunks,
		TermFreqs: idx.tf,
		DocFreqs:  idx.df,
		Lengths:   idx.lengths,
		AvgLen:    idx.avgLen,
		DocCount:  len(idx.chunks),
	})
}

// Decode reads an index written by Encode. Statistics are used as stored
// when they agree with the chunk list; an index carrying chunks alone is
// rebuilt from them.
func Decode(r io.Reader) (*Index, error) {
	var w wireIndex
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return nil, fmt.Errorf("decode retrieval index: %w", err)
	}
	if w.TermFreqs == nil && w.Lengths == nil {
		return Build(w.Chunks), nil
	}
	n := len(w.Chunks)
	if len(w.TermFreqs) != n || len(w.Lengths) != n || w.DocCount != n {
		return nil, fmt.Errorf("decode retrieval index: %d chunks but %d term maps, %d lengths, doc_count %d",
			n, len(w.TermFreqs), len(w.Lengths), w.DocCount)
	}
	if w.DocFreqs == nil {
		w.DocFreqs = map[string]int{}
	}
	for i := range w.TermFreqs {
		if w.TermFreqs[i] == nil {
			w.TermFreqs[i] = map[string]int{}
		}
	}
	return &Index{
		chunks:  w.Chunks,
		tf:      w.TermFreqs,
		df:      w.DocFreqs,
		lengths: w.Lengths,
		avgLen:  w.AvgLen,
	}, nil
}
