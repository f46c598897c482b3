package docmap

import (
	"encoding/json"
	"fmt"
	"io"
)

// Encode writes m as JSON.
func Encode(w io.Writer, m *Map) error {
	enc := json.NewEncoder(w)
	return enc.Encode(m)
}

// Decode reads a map written by Encode, or by any producer using the same
// layout, and checks its invariants before returning it.
func Decode(r io.Reader) (*Map, error) {
	var m Map
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode document map: %w", err)
	}
	if m.Trees == nil {
		m.Trees, m.Sections = BuildTrees(m.DocumentIDs(), m.Sections)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("decode document map: %w", err)
	}
	return &m, nil
}
