package models

import (
	"encoding/json"
	"fmt"
)

// EdgeKind distinguishes duplicate-of from variant-of relationships.
type EdgeKind int

const (
	EdgeDuplicate EdgeKind = iota
	EdgeVariant
)

// EdgeKinds lists both kinds in classification order.
var EdgeKinds = []EdgeKind{EdgeDuplicate, EdgeVariant}

func (k EdgeKind) String() string {
	if k == EdgeVariant {
		return "variant"
	}
	return "duplicate"
}

// Other returns the opposite kind.
func (k EdgeKind) Other() EdgeKind {
	if k == EdgeVariant {
		return EdgeDuplicate
	}
	return EdgeVariant
}

// ParseEdgeKind parses "duplicate" or "variant".
func ParseEdgeKind(s string) (EdgeKind, error) {
	switch s {
	case "duplicate":
		return EdgeDuplicate, nil
	case "variant":
		return EdgeVariant, nil
	}
	return 0, fmt.Errorf("unknown edge kind %q", s)
}

// Edge points from a record to the record it considers its original.
type Edge struct {
	OriginalID      string  `json:"original_id"`
	SimilarityScore float64 `json:"similarity_score"`
}

// EdgeSet is an insertion-ordered set of edges keyed by OriginalID.
// The zero value is an empty set.
type EdgeSet struct {
	edges []Edge
	index map[string]int
}

// NewEdgeSet builds a set from edges, keeping the first edge per original.
func NewEdgeSet(edges ...Edge) EdgeSet {
	var s EdgeSet
	for _, e := range edges {
		s.Add(e)
	}
	return s
}

// Len returns the number of edges.
func (s *EdgeSet) Len() int {
	return len(s.edges)
}

// Contains reports whether an edge to originalID exists.
func (s *EdgeSet) Contains(originalID string) bool {
	_, ok := s.index[originalID]
	return ok
}

// Get returns the edge to originalID.
func (s *EdgeSet) Get(originalID string) (Edge, bool) {
	i, ok := s.index[originalID]
	if !ok {
		return Edge{}, false
	}
	return s.edges[i], true
}

// ContainsAll reports whether every edge's original is already present.
func (s *EdgeSet) ContainsAll(edges []Edge) bool {
	for _, e := range edges {
		if !s.Contains(e.OriginalID) {
			return false
		}
	}
	return true
}

// Add inserts e unless an edge to the same original exists. It never
// replaces an existing edge and reports whether the set changed.
func (s *EdgeSet) Add(e Edge) bool {
	if s.Contains(e.OriginalID) {
		return false
	}
	if s.index == nil {
		s.index = make(map[string]int)
	}
	s.index[e.OriginalID] = len(s.edges)
	s.edges = append(s.edges, e)
	return true
}

// Edges returns a copy of the edges in insertion order.
func (s *EdgeSet) Edges() []Edge {
	out := make([]Edge, len(s.edges))
	copy(out, s.edges)
	return out
}

// OriginalIDs returns the original ids in insertion order.
func (s *EdgeSet) OriginalIDs() []string {
	out := make([]string, len(s.edges))
	for i, e := range s.edges {
		out[i] = e.OriginalID
	}
	return out
}

// Clone returns an independent copy.
func (s EdgeSet) Clone() EdgeSet {
	return NewEdgeSet(s.edges...)
}

func (s EdgeSet) MarshalJSON() ([]byte, error) {
	if s.edges == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.edges)
}

func (s *EdgeSet) UnmarshalJSON(data []byte) error {
	var edges []Edge
	if err := json.Unmarshal(data, &edges); err != nil {
		return err
	}
	*s = NewEdgeSet(edges...)
	return nil
}
