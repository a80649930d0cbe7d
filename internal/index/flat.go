// Package index implements the exact brute-force similarity index backing the
// conversation memory. Vectors are held in memory in append order; each vector
// is identified by its zero-based position, which equals the order it was
// appended. There is no in-place deletion — callers that need to drop vectors
// rebuild the index wholesale via [FromVectors].
package index

import (
	"fmt"
	"sort"
)

// Hit is a single nearest-neighbour result returned by [Flat.Search].
type Hit struct {
	// Position is the zero-based slot of the matched vector, equal to the
	// order it was appended.
	Position int

	// Distance is the squared Euclidean (L2) distance between the query and
	// the matched vector. Smaller means closer.
	Distance float32
}

// Flat is an exact nearest-neighbour index over fixed-dimension vectors.
// Search is a linear scan — O(n·d) per query — which is the correct trade-off
// for per-user conversation memory (thousands of vectors, not millions).
//
// Flat performs no internal locking; the owning store serialises access.
type Flat struct {
	// dim is the fixed vector dimension, set at construction.
	dim int

	// vecs holds all stored vectors in append order.
	vecs [][]float32
}

// New constructs an empty Flat index for vectors of the given dimension.
func New(dim int) (*Flat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("index: dimension must be positive, got %d", dim)
	}
	return &Flat{dim: dim}, nil
}

// FromVectors constructs a Flat index pre-populated with the given vectors in
// order. It is the rebuild path used after owner deletion: positions are
// reassigned 0..len(vecs)-1 in slice order.
func FromVectors(dim int, vecs [][]float32) (*Flat, error) {
	f, err := New(dim)
	if err != nil {
		return nil, err
	}
	for i, v := range vecs {
		if _, err := f.Append(v); err != nil {
			return nil, fmt.Errorf("index: rebuild vector %d: %w", i, err)
		}
	}
	return f, nil
}

// Dim returns the fixed vector dimension of the index.
func (f *Flat) Dim() int { return f.dim }

// Len returns the number of stored vectors.
func (f *Flat) Len() int { return len(f.vecs) }

// Append adds one vector and returns its assigned position, which equals the
// element count before the append. The vector is copied; the caller may reuse
// its slice.
func (f *Flat) Append(vec []float32) (int, error) {
	if len(vec) != f.dim {
		return 0, fmt.Errorf("index: vector dimension %d does not match index dimension %d", len(vec), f.dim)
	}
	pos := len(f.vecs)
	f.vecs = append(f.vecs, append([]float32(nil), vec...))
	return pos, nil
}

// Reconstruct returns a copy of the vector stored at the given position.
// It exists for the rebuild path: survivors of an owner deletion are read back
// through Reconstruct and appended to a fresh index.
func (f *Flat) Reconstruct(position int) ([]float32, error) {
	if position < 0 || position >= len(f.vecs) {
		return nil, fmt.Errorf("index: position %d out of range [0, %d)", position, len(f.vecs))
	}
	return append([]float32(nil), f.vecs[position]...), nil
}

// Search returns the k nearest stored vectors to query, ordered by ascending
// squared L2 distance. Ties are broken by insertion order (lower position
// first). The result length is min(k, Len()); an empty index yields nil.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("index: query dimension %d does not match index dimension %d", len(query), f.dim)
	}
	if k <= 0 || len(f.vecs) == 0 {
		return nil, nil
	}

	hits := make([]Hit, len(f.vecs))
	for i, v := range f.vecs {
		hits[i] = Hit{Position: i, Distance: sqDist(query, v)}
	}

	// SliceStable preserves insertion order among equal distances.
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Distance < hits[b].Distance })

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// sqDist computes the squared Euclidean distance between two equal-length
// vectors. The square root is never taken: ordering is identical and the
// similarity score downstream is defined on the squared distance.
func sqDist(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
