// Package testutil provides shared test doubles for packages that depend on
// an embedding provider. Nothing in this package talks to the network.
package testutil

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"
)

// Embedder is a deterministic in-process embedding double. Each text is
// mapped to a bag of character trigrams hashed into a fixed number of
// buckets, then L2-normalised. The mapping is stable across runs, identical
// texts produce identical vectors, and texts sharing vocabulary land closer
// together than unrelated texts — close enough to exercise ranking logic
// without a real model.
type Embedder struct {
	// Dim is the output vector dimension.
	Dim int

	// Err, when non-nil, is returned by every Embed call. Used to exercise
	// retrieval-failure paths.
	Err error

	// calls counts Embed invocations.
	calls atomic.Int64
}

// NewEmbedder constructs an Embedder with the given dimension.
func NewEmbedder(dim int) *Embedder {
	return &Embedder{Dim: dim}
}

// Embed returns one deterministic vector per input text.
func (e *Embedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

// Calls returns the number of Embed invocations so far.
func (e *Embedder) Calls() int { return int(e.calls.Load()) }

// vector hashes the text's character trigrams into Dim buckets and
// normalises the result to unit length.
func (e *Embedder) vector(text string) []float32 {
	vec := make([]float32, e.Dim)
	lower := strings.ToLower(text)
	if len(lower) < 3 {
		lower = lower + strings.Repeat("_", 3-len(lower))
	}
	for i := 0; i+3 <= len(lower); i++ {
		h := fnv.New32a()
		_, _ = h.Write([]byte(lower[i : i+3]))
		vec[h.Sum32()%uint32(e.Dim)]++ //nolint:gosec // Dim is a small positive test constant
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	inv := 1 / math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
	return vec
}

// ErrEmbed is a convenience error value for failure-injection tests.
var ErrEmbed = fmt.Errorf("testutil: embedder failure injected")
