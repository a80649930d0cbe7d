// Package memory implements the per-user conversational memory that backs
// retrieval-augmented generation: every answered question is embedded and
// stored in a flat similarity index alongside its metadata, and later queries
// retrieve the most relevant past exchanges to enrich the LLM prompt.
//
// The index (geometry) and the metadata records (payload) are two views of a
// single logical store and are kept in lockstep: at every observable point the
// index element count equals the record count, and record i's vector lives at
// index position i.
package memory

import (
	"context"
	"time"
)

// Embedder converts text into fixed-length dense vectors. Implementations
// must preserve input order and return exactly one vector per input string,
// and must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Record is the metadata stored for one remembered conversation exchange.
type Record struct {
	// Position is the record's slot in the similarity index, equal to its
	// creation order. Positions are reassigned contiguously on owner deletion
	// and are not stable identifiers across rebuilds.
	Position int `json:"position"`

	// Owner is the opaque identifier of the user the exchange belongs to.
	Owner string `json:"owner"`

	// Question is the user's question text.
	Question string `json:"question"`

	// Answer is the assistant's answer text.
	Answer string `json:"answer"`

	// SourceID optionally links the record to a row in the relational
	// conversation log. Nil when the exchange was never logged relationally.
	SourceID *int64 `json:"source_id,omitempty"`

	// CreatedAt is when the record was appended, in UTC.
	CreatedAt time.Time `json:"created_at"`
}

// SearchResult pairs a matched record with its similarity score.
type SearchResult struct {
	Record

	// Score is the similarity derived from the index distance d as 1/(1+d).
	// It is always in (0, 1]; larger means more similar.
	Score float64 `json:"score"`
}

// Stats summarises the contents of the memory store.
type Stats struct {
	// TotalRecords is the number of stored exchanges across all owners.
	TotalRecords int `json:"total_records"`

	// TotalOwners is the number of distinct owners with at least one record.
	TotalOwners int `json:"total_owners"`

	// PerOwner maps each owner to its record count.
	PerOwner map[string]int `json:"per_owner"`

	// Model is the embedding model name the store was opened with.
	Model string `json:"model"`

	// Dimension is the embedding vector dimension.
	Dimension int `json:"dimension"`
}
