package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agrai/agrai-go/internal/index"
)

// overFetchFactor is how many extra candidates are pulled from the index
// before owner filtering. Fetching 2k is a heuristic margin: when filtering is
// heavy fewer than k owner-matching results may survive, and callers must not
// assume exactly k results.
const overFetchFactor = 2

// Config holds the settings for opening a memory Store.
type Config struct {
	// Dir is the directory holding the snapshot artifact pair.
	Dir string

	// Embedder turns text into vectors. Required.
	Embedder Embedder

	// Model is the embedding model name, recorded in the metadata artifact
	// and reported by Stats.
	Model string

	// Dimension is the embedding vector dimension. Must match what Embedder
	// produces.
	Dimension int

	// Logger is the structured logger. If nil, slog.Default is used.
	Logger *slog.Logger
}

// Store is the sole owner of the similarity index, the metadata records, and
// their on-disk snapshot. All mutation (Add, DeleteOwner) persists
// synchronously before returning; on persistence failure the in-memory
// mutation is rolled back so that durable state remains authoritative.
//
// A single RWMutex enforces the concurrency contract: writers (append,
// rebuild, persist) are mutually exclusive, readers run concurrently and
// always observe a consistent index/metadata pair.
type Store struct {
	// mu guards idx and records together. Never publish one without the other.
	mu sync.RWMutex

	// idx holds the vectors ("geometry").
	idx *index.Flat

	// records holds the metadata ("payload"), parallel to idx positions.
	records []Record

	// embedder converts question/answer text into vectors.
	embedder Embedder

	// dir is the snapshot directory.
	dir string

	// model is the embedding model name for Stats and the metadata artifact.
	model string

	// dim is the embedding vector dimension.
	dim int

	// log is the structured logger for this store.
	log *slog.Logger
}

// Open constructs a Store and loads the last fully persisted snapshot from
// cfg.Dir. A missing, partial, or corrupt snapshot is not an error: the store
// starts empty and the condition is logged. Only invalid configuration fails.
func Open(cfg *Config) (*Store, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("memory: embedder must not be nil")
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("memory: snapshot directory must not be empty")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("memory: dimension must be positive, got %d", cfg.Dimension)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	idx, err := index.New(cfg.Dimension)
	if err != nil {
		return nil, fmt.Errorf("memory: %w", err)
	}

	s := &Store{
		idx:      idx,
		embedder: cfg.Embedder,
		dir:      cfg.Dir,
		model:    cfg.Model,
		dim:      cfg.Dimension,
		log:      log,
	}

	if err := s.load(); err != nil {
		// Corruption never blocks startup — reset to empty and continue.
		log.Warn("memory: snapshot unreadable, starting with empty store",
			slog.String("dir", cfg.Dir),
			slog.Any("error", err),
		)
		s.idx, _ = index.New(cfg.Dimension)
		s.records = nil
	}

	log.Info("memory: store opened",
		slog.String("dir", cfg.Dir),
		slog.Int("records", len(s.records)),
		slog.String("model", cfg.Model),
		slog.Int("dimension", cfg.Dimension),
	)

	return s, nil
}

// combineExchange renders a question/answer pair into the single text that is
// embedded and indexed. Embedding the combined text lets a future query match
// on either side of the exchange.
func combineExchange(question, answer string) string {
	return fmt.Sprintf("Question: %s\nAnswer: %s", question, answer)
}

// Add embeds the question/answer exchange, appends it to the index and the
// metadata in lockstep, and persists the snapshot before returning. The
// returned position equals the store's element count before the append.
//
// If persisting fails the in-memory append is rolled back and the error
// returned, so memory never runs ahead of disk.
func (s *Store) Add(ctx context.Context, owner, question, answer string, sourceID *int64) (int, error) {
	vecs, err := s.embedder.Embed(ctx, []string{combineExchange(question, answer)})
	if err != nil {
		return 0, fmt.Errorf("memory: embed exchange: %w", err)
	}
	if len(vecs) != 1 {
		return 0, fmt.Errorf("memory: embedder returned %d vectors for 1 input", len(vecs))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.idx.Append(vecs[0])
	if err != nil {
		return 0, fmt.Errorf("memory: %w", err)
	}

	s.records = append(s.records, Record{
		Position:  pos,
		Owner:     owner,
		Question:  question,
		Answer:    answer,
		SourceID:  sourceID,
		CreatedAt: time.Now().UTC(),
	})

	if err := s.persistLocked(); err != nil {
		// Roll back the append: rebuild the index without the last vector and
		// drop the last record, restoring the pre-call state.
		s.rollbackLastAppend(pos)
		return 0, fmt.Errorf("memory: persist after add: %w", err)
	}

	return pos, nil
}

// rollbackLastAppend undoes the most recent append after a persistence
// failure. Must be called with mu held.
func (s *Store) rollbackLastAppend(pos int) {
	vecs := make([][]float32, 0, pos)
	for i := range pos {
		v, err := s.idx.Reconstruct(i)
		if err != nil {
			// Reconstruction of surviving slots cannot fail unless the index
			// itself is broken; keep the appended state rather than lose data.
			s.log.Error("memory: rollback reconstruction failed, in-memory state retained",
				slog.Int("position", i), slog.Any("error", err))
			return
		}
		vecs = append(vecs, v)
	}
	rebuilt, err := index.FromVectors(s.dim, vecs)
	if err != nil {
		s.log.Error("memory: rollback rebuild failed, in-memory state retained", slog.Any("error", err))
		return
	}
	s.idx = rebuilt
	s.records = s.records[:pos]
}

// Search embeds the query and returns up to k records ranked by descending
// similarity. When owner is non-empty, only that owner's records are
// returned. The index is over-queried by a factor of two before filtering;
// if heavy filtering leaves fewer than k survivors, fewer are returned.
func (s *Store) Search(ctx context.Context, query, owner string, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}

	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("memory: embedder returned %d vectors for 1 input", len(vecs))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	total := s.idx.Len()
	if total == 0 {
		return nil, nil
	}

	fetch := k * overFetchFactor
	if fetch > total {
		fetch = total
	}

	hits, err := s.idx.Search(vecs[0], fetch)
	if err != nil {
		return nil, fmt.Errorf("memory: index query: %w", err)
	}

	results := make([]SearchResult, 0, k)
	for _, h := range hits {
		rec := s.records[h.Position]
		if owner != "" && rec.Owner != owner {
			continue
		}
		results = append(results, SearchResult{
			Record: rec,
			Score:  1 / (1 + float64(h.Distance)),
		})
		if len(results) == k {
			break
		}
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results, nil
}

// DeleteOwner removes every record belonging to owner and rebuilds the index
// from the survivors, preserving their relative order and reassigning
// positions 0..N-1. The snapshot is persisted before returning; on
// persistence failure the previous in-memory state is restored. Returns the
// number of records removed (zero when the owner has none).
func (s *Store) DeleteOwner(owner string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keepVecs [][]float32
	var keepRecs []Record
	for _, rec := range s.records {
		if rec.Owner == owner {
			continue
		}
		vec, err := s.idx.Reconstruct(rec.Position)
		if err != nil {
			return 0, fmt.Errorf("memory: reconstruct position %d: %w", rec.Position, err)
		}
		keepVecs = append(keepVecs, vec)
		keepRecs = append(keepRecs, rec)
	}

	deleted := len(s.records) - len(keepRecs)
	if deleted == 0 {
		return 0, nil
	}

	rebuilt, err := index.FromVectors(s.dim, keepVecs)
	if err != nil {
		return 0, fmt.Errorf("memory: rebuild index: %w", err)
	}
	for i := range keepRecs {
		keepRecs[i].Position = i
	}

	prevIdx, prevRecs := s.idx, s.records
	s.idx = rebuilt
	s.records = keepRecs

	if err := s.persistLocked(); err != nil {
		s.idx, s.records = prevIdx, prevRecs
		return 0, fmt.Errorf("memory: persist after delete: %w", err)
	}

	s.log.Info("memory: owner records deleted",
		slog.String("owner", owner),
		slog.Int("deleted", deleted),
		slog.Int("remaining", len(keepRecs)),
	)

	return deleted, nil
}

// Stats reports the current contents of the store.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perOwner := make(map[string]int)
	for _, rec := range s.records {
		perOwner[rec.Owner]++
	}

	return Stats{
		TotalRecords: len(s.records),
		TotalOwners:  len(perOwner),
		PerOwner:     perOwner,
		Model:        s.model,
		Dimension:    s.dim,
	}
}

// ownerRecords returns copies of all records for owner, in creation order.
func (s *Store) ownerRecords(owner string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.records {
		if rec.Owner == owner {
			out = append(out, rec)
		}
	}
	return out
}
