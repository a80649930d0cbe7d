package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/agrai/agrai-go/internal/testutil"
)

// testDim keeps test vectors small and fast.
const testDim = 32

// openTestStore opens a Store over a temp directory with the deterministic
// trigram embedder.
func openTestStore(t *testing.T) (*Store, *testutil.Embedder) {
	t.Helper()
	emb := testutil.NewEmbedder(testDim)
	s, err := Open(&Config{
		Dir:       t.TempDir(),
		Embedder:  emb,
		Model:     "test-trigram",
		Dimension: testDim,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s, emb
}

// mustAdd adds an exchange and fails the test on error.
func mustAdd(t *testing.T, s *Store, owner, q, a string) int {
	t.Helper()
	pos, err := s.Add(context.Background(), owner, q, a, nil)
	if err != nil {
		t.Fatalf("add %q/%q: %v", owner, q, err)
	}
	return pos
}

func Test_Store_AddAssignsSequentialPositions(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	questions := []string{"when to plant maize", "how much water for beans", "best soil for carrots"}
	for i, q := range questions {
		pos := mustAdd(t, s, "a", q, "answer text")
		if pos != i {
			t.Errorf("add %d: want position %d, got %d", i, i, pos)
		}
	}

	st := s.Stats()
	if st.TotalRecords != len(questions) {
		t.Errorf("want %d records, got %d", len(questions), st.TotalRecords)
	}
}

func Test_Store_IndexAndMetadataStayInLockstep(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	check := func(when string) {
		t.Helper()
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.idx.Len() != len(s.records) {
			t.Fatalf("%s: index has %d vectors but %d records", when, s.idx.Len(), len(s.records))
		}
		for i, rec := range s.records {
			if rec.Position != i {
				t.Fatalf("%s: record %d carries position %d", when, i, rec.Position)
			}
		}
	}

	check("empty")
	mustAdd(t, s, "a", "q1", "a1")
	mustAdd(t, s, "b", "q2", "a2")
	mustAdd(t, s, "a", "q3", "a3")
	check("after adds")

	if _, err := s.DeleteOwner("a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	check("after delete")
}

func Test_Store_SearchEmptyStoreReturnsNothing(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	results, err := s.Search(context.Background(), "anything", "", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("want no results on empty store, got %d", len(results))
	}
}

func Test_Store_SearchFiltersByOwner(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	mustAdd(t, s, "a", "pruning apple trees in winter", "prune in late winter")
	mustAdd(t, s, "b", "pruning apple trees in winter", "prune in late winter")
	mustAdd(t, s, "a", "storing harvested potatoes", "keep them cool and dark")

	results, err := s.Search(context.Background(), "apple tree pruning", "a", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("want results for owner a, got none")
	}
	for _, res := range results {
		if res.Owner != "a" {
			t.Errorf("owner filter leaked record owned by %q", res.Owner)
		}
	}
}

func Test_Store_SearchExactRequeryRanksItselfFirst(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	mustAdd(t, s, "a", "dealing with aphids on roses", "use neem oil spray")
	mustAdd(t, s, "a", "water tomatoes", "deeply twice weekly")
	mustAdd(t, s, "a", "fertilizer schedule for rice paddies", "apply urea in split doses")

	// Querying with a record's exact combined text must rank that record first.
	results, err := s.Search(context.Background(), combineExchange("water tomatoes", "deeply twice weekly"), "a", 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("want 1 result, got %d", len(results))
	}
	if results[0].Question != "water tomatoes" {
		t.Errorf("want exact re-query to rank itself first, got %q", results[0].Question)
	}
	if results[0].Score != 1 {
		t.Errorf("identical text should score 1.0, got %v", results[0].Score)
	}
}

func Test_Store_SearchFindsSemanticallyClosestRecord(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	mustAdd(t, s, "a", "water tomatoes", "deeply twice weekly")
	mustAdd(t, s, "a", "fertilizer schedule for rice paddies", "apply urea in split doses")

	results, err := s.Search(context.Background(), "watering tomato plants", "a", 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("want 1 result, got %d", len(results))
	}
	if results[0].Question != "water tomatoes" {
		t.Errorf("want the watering record as top hit, got %q", results[0].Question)
	}
}

func Test_Store_SearchScoresWithinRangeAndDescending(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	mustAdd(t, s, "a", "composting kitchen scraps", "layer greens and browns")
	mustAdd(t, s, "a", "raising chickens for eggs", "six hens feed a family")
	mustAdd(t, s, "a", "compost pile turning frequency", "turn weekly in summer")

	results, err := s.Search(context.Background(), "how do I compost scraps", "a", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("want results, got none")
	}
	for i, res := range results {
		if res.Score <= 0 || res.Score > 1 {
			t.Errorf("score %v outside (0, 1]", res.Score)
		}
		if i > 0 && res.Score > results[i-1].Score {
			t.Errorf("scores not descending: %v then %v", results[i-1].Score, res.Score)
		}
	}
}

func Test_Store_SearchSurfacesEmbedderFailure(t *testing.T) {
	t.Parallel()
	s, emb := openTestStore(t)
	mustAdd(t, s, "a", "q", "a")

	emb.Err = testutil.ErrEmbed
	if _, err := s.Search(context.Background(), "anything", "a", 3); err == nil {
		t.Fatal("want error when embedder fails, got nil")
	}
}

func Test_Store_StatsCountsPerOwner(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	for _, q := range []string{"q1", "q2", "q3"} {
		mustAdd(t, s, "a", q, "answer")
	}
	for _, q := range []string{"q4", "q5"} {
		mustAdd(t, s, "b", q, "answer")
	}

	st := s.Stats()
	if st.TotalRecords != 5 {
		t.Errorf("want 5 records, got %d", st.TotalRecords)
	}
	if st.TotalOwners != 2 {
		t.Errorf("want 2 owners, got %d", st.TotalOwners)
	}
	if st.PerOwner["a"] != 3 || st.PerOwner["b"] != 2 {
		t.Errorf("want per-owner a:3 b:2, got %v", st.PerOwner)
	}
	if st.Model != "test-trigram" || st.Dimension != testDim {
		t.Errorf("stats model/dimension wrong: %+v", st)
	}
}

func Test_Store_DeleteOwnerRemovesAllAndReassignsPositions(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	mustAdd(t, s, "a", "a-q1", "x")
	mustAdd(t, s, "b", "b-q1", "x")
	mustAdd(t, s, "a", "a-q2", "x")
	mustAdd(t, s, "a", "a-q3", "x")
	mustAdd(t, s, "b", "b-q2", "x")

	deleted, err := s.DeleteOwner("a")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 3 {
		t.Errorf("want 3 deleted, got %d", deleted)
	}

	st := s.Stats()
	if st.TotalRecords != 2 {
		t.Errorf("want 2 records left, got %d", st.TotalRecords)
	}
	if st.PerOwner["a"] != 0 {
		t.Errorf("owner a still has %d records", st.PerOwner["a"])
	}

	// Survivors keep relative order and get positions 0..N-1.
	recs := s.ownerRecords("b")
	if len(recs) != 2 {
		t.Fatalf("want 2 survivor records, got %d", len(recs))
	}
	if recs[0].Question != "b-q1" || recs[1].Question != "b-q2" {
		t.Errorf("survivor order broken: %q, %q", recs[0].Question, recs[1].Question)
	}
	if recs[0].Position != 0 || recs[1].Position != 1 {
		t.Errorf("positions not reassigned: %d, %d", recs[0].Position, recs[1].Position)
	}

	// Searches scoped to the deleted owner come back empty.
	results, err := s.Search(context.Background(), "a-q1", "a", 5)
	if err != nil {
		t.Fatalf("search after delete: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("deleted owner still searchable: %v", results)
	}
}

func Test_Store_DeleteOwnerNoMatchesReturnsZero(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	mustAdd(t, s, "a", "q", "a")

	deleted, err := s.DeleteOwner("nobody")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 0 {
		t.Errorf("want 0 deleted, got %d", deleted)
	}
	if s.Stats().TotalRecords != 1 {
		t.Error("no-op delete changed the store")
	}
}

func Test_Store_PersistAndReloadYieldsIdenticalSearches(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	emb := testutil.NewEmbedder(testDim)

	open := func() *Store {
		t.Helper()
		s, err := Open(&Config{Dir: dir, Embedder: emb, Model: "test-trigram", Dimension: testDim})
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		return s
	}

	s := open()
	mustAdd(t, s, "a", "covering strawberries against frost", "use fleece at night")
	mustAdd(t, s, "b", "sharpening a scythe blade", "peen then hone the edge")
	mustAdd(t, s, "a", "frost protection for strawberries", "straw mulch works too")

	query := "protect strawberries from frost"
	before, err := s.Search(context.Background(), query, "a", 3)
	if err != nil {
		t.Fatalf("search before reload: %v", err)
	}

	reloaded := open()
	after, err := reloaded.Search(context.Background(), query, "a", 3)
	if err != nil {
		t.Fatalf("search after reload: %v", err)
	}

	if len(before) != len(after) {
		t.Fatalf("result count changed across reload: %d vs %d", len(before), len(after))
	}
	for i := range before {
		if before[i].Question != after[i].Question ||
			before[i].Position != after[i].Position ||
			before[i].Score != after[i].Score {
			t.Errorf("result %d changed across reload: %+v vs %+v", i, before[i], after[i])
		}
	}
}

func Test_Store_CorruptSnapshotResetsToEmpty(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	emb := testutil.NewEmbedder(testDim)

	s, err := Open(&Config{Dir: dir, Embedder: emb, Dimension: testDim})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mustAdd(t, s, "a", "q", "a")

	// Garble the geometry artifact.
	if err := os.WriteFile(filepath.Join(dir, "index.bin"), []byte("not an index"), 0o600); err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	reloaded, err := Open(&Config{Dir: dir, Embedder: emb, Dimension: testDim})
	if err != nil {
		t.Fatalf("open over corrupt snapshot must not fail: %v", err)
	}
	if reloaded.Stats().TotalRecords != 0 {
		t.Errorf("corrupt snapshot should reset to empty, got %d records", reloaded.Stats().TotalRecords)
	}
}

func Test_Store_PartialSnapshotPairIsEmptyStore(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	emb := testutil.NewEmbedder(testDim)

	// Only the metadata artifact exists — valid empty-store state.
	if err := os.WriteFile(filepath.Join(dir, "records.json"), []byte(`{"version":1,"records":[]}`), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s, err := Open(&Config{Dir: dir, Embedder: emb, Dimension: testDim})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.Stats().TotalRecords != 0 {
		t.Errorf("want empty store, got %d records", s.Stats().TotalRecords)
	}
}

func Test_Store_AddRollsBackWhenPersistFails(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	emb := testutil.NewEmbedder(testDim)
	s, err := Open(&Config{Dir: dir, Embedder: emb, Dimension: testDim})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mustAdd(t, s, "a", "q1", "a1")

	// Point the store at an unwritable location to force persist failure.
	s.dir = filepath.Join(dir, "records.json", "impossible")

	if _, err := s.Add(context.Background(), "a", "q2", "a2", nil); err == nil {
		t.Fatal("want persist failure, got nil")
	}

	if got := s.Stats().TotalRecords; got != 1 {
		t.Errorf("failed add must roll back: want 1 record, got %d", got)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.idx.Len() != 1 {
		t.Errorf("index not rolled back: %d vectors", s.idx.Len())
	}
}
