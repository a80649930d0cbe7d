package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/agrai/agrai-go/internal/testutil"
)

func Test_RelevantContext_EmptyStoreReturnsSentinel(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	got, err := s.RelevantContext(context.Background(), "anything", "a", 3)
	if err != nil {
		t.Fatalf("relevant context: %v", err)
	}
	if got != NoRelevantHistory {
		t.Errorf("want sentinel %q, got %q", NoRelevantHistory, got)
	}
}

func Test_RelevantContext_RendersEnumeratedBlock(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	mustAdd(t, s, "a", "when should I water tomatoes", "early morning, twice a week")
	mustAdd(t, s, "a", "how deep to plant garlic cloves", "about five centimeters")

	got, err := s.RelevantContext(context.Background(), "watering tomato plants", "a", 2)
	if err != nil {
		t.Fatalf("relevant context: %v", err)
	}

	if !strings.HasPrefix(got, "Relevant past conversations:") {
		t.Errorf("missing header: %q", got)
	}
	if !strings.Contains(got, "1. Q: when should I water tomatoes...") {
		t.Errorf("missing first question line: %q", got)
	}
	if !strings.Contains(got, "   A: early morning, twice a week...") {
		t.Errorf("missing answer line: %q", got)
	}
	if !strings.Contains(got, "(Similarity: ") {
		t.Errorf("missing similarity line: %q", got)
	}
}

func Test_RelevantContext_TruncatesLongEntries(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	longQ := strings.Repeat("q", 140)
	longA := strings.Repeat("a", 200)
	mustAdd(t, s, "a", longQ, longA)

	got, err := s.RelevantContext(context.Background(), longQ, "a", 1)
	if err != nil {
		t.Fatalf("relevant context: %v", err)
	}
	if !strings.Contains(got, strings.Repeat("q", 100)+"...") {
		t.Error("question not truncated to 100 chars")
	}
	if strings.Contains(got, strings.Repeat("q", 101)) {
		t.Error("question exceeds 100 chars")
	}
	if !strings.Contains(got, strings.Repeat("a", 150)+"...") {
		t.Error("answer not truncated to 150 chars")
	}
	if strings.Contains(got, strings.Repeat("a", 151)) {
		t.Error("answer exceeds 150 chars")
	}
}

func Test_RelevantContext_SurfacesEmbedderFailure(t *testing.T) {
	t.Parallel()
	s, emb := openTestStore(t)
	mustAdd(t, s, "a", "q", "a")

	emb.Err = testutil.ErrEmbed
	if _, err := s.RelevantContext(context.Background(), "anything", "a", 3); err == nil {
		t.Fatal("want error when embedding fails, got nil")
	}
}

func Test_OwnerSummary_EmptyOwnerReturnsSentinel(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	mustAdd(t, s, "someone-else", "q", "a")

	if got := s.OwnerSummary("a", 10); got != NoHistory {
		t.Errorf("want sentinel %q, got %q", NoHistory, got)
	}
}

func Test_OwnerSummary_NewestFirstAndLimited(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	mustAdd(t, s, "a", "oldest question", "x")
	mustAdd(t, s, "a", "middle question", "x")
	mustAdd(t, s, "a", "newest question", "x")

	// Force distinct timestamps; adds within the same call can share a clock tick.
	s.mu.Lock()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range s.records {
		s.records[i].CreatedAt = base.Add(time.Duration(i) * time.Hour)
	}
	s.mu.Unlock()

	got := s.OwnerSummary("a", 2)
	if !strings.HasPrefix(got, "Your recent conversation history (2 conversations):") {
		t.Errorf("bad header: %q", got)
	}
	newestAt := strings.Index(got, "newest question")
	middleAt := strings.Index(got, "middle question")
	if newestAt == -1 || middleAt == -1 {
		t.Fatalf("missing entries: %q", got)
	}
	if newestAt > middleAt {
		t.Error("entries not newest-first")
	}
	if strings.Contains(got, "oldest question") {
		t.Error("limit not applied")
	}
	if !strings.Contains(got, "(at 2026-03-01)") {
		t.Errorf("missing date: %q", got)
	}
}
