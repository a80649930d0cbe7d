package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Sentinel strings returned when no history is available. The chat
// orchestrator treats both as valid non-error prompt input.
const (
	// NoRelevantHistory is returned by RelevantContext when no past
	// conversation matches the query.
	NoRelevantHistory = "No relevant past conversations found."

	// NoHistory is returned by OwnerSummary when the owner has no records.
	NoHistory = "No previous conversations found."
)

// Truncation limits for rendered context entries.
const (
	contextQuestionLen = 100
	contextAnswerLen   = 150
	summaryQuestionLen = 80
)

// RelevantContext searches the store for past exchanges similar to query and
// renders them as an enumerated natural-language block for prompt injection,
// ordered by descending similarity. When nothing matches it returns
// [NoRelevantHistory]. Errors from embedding or the index are surfaced so the
// caller can degrade gracefully.
func (s *Store) RelevantContext(ctx context.Context, query, owner string, maxResults int) (string, error) {
	results, err := s.Search(ctx, query, owner, maxResults)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return NoRelevantHistory, nil
	}

	var b strings.Builder
	b.WriteString("Relevant past conversations:")
	for i, res := range results {
		fmt.Fprintf(&b, "\n%d. Q: %s...", i+1, truncate(res.Question, contextQuestionLen))
		fmt.Fprintf(&b, "\n   A: %s...", truncate(res.Answer, contextAnswerLen))
		fmt.Fprintf(&b, "\n   (Similarity: %.2f)", res.Score)
	}
	return b.String(), nil
}

// OwnerSummary renders the owner's most recent exchanges, newest first,
// independent of any similarity ranking. At most limit entries are included.
// Returns [NoHistory] when the owner has no records.
func (s *Store) OwnerSummary(owner string, limit int) string {
	recs := s.ownerRecords(owner)
	if len(recs) == 0 {
		return NoHistory
	}

	sort.SliceStable(recs, func(a, b int) bool {
		return recs[a].CreatedAt.After(recs[b].CreatedAt)
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your recent conversation history (%d conversations):", len(recs))
	for _, rec := range recs {
		fmt.Fprintf(&b, "\n- Q: %s... (at %s)",
			truncate(rec.Question, summaryQuestionLen),
			rec.CreatedAt.Format("2006-01-02"),
		)
	}
	return b.String()
}

// truncate returns at most n bytes of s. Questions and answers are plain
// prose; byte truncation mid-rune is tolerated for display purposes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
