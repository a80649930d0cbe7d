package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/agrai/agrai-go/internal/logging"
	"github.com/agrai/agrai-go/internal/memory"
)

// Default result caps for the retrieval routes.
const (
	// defaultSimilarResults is the default k for GET /api/chat/similar.
	defaultSimilarResults = 3
	// defaultContextResults is the default cap for GET /api/chat/context.
	defaultContextResults = 3
	// defaultSummaryLimit is the default exchange count for GET /api/chat/summary.
	defaultSummaryLimit = 5
)

// handleSimilar handles GET /api/chat/similar. It returns the owner's ranked
// past exchanges most similar to the query, without invoking the model.
func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	owner, query, ok := ownerAndQuery(w, r)
	if !ok {
		return
	}
	k := intParam(r, "k", defaultSimilarResults)

	results, err := s.memory.Search(r.Context(), query, owner, k)
	if err != nil {
		logging.FromContext(r.Context()).Error("similarity search failed",
			slog.String("owner", owner), slog.Any("error", err))
		http.Error(w, "similarity search failed", http.StatusBadGateway)
		return
	}
	if results == nil {
		results = []memory.SearchResult{}
	}

	writeJSON(w, http.StatusOK, similarResponse{Results: results})
}

// handleContext handles GET /api/chat/context. It returns the formatted
// relevant-past-conversations block exactly as it would be injected into
// the model prompt.
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	owner, query, ok := ownerAndQuery(w, r)
	if !ok {
		return
	}
	maxResults := intParam(r, "k", defaultContextResults)

	block, err := s.memory.RelevantContext(r.Context(), query, owner, maxResults)
	if err != nil {
		logging.FromContext(r.Context()).Error("context retrieval failed",
			slog.String("owner", owner), slog.Any("error", err))
		http.Error(w, "context retrieval failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, contextResponse{Context: block})
}

// handleSummary handles GET /api/chat/summary. It returns the owner's most
// recent exchanges as a formatted text block, newest first.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, "owner is required", http.StatusBadRequest)
		return
	}
	limit := intParam(r, "limit", defaultSummaryLimit)

	writeJSON(w, http.StatusOK, summaryResponse{Summary: s.memory.OwnerSummary(owner, limit)})
}

// handleMemoryStats handles GET /api/memory/stats.
func (s *Server) handleMemoryStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.memory.Stats())
}

// handleMemoryForget handles DELETE /api/memory/owners/{owner}. It removes
// every memory record belonging to the owner and reports the count.
func (s *Server) handleMemoryForget(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	if owner == "" {
		http.Error(w, "owner is required", http.StatusBadRequest)
		return
	}

	deleted, err := s.memory.DeleteOwner(owner)
	if err != nil {
		logging.FromContext(r.Context()).Error("owner deletion failed",
			slog.String("owner", owner), slog.Any("error", err))
		http.Error(w, "owner deletion failed", http.StatusInternalServerError)
		return
	}
	logging.FromContext(r.Context()).Info("memory: owner forgotten",
		slog.String("owner", owner), slog.Int("deleted", deleted))

	writeJSON(w, http.StatusOK, deleteResponse{Deleted: deleted})
}

// ownerAndQuery extracts the required owner and q query parameters, writing a
// 400 response and returning ok=false when either is missing.
func ownerAndQuery(w http.ResponseWriter, r *http.Request) (owner, query string, ok bool) {
	owner = r.URL.Query().Get("owner")
	query = r.URL.Query().Get("q")
	if owner == "" {
		http.Error(w, "owner is required", http.StatusBadRequest)
		return "", "", false
	}
	if query == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return "", "", false
	}
	return owner, query, true
}

// intParam parses a positive integer query parameter, falling back to def
// when absent or invalid.
func intParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
