package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agrai/agrai-go/internal/chat"
	"github.com/agrai/agrai-go/internal/memory"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds a single /api/chat request end to end.
	ChatTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives this server's metric registrations. Defaults
	// to prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// asker is the interface handleChat calls to answer a question.
// *chat.Assistant satisfies it; tests inject a fake.
type asker interface {
	// Answer generates a reply to the owner's question.
	Answer(ctx context.Context, owner, question string) (*chat.Reply, error)
}

// memoryService is the semantic memory surface the HTTP handlers depend on.
// *memory.Store satisfies it; tests inject a fake.
type memoryService interface {
	Search(ctx context.Context, query, owner string, k int) ([]memory.SearchResult, error)
	RelevantContext(ctx context.Context, query, owner string, maxResults int) (string, error)
	OwnerSummary(owner string, limit int) string
	Stats() memory.Stats
	DeleteOwner(owner string) (int, error)
}

// Server is the HTTP server that exposes the assistant and its memory.
type Server struct {
	// assistant answers /api/chat requests.
	assistant asker
	// memory backs the /api/chat/* retrieval routes and /api/memory/*.
	memory memoryService
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
	// metrics holds this server's Prometheus instruments.
	metrics *serverMetrics
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// Owner identifies whose conversation memory grounds the answer.
	Owner string `json:"owner"`
	// Message is the farmer's question.
	Message string `json:"message"`
}

// similarResponse is the JSON response for GET /api/chat/similar.
type similarResponse struct {
	// Results is the ranked list of matching past exchanges.
	Results []memory.SearchResult `json:"results"`
}

// contextResponse is the JSON response for GET /api/chat/context.
type contextResponse struct {
	// Context is the formatted relevant-past-conversations block.
	Context string `json:"context"`
}

// summaryResponse is the JSON response for GET /api/chat/summary.
type summaryResponse struct {
	// Summary is the owner's formatted recent-history block.
	Summary string `json:"summary"`
}

// deleteResponse is the JSON response for DELETE /api/memory/owners/{owner}.
type deleteResponse struct {
	// Deleted is the number of memory records removed.
	Deleted int `json:"deleted"`
}
