package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/agrai/agrai-go/internal/embedder"
	"github.com/agrai/agrai-go/internal/memory"
	"github.com/agrai/agrai-go/internal/store"
)

// defaultMemoryDirName is the snapshot directory under ~/.agrai when
// MEMORY_DIR is not set.
const defaultMemoryDirName = "memory"

// memoryDir resolves the semantic memory snapshot directory: MEMORY_DIR when
// set, otherwise ~/.agrai/memory.
func memoryDir() (string, error) {
	if dir := os.Getenv("MEMORY_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("commands: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".agrai", defaultMemoryDirName), nil
}

// openMemoryStore resolves the embedding backend from the environment, runs
// the startup preflight, and opens the semantic memory store. The preflight
// is fatal: a dimension mismatch would silently invalidate every stored
// vector, so the process refuses to start instead.
func openMemoryStore(ctx context.Context, log *slog.Logger) (*memory.Store, *embedder.Resolved, error) {
	resolved, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("commands: initialise embedder: %w", err)
	}
	if err := resolved.Check(ctx, log); err != nil {
		return nil, nil, fmt.Errorf("commands: embedder preflight: %w", err)
	}

	dir, err := memoryDir()
	if err != nil {
		return nil, nil, err
	}

	mem, err := memory.Open(&memory.Config{
		Dir:       dir,
		Embedder:  resolved.Embedder,
		Model:     resolved.Model,
		Dimension: resolved.Dimensions,
		Logger:    log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("commands: open memory store: %w", err)
	}
	log.Info("memory: store opened",
		slog.String("dir", dir),
		slog.String("model", resolved.Model),
		slog.Int("dimension", resolved.Dimensions),
		slog.Int("records", mem.Stats().TotalRecords),
	)
	return mem, resolved, nil
}

// openHistory opens the SQLite conversation log. AGRAI_HISTORY_DB overrides
// the default path (~/.agrai/history.db); "disabled" turns the log off.
// Failures degrade to a nil log with a warning — the assistant works without
// a relational history, it just cannot replay prior turns.
func openHistory(log *slog.Logger) (store.ConversationLog, func()) {
	dbPath := os.Getenv("AGRAI_HISTORY_DB")
	if dbPath == "disabled" {
		log.Info("history: disabled via AGRAI_HISTORY_DB=disabled")
		return nil, func() {}
	}
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil, func() {}
		}
	}

	hs, err := store.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil, func() {}
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs, func() { _ = hs.Close() }
}

// contextResultsFromEnv reads MEMORY_MAX_RESULTS, falling back to def when
// absent or invalid.
func contextResultsFromEnv(def int) int {
	raw := os.Getenv("MEMORY_MAX_RESULTS")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
