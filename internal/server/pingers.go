package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/agrai/agrai-go/internal/memory"
)

// LLMPinger probes an LLM backend by sending a minimal single-message generate
// request. It satisfies the Pinger interface and is used by GET /api/ready.
type LLMPinger struct {
	// model is the chat model to probe.
	model model.ToolCallingChatModel
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewLLMPinger constructs an LLMPinger for the given model and backend name.
func NewLLMPinger(m model.ToolCallingChatModel, name string) *LLMPinger {
	return &LLMPinger{model: m, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping sends a one-word prompt through the chat model. A reachable backend
// with a loaded model answers within the probe timeout; anything else fails.
func (p *LLMPinger) Ping(ctx context.Context) error {
	resp, err := p.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")})
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}

// EmbedderPinger probes the embedding backend by embedding a short fixed
// probe text. It satisfies the Pinger interface and is used by GET /api/ready.
type EmbedderPinger struct {
	// embedder is the embedding client to probe.
	embedder memory.Embedder
	// name identifies the backend in readiness responses (e.g. "embedder").
	name string
}

// NewEmbedderPinger constructs an EmbedderPinger for the given embedder.
func NewEmbedderPinger(e memory.Embedder, name string) *EmbedderPinger {
	return &EmbedderPinger{embedder: e, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *EmbedderPinger) Name() string { return p.name }

// Ping embeds a single short text and verifies a vector came back.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vecs, err := p.embedder.Embed(ctx, []string{"readiness probe"})
	if err != nil {
		return fmt.Errorf("embed failed: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return fmt.Errorf("embed returned no vector")
	}
	return nil
}

// MemoryDirPinger verifies that the semantic memory snapshot directory is
// writable, since a read-only or missing directory makes every memory write
// fail at persist time.
type MemoryDirPinger struct {
	// dir is the snapshot directory to probe.
	dir string
}

// NewMemoryDirPinger constructs a MemoryDirPinger for the given directory.
func NewMemoryDirPinger(dir string) *MemoryDirPinger {
	return &MemoryDirPinger{dir: dir}
}

// Name returns the dependency label used in readiness responses.
func (p *MemoryDirPinger) Name() string { return "memory" }

// Ping creates and removes a probe file in the snapshot directory.
func (p *MemoryDirPinger) Ping(_ context.Context) error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("snapshot dir unavailable: %w", err)
	}
	probe := filepath.Join(p.dir, ".ready-probe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return fmt.Errorf("snapshot dir not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("snapshot dir cleanup failed: %w", err)
	}
	return nil
}
