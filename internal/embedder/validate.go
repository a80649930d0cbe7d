package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agrai/agrai-go/internal/memory"
)

// checkTimeout bounds the startup probe so a hung backend fails fast.
const checkTimeout = 30 * time.Second

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding. If the resolved embedding model
// matches any of these, a warning is emitted so the operator knows they may
// have misconfigured the pipeline.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"solar",
	"vicuna",
	"falcon",
	"yi-",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Check runs a startup probe against the resolved embedding backend: it embeds
// one short text and verifies the returned vector matches the dimension the
// memory store is configured for. Conversation memory is only as durable as
// its vectors — a dimension change would silently invalidate every stored
// record, so a mismatch here is a configuration error, not a warning.
//
// Call this before opening the memory store so operators get a clear error at
// startup rather than a cryptic failure on the first chat request.
func (r *Resolved) Check(ctx context.Context, log *slog.Logger) error {
	if looksLikeChatModel(r.Model) {
		log.Warn("embedder: model looks like a chat model, not an embedding model — "+
			"this will likely produce poor or broken embeddings",
			slog.String("model", r.Model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	vecs, err := r.Embedder.Embed(ctx, []string{"embedding dimension probe"})
	if err != nil {
		return fmt.Errorf("embedder: %s backend unreachable: %w", r.Backend, err)
	}
	if len(vecs) != 1 {
		return fmt.Errorf("embedder: %s returned %d vectors for 1 input", r.Backend, len(vecs))
	}
	if got := len(vecs[0]); got != r.Dimensions {
		return fmt.Errorf("embedder: model %s produces %d-dimensional vectors but %d is configured — "+
			"set EMBEDDING_DIMENSIONS=%d (existing memory snapshots embedded at another dimension must be rebuilt)",
			r.Model, got, r.Dimensions, got)
	}

	log.Info("embedder: startup probe ok",
		slog.String("backend", r.Backend),
		slog.String("model", r.Model),
		slog.Int("dimensions", r.Dimensions),
	)
	return nil
}

// compile-time interface checks
var (
	_ memory.Embedder = (*OllamaEmbedder)(nil)
	_ memory.Embedder = (*OpenAIEmbedder)(nil)
)
