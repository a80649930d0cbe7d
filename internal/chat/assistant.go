// Package chat wires the Eino chat model together with semantic conversation
// memory and the relational conversation log to form the farming assistant.
// Each answer is grounded in the owner's relevant past exchanges; a memory
// failure degrades the reply to no-context instead of failing the request.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/agrai/agrai-go/internal/budget"
	"github.com/agrai/agrai-go/internal/logging"
	"github.com/agrai/agrai-go/internal/memory"
	"github.com/agrai/agrai-go/internal/store"
)

// systemPrompt establishes the assistant's persona. It is injected into every
// conversation.
const systemPrompt = `You are a helpful and knowledgeable Farmer Query Assistant.
Your goal is to provide concise, practical advice for farmers.
You are an expert in sustainable farming; proactively offer advice on how to reduce waste,
save money by suggesting efficient alternatives, and improve soil health.
Always be friendly, clear, and supportive in your responses.

When relevant past conversations are provided, use them to personalise your
answer — refer back to what the farmer has asked before where it helps, but do
not repeat old answers verbatim.`

// Generator is the subset of the Eino chat model the assistant needs.
// model.ToolCallingChatModel satisfies it.
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Memory is the semantic memory surface the assistant depends on.
// *memory.Store satisfies it.
type Memory interface {
	// RelevantContext renders past exchanges similar to query for prompt injection.
	RelevantContext(ctx context.Context, query, owner string, maxResults int) (string, error)
	// Add records an answered exchange for future retrieval.
	Add(ctx context.Context, owner, question, answer string, sourceID *int64) (int, error)
}

// Config holds the dependencies required to construct an Assistant.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel Generator

	// Memory is the semantic conversation memory. May be nil, in which case
	// every answer is generated without past context.
	Memory Memory

	// History is the optional relational conversation log. When set, every
	// answered exchange is appended and recent turns are replayed into the
	// prompt.
	History store.ConversationLog

	// ContextResults caps how many past exchanges are injected per question.
	// Defaults to 3 if zero.
	ContextResults int

	// HistoryDepth is the number of recent exchanges replayed per question.
	// Defaults to 10 if zero.
	HistoryDepth int

	// MaxContextTokens is the estimated token budget for the full input
	// context. Replayed history is trimmed oldest-first to fit. Defaults to
	// budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int
}

// Reply is the assistant's answer to one question.
type Reply struct {
	// Answer is the generated reply text.
	Answer string `json:"answer"`
	// UsedRAG reports whether relevant past conversations were injected into
	// the prompt for this answer.
	UsedRAG bool `json:"used_rag"`
	// Timestamp is when the answer was produced.
	Timestamp time.Time `json:"timestamp"`
}

// Assistant answers farmer questions, grounding each reply in the owner's
// semantic conversation memory.
type Assistant struct {
	// chatModel is the LLM backend.
	chatModel Generator

	// mem is the semantic memory, nil when memory is disabled.
	mem Memory

	// history is the relational conversation log, nil when disabled.
	history store.ConversationLog

	// contextResults is the past-exchange injection cap.
	contextResults int

	// historyDepth is the number of recent exchanges replayed per question.
	historyDepth int

	// maxContextTokens is the input context budget.
	maxContextTokens int
}

// New constructs an Assistant from the provided Config.
func New(cfg *Config) (*Assistant, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("chat: ChatModel must not be nil")
	}

	results := cfg.ContextResults
	if results <= 0 {
		results = 3
	}
	depth := cfg.HistoryDepth
	if depth <= 0 {
		depth = 10
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}

	return &Assistant{
		chatModel:        cfg.ChatModel,
		mem:              cfg.Memory,
		history:          cfg.History,
		contextResults:   results,
		historyDepth:     depth,
		maxContextTokens: maxCtx,
	}, nil
}

// Answer generates a reply to the owner's question. Relevant past exchanges
// are retrieved from memory and injected into the prompt; a retrieval failure
// is logged and the answer proceeds without context. After generation the
// exchange is persisted to the conversation log and to semantic memory —
// persistence failures are logged but never fail the request, so the farmer
// always gets their answer.
func (a *Assistant) Answer(ctx context.Context, owner, question string) (*Reply, error) {
	log := logging.FromContext(ctx)

	ragContext, usedRAG := a.retrieveContext(ctx, owner, question)

	messages := a.buildMessages(ctx, owner, question, ragContext)

	resp, err := a.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("chat: generate: %w", err)
	}
	answer := strings.TrimSpace(resp.Content)

	// Persist the exchange. The log row id links the memory record back to
	// its relational source.
	var sourceID *int64
	if a.history != nil {
		id, err := a.history.Append(ctx, owner, question, answer)
		if err != nil {
			log.Warn("chat: failed to persist exchange to conversation log",
				slog.String("owner", owner), slog.Any("error", err))
		} else {
			sourceID = &id
		}
	}
	if a.mem != nil {
		if _, err := a.mem.Add(ctx, owner, question, answer, sourceID); err != nil {
			log.Warn("chat: failed to record exchange in semantic memory",
				slog.String("owner", owner), slog.Any("error", err))
		}
	}

	return &Reply{
		Answer:    answer,
		UsedRAG:   usedRAG,
		Timestamp: time.Now().UTC(),
	}, nil
}

// retrieveContext fetches the relevant-past-conversations block for the
// question. Returns the block and whether it carries real context. Failures
// degrade to no-context rather than failing the request.
func (a *Assistant) retrieveContext(ctx context.Context, owner, question string) (string, bool) {
	if a.mem == nil {
		return "", false
	}
	block, err := a.mem.RelevantContext(ctx, question, owner, a.contextResults)
	if err != nil {
		logging.FromContext(ctx).Warn("chat: memory retrieval failed, answering without context",
			slog.String("owner", owner), slog.Any("error", err))
		return "", false
	}
	if block == memory.NoRelevantHistory {
		return "", false
	}
	return block, true
}

// buildMessages constructs the prompt: system persona, replayed history
// (trimmed to budget), the optional memory context block, and the question.
func (a *Assistant) buildMessages(ctx context.Context, owner, question, ragContext string) []*schema.Message {
	fixed := []*schema.Message{schema.SystemMessage(systemPrompt)}
	if ragContext != "" {
		fixed = append(fixed, schema.SystemMessage(ragContext))
	}
	fixed = append(fixed, schema.UserMessage(question))

	var historyMsgs []*schema.Message
	if a.history != nil {
		prior, err := a.history.RecentByOwner(ctx, owner, a.historyDepth)
		if err != nil {
			logging.FromContext(ctx).Warn("chat: failed to load recent history",
				slog.String("owner", owner), slog.Any("error", err))
		}
		for _, e := range prior {
			historyMsgs = append(historyMsgs,
				schema.UserMessage(e.Question),
				schema.AssistantMessage(e.Answer, nil),
			)
		}
	}

	before := len(historyMsgs)
	historyMsgs = budget.TrimHistory(fixed, historyMsgs, a.maxContextTokens)
	if dropped := before - len(historyMsgs); dropped > 0 {
		logging.FromContext(ctx).Warn("budget: dropped history messages to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(historyMsgs)),
			slog.Int("max_tokens", a.maxContextTokens),
		)
	}

	// Final order: system persona, replayed history, memory context, question.
	result := make([]*schema.Message, 0, 1+len(historyMsgs)+len(fixed)-1)
	result = append(result, fixed[0])
	result = append(result, historyMsgs...)
	result = append(result, fixed[1:]...)
	return result
}
