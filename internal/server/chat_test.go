package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agrai/agrai-go/internal/chat"
)

// ---------------------------------------------------------------------------
// POST /api/chat — validation error paths (no model needed)
// ---------------------------------------------------------------------------

func TestHandleChat_MissingMessage(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"owner":"amara"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleChat_MissingOwner(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message":"when should I water tomatoes?"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleChat_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`not-json`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /api/chat — happy path and failure modes
// ---------------------------------------------------------------------------

func TestHandleChat_Success(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	fake := s.assistant.(*fakeAssistant)
	fake.reply = &chat.Reply{
		Answer:    "Water them early in the morning.",
		UsedRAG:   true,
		Timestamp: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"owner":"amara","message":"when should I water tomatoes?"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if fake.lastOwner != "amara" || fake.lastQuestion != "when should I water tomatoes?" {
		t.Errorf("assistant called with owner=%q question=%q", fake.lastOwner, fake.lastQuestion)
	}

	var resp chat.Reply
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "Water them early in the morning." {
		t.Errorf("unexpected answer %q", resp.Answer)
	}
	if !resp.UsedRAG {
		t.Error("used_rag flag lost in transit")
	}
}

func TestHandleChat_AssistantError(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.assistant.(*fakeAssistant).err = errors.New("model unavailable")

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"owner":"amara","message":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", w.Code)
	}
}

// TestHandleChat_Timeout verifies that a generation exceeding ChatTimeout is
// reported as 504 rather than a generic failure.
func TestHandleChat_Timeout(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.cfg.ChatTimeout = 10 * time.Millisecond
	s.assistant.(*fakeAssistant).delay = time.Second

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"owner":"amara","message":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", w.Code)
	}
}
