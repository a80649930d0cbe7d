package embedder

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func Test_OllamaEmbedder_ParsesBatchResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("unexpected model %q", req.Model)
		}
		resp := ollamaEmbedResponse{Embeddings: make([][]float32, len(req.Input))}
		for i := range resp.Embeddings {
			resp.Embeddings[i] = []float32{float32(i), 1, 2}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})
	vecs, err := emb.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("want 2 vectors, got %d", len(vecs))
	}
	if vecs[1][0] != 1 {
		t.Errorf("vectors not parallel to input: %v", vecs[1])
	}
}

func Test_OllamaEmbedder_SurfacesServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Error: `model "missing" not found`})
	}))
	defer srv.Close()

	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "missing"})
	_, err := emb.Embed(context.Background(), []string{"x"})
	if err == nil {
		t.Fatal("want error, got nil")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("server error message lost: %v", err)
	}
}

func Test_OpenAIEmbedder_ReordersByIndex(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		// Out-of-order data exercises the index-based reassembly.
		_, _ = w.Write([]byte(`{"data":[
			{"embedding":[2,2],"index":1},
			{"embedding":[1,1],"index":0}
		]}`))
	}))
	defer srv.Close()

	emb := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "text-embedding-3-small"})
	vecs, err := emb.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Errorf("response not reordered by index: %v", vecs)
	}
}

func Test_Resolved_CheckRejectsDimensionMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1, 2, 3}}})
	}))
	defer srv.Close()

	r := &Resolved{
		Embedder:   NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"}),
		Backend:    "ollama",
		Model:      "nomic-embed-text",
		Dimensions: 768,
	}
	err := r.Check(context.Background(), slog.New(slog.DiscardHandler))
	if err == nil {
		t.Fatal("want dimension mismatch error, got nil")
	}
	if !strings.Contains(err.Error(), "768") {
		t.Errorf("error should name the configured dimension: %v", err)
	}
}

func Test_Resolved_CheckAcceptsMatchingDimension(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1, 2, 3}}})
	}))
	defer srv.Close()

	r := &Resolved{
		Embedder:   NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"}),
		Backend:    "ollama",
		Model:      "nomic-embed-text",
		Dimensions: 3,
	}
	if err := r.Check(context.Background(), slog.New(slog.DiscardHandler)); err != nil {
		t.Fatalf("check: %v", err)
	}
}

func Test_LooksLikeChatModel(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"nomic-embed-text":       false,
		"text-embedding-3-small": false,
		"llama3.2":               true,
		"gpt-4o":                 true,
		"Mistral-7B":             true,
	}
	for model, want := range cases {
		if got := looksLikeChatModel(model); got != want {
			t.Errorf("looksLikeChatModel(%q) = %v, want %v", model, got, want)
		}
	}
}
