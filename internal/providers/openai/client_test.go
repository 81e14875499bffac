package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"modelgate/internal/providers"
)

func TestCompleteSendsChatCompletionsPayload(t *testing.T) {
	var gotAuth, gotOrg, gotPath string
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotOrg = r.Header.Get("OpenAI-Organization")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		_, _ = w.Write([]byte(`{"model":"gpt-4o","choices":[{"message":{"content":"hi there"}}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "sk-test", Organization: "org-1"})
	got, err := c.Complete(context.Background(), providers.ChatRequest{
		Model:        "gpt-4o",
		SystemPrompt: "be brief",
		Messages:     []providers.Message{{Role: "user", Content: "hello"}},
		MaxTokens:    64,
		Temperature:  0.4,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Text != "hi there" || got.Model != "gpt-4o" {
		t.Fatalf("unexpected completion %#v", got)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotOrg != "org-1" {
		t.Fatalf("unexpected org header %q", gotOrg)
	}
	if gotPath != "/chat/completions" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	messages, ok := gotPayload["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("expected system + user messages, got %#v", gotPayload["messages"])
	}
	first := messages[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "be brief" {
		t.Fatalf("expected system message first, got %#v", first)
	}
}

func TestStreamParsesSSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(
			"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
				"data: [DONE]\n\n"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "sk-test"})
	events, err := c.Stream(context.Background(), providers.ChatRequest{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	var text string
	var done bool
	for ev := range events {
		switch ev.Type {
		case providers.EventContent:
			text += ev.Text
		case providers.EventDone:
			done = true
		case providers.EventError:
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
	}
	if text != "Hello" {
		t.Fatalf("expected Hello, got %q", text)
	}
	if !done {
		t.Fatalf("expected done event")
	}
}

func TestStreamReturnsProviderErrorBeforeFirstChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "sk-test"})
	_, err := c.Stream(context.Background(), providers.ChatRequest{Model: "gpt-4o"})
	var pe *providers.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.Status != http.StatusTooManyRequests {
		t.Fatalf("unexpected status %d", pe.Status)
	}
}

func TestCustomHeaderSubstitution(t *testing.T) {
	var gotCustom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCustom = r.Header.Get("X-Custom-Auth")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := New(Config{
		BaseURL: srv.URL,
		APIKey:  "sk-test",
		Headers: map[string]string{"X-Custom-Auth": "token {{api_key}}"},
	})
	if _, err := c.Complete(context.Background(), providers.ChatRequest{Model: "m"}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if gotCustom != "token sk-test" {
		t.Fatalf("expected api key substitution, got %q", gotCustom)
	}
}

func TestListModelsEnrichesKnownEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"gpt-4o"},{"id":"some-unknown-model"}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "sk-test"})
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
	byName := map[string]providers.ModelInfo{}
	for _, m := range models {
		byName[m.Name] = m
	}
	if byName["gpt-4o"].ContextLength == 0 {
		t.Fatalf("expected curated context length for gpt-4o")
	}
	if byName["some-unknown-model"].Tier == "" {
		t.Fatalf("expected heuristic tier for unknown model")
	}
}

func TestJoinPath(t *testing.T) {
	got, err := joinPath("https://api.example.com/v1/", "/chat/completions")
	if err != nil {
		t.Fatalf("join path: %v", err)
	}
	if got != "https://api.example.com/v1/chat/completions" {
		t.Fatalf("unexpected endpoint %q", got)
	}
}
