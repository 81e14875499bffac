package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"modelgate/internal/providers"
)

func TestCompleteSendsMessagesPayload(t *testing.T) {
	var gotKey, gotVersion, gotPath string
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		_, _ = w.Write([]byte(`{"model":"claude-sonnet-4-5","content":[{"type":"text","text":"hello "},{"type":"text","text":"world"}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "sk-ant-test"})
	got, err := c.Complete(context.Background(), providers.ChatRequest{
		Model:        "claude-sonnet-4-5",
		SystemPrompt: "be helpful",
		Messages:     []providers.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Text != "hello world" {
		t.Fatalf("expected joined text blocks, got %q", got.Text)
	}
	if gotKey != "sk-ant-test" {
		t.Fatalf("unexpected api key header %q", gotKey)
	}
	if gotVersion != "2023-06-01" {
		t.Fatalf("unexpected version header %q", gotVersion)
	}
	if gotPath != "/v1/messages" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotPayload["system"] != "be helpful" {
		t.Fatalf("expected top-level system field, got %#v", gotPayload["system"])
	}
	if gotPayload["max_tokens"].(float64) != 1024 {
		t.Fatalf("expected default max_tokens 1024, got %#v", gotPayload["max_tokens"])
	}
}

func TestStreamParsesContentBlockDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(
			"event: message_start\n" +
				"data: {\"type\":\"message_start\"}\n\n" +
				"event: content_block_delta\n" +
				"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Hel\"}}\n\n" +
				"event: content_block_delta\n" +
				"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"lo\"}}\n\n" +
				"event: message_stop\n" +
				"data: {\"type\":\"message_stop\"}\n\n"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "sk-ant-test"})
	events, err := c.Stream(context.Background(), providers.ChatRequest{Model: "claude-sonnet-4-5"})
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
	if text != "Hello" || !done {
		t.Fatalf("expected Hello with done, got text=%q done=%v", text, done)
	}
}

func TestStreamPropagatesVendorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "bad"})
	_, err := c.Stream(context.Background(), providers.ChatRequest{Model: "claude-sonnet-4-5"})
	var pe *providers.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.Status != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", pe.Status)
	}
}

func TestListModelsReturnsStaticCatalog(t *testing.T) {
	c := New(Config{APIKey: "sk-ant-test"})
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	if len(models) == 0 {
		t.Fatalf("expected static models")
	}
	for _, m := range models {
		if m.Name == "" || m.Tier == "" || m.Modality == "" {
			t.Fatalf("incomplete model metadata %#v", m)
		}
	}
}
