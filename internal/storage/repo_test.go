package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), "sqlite", ":memory:", true, "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUpsertProviderUpdatesExistingRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	enc := `{"key_id":"k1","nonce":"n","ciphertext":"c"}`
	id1, err := store.UpsertProvider(ctx, Provider{
		Name:      "openai-main",
		Kind:      "openai",
		EncAPIKey: &enc,
		Active:    true,
		Healthy:   true,
	})
	if err != nil {
		t.Fatalf("upsert#1: %v", err)
	}

	id2, err := store.UpsertProvider(ctx, Provider{
		Name:    "openai-main",
		Kind:    "openai",
		BaseURL: "https://proxy.internal/v1",
		Active:  true,
		Healthy: true,
	})
	if err != nil {
		t.Fatalf("upsert#2: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same id on upsert, got %d and %d", id1, id2)
	}

	got, err := store.GetProviderByName(ctx, "openai-main")
	if err != nil {
		t.Fatalf("get provider: %v", err)
	}
	if got.BaseURL != "https://proxy.internal/v1" {
		t.Fatalf("expected base url updated, got %q", got.BaseURL)
	}
}

func TestGetProviderNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetProviderByID(context.Background(), 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListActiveProvidersSkipsUnhealthy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.UpsertProvider(ctx, Provider{Name: "good", Kind: "openai", Active: true, Healthy: true}); err != nil {
		t.Fatalf("upsert good: %v", err)
	}
	if _, err := store.UpsertProvider(ctx, Provider{Name: "inactive", Kind: "openai", Active: false, Healthy: true}); err != nil {
		t.Fatalf("upsert inactive: %v", err)
	}
	badID, err := store.UpsertProvider(ctx, Provider{Name: "sick", Kind: "openai", Active: true, Healthy: true})
	if err != nil {
		t.Fatalf("upsert sick: %v", err)
	}
	if err := store.SetProviderHealth(ctx, badID, false, time.Now()); err != nil {
		t.Fatalf("set health: %v", err)
	}

	got, err := store.ListActiveProviders(ctx)
	if err != nil {
		t.Fatalf("list providers: %v", err)
	}
	if len(got) != 1 || got[0].Name != "good" {
		t.Fatalf("expected only healthy active provider, got %#v", got)
	}
}

func TestGetChatbotWithProviders(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	primaryID, err := store.UpsertProvider(ctx, Provider{Name: "primary", Kind: "openai", Active: true, Healthy: true})
	if err != nil {
		t.Fatalf("upsert primary: %v", err)
	}
	fallbackID, err := store.UpsertProvider(ctx, Provider{Name: "fallback", Kind: "anthropic", Active: true, Healthy: true})
	if err != nil {
		t.Fatalf("upsert fallback: %v", err)
	}

	cbID, err := store.UpsertChatbotConfig(ctx, ChatbotConfig{
		Name:               "support-bot",
		PrimaryProviderID:  primaryID,
		FallbackProviderID: &fallbackID,
		Model:              "gpt-4o",
		SystemPrompt:       "You are support",
		ParamsJSON:         `{"temperature":0.2}`,
	})
	if err != nil {
		t.Fatalf("upsert chatbot: %v", err)
	}

	got, err := store.GetChatbotWithProviders(ctx, cbID)
	if err != nil {
		t.Fatalf("get chatbot: %v", err)
	}
	if got.Primary.Name != "primary" {
		t.Fatalf("unexpected primary %q", got.Primary.Name)
	}
	if got.Fallback == nil || got.Fallback.Name != "fallback" {
		t.Fatalf("unexpected fallback %#v", got.Fallback)
	}
	if got.Model != "gpt-4o" {
		t.Fatalf("unexpected model %q", got.Model)
	}
}

func TestConversationAndMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv := Conversation{ID: "conv-1", UserID: "user-1"}
	if err := store.EnsureConversation(ctx, conv); err != nil {
		t.Fatalf("ensure conversation: %v", err)
	}
	if err := store.EnsureConversation(ctx, conv); err != nil {
		t.Fatalf("ensure conversation twice: %v", err)
	}

	if err := store.InsertMessage(ctx, Message{ID: "m1", ConversationID: "conv-1", Role: "user", Content: "hi"}); err != nil {
		t.Fatalf("insert user message: %v", err)
	}
	if err := store.InsertMessage(ctx, Message{ID: "m2", ConversationID: "conv-1", Role: "assistant", Content: "hello", MetaJSON: `{"provider":"primary"}`}); err != nil {
		t.Fatalf("insert assistant message: %v", err)
	}

	got, err := store.ListMessages(ctx, "conv-1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	roles := map[string]bool{}
	for _, m := range got {
		roles[m.Role] = true
		if m.MetaJSON == "" {
			t.Fatalf("expected meta_json default, got empty")
		}
	}
	if !roles["user"] || !roles["assistant"] {
		t.Fatalf("expected both roles, got %#v", roles)
	}
}

func TestUsageRecordsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	chatbotID := int64(7)
	if err := store.InsertUsage(ctx, UsageRecord{
		ChatbotID:     &chatbotID,
		Model:         "gpt-4o",
		LatencyMS:     420,
		Success:       false,
		Error:         "client disconnected",
		TokenEstimate: 12,
	}); err != nil {
		t.Fatalf("insert usage: %v", err)
	}

	got, err := store.ListUsage(ctx, 10)
	if err != nil {
		t.Fatalf("list usage: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	rec := got[0]
	if rec.ChatbotID == nil || *rec.ChatbotID != 7 {
		t.Fatalf("unexpected chatbot id %#v", rec.ChatbotID)
	}
	if rec.Success || rec.Error != "client disconnected" {
		t.Fatalf("unexpected record %#v", rec)
	}
}

func TestTopDocumentsOnlyProcessed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.InsertDocument(ctx, Document{Title: "ready", Content: "text", Processed: true}); err != nil {
		t.Fatalf("insert processed doc: %v", err)
	}
	if err := store.InsertDocument(ctx, Document{Title: "pending", Content: "text", Processed: false}); err != nil {
		t.Fatalf("insert pending doc: %v", err)
	}

	got, err := store.TopDocuments(ctx, 10)
	if err != nil {
		t.Fatalf("top documents: %v", err)
	}
	if len(got) != 1 || got[0].Title != "ready" {
		t.Fatalf("expected only processed documents, got %#v", got)
	}
}

func TestLogActionSanitizesInvalidJSON(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.LogAction(ctx, AuditEntry{Action: "catalog_sync", MetaJSON: "{not json"}); err != nil {
		t.Fatalf("log action: %v", err)
	}
	var meta string
	if err := store.DB().QueryRowContext(ctx, "SELECT meta_json FROM audit_log LIMIT 1").Scan(&meta); err != nil {
		t.Fatalf("read audit row: %v", err)
	}
	if meta != "{}" {
		t.Fatalf("expected invalid meta replaced with {}, got %q", meta)
	}
}
