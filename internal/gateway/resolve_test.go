package gateway

import (
	"context"
	"testing"

	"modelgate/internal/providers"
	"modelgate/internal/storage"
)

func passthroughBuild(adapters map[string]providers.Adapter) AdapterBuilder {
	return func(p storage.Provider) (providers.Adapter, error) {
		return adapters[p.Name], nil
	}
}

func TestResolveParsesGenerationParams(t *testing.T) {
	cb, adapters := testChatbot(&scriptedAdapter{}, nil)
	cb.ParamsJSON = `{"temperature":0.2,"max_tokens":512,"top_p":0.9}`
	r := NewResolver(ResolverConfig{Store: &fakeStore{chatbot: cb}, Build: passthroughBuild(adapters)})

	got, err := r.Resolve(context.Background(), chatbotID())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Params.Temperature != 0.2 || got.Params.MaxTokens != 512 || got.Params.TopP != 0.9 {
		t.Fatalf("unexpected params %#v", got.Params)
	}
	if got.Model != "gpt-4o" || got.SystemPrompt != "You are support" {
		t.Fatalf("unexpected config %#v", got)
	}
}

func TestResolvePromotesFallbackWhenPrimaryUnusable(t *testing.T) {
	cb, adapters := testChatbot(&scriptedAdapter{}, &scriptedAdapter{})
	cb.Primary.Healthy = false
	r := NewResolver(ResolverConfig{Store: &fakeStore{chatbot: cb}, Build: passthroughBuild(adapters)})

	got, err := r.Resolve(context.Background(), chatbotID())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Primary.Name != "fallback" {
		t.Fatalf("expected fallback promoted, got %q", got.Primary.Name)
	}
	if got.Fallback != nil {
		t.Fatalf("promoted fallback should leave no second choice, got %#v", got.Fallback)
	}
}

func TestResolveDropsUnusableFallback(t *testing.T) {
	cb, adapters := testChatbot(&scriptedAdapter{}, &scriptedAdapter{})
	cb.Fallback.Active = false
	r := NewResolver(ResolverConfig{Store: &fakeStore{chatbot: cb}, Build: passthroughBuild(adapters)})

	got, err := r.Resolve(context.Background(), chatbotID())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Primary.Name != "primary" || got.Fallback != nil {
		t.Fatalf("expected inactive fallback dropped, got %#v", got)
	}
}

func TestResolveFailsWithNoUsableProvider(t *testing.T) {
	cb, adapters := testChatbot(&scriptedAdapter{}, nil)
	cb.Primary.Active = false
	r := NewResolver(ResolverConfig{Store: &fakeStore{chatbot: cb}, Build: passthroughBuild(adapters)})

	if _, err := r.Resolve(context.Background(), chatbotID()); err == nil {
		t.Fatalf("expected error with no usable provider")
	}
}

func TestResolveNilChatbotUsesDefaults(t *testing.T) {
	r := NewResolver(ResolverConfig{
		Store: &fakeStore{},
		Defaults: DefaultProvider{
			Kind:   providers.KindOllama,
			Model:  "llama3.2",
			APIKey: "",
		},
	})
	got, err := r.Resolve(context.Background(), nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Primary.Kind != providers.KindOllama || got.Model != "llama3.2" {
		t.Fatalf("unexpected default config %#v", got)
	}
	if got.Primary.Adapter == nil {
		t.Fatalf("expected adapter built from defaults")
	}
}

func TestResolveNilChatbotWithoutDefaultsFails(t *testing.T) {
	r := NewResolver(ResolverConfig{Store: &fakeStore{}})
	if _, err := r.Resolve(context.Background(), nil); err == nil {
		t.Fatalf("expected error without default provider")
	}
}
