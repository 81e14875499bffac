package registry

import (
	"testing"

	"modelgate/internal/providers"
)

func TestBuildAllKnownKinds(t *testing.T) {
	kinds := []string{
		providers.KindOpenAI,
		providers.KindAnthropic,
		providers.KindGoogle,
		providers.KindMistral,
		providers.KindOllama,
	}
	for _, kind := range kinds {
		adapter, err := Build(BuildOptions{Kind: kind, APIKey: "key"})
		if err != nil {
			t.Fatalf("build %s: %v", kind, err)
		}
		if adapter == nil {
			t.Fatalf("nil adapter for %s", kind)
		}
	}
}

func TestBuildOpenAICompatRequiresBaseURL(t *testing.T) {
	if _, err := Build(BuildOptions{Kind: providers.KindOpenAICompat, APIKey: "key"}); err == nil {
		t.Fatalf("expected error without base url")
	}
	adapter, err := Build(BuildOptions{Kind: providers.KindOpenAICompat, APIKey: "key", BaseURL: "https://llm.internal/v1"})
	if err != nil {
		t.Fatalf("build openai_compat: %v", err)
	}
	if adapter == nil {
		t.Fatalf("nil adapter")
	}
}

func TestBuildUnknownKind(t *testing.T) {
	if _, err := Build(BuildOptions{Kind: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
