package providers

import (
	"context"
	"fmt"
	"strings"
)

// Vendor kinds understood by the registry. Each kind maps to one wire
// protocol; mistral and openai_compat reuse the chat-completions codec with
// their own defaults.
const (
	KindOpenAI       = "openai"
	KindAnthropic    = "anthropic"
	KindGoogle       = "google"
	KindMistral      = "mistral"
	KindOllama       = "ollama"
	KindOpenAICompat = "openai_compat"
)

const (
	TierFlagship    = "flagship"
	TierStandard    = "standard"
	TierFast        = "fast"
	TierLightweight = "lightweight"

	ModalityText       = "text"
	ModalityVision     = "vision"
	ModalityMultimodal = "multimodal"
)

type Message struct {
	Role    string
	Content string
}

type ChatRequest struct {
	Model            string
	SystemPrompt     string
	Messages         []Message
	MaxTokens        int
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

type EventType string

const (
	EventContent EventType = "content"
	EventError   EventType = "error"
	EventDone    EventType = "done"
)

// StreamEvent is one normalized element of a vendor token stream.
type StreamEvent struct {
	Type EventType
	Text string
	Err  error
}

type Completion struct {
	Text  string
	Model string
}

type ModelInfo struct {
	Name            string
	DisplayName     string
	Description     string
	ContextLength   int
	Vision          bool
	FunctionCalling bool
	InputCostPer1K  float64
	OutputCostPer1K float64
	Tier            string
	Modality        string
}

// Adapter translates normalized chat requests into one vendor's wire protocol.
// Stream returns an error only for failures before the first chunk; mid-stream
// failures arrive as an EventError on the channel, which is closed after the
// terminal event.
type Adapter interface {
	Stream(ctx context.Context, req ChatRequest) (<-chan StreamEvent, error)
	Complete(ctx context.Context, req ChatRequest) (Completion, error)
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// ProviderError reports a non-2xx vendor response with the vendor error body.
type ProviderError struct {
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	if body == "" {
		return fmt.Sprintf("provider status %d", e.Status)
	}
	return fmt.Sprintf("provider status %d: %s", e.Status, body)
}

// ClassifyTier derives a coarse capability tier from a model name when the
// vendor listing carries no tier of its own.
func ClassifyTier(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "opus"), strings.Contains(m, "ultra"),
		strings.Contains(m, "large"), strings.Contains(m, "-pro"):
		return TierFlagship
	case strings.Contains(m, "haiku"), strings.Contains(m, "flash"),
		strings.Contains(m, "mini"), strings.Contains(m, "small"):
		return TierFast
	case strings.Contains(m, "tiny"), strings.Contains(m, "nano"),
		strings.Contains(m, "lite"):
		return TierLightweight
	default:
		return TierStandard
	}
}

// ClassifyModality guesses input modality from a model name.
func ClassifyModality(model string, vision bool) string {
	if vision {
		return ModalityMultimodal
	}
	m := strings.ToLower(model)
	if strings.Contains(m, "vision") {
		return ModalityVision
	}
	return ModalityText
}
