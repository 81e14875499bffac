package registry

import (
	"fmt"
	"net/http"

	"modelgate/internal/providers"
	"modelgate/internal/providers/anthropic"
	"modelgate/internal/providers/google"
	"modelgate/internal/providers/ollama"
	"modelgate/internal/providers/openai"
)

const mistralBaseURL = "https://api.mistral.ai/v1"

type BuildOptions struct {
	Kind         string
	BaseURL      string
	APIKey       string
	Organization string
	Headers      map[string]string
	HTTPClient   *http.Client
}

// Build returns the adapter for a vendor kind. Adding a vendor means adding
// one adapter package and one case here.
func Build(opts BuildOptions) (providers.Adapter, error) {
	switch opts.Kind {
	case providers.KindOpenAI:
		return openai.New(openai.Config{
			BaseURL:      opts.BaseURL,
			APIKey:       opts.APIKey,
			Organization: opts.Organization,
			Headers:      opts.Headers,
			HTTPClient:   opts.HTTPClient,
		}), nil

	case providers.KindMistral:
		baseURL := opts.BaseURL
		if baseURL == "" {
			baseURL = mistralBaseURL
		}
		return openai.New(openai.Config{
			BaseURL:    baseURL,
			APIKey:     opts.APIKey,
			Headers:    opts.Headers,
			HTTPClient: opts.HTTPClient,
		}), nil

	case providers.KindOpenAICompat:
		if opts.BaseURL == "" {
			return nil, fmt.Errorf("openai_compat provider requires a base url")
		}
		return openai.New(openai.Config{
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			Headers:    opts.Headers,
			HTTPClient: opts.HTTPClient,
		}), nil

	case providers.KindAnthropic:
		return anthropic.New(anthropic.Config{
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			Headers:    opts.Headers,
			HTTPClient: opts.HTTPClient,
		}), nil

	case providers.KindGoogle:
		return google.New(google.Config{
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			Headers:    opts.Headers,
			HTTPClient: opts.HTTPClient,
		}), nil

	case providers.KindOllama:
		return ollama.New(ollama.Config{
			BaseURL:    opts.BaseURL,
			Headers:    opts.Headers,
			HTTPClient: opts.HTTPClient,
		}), nil

	default:
		return nil, fmt.Errorf("unsupported provider kind %q", opts.Kind)
	}
}
