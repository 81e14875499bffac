package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"modelgate/internal/crypto"
	"modelgate/internal/providers"
	"modelgate/internal/providers/registry"
	"modelgate/internal/storage"
)

type GenerationParams struct {
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	TopP             float64 `json:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty"`
}

type ResolvedProvider struct {
	ID      *int64
	Name    string
	Kind    string
	Adapter providers.Adapter
}

type ResolvedConfig struct {
	ChatbotID    *int64
	Primary      ResolvedProvider
	Fallback     *ResolvedProvider
	Model        string
	SystemPrompt string
	Params       GenerationParams
}

// DefaultProvider is the explicit built-in vendor used when a request names
// no chatbot config.
type DefaultProvider struct {
	Kind    string
	APIKey  string
	BaseURL string
	Model   string
}

type AdapterBuilder func(p storage.Provider) (providers.Adapter, error)

type ConfigStore interface {
	GetChatbotWithProviders(ctx context.Context, chatbotID int64) (storage.ChatbotWithProviders, error)
}

// Resolver turns a chatbot id into adapters ready to invoke, decrypting
// stored credentials on the way.
type Resolver struct {
	store      ConfigStore
	crypto     *crypto.Manager
	httpClient *http.Client
	defaults   DefaultProvider
	build      AdapterBuilder
}

type ResolverConfig struct {
	Store      ConfigStore
	Crypto     *crypto.Manager
	HTTPClient *http.Client
	Defaults   DefaultProvider

	// Build overrides adapter construction; tests substitute fakes here.
	Build AdapterBuilder
}

func NewResolver(cfg ResolverConfig) *Resolver {
	r := &Resolver{
		store:      cfg.Store,
		crypto:     cfg.Crypto,
		httpClient: cfg.HTTPClient,
		defaults:   cfg.Defaults,
		build:      cfg.Build,
	}
	if r.build == nil {
		r.build = r.BuildAdapter
	}
	return r
}

// Resolve loads the chatbot config and builds its adapters. A nil chatbot id
// resolves to the configured default provider. A primary that is inactive or
// unhealthy is never selected: a usable fallback is promoted in its place,
// otherwise resolution fails.
func (r *Resolver) Resolve(ctx context.Context, chatbotID *int64) (ResolvedConfig, error) {
	if chatbotID == nil {
		return r.defaultConfig()
	}

	cb, err := r.store.GetChatbotWithProviders(ctx, *chatbotID)
	if err != nil {
		return ResolvedConfig{}, fmt.Errorf("load chatbot config: %w", err)
	}

	params := GenerationParams{Temperature: 0.7, MaxTokens: 1024}
	if raw := strings.TrimSpace(cb.ParamsJSON); raw != "" {
		_ = json.Unmarshal([]byte(raw), &params)
	}

	primary := cb.Primary
	fallback := cb.Fallback
	if !usable(primary) {
		if fallback == nil || !usable(*fallback) {
			return ResolvedConfig{}, fmt.Errorf("chatbot %d has no usable provider", *chatbotID)
		}
		primary = *fallback
		fallback = nil
	}
	if fallback != nil && !usable(*fallback) {
		fallback = nil
	}

	out := ResolvedConfig{
		ChatbotID:    chatbotID,
		Model:        cb.Model,
		SystemPrompt: cb.SystemPrompt,
		Params:       params,
	}
	out.Primary, err = r.resolveProvider(primary)
	if err != nil {
		return ResolvedConfig{}, err
	}
	if fallback != nil {
		fb, err := r.resolveProvider(*fallback)
		if err != nil {
			return ResolvedConfig{}, err
		}
		out.Fallback = &fb
	}
	return out, nil
}

func (r *Resolver) resolveProvider(p storage.Provider) (ResolvedProvider, error) {
	adapter, err := r.build(p)
	if err != nil {
		return ResolvedProvider{}, fmt.Errorf("build adapter for provider %q: %w", p.Name, err)
	}
	id := p.ID
	return ResolvedProvider{ID: &id, Name: p.Name, Kind: p.Kind, Adapter: adapter}, nil
}

// BuildAdapter decrypts the stored credential and headers and asks the
// registry for the vendor's adapter.
func (r *Resolver) BuildAdapter(p storage.Provider) (providers.Adapter, error) {
	apiKey, err := r.decryptOptional(p.EncAPIKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt api key: %w", err)
	}
	var headers map[string]string
	if p.EncHeadersJSON != nil && strings.TrimSpace(*p.EncHeadersJSON) != "" {
		headers, err = r.crypto.DecryptHeaders(*p.EncHeadersJSON)
		if err != nil {
			return nil, fmt.Errorf("decrypt headers: %w", err)
		}
	}
	return registry.Build(registry.BuildOptions{
		Kind:         p.Kind,
		BaseURL:      p.BaseURL,
		APIKey:       apiKey,
		Organization: p.Organization,
		Headers:      headers,
		HTTPClient:   r.httpClient,
	})
}

func (r *Resolver) defaultConfig() (ResolvedConfig, error) {
	if r.defaults.Kind == "" {
		return ResolvedConfig{}, fmt.Errorf("no chatbot config given and no default provider configured")
	}
	adapter, err := registry.Build(registry.BuildOptions{
		Kind:       r.defaults.Kind,
		BaseURL:    r.defaults.BaseURL,
		APIKey:     r.defaults.APIKey,
		HTTPClient: r.httpClient,
	})
	if err != nil {
		return ResolvedConfig{}, fmt.Errorf("build default adapter: %w", err)
	}
	return ResolvedConfig{
		Primary: ResolvedProvider{Name: "default-" + r.defaults.Kind, Kind: r.defaults.Kind, Adapter: adapter},
		Model:   r.defaults.Model,
		Params:  GenerationParams{Temperature: 0.7, MaxTokens: 1024},
	}, nil
}

func (r *Resolver) decryptOptional(raw *string) (string, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return "", nil
	}
	return r.crypto.DecryptString(*raw)
}

func usable(p storage.Provider) bool {
	return p.Active && p.Healthy
}
