package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"modelgate/internal/providers"
)

const DefaultBaseURL = "http://localhost:11434"

type Config struct {
	BaseURL    string
	Headers    map[string]string
	HTTPClient *http.Client
}

// Client talks to a locally hosted generate API. The vendor returns whole
// JSON responses, so Stream performs one blocking call and synthesizes a
// single content event from the full answer.
type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 300 * time.Second}
	}
	return &Client{cfg: cfg}
}

var _ providers.Adapter = (*Client)(nil)

func (c *Client) Stream(ctx context.Context, req providers.ChatRequest) (<-chan providers.StreamEvent, error) {
	completion, err := c.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	events := make(chan providers.StreamEvent, 2)
	events <- providers.StreamEvent{Type: providers.EventContent, Text: completion.Text}
	events <- providers.StreamEvent{Type: providers.EventDone}
	close(events)
	return events, nil
}

func (c *Client) Complete(ctx context.Context, req providers.ChatRequest) (providers.Completion, error) {
	body, err := buildPayload(req)
	if err != nil {
		return providers.Completion{}, err
	}
	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/api/generate"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return providers.Completion{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range c.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return providers.Completion{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return providers.Completion{}, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return providers.Completion{}, &providers.ProviderError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var out struct {
		Model    string `json:"model"`
		Response string `json:"response"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return providers.Completion{}, fmt.Errorf("decode generate response: %w", err)
	}
	model := out.Model
	if model == "" {
		model = req.Model
	}
	return providers.Completion{Text: out.Response, Model: model}, nil
}

func buildPayload(req providers.ChatRequest) ([]byte, error) {
	var prompt strings.Builder
	for i, m := range req.Messages {
		if i > 0 {
			prompt.WriteString("\n")
		}
		prompt.WriteString(m.Content)
	}

	payload := map[string]any{
		"model":  req.Model,
		"prompt": prompt.String(),
		"stream": false,
	}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		payload["system"] = req.SystemPrompt
	}
	options := map[string]any{}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.TopP > 0 {
		options["top_p"] = req.TopP
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if len(options) > 0 {
		payload["options"] = options
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal generate payload: %w", err)
	}
	return b, nil
}

// ListModels queries the local tags endpoint.
func (c *Client) ListModels(ctx context.Context) ([]providers.ModelInfo, error) {
	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/api/tags"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build list models request: %w", err)
	}
	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("list models request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read models response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &providers.ProviderError{Status: resp.StatusCode, Body: string(body)}
	}

	var listing struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}

	out := make([]providers.ModelInfo, 0, len(listing.Models))
	for _, m := range listing.Models {
		if m.Name == "" {
			continue
		}
		out = append(out, providers.ModelInfo{
			Name:          m.Name,
			DisplayName:   m.Name,
			Description:   "Locally hosted model",
			ContextLength: 8192,
			Tier:          providers.TierLightweight,
			Modality:      providers.ModalityText,
		})
	}
	return out, nil
}
