package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"modelgate/internal/providers"
)

// ListModels queries the v1beta model listing, keeping only entries that
// support generateContent.
func (c *Client) ListModels(ctx context.Context) ([]providers.ModelInfo, error) {
	endpoint := fmt.Sprintf("%s/models?%s",
		strings.TrimSuffix(c.cfg.BaseURL, "/"), url.Values{"key": {c.cfg.APIKey}}.Encode())

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
			Name                       string   `json:"name"`
			DisplayName                string   `json:"displayName"`
			Description                string   `json:"description"`
			InputTokenLimit            int      `json:"inputTokenLimit"`
			SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}

	out := make([]providers.ModelInfo, 0, len(listing.Models))
	for _, m := range listing.Models {
		if !supportsGenerate(m.SupportedGenerationMethods) {
			continue
		}
		name := strings.TrimPrefix(m.Name, "models/")
		vision := strings.Contains(name, "gemini")
		out = append(out, providers.ModelInfo{
			Name:            name,
			DisplayName:     m.DisplayName,
			Description:     m.Description,
			ContextLength:   m.InputTokenLimit,
			Vision:          vision,
			FunctionCalling: true,
			Tier:            providers.ClassifyTier(name),
			Modality:        providers.ClassifyModality(name, vision),
		})
	}
	return out, nil
}

func supportsGenerate(methods []string) bool {
	for _, m := range methods {
		if m == "generateContent" {
			return true
		}
	}
	return false
}
