package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"modelgate/internal/providers"
)

// known holds curated metadata for models the list endpoint reports without
// capability or pricing detail.
var known = map[string]providers.ModelInfo{
	"gpt-4o": {
		DisplayName:     "GPT-4o",
		Description:     "Multimodal flagship model",
		ContextLength:   128000,
		Vision:          true,
		FunctionCalling: true,
		InputCostPer1K:  0.0025,
		OutputCostPer1K: 0.01,
		Tier:            providers.TierFlagship,
	},
	"gpt-4o-mini": {
		DisplayName:     "GPT-4o mini",
		Description:     "Fast, low-cost multimodal model",
		ContextLength:   128000,
		Vision:          true,
		FunctionCalling: true,
		InputCostPer1K:  0.00015,
		OutputCostPer1K: 0.0006,
		Tier:            providers.TierFast,
	},
	"gpt-4-turbo": {
		DisplayName:     "GPT-4 Turbo",
		Description:     "High-capability model with vision",
		ContextLength:   128000,
		Vision:          true,
		FunctionCalling: true,
		InputCostPer1K:  0.01,
		OutputCostPer1K: 0.03,
		Tier:            providers.TierFlagship,
	},
	"gpt-3.5-turbo": {
		DisplayName:     "GPT-3.5 Turbo",
		Description:     "Legacy fast chat model",
		ContextLength:   16385,
		FunctionCalling: true,
		InputCostPer1K:  0.0005,
		OutputCostPer1K: 0.0015,
		Tier:            providers.TierLightweight,
	},
	"mistral-large-latest": {
		DisplayName:     "Mistral Large",
		Description:     "Mistral flagship reasoning model",
		ContextLength:   128000,
		FunctionCalling: true,
		InputCostPer1K:  0.002,
		OutputCostPer1K: 0.006,
		Tier:            providers.TierFlagship,
	},
	"mistral-small-latest": {
		DisplayName:     "Mistral Small",
		Description:     "Cost-efficient Mistral model",
		ContextLength:   32000,
		FunctionCalling: true,
		InputCostPer1K:  0.0002,
		OutputCostPer1K: 0.0006,
		Tier:            providers.TierFast,
	},
	"open-mistral-nemo": {
		DisplayName:   "Mistral Nemo",
		Description:   "Small open-weight Mistral model",
		ContextLength: 128000,
		Tier:          providers.TierLightweight,
	},
}

// ListModels queries the vendor's /models endpoint and enriches each entry
// from the curated table, falling back to name heuristics for unknown ids.
func (c *Client) ListModels(ctx context.Context) ([]providers.ModelInfo, error) {
	endpoint, err := joinPath(c.cfg.BaseURL, "/models")
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build list models request: %w", err)
	}
	if strings.TrimSpace(c.cfg.APIKey) != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	for k, v := range c.cfg.Headers {
		httpReq.Header.Set(k, strings.ReplaceAll(v, "{{api_key}}", c.cfg.APIKey))
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
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}

	out := make([]providers.ModelInfo, 0, len(listing.Data))
	for _, m := range listing.Data {
		if m.ID == "" {
			continue
		}
		info, ok := known[m.ID]
		if !ok {
			info = providers.ModelInfo{
				DisplayName:   m.ID,
				ContextLength: 8192,
				Tier:          providers.ClassifyTier(m.ID),
			}
		}
		info.Name = m.ID
		if info.Modality == "" {
			info.Modality = providers.ClassifyModality(m.ID, info.Vision)
		}
		out = append(out, info)
	}
	return out, nil
}
