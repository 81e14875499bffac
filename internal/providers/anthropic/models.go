package anthropic

import (
	"context"

	"modelgate/internal/providers"
)

// The vendor exposes no public listing endpoint we rely on, so the catalog is
// a curated static table.
var staticModels = []providers.ModelInfo{
	{
		Name:            "claude-opus-4-1",
		DisplayName:     "Claude Opus 4.1",
		Description:     "Most capable model for complex reasoning",
		ContextLength:   200000,
		Vision:          true,
		FunctionCalling: true,
		InputCostPer1K:  0.015,
		OutputCostPer1K: 0.075,
		Tier:            providers.TierFlagship,
		Modality:        providers.ModalityMultimodal,
	},
	{
		Name:            "claude-sonnet-4-5",
		DisplayName:     "Claude Sonnet 4.5",
		Description:     "Balanced capability and latency",
		ContextLength:   200000,
		Vision:          true,
		FunctionCalling: true,
		InputCostPer1K:  0.003,
		OutputCostPer1K: 0.015,
		Tier:            providers.TierStandard,
		Modality:        providers.ModalityMultimodal,
	},
	{
		Name:            "claude-haiku-4-5",
		DisplayName:     "Claude Haiku 4.5",
		Description:     "Fast, low-cost model for high-volume workloads",
		ContextLength:   200000,
		Vision:          true,
		FunctionCalling: true,
		InputCostPer1K:  0.001,
		OutputCostPer1K: 0.005,
		Tier:            providers.TierFast,
		Modality:        providers.ModalityMultimodal,
	},
}

func (c *Client) ListModels(_ context.Context) ([]providers.ModelInfo, error) {
	out := make([]providers.ModelInfo, len(staticModels))
	copy(out, staticModels)
	return out, nil
}
