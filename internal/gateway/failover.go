package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"modelgate/internal/metrics"
	"modelgate/internal/providers"
)

// Outcome describes which provider ultimately served a completed attempt.
type Outcome struct {
	ProviderID    *int64
	ProviderName  string
	Model         string
	FailoverCount int
}

// Orchestrator runs a generation against the primary provider and, when the
// primary fails within the time budget, retries once against the fallback.
// The budget is measured from session start: an in-flight attempt is never
// interrupted, but no new attempt begins after the budget has elapsed.
type Orchestrator struct {
	budget  time.Duration
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewOrchestrator(budget time.Duration, logger zerolog.Logger, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{budget: budget, logger: logger.With().Str("component", "orchestrator").Logger(), metrics: m}
}

// Run streams the request through the resolved providers. onContent receives
// each text chunk as it arrives; onFailover fires once, before the fallback
// attempt starts, so the caller can discard partial output from the primary.
func (o *Orchestrator) Run(
	ctx context.Context,
	startedAt time.Time,
	cfg ResolvedConfig,
	req providers.ChatRequest,
	onContent func(text string),
	onFailover func(message string),
) (Outcome, error) {
	err := o.attempt(ctx, cfg.Primary, req, onContent)
	if err == nil {
		return Outcome{ProviderID: cfg.Primary.ID, ProviderName: cfg.Primary.Name, Model: req.Model}, nil
	}

	if ctx.Err() != nil {
		return Outcome{ProviderID: cfg.Primary.ID, ProviderName: cfg.Primary.Name, Model: req.Model}, ctx.Err()
	}
	if cfg.Fallback == nil {
		return Outcome{ProviderID: cfg.Primary.ID, ProviderName: cfg.Primary.Name, Model: req.Model}, err
	}
	if elapsed := time.Since(startedAt); elapsed >= o.budget {
		o.logger.Warn().
			Str("provider", cfg.Primary.Name).
			Dur("elapsed", elapsed).
			Err(err).
			Msg("primary failed after failover budget, not retrying")
		return Outcome{ProviderID: cfg.Primary.ID, ProviderName: cfg.Primary.Name, Model: req.Model}, err
	}

	o.logger.Warn().
		Str("primary", cfg.Primary.Name).
		Str("fallback", cfg.Fallback.Name).
		Err(err).
		Msg("primary provider failed, switching to fallback")
	o.metrics.FailoversTotal.Inc()
	if onFailover != nil {
		onFailover(fmt.Sprintf("provider %s failed, retrying with %s", cfg.Primary.Name, cfg.Fallback.Name))
	}

	fbErr := o.attempt(ctx, *cfg.Fallback, req, onContent)
	out := Outcome{ProviderID: cfg.Fallback.ID, ProviderName: cfg.Fallback.Name, Model: req.Model, FailoverCount: 1}
	if fbErr != nil {
		return out, fbErr
	}
	return out, nil
}

func (o *Orchestrator) attempt(ctx context.Context, p ResolvedProvider, req providers.ChatRequest, onContent func(string)) error {
	start := time.Now()
	defer func() {
		o.metrics.ProviderLatency.WithLabelValues(p.Kind).Observe(time.Since(start).Seconds())
	}()

	events, err := p.Adapter.Stream(ctx, req)
	if err != nil {
		return err
	}
	for ev := range events {
		switch ev.Type {
		case providers.EventContent:
			if onContent != nil && ev.Text != "" {
				onContent(ev.Text)
			}
		case providers.EventError:
			return ev.Err
		case providers.EventDone:
			return nil
		}
	}
	return nil
}
