package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"modelgate/internal/metrics"
	"modelgate/internal/providers"
	"modelgate/internal/queue"
	"modelgate/internal/storage"
)

// Store is the subset of storage the synchronizer needs.
type Store interface {
	ListActiveProviders(ctx context.Context) ([]storage.Provider, error)
	ListCatalogByKind(ctx context.Context, providerKind string) ([]storage.ModelCatalogEntry, error)
	InsertCatalogEntry(ctx context.Context, e storage.ModelCatalogEntry) error
	UpdateCatalogEntry(ctx context.Context, e storage.ModelCatalogEntry) error
	DeprecateCatalogEntry(ctx context.Context, providerKind, modelName string) error
	SetProviderHealth(ctx context.Context, id int64, healthy bool, at time.Time) error
	LogAction(ctx context.Context, e storage.AuditEntry) error
}

// AdapterFactory builds an adapter for a stored provider row.
type AdapterFactory func(p storage.Provider) (providers.Adapter, error)

// Result is one provider's share of a synchronization run.
type Result struct {
	ProviderID   int64  `json:"provider_id"`
	ProviderName string `json:"provider_name"`
	Kind         string `json:"kind"`
	Added        int    `json:"added"`
	Updated      int    `json:"updated"`
	Deprecated   int    `json:"deprecated"`
	Success      bool   `json:"success"`
	Err          string `json:"error,omitempty"`
}

type Report struct {
	TotalAdded         int      `json:"total_added"`
	TotalUpdated       int      `json:"total_updated"`
	TotalDeprecated    int      `json:"total_deprecated"`
	ProvidersProcessed int      `json:"providers_processed"`
	Results            []Result `json:"results"`
}

// Synchronizer reconciles each vendor's published model list against the
// stored catalog. Models never seen before are inserted, known ones get
// their metadata refreshed, and models a vendor stopped listing are flagged
// deprecated rather than deleted, so historical usage keeps resolving.
type Synchronizer struct {
	store   Store
	build   AdapterFactory
	locker  *queue.SyncLocker
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

type SynchronizerConfig struct {
	Store   Store
	Build   AdapterFactory
	Locker  *queue.SyncLocker
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

func NewSynchronizer(cfg SynchronizerConfig) *Synchronizer {
	return &Synchronizer{
		store:   cfg.Store,
		build:   cfg.Build,
		locker:  cfg.Locker,
		logger:  cfg.Logger.With().Str("component", "catalog").Logger(),
		metrics: cfg.Metrics,
	}
}

// Run synchronizes all active providers concurrently. One provider failing
// to list its models never blocks the rest; the failure is captured in that
// provider's Result and the run continues.
func (s *Synchronizer) Run(ctx context.Context) (Report, error) {
	s.metrics.CatalogRunsTotal.Inc()

	provs, err := s.store.ListActiveProviders(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list providers: %w", err)
	}

	var (
		mu     sync.Mutex
		report Report
		wg     sync.WaitGroup
	)
	for _, p := range provs {
		wg.Add(1)
		go func(p storage.Provider) {
			defer wg.Done()
			res := s.syncProvider(ctx, p)
			mu.Lock()
			report.Results = append(report.Results, res)
			report.ProvidersProcessed++
			report.TotalAdded += res.Added
			report.TotalUpdated += res.Updated
			report.TotalDeprecated += res.Deprecated
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	s.metrics.CatalogAdded.Add(float64(report.TotalAdded))
	s.metrics.CatalogUpdated.Add(float64(report.TotalUpdated))
	s.metrics.CatalogDeprecated.Add(float64(report.TotalDeprecated))

	if raw, err := json.Marshal(report); err == nil {
		if err := s.store.LogAction(ctx, storage.AuditEntry{Action: "catalog_sync", MetaJSON: string(raw)}); err != nil {
			s.logger.Warn().Err(err).Msg("audit write failed")
		}
	}

	s.logger.Info().
		Int("providers", report.ProvidersProcessed).
		Int("added", report.TotalAdded).
		Int("updated", report.TotalUpdated).
		Int("deprecated", report.TotalDeprecated).
		Msg("catalog sync finished")
	return report, nil
}

func (s *Synchronizer) syncProvider(ctx context.Context, p storage.Provider) Result {
	res := Result{ProviderID: p.ID, ProviderName: p.Name, Kind: p.Kind}

	// Two providers of the same kind share catalog rows, so reconciliation
	// per kind is serialized across instances.
	release, err := s.locker.Acquire(ctx, "catalog:"+p.Kind)
	if err != nil {
		res.Err = fmt.Sprintf("acquire sync lock: %v", err)
		return res
	}
	defer release()

	adapter, err := s.build(p)
	if err != nil {
		res.Err = fmt.Sprintf("build adapter: %v", err)
		return res
	}

	listed, err := adapter.ListModels(ctx)
	if err != nil {
		s.logger.Warn().Str("provider", p.Name).Err(err).Msg("model listing failed")
		res.Err = err.Error()
		return res
	}
	if err := s.store.SetProviderHealth(ctx, p.ID, true, time.Now()); err != nil {
		s.logger.Warn().Str("provider", p.Name).Err(err).Msg("health update failed")
	}

	existing, err := s.store.ListCatalogByKind(ctx, p.Kind)
	if err != nil {
		res.Err = fmt.Sprintf("load catalog: %v", err)
		return res
	}
	known := make(map[string]storage.ModelCatalogEntry, len(existing))
	for _, e := range existing {
		known[e.ModelName] = e
	}

	seen := make(map[string]bool, len(listed))
	for _, m := range listed {
		seen[m.Name] = true
		entry := toEntry(p.Kind, m)
		if _, ok := known[m.Name]; ok {
			if err := s.store.UpdateCatalogEntry(ctx, entry); err != nil {
				res.Err = fmt.Sprintf("update %s: %v", m.Name, err)
				return res
			}
			res.Updated++
			continue
		}
		if err := s.store.InsertCatalogEntry(ctx, entry); err != nil {
			res.Err = fmt.Sprintf("insert %s: %v", m.Name, err)
			return res
		}
		res.Added++
	}

	for name, e := range known {
		if seen[name] || e.IsDeprecated {
			continue
		}
		if err := s.store.DeprecateCatalogEntry(ctx, p.Kind, name); err != nil {
			res.Err = fmt.Sprintf("deprecate %s: %v", name, err)
			return res
		}
		res.Deprecated++
	}

	res.Success = true
	return res
}

func toEntry(kind string, m providers.ModelInfo) storage.ModelCatalogEntry {
	return storage.ModelCatalogEntry{
		ProviderKind:    kind,
		ModelName:       m.Name,
		DisplayName:     m.DisplayName,
		Description:     m.Description,
		ContextLength:   m.ContextLength,
		Vision:          m.Vision,
		FunctionCalling: m.FunctionCalling,
		InputCostPer1K:  m.InputCostPer1K,
		OutputCostPer1K: m.OutputCostPer1K,
		Tier:            m.Tier,
		Modality:        m.Modality,
	}
}
