package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	SessionsTotal     *prometheus.CounterVec
	FailoversTotal    prometheus.Counter
	FramesTotal       *prometheus.CounterVec
	UsageDropsTotal   prometheus.Counter
	RateLimitedTotal  prometheus.Counter
	CatalogRunsTotal  prometheus.Counter
	CatalogAdded      prometheus.Counter
	CatalogUpdated    prometheus.Counter
	CatalogDeprecated prometheus.Counter
	ProviderLatency   *prometheus.HistogramVec
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "modelgate",
				Name:      "sessions_total",
				Help:      "Total streaming sessions by terminal status",
			}, []string{"status"}),
			FailoversTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "modelgate",
				Name:      "failovers_total",
				Help:      "Total fallback provider attempts",
			}),
			FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "modelgate",
				Name:      "frames_total",
				Help:      "Total stream frames emitted by type",
			}, []string{"type"}),
			UsageDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "modelgate",
				Name:      "usage_drops_total",
				Help:      "Usage records dropped because the recorder was full or the write failed",
			}),
			RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "modelgate",
				Name:      "rate_limited_total",
				Help:      "Chat requests rejected by the rate limiter",
			}),
			CatalogRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "modelgate",
				Name:      "catalog_runs_total",
				Help:      "Total catalog synchronization runs",
			}),
			CatalogAdded: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "modelgate",
				Name:      "catalog_models_added_total",
				Help:      "Catalog entries inserted during synchronization",
			}),
			CatalogUpdated: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "modelgate",
				Name:      "catalog_models_updated_total",
				Help:      "Catalog entries refreshed during synchronization",
			}),
			CatalogDeprecated: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "modelgate",
				Name:      "catalog_models_deprecated_total",
				Help:      "Catalog entries flagged deprecated during synchronization",
			}),
			ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "modelgate",
				Name:      "provider_request_seconds",
				Help:      "Vendor request latency by provider kind",
				Buckets:   prometheus.DefBuckets,
			}, []string{"kind"}),
		}
		prometheus.MustRegister(
			global.SessionsTotal,
			global.FailoversTotal,
			global.FramesTotal,
			global.UsageDropsTotal,
			global.RateLimitedTotal,
			global.CatalogRunsTotal,
			global.CatalogAdded,
			global.CatalogUpdated,
			global.CatalogDeprecated,
			global.ProviderLatency,
		)
	})
	return global
}
