package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"modelgate/internal/metrics"
	"modelgate/internal/storage"
)

type UsageWriter interface {
	InsertUsage(ctx context.Context, u storage.UsageRecord) error
}

// Recorder appends usage records off the session's critical path. Record
// never blocks; when the buffer is full or the write fails, the record is
// dropped with a warning. Telemetry is advisory, never load-bearing.
type Recorder struct {
	store   UsageWriter
	ch      chan storage.UsageRecord
	done    chan struct{}
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewRecorder(store UsageWriter, buffer int, logger zerolog.Logger, m *metrics.Metrics) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	if m == nil {
		m = metrics.Global()
	}
	return &Recorder{
		store:   store,
		ch:      make(chan storage.UsageRecord, buffer),
		done:    make(chan struct{}),
		logger:  logger.With().Str("component", "telemetry").Logger(),
		metrics: m,
	}
}

// Start drains the buffer until ctx is canceled, then flushes what remains.
func (r *Recorder) Start(ctx context.Context) {
	go func() {
		defer close(r.done)
		for {
			select {
			case rec := <-r.ch:
				r.write(rec)
			case <-ctx.Done():
				for {
					select {
					case rec := <-r.ch:
						r.write(rec)
					default:
						return
					}
				}
			}
		}
	}()
}

// Record enqueues one usage record without blocking the caller.
func (r *Recorder) Record(rec storage.UsageRecord) {
	select {
	case r.ch <- rec:
	default:
		r.metrics.UsageDropsTotal.Inc()
		r.logger.Warn().Msg("usage buffer full, dropping record")
	}
}

// Done is closed once the drain loop has exited.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

func (r *Recorder) write(rec storage.UsageRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.InsertUsage(ctx, rec); err != nil {
		r.metrics.UsageDropsTotal.Inc()
		r.logger.Warn().Err(err).Msg("usage write failed, dropping record")
	}
}
