package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"modelgate/internal/catalog"
	"modelgate/internal/gateway"
	"modelgate/internal/metrics"
	"modelgate/internal/queue"
)

// Server exposes the chat stream, catalog sync trigger, health and metrics
// endpoints.
type Server struct {
	sessions    *gateway.Service
	sync        *catalog.Synchronizer
	limiter     *queue.RateLimiter
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	healthPath  string
	metricsPath string
}

type ServerConfig struct {
	Sessions     *gateway.Service
	Synchronizer *catalog.Synchronizer
	Limiter      *queue.RateLimiter
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
	HealthPath   string
	MetricsPath  string
}

func NewServer(cfg ServerConfig) *Server {
	return &Server{
		sessions:    cfg.Sessions,
		sync:        cfg.Synchronizer,
		limiter:     cfg.Limiter,
		logger:      cfg.Logger.With().Str("component", "httpapi").Logger(),
		metrics:     cfg.Metrics,
		healthPath:  cfg.HealthPath,
		metricsPath: cfg.MetricsPath,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get(s.healthPath, s.handleHealth)
	r.Method(http.MethodGet, s.metricsPath, promhttp.Handler())
	r.Post("/v1/chat/stream", s.handleChatStream)
	r.Post("/v1/catalog/sync", s.handleCatalogSync)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req gateway.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	allowed, used, resetAt, err := s.limiter.Allow(r.Context(), req.UserID, time.Now())
	if err != nil {
		s.logger.Error().Err(err).Msg("rate limit check failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !allowed {
		s.metrics.RateLimitedTotal.Inc()
		w.Header().Set("X-RateLimit-Used", strconv.FormatInt(used, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sw := &sseWriter{w: w, flusher: flusher}
	if err := s.sessions.Run(r.Context(), req, sw); err != nil {
		s.logger.Debug().Err(err).Msg("session ended with error")
	}
}

func (s *Server) handleCatalogSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.sync.Run(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("catalog sync failed")
		writeError(w, http.StatusInternalServerError, "catalog sync failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

// sseWriter renders frames as server-sent events.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseWriter) WriteFrame(f gateway.Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", f.Type, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
