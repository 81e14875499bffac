package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"modelgate/internal/knowledge"
	"modelgate/internal/metrics"
	"modelgate/internal/providers"
	"modelgate/internal/storage"
	"modelgate/internal/telemetry"
)

// Session states. A session only moves forward: INITIATED -> METADATA_SENT ->
// STREAMING -> COMPLETED, with ERRORED reachable from any state.
const (
	StateInitiated    = "INITIATED"
	StateMetadataSent = "METADATA_SENT"
	StateStreaming    = "STREAMING"
	StateCompleted    = "COMPLETED"
	StateErrored      = "ERRORED"
)

const apologyText = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

// Request is a single chat turn from a client.
type Request struct {
	ChatbotID        *int64 `json:"chatbot_id"`
	Message          string `json:"message"`
	ConversationID   string `json:"conversation_id"`
	UserID           string `json:"user_id"`
	UseKnowledgeBase bool   `json:"use_knowledge_base"`
}

type TranscriptStore interface {
	EnsureConversation(ctx context.Context, conv storage.Conversation) error
	InsertMessage(ctx context.Context, msg storage.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]storage.Message, error)
}

// Service drives one streaming chat session end to end: resolve providers,
// inject knowledge, stream frames, persist the transcript, record usage.
type Service struct {
	store        TranscriptStore
	resolver     *Resolver
	injector     *knowledge.Injector
	orchestrator *Orchestrator
	recorder     *telemetry.Recorder
	logger       zerolog.Logger
	metrics      *metrics.Metrics
}

type ServiceConfig struct {
	Store        TranscriptStore
	Resolver     *Resolver
	Injector     *knowledge.Injector
	Orchestrator *Orchestrator
	Recorder     *telemetry.Recorder
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
}

func NewService(cfg ServiceConfig) *Service {
	return &Service{
		store:        cfg.Store,
		resolver:     cfg.Resolver,
		injector:     cfg.Injector,
		orchestrator: cfg.Orchestrator,
		recorder:     cfg.Recorder,
		logger:       cfg.Logger.With().Str("component", "session").Logger(),
		metrics:      cfg.Metrics,
	}
}

// Run executes one session against w. The metadata frame always precedes any
// content; exactly one done frame terminates the stream. A client disconnect
// mid-stream writes no further frames but still persists whatever partial
// transcript accumulated.
func (s *Service) Run(ctx context.Context, req Request, w FrameWriter) error {
	startedAt := time.Now()
	sessionID := uuid.NewString()
	state := StateInitiated

	logger := s.logger.With().
		Str("session_id", sessionID).
		Str("user_id", req.UserID).
		Logger()

	cfg, err := s.resolver.Resolve(ctx, req.ChatbotID)
	if err != nil {
		logger.Error().Err(err).Msg("resolve failed")
		return s.fail(ctx, startedAt, req, w, Outcome{}, state, err)
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	if err := s.store.EnsureConversation(ctx, storage.Conversation{
		ID:        conversationID,
		ChatbotID: cfg.ChatbotID,
		UserID:    req.UserID,
	}); err != nil {
		logger.Error().Err(err).Msg("ensure conversation failed")
		return s.fail(ctx, startedAt, req, w, Outcome{}, state, err)
	}

	prompt, sources := s.injector.Augment(ctx, req.Message, req.UseKnowledgeBase)

	history, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		logger.Warn().Err(err).Msg("history load failed, continuing without it")
		history = nil
	}
	chatReq := providers.ChatRequest{
		Model:            cfg.Model,
		SystemPrompt:     cfg.SystemPrompt,
		MaxTokens:        cfg.Params.MaxTokens,
		Temperature:      cfg.Params.Temperature,
		TopP:             cfg.Params.TopP,
		FrequencyPenalty: cfg.Params.FrequencyPenalty,
		PresencePenalty:  cfg.Params.PresencePenalty,
	}
	for _, m := range history {
		chatReq.Messages = append(chatReq.Messages, providers.Message{Role: m.Role, Content: m.Content})
	}
	chatReq.Messages = append(chatReq.Messages, providers.Message{Role: "user", Content: prompt})

	if err := s.writeFrame(w, Frame{
		Type:           FrameMetadata,
		Provider:       cfg.Primary.Name,
		Model:          cfg.Model,
		ConversationID: conversationID,
		Sources:        sources,
	}); err != nil {
		return s.persistDisconnect(startedAt, req, conversationID, cfg, "", 0)
	}
	state = StateMetadataSent

	var buf strings.Builder
	streamErr := error(nil)
	outcome, runErr := s.orchestrator.Run(ctx, startedAt, cfg, chatReq,
		func(text string) {
			state = StateStreaming
			if streamErr != nil {
				return
			}
			if err := s.writeFrame(w, Frame{Type: FrameContent, Text: text}); err != nil {
				streamErr = err
				return
			}
			buf.WriteString(text)
		},
		func(message string) {
			// The fallback restarts generation, so partial primary output
			// is discarded.
			buf.Reset()
			if streamErr == nil {
				if err := s.writeFrame(w, Frame{Type: FrameFailover, Message: message}); err != nil {
					streamErr = err
				}
			}
		},
	)

	if ctx.Err() != nil || streamErr != nil {
		logger.Info().Msg("client disconnected mid-session")
		return s.persistDisconnect(startedAt, req, conversationID, cfg, buf.String(), outcome.FailoverCount)
	}
	if runErr != nil {
		logger.Error().Err(runErr).Str("provider", outcome.ProviderName).Msg("all providers failed")
		out := outcome
		out.Model = cfg.Model
		return s.failWithConversation(ctx, startedAt, req, w, out, conversationID, state, runErr)
	}

	state = StateCompleted
	if err := s.writeFrame(w, Frame{Type: FrameDone}); err != nil {
		return s.persistDisconnect(startedAt, req, conversationID, cfg, buf.String(), outcome.FailoverCount)
	}

	s.metrics.SessionsTotal.WithLabelValues("completed").Inc()
	s.persistTurn(ctx, req, conversationID, outcome, buf.String())
	s.recorder.Record(storage.UsageRecord{
		ChatbotID:     req.ChatbotID,
		ProviderID:    outcome.ProviderID,
		Model:         cfg.Model,
		LatencyMS:     time.Since(startedAt).Milliseconds(),
		Success:       true,
		TokenEstimate: estimateTokens(buf.String()),
	})
	logger.Info().
		Str("provider", outcome.ProviderName).
		Int("failovers", outcome.FailoverCount).
		Dur("latency", time.Since(startedAt)).
		Msg("session completed")
	return nil
}

func (s *Service) writeFrame(w FrameWriter, f Frame) error {
	if err := w.WriteFrame(f); err != nil {
		return err
	}
	s.metrics.FramesTotal.WithLabelValues(string(f.Type)).Inc()
	return nil
}

// fail handles errors before a conversation exists: error frame, done frame,
// usage record.
func (s *Service) fail(ctx context.Context, startedAt time.Time, req Request, w FrameWriter, outcome Outcome, state string, cause error) error {
	s.metrics.SessionsTotal.WithLabelValues("errored").Inc()
	_ = s.writeFrame(w, Frame{Type: FrameError, Message: apologyText})
	_ = s.writeFrame(w, Frame{Type: FrameDone})
	s.recorder.Record(storage.UsageRecord{
		ChatbotID:  req.ChatbotID,
		ProviderID: outcome.ProviderID,
		Model:      outcome.Model,
		LatencyMS:  time.Since(startedAt).Milliseconds(),
		Success:    false,
		Error:      cause.Error(),
	})
	return cause
}

// failWithConversation additionally persists the user turn and an apology
// assistant turn so the transcript reflects what the client saw.
func (s *Service) failWithConversation(ctx context.Context, startedAt time.Time, req Request, w FrameWriter, outcome Outcome, conversationID, state string, cause error) error {
	err := s.fail(ctx, startedAt, req, w, outcome, state, cause)
	s.persistTurn(ctx, req, conversationID, outcome, apologyText)
	return err
}

// persistDisconnect stores the partial transcript after the client went away.
// The request context is already dead, so writes run on a fresh one.
func (s *Service) persistDisconnect(startedAt time.Time, req Request, conversationID string, cfg ResolvedConfig, partial string, failovers int) error {
	s.metrics.SessionsTotal.WithLabelValues("disconnected").Inc()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	outcome := Outcome{ProviderID: cfg.Primary.ID, ProviderName: cfg.Primary.Name, Model: cfg.Model, FailoverCount: failovers}
	s.persistTurn(ctx, req, conversationID, outcome, partial)
	s.recorder.Record(storage.UsageRecord{
		ChatbotID:     req.ChatbotID,
		ProviderID:    cfg.Primary.ID,
		Model:         cfg.Model,
		LatencyMS:     time.Since(startedAt).Milliseconds(),
		Success:       false,
		Error:         "client disconnected",
		TokenEstimate: estimateTokens(partial),
	})
	return context.Canceled
}

func (s *Service) persistTurn(ctx context.Context, req Request, conversationID string, outcome Outcome, assistantText string) {
	if err := s.store.InsertMessage(ctx, storage.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           "user",
		Content:        req.Message,
	}); err != nil {
		s.logger.Error().Err(err).Msg("persist user message failed")
		return
	}
	if assistantText == "" {
		return
	}
	meta, _ := json.Marshal(map[string]any{
		"provider":       outcome.ProviderName,
		"model":          outcome.Model,
		"failover_count": outcome.FailoverCount,
	})
	if err := s.store.InsertMessage(ctx, storage.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           "assistant",
		Content:        assistantText,
		MetaJSON:       string(meta),
	}); err != nil {
		s.logger.Error().Err(err).Msg("persist assistant message failed")
	}
}

// estimateTokens is a rough characters-over-four heuristic, good enough for
// usage trend dashboards.
func estimateTokens(text string) int {
	return len(text) / 4
}
