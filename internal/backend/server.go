package backend

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cchalm/code-buddy/internal/metrics"
	"github.com/cchalm/code-buddy/internal/prompt"
	"github.com/cchalm/code-buddy/internal/protocol"
	"github.com/cchalm/code-buddy/internal/telemetry"
	"github.com/cchalm/code-buddy/internal/transport"
)

const (
	// FailureText is sent as the response when the model could not be reached
	FailureText = "⚠️ AI Error: Rate limit hit or model unavailable. Try again later."
	// TooLargeText is sent as the response when the prompt exceeds the token budget
	TooLargeText = "⚠️ AI Error: The request is too large. Attach a smaller file or shorten your query."
)

// FilePicker chooses files on behalf of the user. An empty result means nothing was chosen.
type FilePicker interface {
	PickFiles(ctx context.Context, hint string) ([]protocol.File, error)
}

// Server handles the backend side of the message protocol
type Server struct {
	transport       transport.Transport
	responder       Responder
	resolver        prompt.Resolver
	picker          FilePicker
	telemetry       *telemetry.Provider
	maxPromptTokens int
	logger          zerolog.Logger

	wg sync.WaitGroup
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithResolver expands @mentions in queries using r
func WithResolver(r prompt.Resolver) ServerOption {
	return func(s *Server) { s.resolver = r }
}

// WithFilePicker answers pickFile requests using p
func WithFilePicker(p FilePicker) ServerOption {
	return func(s *Server) { s.picker = p }
}

// WithTelemetry records a span for every generation
func WithTelemetry(p *telemetry.Provider) ServerOption {
	return func(s *Server) { s.telemetry = p }
}

// WithMaxPromptTokens refuses prompts estimated above n tokens. Zero disables the check.
func WithMaxPromptTokens(n int) ServerOption {
	return func(s *Server) { s.maxPromptTokens = n }
}

// NewServer creates a Server and registers it as t's inbound handler
func NewServer(t transport.Transport, responder Responder, opts ...ServerOption) *Server {
	s := &Server{
		transport: t,
		responder: responder,
		telemetry: telemetry.Disabled(),
		logger:    log.With().Str("component", "backend").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	t.OnReceive(s.Handle)
	return s
}

// Handle processes one inbound message. User messages are answered asynchronously.
func (s *Server) Handle(ctx context.Context, msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeUserMessage:
		s.wg.Add(1)
		go s.respond(ctx, msg)
	case protocol.TypePickFile:
		s.pick(ctx, msg.Path)
	default:
		metrics.MessagesDropped.WithLabelValues("backend", "unexpected_type").Inc()
		s.logger.Warn().Str("type", string(msg.Type)).Msg("Dropping unexpected message")
	}
}

// Wait blocks until every response in progress has been sent
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) respond(ctx context.Context, msg protocol.Message) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			metrics.MessagesDropped.WithLabelValues("backend", "panic").Inc()
			s.logger.Error().Interface("panic", r).Str("turn_id", msg.ID).Msg("Recovered while generating response")
		}
	}()

	text := s.generate(ctx, msg)
	if err := s.transport.Send(ctx, protocol.AIResponse(msg.ID, text)); err != nil {
		s.logger.Error().Err(err).Str("turn_id", msg.ID).Msg("Failed to send response")
	}
}

// generate returns the text to send back for msg. Failures are reported as response text.
func (s *Server) generate(ctx context.Context, msg protocol.Message) string {
	logger := s.logger.With().Str("turn_id", msg.ID).Logger()

	p, err := prompt.Build(ctx, msg.Text, msg.Files, s.resolver)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to build prompt")
		return FailureText
	}

	tokens, err := prompt.EstimateTokens(p)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to estimate prompt size")
	}
	metrics.PromptTokens.Observe(float64(tokens))
	if s.maxPromptTokens > 0 && tokens > s.maxPromptTokens {
		logger.Warn().Int("tokens", tokens).Int("max", s.maxPromptTokens).Msg("Prompt exceeds token budget")
		return TooLargeText
	}

	ctx, span := s.telemetry.StartGeneration(ctx, telemetry.GenerationTelemetry{
		TurnID:       msg.ID,
		Responder:    s.responder.Name(),
		PromptTokens: tokens,
		FileCount:    len(msg.Files),
	})
	start := time.Now()
	text, err := s.responder.Generate(ctx, p)
	metrics.BackendLatencySeconds.WithLabelValues(s.responder.Name()).Observe(time.Since(start).Seconds())
	telemetry.End(span, err)
	if err != nil {
		metrics.BackendErrorsTotal.WithLabelValues(s.responder.Name()).Inc()
		logger.Error().Err(err).Str("responder", s.responder.Name()).Msg("Failed to generate response")
		return FailureText
	}

	logger.Debug().Int("prompt_tokens", tokens).Dur("elapsed", time.Since(start)).Msg("Generated response")
	return text
}

func (s *Server) pick(ctx context.Context, hint string) {
	if s.picker == nil {
		s.logger.Warn().Msg("No file picker configured, ignoring pick request")
		return
	}
	files, err := s.picker.PickFiles(ctx, hint)
	if err != nil {
		s.logger.Error().Err(err).Str("hint", hint).Msg("Failed to pick file")
		return
	}
	if len(files) == 0 {
		return
	}
	if err := s.transport.Send(ctx, protocol.AttachedFiles(files...)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to send attached files")
	}
}
