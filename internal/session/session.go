// Package session is the UI side of a chat: it sends user queries, tracks their turns in a ledger, stages
// attachments and reconciles responses as they arrive.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/cchalm/code-buddy/internal/attachment"
	"github.com/cchalm/code-buddy/internal/ledger"
	"github.com/cchalm/code-buddy/internal/metrics"
	"github.com/cchalm/code-buddy/internal/protocol"
	"github.com/cchalm/code-buddy/internal/telemetry"
	"github.com/cchalm/code-buddy/internal/transport"
)

// SendFailureText is recorded as the response of a turn whose message never reached the backend
const SendFailureText = "⚠️ Failed to reach the backend. Try again."

var (
	ErrEmptyQuery   = errors.New("query is empty")
	ErrTurnInFlight = errors.New("a turn is already waiting for a response")
)

// Session drives one conversation. At most one turn is in flight at a time.
type Session struct {
	transport   transport.Transport
	ledger      *ledger.Ledger
	attachments *attachment.Cache
	telemetry   *telemetry.Provider
	onSettled   func(ledger.Turn)
	onAttached  func(protocol.File)
	logger      zerolog.Logger

	mu       sync.Mutex
	inFlight string // id of the turn awaiting a response, if any
	spans    map[string]trace.Span
}

// Option configures a Session
type Option func(*Session)

// WithSettledHandler registers fn to be called whenever a turn receives its response
func WithSettledHandler(fn func(ledger.Turn)) Option {
	return func(s *Session) { s.onSettled = fn }
}

// WithAttachedHandler registers fn to be called whenever a file is staged
func WithAttachedHandler(fn func(protocol.File)) Option {
	return func(s *Session) { s.onAttached = fn }
}

// WithTelemetry records a span for every turn
func WithTelemetry(p *telemetry.Provider) Option {
	return func(s *Session) { s.telemetry = p }
}

// WithLedger uses l instead of a fresh ledger
func WithLedger(l *ledger.Ledger) Option {
	return func(s *Session) { s.ledger = l }
}

// WithAttachments uses c instead of a fresh attachment cache
func WithAttachments(c *attachment.Cache) Option {
	return func(s *Session) { s.attachments = c }
}

// New creates a Session and registers it as t's inbound handler
func New(t transport.Transport, opts ...Option) *Session {
	s := &Session{
		transport:   t,
		ledger:      ledger.New(),
		attachments: attachment.NewCache(),
		telemetry:   telemetry.Disabled(),
		onSettled:   func(ledger.Turn) {},
		onAttached:  func(protocol.File) {},
		logger:      log.With().Str("component", "session").Logger(),
		spans:       map[string]trace.Span{},
	}
	for _, opt := range opts {
		opt(s)
	}
	t.OnReceive(s.handle)
	return s
}

// Send begins a turn for text and sends it, along with any staged attachment, to the backend. It returns the
// turn's correlation id without waiting for the response. The attachment is consumed even if sending fails.
func (s *Session) Send(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		metrics.SendsRejected.WithLabelValues("empty").Inc()
		return "", ErrEmptyQuery
	}

	s.mu.Lock()
	if s.inFlight != "" {
		pending := s.inFlight
		s.mu.Unlock()
		metrics.SendsRejected.WithLabelValues("in_flight").Inc()
		return "", fmt.Errorf("%w: %s", ErrTurnInFlight, pending)
	}
	id := s.ledger.BeginTurn(text)
	s.inFlight = id

	var files []protocol.File
	file, attached := s.attachments.ConsumeForSend()
	if attached {
		files = append(files, file)
	}
	_, span := s.telemetry.StartTurn(ctx, telemetry.TurnTelemetry{
		TurnID:      id,
		TurnIndex:   s.ledger.Len() - 1,
		QueryLength: len(text),
		Attachment:  file.Filename,
	})
	s.spans[id] = span
	s.mu.Unlock()

	metrics.TurnsStarted.Inc()
	s.logger.Debug().Str("turn_id", id).Bool("attachment", attached).Msg("Sending user message")

	if err := s.transport.Send(ctx, protocol.UserMessage(id, text, files...)); err != nil {
		s.logger.Error().Err(err).Str("turn_id", id).Msg("Failed to send user message")
		if turn, settleErr := s.ledger.Settle(id, SendFailureText); settleErr == nil {
			s.finish(turn, "send_failure", err)
		}
		return id, fmt.Errorf("failed to send user message: %w", err)
	}
	return id, nil
}

// PickFile asks the host to choose a file. The result arrives later as an attachedFiles message. hint may name a
// path for hosts without a dialog.
func (s *Session) PickFile(ctx context.Context, hint string) error {
	if err := s.transport.Send(ctx, protocol.PickFile(hint)); err != nil {
		return fmt.Errorf("failed to request file pick: %w", err)
	}
	return nil
}

// Attach stages file for the next send as if the host had picked it
func (s *Session) Attach(file protocol.File) {
	s.attachments.Attach(file)
	s.onAttached(file)
}

func (s *Session) handle(_ context.Context, msg protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			metrics.MessagesDropped.WithLabelValues("ui", "panic").Inc()
			s.logger.Error().Interface("panic", r).Str("type", string(msg.Type)).Msg("Recovered while handling message")
		}
	}()

	switch msg.Type {
	case protocol.TypeAttachedFiles:
		if len(msg.Files) == 0 {
			s.logger.Debug().Msg("Host attached no files")
			return
		}
		if len(msg.Files) > 1 {
			s.logger.Warn().Int("count", len(msg.Files)).Msg("Host attached several files, keeping only the first")
		}
		s.Attach(msg.Files[0])
	case protocol.TypeAIResponse:
		s.handleResponse(msg)
	default:
		metrics.MessagesDropped.WithLabelValues("ui", "unexpected_type").Inc()
		s.logger.Warn().Str("type", string(msg.Type)).Msg("Dropping unexpected message")
	}
}

func (s *Session) handleResponse(msg protocol.Message) {
	if msg.ID == "" {
		turn, ok := s.ledger.SettleLatest(msg.Text)
		if !ok {
			metrics.MessagesDropped.WithLabelValues("ui", "no_turn").Inc()
			s.logger.Warn().Msg("Dropping uncorrelated response with no pending turn")
			return
		}
		s.logger.Debug().Str("turn_id", turn.ID).Msg("Settled latest turn from uncorrelated response")
		s.finish(turn, "positional", nil)
		return
	}

	turn, err := s.ledger.Settle(msg.ID, msg.Text)
	if err != nil {
		metrics.MessagesDropped.WithLabelValues("ui", "uncorrelated").Inc()
		s.logger.Warn().Err(err).Msg("Dropping response")
		return
	}
	s.finish(turn, "id", nil)
}

// finish clears the in-flight flag if turn held it, closes the turn's span and notifies the settled handler
func (s *Session) finish(turn ledger.Turn, correlation string, err error) {
	s.mu.Lock()
	if s.inFlight == turn.ID {
		s.inFlight = ""
	}
	span, ok := s.spans[turn.ID]
	delete(s.spans, turn.ID)
	s.mu.Unlock()

	if ok {
		telemetry.End(span, err)
	}
	metrics.TurnsSettled.WithLabelValues(correlation).Inc()
	metrics.SnippetsExtracted.Add(float64(len(turn.CodeSnippets)))
	s.onSettled(turn)
}

// Turns returns a copy of the conversation so far
func (s *Session) Turns() []ledger.Turn {
	return s.ledger.Turns()
}

// Ledger returns the session's ledger
func (s *Session) Ledger() *ledger.Ledger {
	return s.ledger
}

// InFlight returns the id of the turn awaiting a response, if any
func (s *Session) InFlight() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight, s.inFlight != ""
}

// Attached returns the file staged for the next send, if any
func (s *Session) Attached() (protocol.File, bool) {
	return s.attachments.Peek()
}
