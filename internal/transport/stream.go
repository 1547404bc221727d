package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/cchalm/code-buddy/internal/metrics"
	"github.com/cchalm/code-buddy/internal/protocol"
)

// MaxMessageSize bounds a single encoded message. Attached files travel inline, so this is well above a typical
// source file.
const MaxMessageSize = 16 * 1024 * 1024

// Stream is a Transport over newline-delimited JSON. Writes are serialized; reads happen in Serve.
type Stream struct {
	side string // label for logs and metrics, e.g. "ui" or "backend"
	r    io.Reader
	w    io.Writer

	writeMu sync.Mutex

	handlerMu sync.RWMutex
	handler   Handler
}

var _ Transport = (*Stream)(nil)

// NewStream creates a Stream reading inbound messages from r and writing outbound messages to w
func NewStream(side string, r io.Reader, w io.Writer) *Stream {
	return &Stream{side: side, r: r, w: w}
}

// Pipe returns two connected in-process Streams. Messages sent on one are received by the other.
func Pipe() (ui *Stream, backend *Stream) {
	toBackendR, toBackendW := io.Pipe()
	toUIR, toUIW := io.Pipe()
	ui = NewStream("ui", toUIR, toBackendW)
	backend = NewStream("backend", toBackendR, toUIW)
	return ui, backend
}

// OnReceive implements Transport
func (s *Stream) OnReceive(handler Handler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handler = handler
}

// Send implements Transport
func (s *Stream) Send(ctx context.Context, msg protocol.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.w.Write(b); err != nil {
		return fmt.Errorf("failed to write %s message: %w", msg.Type, err)
	}
	log.Debug().Str("side", s.side).Str("type", string(msg.Type)).Str("id", msg.ID).Msg("Sent message")
	return nil
}

// Serve reads inbound messages and hands each to the handler, in order, until the reader is exhausted or ctx is
// done. Lines that fail to decode or exceed MaxMessageSize, and handlers that panic, are logged and skipped; they
// never stop the loop. A closable reader is closed when ctx is done so that a blocked read returns.
func (s *Stream) Serve(ctx context.Context) error {
	if c, ok := s.r.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = c.Close() })
		defer stop()
	}

	br := bufio.NewReaderSize(s.r, 64*1024)
	for {
		line, err := readLine(br)
		if errors.Is(err, errMessageTooLarge) {
			metrics.MessagesDropped.WithLabelValues(s.side, "too_large").Inc()
			log.Warn().Str("side", s.side).Int("max_bytes", MaxMessageSize).Msg("Dropping oversized message")
			continue
		}
		if line = bytes.TrimSpace(line); len(line) > 0 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			s.handleLine(ctx, line)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
	}
}

func (s *Stream) handleLine(ctx context.Context, line []byte) {
	msg, err := protocol.Decode(line)
	if err != nil {
		metrics.MessagesDropped.WithLabelValues(s.side, "decode").Inc()
		log.Warn().Err(err).Str("side", s.side).Msg("Dropping undecodable message")
		return
	}
	metrics.MessagesReceived.WithLabelValues(s.side, string(msg.Type)).Inc()
	s.dispatch(ctx, msg)
}

var errMessageTooLarge = fmt.Errorf("message exceeds %d bytes", MaxMessageSize)

// readLine returns the next line without its newline. A line longer than MaxMessageSize is consumed up to its
// newline and reported as errMessageTooLarge. The final line may arrive together with io.EOF.
func readLine(br *bufio.Reader) ([]byte, error) {
	var (
		line    []byte
		tooLong bool
	)
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			line = append(line, chunk...)
			if len(line) > MaxMessageSize+1 {
				tooLong, line = true, nil
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if tooLong {
			if err != nil {
				return nil, err
			}
			return nil, errMessageTooLarge
		}
		line = bytes.TrimSuffix(line, []byte{'\n'})
		if len(line) > MaxMessageSize {
			return nil, errMessageTooLarge
		}
		return line, err
	}
}

func (s *Stream) dispatch(ctx context.Context, msg protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			metrics.MessagesDropped.WithLabelValues(s.side, "panic").Inc()
			log.Error().Str("side", s.side).Str("type", string(msg.Type)).Interface("panic", r).Msg("Recovered while handling message")
		}
	}()

	s.handlerMu.RLock()
	handler := s.handler
	s.handlerMu.RUnlock()
	if handler == nil {
		metrics.MessagesDropped.WithLabelValues(s.side, "no_handler").Inc()
		log.Warn().Str("side", s.side).Str("type", string(msg.Type)).Msg("No handler registered, dropping message")
		return
	}
	handler(ctx, msg)
}

// Close closes whichever of the underlying reader and writer are closable. The peer's Serve returns once it
// reads the end of the stream.
func (s *Stream) Close() error {
	var errs []error
	if c, ok := s.w.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := s.r.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
