// Package transport carries protocol messages between the chat UI and the backend.
package transport

import (
	"context"

	"github.com/cchalm/code-buddy/internal/protocol"
)

// Handler is invoked for each inbound message, one at a time and in arrival order
type Handler func(ctx context.Context, msg protocol.Message)

// Transport is an asynchronous, ordered, bidirectional message channel. It does not correlate requests with
// responses; that is left to the message payloads.
type Transport interface {
	// Send queues msg for delivery to the other side. It does not wait for any reply.
	Send(ctx context.Context, msg protocol.Message) error

	// OnReceive sets the handler for inbound messages, replacing any previous handler
	OnReceive(handler Handler)
}
