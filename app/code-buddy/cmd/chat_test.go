package cmd

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cchalm/code-buddy/internal/protocol"
	"github.com/cchalm/code-buddy/internal/session"
	"github.com/cchalm/code-buddy/internal/transport"
)

type recordingTransport struct {
	mu   sync.Mutex
	sent []protocol.Message
}

func (r *recordingTransport) Send(_ context.Context, msg protocol.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingTransport) OnReceive(transport.Handler) {}

func TestChatLoop_Commands(t *testing.T) {
	rt := &recordingTransport{}
	sess := session.New(rt)
	var out bytes.Buffer
	input := strings.Join([]string{
		"/attach src/a.py",
		"/attach",
		"",
		"explain this",
		"and this",
		"/transcript",
		"/quit",
		"never sent",
	}, "\n")

	err := chatLoop(context.Background(), strings.NewReader(input), &console{out: &out}, sess)

	require.NoError(t, err)
	require.Len(t, rt.sent, 2)
	require.Equal(t, protocol.PickFile("src/a.py"), rt.sent[0])
	require.Equal(t, protocol.TypeUserMessage, rt.sent[1].Type)
	require.Equal(t, "explain this", rt.sent[1].Text)
	require.Contains(t, out.String(), "usage: /attach <path>")
	require.Contains(t, out.String(), "Still waiting for the previous response")
	require.Contains(t, out.String(), "explain this")
	require.Len(t, sess.Turns(), 1)
}
