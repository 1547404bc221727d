package backend_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cchalm/code-buddy/internal/backend"
	"github.com/cchalm/code-buddy/internal/ledger"
	"github.com/cchalm/code-buddy/internal/protocol"
	"github.com/cchalm/code-buddy/internal/session"
	"github.com/cchalm/code-buddy/internal/transport"
	"github.com/cchalm/code-buddy/internal/workspace"
)

// echoResponder answers with a titled snippet quoting the last line of the prompt
type echoResponder struct {
	prompts chan string
}

func (echoResponder) Name() string { return "echo" }

func (e echoResponder) Generate(_ context.Context, p string) (string, error) {
	e.prompts <- p
	lines := strings.Split(p, "\n")
	return "**echo.txt**\n```text\n" + lines[len(lines)-1] + "\n```", nil
}

func TestSessionAndServerOverPipe(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("x = 1"), 0644))
	ws, err := workspace.New(root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	uiSide, backendSide := transport.Pipe()
	defer uiSide.Close()
	defer backendSide.Close()

	responder := echoResponder{prompts: make(chan string, 4)}
	server := backend.NewServer(backendSide, responder,
		backend.WithResolver(ws),
		backend.WithFilePicker(workspace.NewPicker(ws)),
	)

	settled := make(chan ledger.Turn, 4)
	attached := make(chan protocol.File, 4)
	sess := session.New(uiSide,
		session.WithSettledHandler(func(turn ledger.Turn) { settled <- turn }),
		session.WithAttachedHandler(func(f protocol.File) { attached <- f }),
	)
	go func() { _ = uiSide.Serve(ctx) }()
	go func() { _ = backendSide.Serve(ctx) }()

	require.NoError(t, sess.PickFile(ctx, "a.py"))
	select {
	case f := <-attached:
		require.Equal(t, protocol.File{Filename: "a.py", Content: "x = 1"}, f)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for attachment")
	}

	id, err := sess.Send(ctx, "what is x?")
	require.NoError(t, err)

	select {
	case turn := <-settled:
		require.Equal(t, id, turn.ID)
		require.Equal(t, "what is x?", turn.UserQuery)
		require.Len(t, turn.CodeSnippets, 1)
		require.Equal(t, "echo.txt", turn.CodeSnippets[0].Title)
		require.Equal(t, "what is x?", turn.CodeSnippets[0].Code)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for response")
	}
	require.Equal(t, "File: a.py\nContent:\nx = 1\n\nUser Query:\nwhat is x?", <-responder.prompts)

	server.Wait()
	_, inFlight := sess.InFlight()
	require.False(t, inFlight)
	_, staged := sess.Attached()
	require.False(t, staged)
}
