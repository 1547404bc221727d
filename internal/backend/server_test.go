package backend

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cchalm/code-buddy/internal/protocol"
	"github.com/cchalm/code-buddy/internal/transport"
)

type fakeTransport struct {
	mu      sync.Mutex
	sent    []protocol.Message
	handler transport.Handler
}

func (f *fakeTransport) Send(_ context.Context, msg protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) OnReceive(handler transport.Handler) {
	f.handler = handler
}

func (f *fakeTransport) messages() []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Message(nil), f.sent...)
}

type fakeResponder struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (f *fakeResponder) Name() string { return "fake" }

func (f *fakeResponder) Generate(_ context.Context, p string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, p)
	return f.reply, f.err
}

type fakeResolver map[string]string

func (f fakeResolver) ResolveMention(_ context.Context, name string) (string, bool, error) {
	content, ok := f[name]
	return content, ok, nil
}

type fakePicker struct {
	files []protocol.File
	err   error
	hints []string
}

func (f *fakePicker) PickFiles(_ context.Context, hint string) ([]protocol.File, error) {
	f.hints = append(f.hints, hint)
	return f.files, f.err
}

func TestServer_AnswersUserMessageWithCorrelatedResponse(t *testing.T) {
	ft := &fakeTransport{}
	responder := &fakeResponder{reply: "hello"}
	s := NewServer(ft, responder, WithResolver(fakeResolver{"util.py": "def f(): pass"}))

	ft.handler(context.Background(), protocol.UserMessage("turn-1", "explain @util.py",
		protocol.File{Filename: "a.py", Content: "x = 1"}))
	s.Wait()

	require.Equal(t, []protocol.Message{protocol.AIResponse("turn-1", "hello")}, ft.messages())
	require.Equal(t, []string{
		"File: a.py\nContent:\nx = 1\n\n" +
			"File: util.py\nContent:\ndef f(): pass\n\n" +
			"User Query:\nexplain @util.py",
	}, responder.prompts)
}

func TestServer_ResponderFailureSendsFailureText(t *testing.T) {
	ft := &fakeTransport{}
	s := NewServer(ft, &fakeResponder{err: errors.New("429 Too Many Requests")})

	ft.handler(context.Background(), protocol.UserMessage("turn-1", "hi"))
	s.Wait()

	require.Equal(t, []protocol.Message{protocol.AIResponse("turn-1", FailureText)}, ft.messages())
}

func TestServer_PromptOverBudgetSkipsResponder(t *testing.T) {
	ft := &fakeTransport{}
	responder := &fakeResponder{reply: "unused"}
	s := NewServer(ft, responder, WithMaxPromptTokens(10))

	ft.handler(context.Background(), protocol.UserMessage("turn-1", strings.Repeat("word ", 100)))
	s.Wait()

	require.Equal(t, []protocol.Message{protocol.AIResponse("turn-1", TooLargeText)}, ft.messages())
	require.Empty(t, responder.prompts)
}

func TestServer_ConcurrentTurnsKeepTheirIDs(t *testing.T) {
	ft := &fakeTransport{}
	s := NewServer(ft, &fakeResponder{reply: "same"})

	ft.handler(context.Background(), protocol.UserMessage("a", "one"))
	ft.handler(context.Background(), protocol.UserMessage("b", "two"))
	s.Wait()

	var ids []string
	for _, msg := range ft.messages() {
		ids = append(ids, msg.ID)
	}
	require.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestServer_PickFileSendsAttachedFiles(t *testing.T) {
	ft := &fakeTransport{}
	picker := &fakePicker{files: []protocol.File{{Filename: "a.py", Content: "x = 1"}}}
	NewServer(ft, &fakeResponder{}, WithFilePicker(picker))

	ft.handler(context.Background(), protocol.PickFile("src/a.py"))

	require.Equal(t, []string{"src/a.py"}, picker.hints)
	require.Equal(t, []protocol.Message{protocol.AttachedFiles(picker.files...)}, ft.messages())
}

func TestServer_PickFileNothingChosen(t *testing.T) {
	for _, picker := range []*fakePicker{{}, {err: errors.New("dialog failed")}} {
		ft := &fakeTransport{}
		NewServer(ft, &fakeResponder{}, WithFilePicker(picker))

		ft.handler(context.Background(), protocol.PickFile(""))

		require.Empty(t, ft.messages())
	}
}

func TestServer_IgnoresUnexpectedMessages(t *testing.T) {
	ft := &fakeTransport{}
	responder := &fakeResponder{}
	s := NewServer(ft, responder)

	ft.handler(context.Background(), protocol.AIResponse("x", "echo"))
	ft.handler(context.Background(), protocol.PickFile("a.py"))
	s.Wait()

	require.Empty(t, ft.messages())
	require.Empty(t, responder.prompts)
}
