package prompt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cchalm/code-buddy/internal/protocol"
)

type mapResolver struct {
	files map[string]string
	errs  map[string]error
	calls []string
}

func (r *mapResolver) ResolveMention(_ context.Context, name string) (string, bool, error) {
	r.calls = append(r.calls, name)
	if err, ok := r.errs[name]; ok {
		return "", false, err
	}
	content, ok := r.files[name]
	return content, ok, nil
}

func TestScanMentions(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"none", "explain closures", []string{}},
		{"single", "what does @main.go do", []string{"main.go"}},
		{"path", "compare @src/a.ts and @lib/b.py", []string{"src/a.ts", "lib/b.py"}},
		{"trailing punctuation", "look at @util.js, please", []string{"util.js"}},
		{"no extension", "ping @alice about it", []string{}},
		{"duplicates kept", "@x.go vs @x.go", []string{"x.go", "x.go"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ScanMentions(tt.query))
		})
	}
}

func TestBuild_NoFiles(t *testing.T) {
	got, err := Build(context.Background(), "hello", nil, nil)

	require.NoError(t, err)
	require.Equal(t, "User Query:\nhello", got)
}

func TestBuild_AttachedThenMentionsThenQuery(t *testing.T) {
	resolver := &mapResolver{files: map[string]string{"util.py": "def f(): pass"}}
	attached := []protocol.File{{Filename: "a.py", Content: "x = 1"}}

	got, err := Build(context.Background(), "compare with @util.py", attached, resolver)

	require.NoError(t, err)
	require.Equal(t,
		"File: a.py\nContent:\nx = 1\n\n"+
			"File: util.py\nContent:\ndef f(): pass\n\n"+
			"User Query:\ncompare with @util.py",
		got)
}

func TestBuild_UnresolvedAndFailedMentionsContributeNothing(t *testing.T) {
	resolver := &mapResolver{
		files: map[string]string{"b.go": "package b"},
		errs:  map[string]error{"c.go": errors.New("permission denied")},
	}

	got, err := Build(context.Background(), "@a.go @b.go @c.go", nil, resolver)

	require.NoError(t, err)
	require.Equal(t, "File: b.go\nContent:\npackage b\n\nUser Query:\n@a.go @b.go @c.go", got)
	require.Equal(t, []string{"a.go", "b.go", "c.go"}, resolver.calls)
}

func TestBuild_QueryKeepsTrailingNewline(t *testing.T) {
	got, err := Build(context.Background(), "line\n", nil, nil)

	require.NoError(t, err)
	require.Equal(t, "User Query:\nline\n", got)
}

func TestBuild_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, "see @a.go", nil, &mapResolver{})

	require.ErrorIs(t, err, context.Canceled)
}

func TestEstimateTokens(t *testing.T) {
	empty, err := EstimateTokens("")
	require.NoError(t, err)
	require.Zero(t, empty)

	short, err := EstimateTokens("hello world")
	require.NoError(t, err)
	require.Positive(t, short)

	long, err := EstimateTokens("hello world hello world hello world hello world")
	require.NoError(t, err)
	require.Greater(t, long, short)
}

func TestSystemPrompt(t *testing.T) {
	require.Contains(t, SystemPrompt(), "fenced block")
}
