package snippet

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestExtract_TitledFence(t *testing.T) {
	snippets := Extract("**Fix**\n```js\nconsole.log(1)\n```")

	require.Equal(t, []Snippet{{Title: "Fix", Language: "js", Code: "console.log(1)"}}, snippets)
}

func TestExtract_BareFence(t *testing.T) {
	snippets := Extract("```\nhello\n```")

	require.Equal(t, []Snippet{{Title: "", Language: "plaintext", Code: "hello"}}, snippets)
}

func TestExtract_TitleAppliesToNextSnippetOnly(t *testing.T) {
	text := strings.Join([]string{
		"**Server**",
		"```go",
		"package main",
		"```",
		"Then run the client, which needs no changes:",
		"```bash",
		"go run ./client",
		"```",
	}, "\n")

	snippets := Extract(text)

	require.Len(t, snippets, 2)
	require.Equal(t, "Server", snippets[0].Title)
	require.Equal(t, "go", snippets[0].Language)
	require.Equal(t, "", snippets[1].Title)
	require.Equal(t, "bash", snippets[1].Language)
	require.Equal(t, "go run ./client", snippets[1].Code)
}

func TestExtract_TitleCarriesOverProse(t *testing.T) {
	text := "**Config**\nSome prose about the config.\n\n```yaml\nkey: value\n```"

	snippets := Extract(text)

	require.Len(t, snippets, 1)
	require.Equal(t, "Config", snippets[0].Title)
}

func TestExtract_LatestTitleWins(t *testing.T) {
	text := "**First**\n**Second**\n```\nx\n```"

	snippets := Extract(text)

	require.Len(t, snippets, 1)
	require.Equal(t, "Second", snippets[0].Title)
}

func TestExtract_NoFences(t *testing.T) {
	inputs := []string{
		"",
		"just prose",
		"**Bold title** with no code after it",
		"inline `code` and ``double`` backticks",
		"line one\nline two\n\n**x**\n",
	}
	for _, input := range inputs {
		require.Empty(t, Extract(input), "input: %q", input)
	}
}

func TestExtract_FenceCountAndOrder(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 5; i++ {
		b.WriteString("prose\n```text\n")
		b.WriteString(strings.Repeat("x", i+1))
		b.WriteString("\n```\n")
	}

	snippets := Extract(b.String())

	require.Len(t, snippets, 5)
	for i, s := range snippets {
		require.Equal(t, strings.Repeat("x", i+1), s.Code)
	}
}

func TestExtract_TrimsOuterBlankLinesOnly(t *testing.T) {
	text := "```py\n\n\ndef f():\n\n    return 1\n\n\n```"

	snippets := Extract(text)

	require.Len(t, snippets, 1)
	require.Equal(t, "def f():\n\n    return 1", snippets[0].Code)
}

func TestExtract_UnterminatedFence(t *testing.T) {
	text := "```go\nfunc a() {}\n```\n**Broken**\n```go\nfunc b() {"

	snippets := Extract(text)

	require.Len(t, snippets, 1)
	require.Equal(t, "func a() {}", snippets[0].Code)
}

func TestExtract_LogsDroppedFence(t *testing.T) {
	defer func(l zerolog.Logger) { log.Logger = l }(log.Logger)
	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf)

	Extract("```go\nfunc a() {}\n```")
	require.Zero(t, buf.Len())

	Extract("```go\nfunc b() {")
	require.Contains(t, buf.String(), "Dropping unterminated fence")
	require.Contains(t, buf.String(), `"language":"go"`)
}

func TestExtract_TitleLikeLineInsideFenceIsContent(t *testing.T) {
	text := "```md\n**not a title**\nbody\n```"

	snippets := Extract(text)

	require.Len(t, snippets, 1)
	require.Equal(t, "", snippets[0].Title)
	require.Equal(t, "**not a title**\nbody", snippets[0].Code)
}

func TestExtract_LanguageTagTrimmed(t *testing.T) {
	snippets := Extract("```   typescript  \nlet a = 1\n```")

	require.Len(t, snippets, 1)
	require.Equal(t, "typescript", snippets[0].Language)
}

func TestExtract_CRLF(t *testing.T) {
	snippets := Extract("**Win**\r\n```js\r\na()\r\nb()\r\n```\r\n")

	require.Equal(t, []Snippet{{Title: "Win", Language: "js", Code: "a()\nb()"}}, snippets)
}

func TestExtract_InteriorIndentationPreserved(t *testing.T) {
	snippets := Extract("```go\n\tif x {\n\t\treturn\n\t}\n```")

	require.Len(t, snippets, 1)
	require.Equal(t, "if x {\n\t\treturn\n\t}", snippets[0].Code)
}

func TestFenceExtractor(t *testing.T) {
	var e Extractor = FenceExtractor{}

	require.Len(t, e.Extract("```\na\n```\n```\nb\n```"), 2)
}

func TestSnippetFilename(t *testing.T) {
	require.Equal(t, "fix_the_loop.go", Snippet{Title: "Fix the loop!", Language: "go"}.Filename())
	require.Equal(t, "main.py", Snippet{Title: "main", Language: "python"}.Filename())
	require.Equal(t, "hello.py", Snippet{Title: "hello.py", Language: "python"}.Filename())
	require.Equal(t, "src_app_tsx.tsx", Snippet{Title: "src/app.tsx", Language: "tsx"}.Filename())

	untitled := Snippet{Language: "plaintext", Code: "hello"}.Filename()
	require.True(t, strings.HasPrefix(untitled, "snippet_"))
	require.True(t, strings.HasSuffix(untitled, ".txt"))
	require.Equal(t, untitled, Snippet{Language: "plaintext", Code: "hello"}.Filename())
}
