// Package prompt assembles the text sent to the model from a user query, its attached files and the
// workspace files the query mentions.
package prompt

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"

	"github.com/cchalm/code-buddy/internal/protocol"
)

//go:embed prompt_template.tmpl
var promptTemplate string

//go:embed system_prompt.md
var systemPrompt string

var (
	tmpl = template.Must(template.New("prompt").Parse(strings.TrimSuffix(promptTemplate, "\n")))

	mentionPattern = regexp.MustCompile(`@(\S+\.\w+)`)
)

// SystemPrompt returns the instructions given to the model ahead of every prompt
func SystemPrompt() string {
	return systemPrompt
}

// Resolver looks up the content of a file mentioned in a query. ok is false when no such file exists.
type Resolver interface {
	ResolveMention(ctx context.Context, name string) (content string, ok bool, err error)
}

// ScanMentions returns the names referenced as @name.ext in query, first to last. Duplicates are kept.
func ScanMentions(query string) []string {
	matches := mentionPattern.FindAllStringSubmatch(query, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

type promptData struct {
	Files []protocol.File
	Query string
}

// Build returns the prompt for query: attached files first, then each mentioned file that resolver can find,
// then the query itself. resolver may be nil, in which case mentions are left unexpanded.
func Build(ctx context.Context, query string, attached []protocol.File, resolver Resolver) (string, error) {
	files := make([]protocol.File, 0, len(attached))
	files = append(files, attached...)

	if resolver != nil {
		for _, name := range ScanMentions(query) {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			content, ok, err := resolver.ResolveMention(ctx, name)
			if err != nil {
				log.Warn().Err(err).Str("mention", name).Msg("Failed to resolve mentioned file")
				continue
			}
			if !ok {
				log.Debug().Str("mention", name).Msg("Mentioned file not found")
				continue
			}
			files = append(files, protocol.File{Filename: name, Content: content})
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, promptData{Files: files, Query: query}); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}

var (
	codec     tokenizer.Codec
	codecOnce sync.Once
	codecErr  error
)

func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// EstimateTokens returns an approximate token count for text using the cl100k_base encoding
func EstimateTokens(text string) (int, error) {
	c, err := getCodec()
	if err != nil {
		return 0, err
	}

	ids, _, err := c.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
