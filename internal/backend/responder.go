// Package backend answers user messages on behalf of the chat UI: it expands attachments and mentioned files into
// a prompt, asks a model for a response and sends the response back under the turn's correlation id.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"

	"github.com/cchalm/code-buddy/internal/prompt"
)

// Responder produces the model's answer to a fully assembled prompt
type Responder interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// AnthropicResponder streams a response from the Anthropic Messages API
type AnthropicResponder struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicResponder creates a responder for model. opts are passed to the underlying client.
func NewAnthropicResponder(model string, maxTokens int64, opts ...option.RequestOption) *AnthropicResponder {
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_0)
	}
	return &AnthropicResponder{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
	}
}

func (ar *AnthropicResponder) Name() string {
	return "anthropic"
}

func (ar *AnthropicResponder) Generate(ctx context.Context, p string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     ar.model,
		MaxTokens: ar.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: prompt.SystemPrompt()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p)),
		},
	}

	stream := ar.client.Messages.NewStreaming(ctx, params)
	response := anthropic.Message{}
	for stream.Next() {
		if err := response.Accumulate(stream.Current()); err != nil {
			return "", fmt.Errorf("failed to accumulate response content stream: %w", err)
		}
	}
	if stream.Err() != nil {
		return "", fmt.Errorf("failed to stream response: %w", stream.Err())
	}
	if response.StopReason == "" {
		return "", fmt.Errorf("malformed message: stream ended without a stop reason")
	}

	var text strings.Builder
	for _, block := range response.Content {
		if content, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(content.Text)
		}
	}
	return text.String(), nil
}

// OpenAIResponder asks an OpenAI-compatible chat completions endpoint for a response
type OpenAIResponder struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIResponder creates a responder for model. baseURL may be empty to use the OpenAI API. httpClient may be
// nil to use http.DefaultClient.
func NewOpenAIResponder(apiKey, baseURL, model string, maxTokens int, httpClient *http.Client) *OpenAIResponder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIResponder{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (o *OpenAIResponder) Name() string {
	return "openai"
}

func (o *OpenAIResponder) Generate(ctx context.Context, p string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:     o.model,
		MaxTokens: o.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.SystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: p},
		},
	}
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from OpenAI API")
	}
	return resp.Choices[0].Message.Content, nil
}
