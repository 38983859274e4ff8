// Package openai implements llm.Completer on the OpenAI chat completions
// API and compatible providers such as Groq.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/becomeliminal/nim-recall/core"
	"github.com/becomeliminal/nim-recall/llm"
)

// Provider endpoints and default models.
const (
	GroqBaseURL      = "https://api.groq.com/openai/v1/"
	DefaultGroqModel = "llama3-8b-8192"
	DefaultModel     = openai.ChatModelGPT4oMini
)

// Options configure the completer.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string

	// MaxTokens applies when a request leaves it unset. Default: 4096.
	MaxTokens int64
}

// Completer calls the chat completions endpoint.
type Completer struct {
	client *openai.Client
	opts   Options
}

// New creates a completer.
func New(optFns ...func(o *Options)) *Completer {
	opts := Options{Model: DefaultModel, MaxTokens: 4096}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(clientOpts...)
	return &Completer{client: &client, opts: opts}
}

// NewGroq creates a completer against Groq's OpenAI-compatible endpoint.
func NewGroq(apiKey, model string) *Completer {
	if model == "" {
		model = DefaultGroqModel
	}
	return New(func(o *Options) {
		o.APIKey = apiKey
		o.BaseURL = GroqBaseURL
		o.Model = model
	})
}

// Model implements llm.Modeler.
func (c *Completer) Model() string {
	return c.opts.Model
}

// Complete implements llm.Completer.
func (c *Completer) Complete(ctx context.Context, req llm.Request) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.params(req))
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai API error: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream implements llm.Completer.
func (c *Completer) Stream(ctx context.Context, req llm.Request, onChunk func(string)) (string, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(req))
	defer stream.Close()

	var b strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if text := chunk.Choices[0].Delta.Content; text != "" {
			b.WriteString(text)
			onChunk(text)
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}
	return b.String(), nil
}

func (c *Completer) params(req llm.Request) openai.ChatCompletionNewParams {
	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = c.opts.MaxTokens
	}
	return openai.ChatCompletionNewParams{
		Model:               c.opts.Model,
		Messages:            buildMessages(req),
		Temperature:         openai.Float(req.Temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
}

func buildMessages(req llm.Request) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case core.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case core.RoleUser:
			msgs = append(msgs, openai.UserMessage(m.Content))
		case core.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		}
	}
	return msgs
}
