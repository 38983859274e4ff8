// Package anthropic implements llm.Completer on the Claude Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/becomeliminal/nim-recall/core"
	"github.com/becomeliminal/nim-recall/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-20250514"

// Options configure the completer.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string

	// MaxTokens applies when a request leaves it unset. Default: 4096.
	MaxTokens int64
}

// Completer calls the Messages API.
type Completer struct {
	client *anthropic.Client
	opts   Options
}

// New creates a completer using the official client.
func New(optFns ...func(o *Options)) *Completer {
	opts := defaultOptions()
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
	client := anthropic.NewClient(clientOpts...)
	return &Completer{client: &client, opts: opts}
}

// NewFromClient creates a completer around an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Completer {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Completer{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{Model: DefaultModel, MaxTokens: 4096}
}

// Model implements llm.Modeler.
func (c *Completer) Model() string {
	return c.opts.Model
}

// Complete implements llm.Completer.
func (c *Completer) Complete(ctx context.Context, req llm.Request) (string, error) {
	resp, err := c.client.Messages.New(ctx, c.params(req))
	if err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

// Stream implements llm.Completer.
func (c *Completer) Stream(ctx context.Context, req llm.Request, onChunk func(string)) (string, error) {
	stream := c.client.Messages.NewStreaming(ctx, c.params(req))
	defer stream.Close()

	var b strings.Builder
	for stream.Next() {
		event := stream.Current()
		switch evt := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				b.WriteString(delta.Text)
				onChunk(delta.Text)
			}
		case anthropic.MessageStopEvent:
			// Stream complete
		}
	}

	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}
	return b.String(), nil
}

func (c *Completer) params(req llm.Request) anthropic.MessageNewParams {
	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = c.opts.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.opts.Model),
		MaxTokens:   maxTokens,
		Messages:    buildMessages(req.Messages),
		Temperature: anthropic.Float(req.Temperature),
	}

	system := req.System
	for _, m := range req.Messages {
		if m.Role == core.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		}
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

// buildMessages converts conversation messages; system messages travel in
// the System field instead.
func buildMessages(msgs []core.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case core.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case core.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}
