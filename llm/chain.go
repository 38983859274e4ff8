package llm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/becomeliminal/nim-recall/core"
)

// Defaults applied by NewChain.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4096
)

// Recorder observes completion calls.
type Recorder interface {
	ObserveCompletion(kind string, elapsed time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCompletion(string, time.Duration, error) {}

// Chain renders prompts for the assistant's three tasks and sends them
// through a Completer. Failures come back as an apology string together
// with the underlying error, so callers can show the text and still
// record the failure.
type Chain struct {
	completer   Completer
	temperature float64
	maxTokens   int
	logger      *slog.Logger
	metrics     Recorder
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ChainOption {
	return func(c *Chain) {
		c.temperature = t
	}
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int) ChainOption {
	return func(c *Chain) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the completion recorder.
func WithMetrics(r Recorder) ChainOption {
	return func(c *Chain) {
		if r != nil {
			c.metrics = r
		}
	}
}

// NewChain creates a chain over a completer.
func NewChain(completer Completer, opts ...ChainOption) *Chain {
	c := &Chain{
		completer:   completer,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:     nopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "chain")
	return c
}

// Chat answers input given retrieved context and the conversation so far.
func (c *Chain) Chat(ctx context.Context, input, retrieved string, history []core.Message) (string, error) {
	return c.ChatStream(ctx, input, retrieved, history, nil)
}

// ChatStream is Chat with incremental delivery. A nil onChunk disables
// streaming.
func (c *Chain) ChatStream(ctx context.Context, input, retrieved string, history []core.Message, onChunk func(string)) (string, error) {
	out, err := c.run(ctx, "chat", ChatPrompt(input, retrieved, history), onChunk)
	if err != nil {
		return fmt.Sprintf("I apologize, but I encountered an error: %v", err), err
	}
	return out, nil
}

// Analyze produces insights about content.
func (c *Chain) Analyze(ctx context.Context, content, retrieved string) (string, error) {
	out, err := c.run(ctx, "analysis", AnalysisPrompt(content, retrieved), nil)
	if err != nil {
		return fmt.Sprintf("I apologize, but I encountered an error during analysis: %v", err), err
	}
	return out, nil
}

// Summarize condenses content.
func (c *Chain) Summarize(ctx context.Context, content string) (string, error) {
	out, err := c.run(ctx, "summary", SummaryPrompt(content), nil)
	if err != nil {
		return fmt.Sprintf("I apologize, but I encountered an error during summarization: %v", err), err
	}
	return out, nil
}

// Info describes the chain's configuration.
type Info struct {
	Chains      []string `json:"available_chains"`
	Model       string   `json:"model"`
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
}

// Info reports the available chains and model settings.
func (c *Chain) Info() Info {
	model := "unknown"
	if m, ok := c.completer.(Modeler); ok {
		model = m.Model()
	}
	return Info{
		Chains:      []string{"chat", "analysis", "summary"},
		Model:       model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
}

func (c *Chain) run(ctx context.Context, kind, prompt string, onChunk func(string)) (string, error) {
	req := Request{
		Messages:    []core.Message{{Role: core.RoleUser, Content: prompt}},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	start := time.Now()
	var (
		out string
		err error
	)
	if onChunk != nil {
		out, err = c.completer.Stream(ctx, req, onChunk)
	} else {
		out, err = c.completer.Complete(ctx, req)
	}
	elapsed := time.Since(start)
	c.metrics.ObserveCompletion(kind, elapsed, err)

	if err != nil {
		c.logger.Error("completion failed", "kind", kind, "error", err)
		return "", fmt.Errorf("%s completion: %w", kind, err)
	}
	c.logger.Debug("completion", "kind", kind, "elapsed", elapsed, "chars", len(out))
	return out, nil
}
