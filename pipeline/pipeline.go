// Package pipeline runs one conversational turn: read the user's message,
// retrieve memories, score their quality, generate a reply and remember
// the exchange.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/becomeliminal/nim-recall/core"
	"github.com/becomeliminal/nim-recall/history"
	"github.com/becomeliminal/nim-recall/llm"
	"github.com/becomeliminal/nim-recall/memory"
)

// ErrEmptyMessage is returned by Run when there is nothing to answer.
var ErrEmptyMessage = errors.New("user message is empty")

// FailureResponse is shown when a turn cannot run at all.
const FailureResponse = "I apologize, but I encountered an error processing your request."

// historyLoadLimit bounds how much stored history is loaded per turn.
const historyLoadLimit = 2 * llm.HistoryWindow

// Recorder observes pipeline steps.
type Recorder interface {
	ObserveStep(step string, elapsed time.Duration, err error)
	ObserveQuality(score float64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStep(string, time.Duration, error) {}
func (nopRecorder) ObserveQuality(float64)                    {}

// Config tunes retrieval for each turn.
type Config struct {
	// ContextTokenBudget is the token budget for the memory block.
	ContextTokenBudget int

	// ContextCandidates is how many ranked memories the block considers.
	ContextCandidates int

	// QualityResults and QualityMinImportance drive the raw search used
	// for the quality score.
	QualityResults       int
	QualityMinImportance float64
}

// DefaultConfig returns the standard retrieval settings.
func DefaultConfig() Config {
	return Config{
		ContextTokenBudget:   600,
		ContextCandidates:    8,
		QualityResults:       8,
		QualityMinImportance: 0.3,
	}
}

// Pipeline runs turns against a memory manager and a prompt chain.
type Pipeline struct {
	memory  *memory.Manager
	chain   *llm.Chain
	config  Config
	history history.Store
	logger  *slog.Logger
	metrics Recorder
	steps   []step
}

// Option configures the pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics sets the step recorder.
func WithMetrics(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.metrics = r
		}
	}
}

// WithHistory persists each turn's messages and loads prior history when
// the caller supplies none.
func WithHistory(s history.Store) Option {
	return func(p *Pipeline) {
		p.history = s
	}
}

// New creates a pipeline.
func New(mgr *memory.Manager, chain *llm.Chain, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		memory:  mgr,
		chain:   chain,
		config:  cfg,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: nopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pipeline")
	p.steps = []step{
		{name: "input_processor", run: p.processInput},
		{name: "memory_retriever", run: p.retrieveMemory},
		{name: "context_analyzer", run: p.analyzeContext},
		{name: "response_generator", run: p.generateResponse},
		{name: "memory_updater", run: p.updateMemory},
		{name: "output_formatter", run: p.formatOutput},
	}
	return p
}

// Steps lists the step names in execution order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.name
	}
	return names
}

// Input is a single user turn.
type Input struct {
	// ConversationID groups turns. Optional.
	ConversationID string

	// UserMessage is the user's message to process.
	UserMessage string

	// History contains previous messages in the conversation. When nil and
	// a history store is configured, recent stored history is used.
	History []core.Message

	// StreamCallback receives response chunks as they arrive. Optional.
	StreamCallback func(chunk string)
}

// Run executes every step in order. Step failures do not stop the turn;
// they are collected on Turn.Errors. The returned error is non-nil only
// when the turn could not start.
func (p *Pipeline) Run(ctx context.Context, input *Input) (*Turn, error) {
	if input == nil || input.UserMessage == "" {
		return nil, ErrEmptyMessage
	}

	t := Turn{
		ID:             uuid.New().String(),
		ConversationID: input.ConversationID,
		UserInput:      input.UserMessage,
		Step:           "started",
	}

	prior := input.History
	if prior == nil && p.history != nil && input.ConversationID != "" {
		loaded, err := p.history.Recent(ctx, input.ConversationID, historyLoadLimit)
		if err != nil {
			t.Errors = append(t.Errors, fmt.Errorf("load history: %w", err))
		}
		prior = loaded
	}
	user := core.NewUserMessage(input.UserMessage)
	t.Messages = append(append(make([]core.Message, 0, len(prior)+2), prior...), user)

	start := time.Now()
	for _, s := range p.steps {
		stepStart := time.Now()
		before := len(t.Errors)
		t = s.run(ctx, t, input)

		var stepErr error
		if len(t.Errors) > before {
			stepErr = errors.Join(t.Errors[before:]...)
			p.logger.Warn("step failed", "turn", t.ID, "step", s.name, "error", stepErr)
		}
		p.metrics.ObserveStep(s.name, time.Since(stepStart), stepErr)
	}

	if p.history != nil && input.ConversationID != "" {
		if err := p.history.Append(ctx, input.ConversationID, user, core.NewAssistantMessage(t.Response)); err != nil {
			t.Errors = append(t.Errors, fmt.Errorf("save history: %w", err))
		}
	}

	p.logger.Info("turn complete",
		"turn", t.ID,
		"conversation", t.ConversationID,
		"memories", len(t.Results),
		"quality", t.QualityScore,
		"errors", len(t.Errors),
		"elapsed", time.Since(start),
	)
	return &t, nil
}

type step struct {
	name string
	run  func(ctx context.Context, t Turn, in *Input) Turn
}
