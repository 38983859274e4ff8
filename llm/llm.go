// Package llm defines the text-completion boundary used by the assistant
// and the prompt chain that renders chat, analysis and summary requests.
package llm

import (
	"context"

	"github.com/becomeliminal/nim-recall/core"
)

// Completer produces text from a conversation.
type Completer interface {
	// Complete returns the full response text.
	Complete(ctx context.Context, req Request) (string, error)

	// Stream delivers the response incrementally through onChunk and
	// returns the concatenated text.
	Stream(ctx context.Context, req Request, onChunk func(string)) (string, error)
}

// Request is a single completion call.
type Request struct {
	// System is an optional system prompt.
	System string

	// Messages is the conversation so far, oldest first.
	Messages []core.Message

	// MaxTokens caps the response length. Zero uses the provider default.
	MaxTokens int

	Temperature float64
}

// Modeler is implemented by completers that can report their model name.
type Modeler interface {
	Model() string
}
