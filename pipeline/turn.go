package pipeline

import (
	"errors"

	"github.com/becomeliminal/nim-recall/core"
	"github.com/becomeliminal/nim-recall/memory"
)

// Turn accumulates the state of one pipeline run. Each step receives the
// previous value and returns the next.
type Turn struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id,omitempty"`

	// Messages is the conversation including this turn's user message and,
	// once formatted, the assistant's reply.
	Messages []core.Message `json:"messages"`

	UserInput string `json:"user_input"`

	// Context is the memory block given to the model.
	Context string `json:"context"`

	// Results are the raw ranked memories behind QualityScore.
	Results []memory.RankedResult `json:"results"`

	QualityScore float64 `json:"quality_score"`
	Response     string  `json:"response"`

	// Step is the last step that completed.
	Step string `json:"step"`

	// MemoryIDs are the records written for this turn.
	MemoryIDs []string `json:"memory_ids,omitempty"`

	Errors []error `json:"-"`
}

// Err joins every step error, or returns nil.
func (t *Turn) Err() error {
	return errors.Join(t.Errors...)
}
