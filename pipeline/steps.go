package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/becomeliminal/nim-recall/core"
	"github.com/becomeliminal/nim-recall/memory"
)

// importantInfoScore is the fixed importance of records flagged by keyword.
const importantInfoScore = 0.9

// importantTriggers flag an utterance for a separate important_info record.
// This is narrower than the scorer's keyword list.
var importantTriggers = []string{
	"remember", "important", "save", "note", "preference",
	"like", "dislike", "always", "never", "favorite",
}

// isImportant reports whether text contains any trigger, case-insensitively.
func isImportant(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range importantTriggers {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (p *Pipeline) processInput(_ context.Context, t Turn, _ *Input) Turn {
	if len(t.Messages) == 0 {
		return t
	}
	if last := t.Messages[len(t.Messages)-1]; last.Role == core.RoleUser {
		t.UserInput = last.Content
	}
	t.Step = "input_processed"
	return t
}

func (p *Pipeline) retrieveMemory(ctx context.Context, t Turn, _ *Input) Turn {
	block, err := p.memory.OptimizedContext(ctx, memory.ContextRequest{
		Query:      t.UserInput,
		MaxTokens:  p.config.ContextTokenBudget,
		Candidates: p.config.ContextCandidates,
		Summarize:  true,
	})
	if err != nil {
		t.Errors = append(t.Errors, fmt.Errorf("retrieve context: %w", err))
		return t
	}
	t.Context = block

	results, err := p.memory.Search(ctx, memory.SearchRequest{
		Query:         t.UserInput,
		MaxResults:    p.config.QualityResults,
		MinImportance: p.config.QualityMinImportance,
	})
	if err != nil {
		t.Errors = append(t.Errors, fmt.Errorf("retrieve memories: %w", err))
		return t
	}
	t.Results = results
	t.Step = "memory_retrieved"
	return t
}

func (p *Pipeline) analyzeContext(_ context.Context, t Turn, _ *Input) Turn {
	t.QualityScore = QualityScore(t.Results)
	p.metrics.ObserveQuality(t.QualityScore)
	t.Step = "context_analyzed"
	return t
}

// QualityScore rates retrieved memories as 0.7 * mean similarity plus
// 0.3 * mean importance. No results score zero.
func QualityScore(results []memory.RankedResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sim, imp float64
	for _, r := range results {
		sim += r.Similarity
		imp += r.Record.Importance
	}
	n := float64(len(results))
	return (sim/n)*0.7 + (imp/n)*0.3
}

func (p *Pipeline) generateResponse(ctx context.Context, t Turn, in *Input) Turn {
	var prior []core.Message
	if len(t.Messages) > 1 {
		prior = t.Messages[:len(t.Messages)-1]
	}

	var (
		response string
		err      error
	)
	if in.StreamCallback != nil {
		response, err = p.chain.ChatStream(ctx, t.UserInput, t.Context, prior, in.StreamCallback)
	} else {
		response, err = p.chain.Chat(ctx, t.UserInput, t.Context, prior)
	}
	// On failure the chain still returns an apology to show the user.
	t.Response = response
	if err != nil {
		t.Errors = append(t.Errors, fmt.Errorf("generate response: %w", err))
		return t
	}
	t.Step = "response_generated"
	return t
}

func (p *Pipeline) updateMemory(ctx context.Context, t Turn, _ *Input) Turn {
	extra := map[string]string{}
	if t.ConversationID != "" {
		extra["conversation_id"] = t.ConversationID
	}

	failed := false
	id, err := p.memory.AddConversation(ctx, t.UserInput, t.Response, extra)
	if err != nil {
		t.Errors = append(t.Errors, fmt.Errorf("store conversation: %w", err))
		failed = true
	} else {
		t.MemoryIDs = append(t.MemoryIDs, id)
	}

	if isImportant(t.UserInput) {
		important := importantInfoScore
		info := map[string]string{
			"source":        "workflow",
			"workflow_step": t.Step,
		}
		for k, v := range extra {
			info[k] = v
		}
		id, err := p.memory.Add(ctx, memory.AddRequest{
			Content:    memory.FormatExchange(t.UserInput, t.Response),
			Type:       memory.TypeImportantInfo,
			Importance: &important,
			Extra:      info,
		})
		if err != nil {
			t.Errors = append(t.Errors, fmt.Errorf("store important info: %w", err))
			failed = true
		} else {
			t.MemoryIDs = append(t.MemoryIDs, id)
		}
	}

	if failed {
		return t
	}
	t.Step = "memory_updated"
	return t
}

func (p *Pipeline) formatOutput(_ context.Context, t Turn, _ *Input) Turn {
	msgs := make([]core.Message, len(t.Messages), len(t.Messages)+1)
	copy(msgs, t.Messages)
	t.Messages = append(msgs, core.NewAssistantMessage(t.Response))
	t.Step = "output_formatted"
	return t
}
