package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// ContextRequest describes a token-budgeted context block.
type ContextRequest struct {
	Query string

	// MaxTokens is the approximate token budget. Zero or less yields "".
	MaxTokens int

	// Candidates is how many ranked results to consider.
	Candidates int

	// Summarize shortens long entries before formatting.
	Summarize bool
}

// OptimizedContext builds a prompt block of the most important relevant
// memories that fits the token budget.
//
// Candidates come from Search with the context importance floor, then are
// re-ordered by importance (ties by ranking score). Entries are taken in
// that order until the next one would overflow the budget. A token is
// estimated as four runes of the full content, even when the entry is
// summarized.
func (m *Manager) OptimizedContext(ctx context.Context, req ContextRequest) (string, error) {
	if req.MaxTokens <= 0 {
		return "", nil
	}

	results, err := m.Search(ctx, SearchRequest{
		Query:         req.Query,
		MaxResults:    req.Candidates,
		MinImportance: m.config.ContextMinImportance,
	})
	if err != nil {
		return "", fmt.Errorf("search context: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Record.Importance != b.Record.Importance {
			return a.Record.Importance > b.Record.Importance
		}
		return a.Score > b.Score
	})

	var (
		entries []string
		tokens  int
	)
	for _, r := range results {
		estimate := utf8.RuneCountInString(r.Record.Content) / 4
		if tokens+estimate > req.MaxTokens {
			break
		}
		entries = append(entries, m.formatEntry(r.Record, req.Summarize))
		tokens += estimate
	}

	if len(entries) == 0 {
		return "", nil
	}

	m.logger.Debug("context assembled",
		"candidates", len(results),
		"included", len(entries),
		"tokens", tokens,
		"budget", req.MaxTokens,
	)

	header := fmt.Sprintf("=== RELEVANT MEMORIES (%d included, ~%d tokens) ===", len(entries), tokens)
	return header + "\n" + strings.Join(entries, "\n\n"), nil
}

func (m *Manager) formatEntry(rec *Record, summarize bool) string {
	text := rec.Content
	if summarize && utf8.RuneCountInString(text) > m.config.SummaryThreshold {
		text = Summarize(text, m.config.SummaryLength)
	}
	return fmt.Sprintf("[%s] %s (Importance: %.2f)", strings.ToUpper(string(rec.Type)), text, rec.Importance)
}
