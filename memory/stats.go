package memory

import (
	"context"
	"fmt"
	"time"
)

// statsSampleSize bounds how many records Stats and Insights inspect.
const statsSampleSize = 1000

// Stats summarizes the memory store.
type Stats struct {
	TotalMemories     int            `json:"total_memories"`
	TypeDistribution  map[string]int `json:"type_distribution"`
	AverageImportance float64        `json:"average_importance"`
	MinImportance     float64        `json:"min_importance"`
	MaxImportance     float64        `json:"max_importance"`
	Location          string         `json:"location"`
}

// Stats reports totals, the type distribution and the importance range.
// Distribution and importance figures are computed over at most 1000
// records.
func (m *Manager) Stats(ctx context.Context) (stats *Stats, err error) {
	defer func() { m.metrics.ObserveMemoryOp("stats", err) }()

	total, err := m.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count memories: %w", err)
	}
	sample, err := m.store.List(ctx, statsSampleSize)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}

	stats = &Stats{
		TotalMemories:    total,
		TypeDistribution: make(map[string]int),
		Location:         m.config.Location,
	}
	if len(sample) == 0 {
		return stats, nil
	}

	stats.MinImportance, stats.MaxImportance = 1, 0
	var sum float64
	for _, rec := range sample {
		typ := string(rec.Type)
		if typ == "" {
			typ = "unknown"
		}
		stats.TypeDistribution[typ]++
		sum += rec.Importance
		stats.MinImportance = min(stats.MinImportance, rec.Importance)
		stats.MaxImportance = max(stats.MaxImportance, rec.Importance)
	}
	stats.AverageImportance = round2(sum / float64(len(sample)))
	return stats, nil
}

// Insights buckets records by importance and counts recent conversation.
type Insights struct {
	Total               int `json:"total_memories"`
	HighImportance      int `json:"high_importance"`
	MediumImportance    int `json:"medium_importance"`
	LowImportance       int `json:"low_importance"`
	RecentConversations int `json:"recent_conversations"`
}

// Insights reports importance buckets (high >= 0.8, medium >= 0.5) and the
// number of conversation records created in the last 24 hours.
func (m *Manager) Insights(ctx context.Context) (ins *Insights, err error) {
	defer func() { m.metrics.ObserveMemoryOp("insights", err) }()

	sample, err := m.store.List(ctx, statsSampleSize)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	ins = &Insights{Total: len(sample)}
	for _, rec := range sample {
		switch {
		case rec.Importance >= 0.8:
			ins.HighImportance++
		case rec.Importance >= 0.5:
			ins.MediumImportance++
		default:
			ins.LowImportance++
		}
		if rec.Type == TypeConversation && rec.CreatedAt.After(cutoff) {
			ins.RecentConversations++
		}
	}
	return ins, nil
}
