package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"
	"unicode/utf8"
)

// Recorder receives one observation per Manager operation.
// observability.Metrics implements it.
type Recorder interface {
	ObserveMemoryOp(op string, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveMemoryOp(string, error) {}

// Manager owns scoring, ranking and context assembly on top of a Store.
type Manager struct {
	store    Store
	embedder Embedder
	config   *Config
	logger   *slog.Logger
	metrics  Recorder
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics sets the operation recorder.
func WithMetrics(r Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.metrics = r
		}
	}
}

// NewManager creates a Manager. A nil config uses DefaultConfig.
func NewManager(store Store, embedder Embedder, config *Config, opts ...Option) *Manager {
	if config == nil {
		config = DefaultConfig
	}
	m := &Manager{
		store:    store,
		embedder: embedder,
		config:   config,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:  nopRecorder{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "memory")
	return m
}

// Config returns the manager configuration.
func (m *Manager) Config() *Config {
	return m.config
}

// AddRequest describes a record to store.
type AddRequest struct {
	Content string
	Type    Type

	// Importance overrides the computed score when set.
	Importance *float64

	Extra map[string]string
}

// Add embeds and stores a new record, returning its ID.
func (m *Manager) Add(ctx context.Context, req AddRequest) (id string, err error) {
	defer func() { m.metrics.ObserveMemoryOp("add", err) }()

	if req.Content == "" {
		return "", ErrEmptyContent
	}
	typ := req.Type
	if typ == "" {
		typ = TypeConversation
	}

	importance := Score(req.Content, typ)
	if req.Importance != nil {
		if *req.Importance < 0 || *req.Importance > 1 {
			return "", ErrInvalidImportance
		}
		importance = *req.Importance
	}

	rec := NewRecord(req.Content, typ, importance, req.Extra)
	rec.Embedding, err = m.embedder.Embed(ctx, req.Content)
	if err != nil {
		return "", fmt.Errorf("embed content: %w", err)
	}
	if err := m.store.Add(ctx, rec); err != nil {
		return "", fmt.Errorf("store memory: %w", err)
	}

	m.logger.Debug("memory added",
		"id", rec.ID,
		"type", rec.Type,
		"importance", rec.Importance,
		"length", rec.ContentLength,
	)
	return rec.ID, nil
}

// AddConversation stores a user/assistant exchange scored as a conversation.
func (m *Manager) AddConversation(ctx context.Context, user, assistant string, extra map[string]string) (string, error) {
	importance := ScoreConversation(user, assistant)
	return m.Add(ctx, AddRequest{
		Content:    FormatExchange(user, assistant),
		Type:       TypeConversation,
		Importance: &importance,
		Extra:      extra,
	})
}

// FormatExchange renders a user/assistant pair as stored memory content.
func FormatExchange(user, assistant string) string {
	return "User: " + user + "\nAssistant: " + assistant
}

// Get returns the record with the given ID.
func (m *Manager) Get(ctx context.Context, id string) (rec *Record, err error) {
	defer func() { m.metrics.ObserveMemoryOp("get", err) }()
	return m.store.Get(ctx, id)
}

// SearchRequest describes a ranked search.
type SearchRequest struct {
	Query      string
	MaxResults int

	// Type, MinImportance and Extra are applied by the store before ranking.
	Type          Type
	MinImportance float64
	Extra         map[string]string
}

// RankedResult is a search hit with its ranking scores.
type RankedResult struct {
	Record *Record

	// Similarity is 1 - cosine distance.
	Similarity float64

	// Score blends similarity and importance. Results are sorted by it.
	Score float64
}

// Search returns up to MaxResults records ranked by a blend of similarity
// and importance. It over-fetches from the store so that important but
// slightly less similar records can outrank the nearest neighbours.
func (m *Manager) Search(ctx context.Context, req SearchRequest) (results []RankedResult, err error) {
	defer func() { m.metrics.ObserveMemoryOp("search", err) }()

	if req.MaxResults <= 0 {
		return []RankedResult{}, nil
	}

	embedding, err := m.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	k := min(req.MaxResults*m.config.OverFetchFactor, m.config.OverFetchCap)

	hits, err := m.store.Query(ctx, embedding, k, Filter{
		Type:          req.Type,
		MinImportance: req.MinImportance,
		Extra:         req.Extra,
	})
	if err != nil {
		return nil, fmt.Errorf("query store: %w", err)
	}

	results = make([]RankedResult, 0, len(hits))
	for _, h := range hits {
		sim := 1 - h.Distance
		if m.config.MinSimilarity > 0 && sim < m.config.MinSimilarity {
			continue
		}
		results = append(results, RankedResult{
			Record:     h.Record,
			Similarity: sim,
			Score:      sim*m.config.RelevanceWeight + importanceOf(h.Record)*m.config.ImportanceWeight,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > req.MaxResults {
		results = results[:req.MaxResults]
	}

	m.logger.Debug("memory search",
		"query", truncateLog(req.Query, 50),
		"fetched", len(hits),
		"returned", len(results),
	)
	return results, nil
}

func importanceOf(rec *Record) float64 {
	if rec == nil {
		return defaultBaseImportance
	}
	return rec.Importance
}

// Update replaces a record's content, re-embeds it and merges extra into
// its caller metadata.
func (m *Manager) Update(ctx context.Context, id, content string, extra map[string]string) (err error) {
	defer func() { m.metrics.ObserveMemoryOp("update", err) }()

	if content == "" {
		return ErrEmptyContent
	}
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}

	embedding, err := m.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embed content: %w", err)
	}

	rec.Content = content
	rec.ContentLength = utf8.RuneCountInString(content)
	rec.Embedding = embedding
	rec.UpdatedAt = time.Now().UTC()
	if len(extra) > 0 {
		if rec.Extra == nil {
			rec.Extra = make(map[string]string, len(extra))
		}
		for k, v := range extra {
			rec.Extra[k] = v
		}
	}

	if err := m.store.Update(ctx, rec); err != nil {
		return fmt.Errorf("update memory: %w", err)
	}
	m.logger.Debug("memory updated", "id", id, "length", rec.ContentLength)
	return nil
}

// SetImportance overrides a record's importance score.
func (m *Manager) SetImportance(ctx context.Context, id string, score float64) (err error) {
	defer func() { m.metrics.ObserveMemoryOp("set_importance", err) }()

	if score < 0 || score > 1 {
		return ErrInvalidImportance
	}
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	rec.Importance = score
	rec.UpdatedAt = time.Now().UTC()
	if err := m.store.Update(ctx, rec); err != nil {
		return fmt.Errorf("update memory: %w", err)
	}
	return nil
}

// Delete removes a record. Deleting an unknown ID is not an error.
func (m *Manager) Delete(ctx context.Context, id string) (err error) {
	defer func() { m.metrics.ObserveMemoryOp("delete", err) }()
	if err := m.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete memory: %w", err)
	}
	return nil
}

// Clear removes every record.
func (m *Manager) Clear(ctx context.Context) (err error) {
	defer func() { m.metrics.ObserveMemoryOp("clear", err) }()
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear memories: %w", err)
	}
	m.logger.Info("memories cleared")
	return nil
}

// Ping checks that the store answers.
func (m *Manager) Ping(ctx context.Context) error {
	_, err := m.store.Count(ctx)
	return err
}

// truncateLog truncates text for logging.
func truncateLog(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}

// Config holds Manager configuration.
type Config struct {
	// MinSimilarity drops search hits below this similarity [0.0-1.0].
	// Default: 0 (disabled). Small local models score related text
	// around 0.35, so a floor is only useful with API embedders.
	MinSimilarity float64

	// OverFetchFactor multiplies MaxResults to get the store query size.
	OverFetchFactor int

	// OverFetchCap bounds the store query size.
	OverFetchCap int

	// RelevanceWeight and ImportanceWeight blend the ranking score.
	RelevanceWeight  float64
	ImportanceWeight float64

	// ContextMinImportance is the importance floor for OptimizedContext.
	ContextMinImportance float64

	// SummaryThreshold is the rune length above which context entries are
	// summarized, and SummaryLength the summary cap.
	SummaryThreshold int
	SummaryLength    int

	// Location describes where the store keeps data, reported by Stats.
	Location string
}

// DefaultConfig returns sensible defaults.
var DefaultConfig = &Config{
	MinSimilarity:        0,
	OverFetchFactor:      2,
	OverFetchCap:         20,
	RelevanceWeight:      0.7,
	ImportanceWeight:     0.3,
	ContextMinImportance: 0.4,
	SummaryThreshold:     200,
	SummaryLength:        DefaultSummaryLength,
	Location:             "in-memory",
}
