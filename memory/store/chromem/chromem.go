// Package chromem implements memory.Store on chromem-go, a pure Go embedded
// vector database. Data lives in memory, optionally persisted to a directory.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/nim-recall/memory"
)

// DefaultCollection is the collection name used when none is configured.
const DefaultCollection = "ai_assistant_memory"

// Config configures the store.
type Config struct {
	// PersistDir enables persistence when non-empty.
	PersistDir string

	// Compress gzips persisted documents.
	Compress bool

	// Collection is the collection name. Default: DefaultCollection.
	Collection string

	// Dimensions is the embedding size, used to build the listing query vector.
	Dimensions int

	Logger *slog.Logger
}

// Store wraps a chromem-go collection.
type Store struct {
	db     *chromem.DB
	name   string
	dims   int
	logger *slog.Logger

	mu  sync.RWMutex
	col *chromem.Collection
}

var _ memory.Store = (*Store)(nil)

// New opens the database and the configured collection.
func New(cfg Config) (*Store, error) {
	if cfg.Dimensions <= 0 {
		return nil, errors.New("chromem: dimensions must be positive")
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var db *chromem.DB
	if cfg.PersistDir != "" {
		var err error
		db, err = chromem.NewPersistentDB(cfg.PersistDir, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open persistent db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	s := &Store{
		db:     db,
		name:   cfg.Collection,
		dims:   cfg.Dimensions,
		logger: logger.With("component", "chromem", "collection", cfg.Collection),
	}
	col, err := s.openCollection()
	if err != nil {
		return nil, err
	}
	s.col = col
	return s, nil
}

func (s *Store) openCollection() (*chromem.Collection, error) {
	col, err := s.db.GetOrCreateCollection(s.name, map[string]string{"description": "AI Assistant Long-term Memory"}, nil)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}
	return col, nil
}

func (s *Store) collection() *chromem.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.col
}

// Add saves a record with its embedding.
func (s *Store) Add(ctx context.Context, rec *memory.Record) error {
	if len(rec.Embedding) == 0 {
		return errors.New("chromem: record has no embedding")
	}
	err := s.collection().AddDocument(ctx, chromem.Document{
		ID:        rec.ID,
		Content:   rec.Content,
		Embedding: rec.Embedding,
		Metadata:  memory.EncodeMetadata(rec),
	})
	if err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	s.logger.Debug("document stored", "id", rec.ID, "type", rec.Type)
	return nil
}

// Query returns the k nearest records matching filter.
//
// Type and Extra are pushed down as where clauses. chromem-go has no range
// filter, so with an importance floor every matching document is fetched
// and filtered here.
func (s *Store) Query(ctx context.Context, embedding []float32, k int, filter memory.Filter) ([]memory.Hit, error) {
	col := s.collection()
	count := col.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}

	where := map[string]string{}
	if filter.Type != "" {
		where[memory.KeyType] = string(filter.Type)
	}
	for key, v := range filter.Extra {
		where[memory.ExtraKey(key)] = v
	}
	if len(where) == 0 {
		where = nil
	}

	// nResults must not exceed the collection size.
	n := min(k, count)
	if filter.MinImportance > 0 {
		n = count
	}

	results, err := col.QueryEmbedding(ctx, embedding, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	hits := make([]memory.Hit, 0, min(k, len(results)))
	for _, r := range results {
		rec, err := memory.DecodeMetadata(r.ID, r.Content, r.Embedding, r.Metadata)
		if err != nil {
			s.logger.Warn("skipping undecodable document", "id", r.ID, "error", err)
			continue
		}
		if !filter.Match(rec) {
			continue
		}
		hits = append(hits, memory.Hit{Record: rec, Distance: 1 - float64(r.Similarity)})
		if len(hits) == k {
			break
		}
	}
	s.logger.Debug("query", "k", k, "raw", len(results), "hits", len(hits))
	return hits, nil
}

// Get returns the record with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*memory.Record, error) {
	doc, err := s.collection().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", memory.ErrNotFound, id)
	}
	return memory.DecodeMetadata(doc.ID, doc.Content, doc.Embedding, doc.Metadata)
}

// Update overwrites an existing record.
func (s *Store) Update(ctx context.Context, rec *memory.Record) error {
	if _, err := s.collection().GetByID(ctx, rec.ID); err != nil {
		return fmt.Errorf("%w: %s", memory.ErrNotFound, rec.ID)
	}
	return s.Add(ctx, rec)
}

// Delete removes records by ID.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.collection().Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}

// List returns up to limit records.
//
// chromem-go has no listing call, so this queries the whole collection
// with a fixed unit query vector.
func (s *Store) List(ctx context.Context, limit int) ([]*memory.Record, error) {
	col := s.collection()
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	unit := make([]float32, s.dims)
	unit[0] = 1

	results, err := col.QueryEmbedding(ctx, unit, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	out := make([]*memory.Record, 0, len(results))
	for _, r := range results {
		rec, err := memory.DecodeMetadata(r.ID, r.Content, r.Embedding, r.Metadata)
		if err != nil {
			s.logger.Warn("skipping undecodable document", "id", r.ID, "error", err)
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Count returns the number of documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.collection().Count(), nil
}

// Clear drops and recreates the collection.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	col, err := s.openCollection()
	if err != nil {
		return err
	}
	s.col = col
	return nil
}

// Close releases resources. Persistent databases write on every change,
// so there is nothing to flush.
func (s *Store) Close() error {
	return nil
}
