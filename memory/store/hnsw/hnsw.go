// Package hnsw implements memory.Store on an in-process coder/hnsw graph.
// Nothing is persisted; the store suits single-process deployments and tests
// that want approximate search without a database.
package hnsw

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/becomeliminal/nim-recall/memory"
)

// Store keeps vectors in an HNSW graph and records in a map keyed by ID.
type Store struct {
	mu      sync.RWMutex
	dims    int
	graph   *hnsw.Graph[string]
	records map[string]*memory.Record
}

var _ memory.Store = (*Store)(nil)

// New creates an empty store for embeddings of the given dimension.
func New(dims int) *Store {
	return &Store{
		dims:    dims,
		graph:   newGraph(),
		records: make(map[string]*memory.Record),
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.Distance = hnsw.CosineDistance
	return g
}

// Add indexes a record.
func (s *Store) Add(ctx context.Context, rec *memory.Record) error {
	if len(rec.Embedding) != s.dims {
		return fmt.Errorf("hnsw: embedding dimension mismatch: got %d, want %d", len(rec.Embedding), s.dims)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(rec)
	return nil
}

func (s *Store) put(rec *memory.Record) {
	stored := rec.Clone()
	old, exists := s.records[rec.ID]
	s.records[rec.ID] = stored
	switch {
	case !exists:
		s.graph.Add(hnsw.MakeNode(stored.ID, stored.Embedding))
	case !equalVectors(old.Embedding, stored.Embedding):
		s.rebuild()
	}
}

// rebuild re-indexes every record into a fresh graph. coder/hnsw's
// Graph.Delete leaves dangling neighbour links that break later searches,
// so removals and vector changes go through here instead.
func (s *Store) rebuild() {
	g := newGraph()
	if len(s.records) > 0 {
		nodes := make([]hnsw.Node[string], 0, len(s.records))
		for id, rec := range s.records {
			nodes = append(nodes, hnsw.MakeNode(id, rec.Embedding))
		}
		g.Add(nodes...)
	}
	s.graph = g
}

func equalVectors(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Query returns the k nearest records matching filter. When k covers the
// whole store, or any filter is set, every record is scanned exactly;
// otherwise the graph answers approximately.
func (s *Store) Query(ctx context.Context, embedding []float32, k int, filter memory.Filter) ([]memory.Hit, error) {
	if len(embedding) != s.dims {
		return nil, fmt.Errorf("hnsw: query dimension mismatch: got %d, want %d", len(embedding), s.dims)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.records)
	if n == 0 || k <= 0 {
		return nil, nil
	}
	if k >= n || filter.Type != "" || filter.MinImportance > 0 || len(filter.Extra) > 0 {
		return s.scan(embedding, k, filter), nil
	}

	var hits []memory.Hit
	for _, node := range s.graph.Search(embedding, k) {
		rec, ok := s.records[node.Key]
		if !ok {
			continue
		}
		hits = append(hits, memory.Hit{
			Record:   rec.Clone(),
			Distance: float64(hnsw.CosineDistance(embedding, node.Value)),
		})
	}
	return hits, nil
}

// scan ranks every matching record by exact cosine distance.
func (s *Store) scan(embedding []float32, k int, filter memory.Filter) []memory.Hit {
	hits := make([]memory.Hit, 0, len(s.records))
	for _, rec := range s.records {
		if !filter.Match(rec) {
			continue
		}
		hits = append(hits, memory.Hit{
			Record:   rec,
			Distance: float64(hnsw.CosineDistance(embedding, rec.Embedding)),
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Record.ID < hits[j].Record.ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	for i := range hits {
		hits[i].Record = hits[i].Record.Clone()
	}
	return hits
}

// Get returns the record with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*memory.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", memory.ErrNotFound, id)
	}
	return rec.Clone(), nil
}

// Update replaces an existing record and its vector.
func (s *Store) Update(ctx context.Context, rec *memory.Record) error {
	if len(rec.Embedding) != s.dims {
		return fmt.Errorf("hnsw: embedding dimension mismatch: got %d, want %d", len(rec.Embedding), s.dims)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; !ok {
		return fmt.Errorf("%w: %s", memory.ErrNotFound, rec.ID)
	}
	s.put(rec)
	return nil
}

// Delete removes records by ID.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := false
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			delete(s.records, id)
			removed = true
		}
	}
	if removed {
		s.rebuild()
	}
	return nil
}

// List returns up to limit records.
func (s *Store) List(ctx context.Context, limit int) ([]*memory.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*memory.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Count returns the number of records.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Clear drops the graph and all records.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph = newGraph()
	s.records = make(map[string]*memory.Record)
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
