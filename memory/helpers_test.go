package memory_test

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/becomeliminal/nim-recall/memory"
)

// vectorEmbedder maps known texts to fixed vectors so rankings are exact.
// Unknown texts embed to the last axis.
type vectorEmbedder struct {
	dims    int
	vectors map[string][]float32
	err     error
}

func newVectorEmbedder(dims int) *vectorEmbedder {
	return &vectorEmbedder{dims: dims, vectors: make(map[string][]float32)}
}

func (e *vectorEmbedder) set(text string, vec ...float32) {
	e.vectors[text] = vec
}

func (e *vectorEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	v := make([]float32, e.dims)
	v[e.dims-1] = 1
	return v, nil
}

func (e *vectorEmbedder) Dimensions() int { return e.dims }

// sliceStore is a brute-force Store for exercising Manager logic.
type sliceStore struct {
	mu      sync.Mutex
	records map[string]*memory.Record
	order   []string
	lastK   int
}

func newSliceStore() *sliceStore {
	return &sliceStore{records: make(map[string]*memory.Record)}
}

func (s *sliceStore) Add(ctx context.Context, rec *memory.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec.Clone()
	s.order = append(s.order, rec.ID)
	return nil
}

func (s *sliceStore) Query(ctx context.Context, embedding []float32, k int, f memory.Filter) ([]memory.Hit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastK = k
	var hits []memory.Hit
	for _, id := range s.order {
		rec, ok := s.records[id]
		if !ok || !f.Match(rec) {
			continue
		}
		hits = append(hits, memory.Hit{Record: rec.Clone(), Distance: 1 - cosine(embedding, rec.Embedding)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *sliceStore) Get(ctx context.Context, id string) (*memory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, memory.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *sliceStore) Update(ctx context.Context, rec *memory.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; !ok {
		return memory.ErrNotFound
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *sliceStore) Delete(ctx context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.records, id)
	}
	return nil
}

func (s *sliceStore) List(ctx context.Context, limit int) ([]*memory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*memory.Record
	for _, id := range s.order {
		if rec, ok := s.records[id]; ok {
			out = append(out, rec.Clone())
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *sliceStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

func (s *sliceStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*memory.Record)
	s.order = nil
	return nil
}

func (s *sliceStore) Close() error { return nil }

var errBoom = errors.New("boom")

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func ptr(f float64) *float64 { return &f }
