// Package cache memoizes embeddings in a bounded in-process cache.
package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/nim-recall/memory"
)

// DefaultSize is the number of embeddings kept when no size is given.
const DefaultSize = 4096

// Stats reports cache effectiveness.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// Embedder wraps another embedder and caches its vectors by text.
type Embedder struct {
	next   memory.Embedder
	cache  *ristretto.Cache
	logger *slog.Logger
}

// Option configures the cache.
type Option func(*Embedder)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Embedder) {
		if l != nil {
			e.logger = l
		}
	}
}

// New wraps next with a cache holding up to size vectors.
func New(next memory.Embedder, size int, opts ...Option) (*Embedder, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        int64(size) * 10,
		MaxCost:            int64(size),
		BufferItems:        64,
		Metrics:            true,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	e := &Embedder{
		next:   next,
		cache:  c,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "embedding-cache")
	return e, nil
}

// Embed returns the cached vector for text or computes and stores it.
// Surrounding whitespace is trimmed before embedding, so variants share
// one vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := strings.TrimSpace(text)
	if v, ok := e.cache.Get(key); ok {
		return append([]float32(nil), v.([]float32)...), nil
	}

	vec, err := e.next.Embed(ctx, key)
	if err != nil {
		return nil, err
	}
	if !e.cache.Set(key, append([]float32(nil), vec...), 1) {
		e.logger.Debug("embedding not cached", "len", len(key))
	}
	e.cache.Wait()
	return vec, nil
}

// Dimensions returns the wrapped embedder's size.
func (e *Embedder) Dimensions() int {
	return e.next.Dimensions()
}

// Stats returns hit and miss counts.
func (e *Embedder) Stats() Stats {
	return Stats{Hits: e.cache.Metrics.Hits(), Misses: e.cache.Metrics.Misses()}
}

// Close stops the cache's background goroutines.
func (e *Embedder) Close() {
	e.cache.Close()
}
