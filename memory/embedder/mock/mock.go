// Package mock provides a deterministic hash embedder for tests and offline
// runs. Identical texts embed identically; different texts are unrelated.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/becomeliminal/nim-recall/memory/embedder"
)

// DefaultDimensions matches all-MiniLM-L6-v2.
const DefaultDimensions = 384

// Embedder generates embeddings from a hash of the text.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder. dims <= 0 uses DefaultDimensions.
func New(dims int) *Embedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Embedder{dimensions: dims}
}

// Embed creates a deterministic unit vector from text. Case and
// surrounding whitespace are ignored.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(text))))
	seed := h.Sum64()

	vec := make([]float32, e.dimensions)
	for i := range vec {
		// LCG step, mapped to [-1, 1].
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return embedder.Normalize(vec), nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}
