package memory

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no record exists for an ID.
	ErrNotFound = errors.New("memory not found")

	// ErrInvalidImportance is returned for importance scores outside [0, 1].
	ErrInvalidImportance = errors.New("importance must be between 0 and 1")

	// ErrEmptyContent is returned when a record would have no text.
	ErrEmptyContent = errors.New("memory content is empty")
)

// Store is the vector storage backend.
// Implementations: chromem (default, local), hnsw (in-process graph),
// postgres (pgvector).
//
// Stores own persistence and nearest-neighbour lookup only. Scoring,
// ranking and formatting live in Manager.
type Store interface {
	// Add saves a record. The record must carry its embedding.
	Add(ctx context.Context, rec *Record) error

	// Query returns up to k nearest records to embedding that satisfy
	// filter, nearest first. An empty store yields no hits and no error.
	Query(ctx context.Context, embedding []float32, k int, filter Filter) ([]Hit, error)

	// Get returns the record with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// Update replaces a stored record in place. ErrNotFound if absent.
	Update(ctx context.Context, rec *Record) error

	// Delete removes records permanently. Unknown IDs are ignored.
	Delete(ctx context.Context, ids ...string) error

	// List returns up to limit records in no particular order.
	// limit <= 0 returns everything.
	List(ctx context.Context, limit int) ([]*Record, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Clear removes every record.
	Clear(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Filter narrows a similarity query.
type Filter struct {
	// Type restricts results to one record type. Empty matches all.
	Type Type

	// MinImportance is an inclusive floor on importance. Zero disables it.
	MinImportance float64

	// Extra requires exact equality on caller metadata keys.
	Extra map[string]string
}

// Match reports whether rec satisfies the filter. Stores that cannot push
// a condition down to the backend use this to post-filter.
func (f Filter) Match(rec *Record) bool {
	if f.Type != "" && rec.Type != f.Type {
		return false
	}
	if f.MinImportance > 0 && rec.Importance < f.MinImportance {
		return false
	}
	for k, v := range f.Extra {
		if rec.Extra[k] != v {
			return false
		}
	}
	return true
}

// Hit is a raw nearest-neighbour result from a Store.
type Hit struct {
	Record *Record

	// Distance is the cosine distance to the query, 0 for identical
	// direction.
	Distance float64
}

// Embedder converts text to vector embeddings.
// Implementations: mock (testing), openai (API), onnx (local model),
// cache (wraps another Embedder).
type Embedder interface {
	// Embed converts a single text to embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}
