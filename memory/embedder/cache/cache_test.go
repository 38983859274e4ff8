package cache_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-recall/memory/embedder/cache"
)

type countingEmbedder struct {
	calls int
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (c *countingEmbedder) Dimensions() int { return 2 }

func TestEmbedder_CachesByText(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{}
	e, err := cache.New(inner, 16)
	require.NoError(t, err)
	defer e.Close()

	a, err := e.Embed(ctx, "hello")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "hello ")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 2, e.Dimensions())

	// Mutating a returned vector does not poison the cache.
	b[0] = 99
	c, err := e.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, float32(5), c[0])

	stats := e.Stats()
	assert.EqualValues(t, 2, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
}

func TestEmbedder_ErrorsNotCached(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{err: errors.New("down")}
	e, err := cache.New(inner, 0)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Embed(ctx, "x")
	require.Error(t, err)
	_, err = e.Embed(ctx, "x")
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestEmbedder_EmbedsTrimmedText(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{}
	e, err := cache.New(inner, 16, cache.WithLogger(nil))
	require.NoError(t, err)
	defer e.Close()

	padded, err := e.Embed(ctx, "  hi \n")
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 1}, padded)

	plain, err := e.Embed(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, padded, plain)
	assert.Equal(t, 1, inner.calls)
}
