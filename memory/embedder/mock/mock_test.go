package mock_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-recall/memory/embedder/mock"
)

func TestEmbedder(t *testing.T) {
	ctx := context.Background()
	e := mock.New(0)
	assert.Equal(t, 384, e.Dimensions())

	a, err := e.Embed(ctx, "I like Go")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "  i like go ")
	require.NoError(t, err)
	c, err := e.Embed(ctx, "something else")
	require.NoError(t, err)

	assert.Len(t, a, 384)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1, math.Sqrt(norm), 1e-5)
}
