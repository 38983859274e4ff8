package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-recall/memory/embedder/openai"
)

func TestEmbedder_Embed(t *testing.T) {
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [{"object": "embedding", "index": 0, "embedding": [3, 4, 0]}],
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`))
	}))
	defer ts.Close()

	e := openai.New(func(o *openai.Options) {
		o.APIKey = "test-key"
		o.BaseURL = ts.URL + "/v1/"
		o.Dimensions = 3
	})

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.6, 0.8, 0}, vec, 1e-6)
	assert.Equal(t, 3, e.Dimensions())

	assert.Equal(t, "hello", gotBody["input"])
	assert.Equal(t, "text-embedding-3-small", gotBody["model"])
	assert.EqualValues(t, 3, gotBody["dimensions"])
}

func TestEmbedder_DimensionMismatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"m","data":[{"object":"embedding","index":0,"embedding":[1,0]}],"usage":{"prompt_tokens":1,"total_tokens":1}}`))
	}))
	defer ts.Close()

	e := openai.New(func(o *openai.Options) {
		o.APIKey = "k"
		o.BaseURL = ts.URL + "/v1/"
		o.Dimensions = 3
	})
	_, err := e.Embed(context.Background(), "hello")
	assert.Error(t, err)
}
