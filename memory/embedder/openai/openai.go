// Package openai embeds text through the OpenAI embeddings API or any
// compatible endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/becomeliminal/nim-recall/memory/embedder"
)

// Options configure the embedder.
type Options struct {
	APIKey  string
	BaseURL string

	// Model defaults to text-embedding-3-small.
	Model string

	// Dimensions requests shortened embeddings when the model supports it.
	// Default: 1536.
	Dimensions int
}

// Embedder calls the embeddings endpoint once per text.
type Embedder struct {
	client *openai.Client
	opts   Options
}

// New creates an embedder from options.
func New(optFns ...func(o *Options)) *Embedder {
	opts := Options{
		Model:      string(openai.EmbeddingModelTextEmbedding3Small),
		Dimensions: 1536,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(clientOpts...)
	return NewFromClient(&client, opts)
}

// NewFromClient creates an embedder around an existing client.
func NewFromClient(client *openai.Client, opts Options) *Embedder {
	return &Embedder{client: client, opts: opts}
}

// Embed returns the normalized embedding of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:      openai.EmbeddingModel(e.opts.Model),
		Dimensions: openai.Int(int64(e.opts.Dimensions)),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embeddings: no embedding data returned")
	}

	raw := resp.Data[0].Embedding
	if len(raw) != e.opts.Dimensions {
		return nil, fmt.Errorf("openai embeddings: got %d dimensions, want %d", len(raw), e.opts.Dimensions)
	}
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return embedder.Normalize(vec), nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.opts.Dimensions
}
