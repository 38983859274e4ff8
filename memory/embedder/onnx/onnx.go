//go:build onnx

package onnx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/becomeliminal/nim-recall/memory/embedder"
)

// Config configures the ONNX embedder.
type Config struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string

	// TokenizerPath is the path to the tokenizer.json file.
	TokenizerPath string

	// LibraryPath points at libonnxruntime. Empty uses the runtime default.
	LibraryPath string

	// Dimensions is the embedding vector size (default: 384).
	Dimensions int

	// MaxSequence is the padded token length (default: 128).
	MaxSequence int

	Logger *slog.Logger
}

var (
	initOnce sync.Once
	initErr  error
)

// Embedder generates embeddings using ONNX Runtime.
type Embedder struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *Tokenizer
	dims      int
	maxSeq    int
	logger    *slog.Logger
}

// New loads the model and tokenizer.
func New(cfg Config) (*Embedder, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("onnx: ModelPath is required")
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 384
	}
	if cfg.MaxSequence == 0 {
		cfg.MaxSequence = 128
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	initOnce.Do(func() {
		if cfg.LibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.LibraryPath)
		}
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return nil, fmt.Errorf("onnx: initialize runtime: %w", initErr)
	}

	tokenizer, err := LoadTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: create session: %w", err)
	}

	logger := cfg.Logger.With("component", "onnx-embedder")
	logger.Info("model loaded", "path", cfg.ModelPath, "dims", cfg.Dimensions)

	return &Embedder{
		session:   session,
		tokenizer: tokenizer,
		dims:      cfg.Dimensions,
		maxSeq:    cfg.MaxSequence,
		logger:    logger,
	}, nil
}

// Embed converts text to a normalized embedding vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, mask, typeIDs := e.tokenizer.Encode(text, e.maxSeq)
	shape := ort.NewShape(1, int64(e.maxSeq))

	inputs := make([]ort.Value, 0, 3)
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	// Order matches the session's input names.
	for _, data := range [][]int64{ids, mask, typeIDs} {
		tensor, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("onnx: create tensor: %w", err)
		}
		inputs = append(inputs, tensor)
	}

	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("onnx: inference: %w", err)
	}
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.New("onnx: unexpected output tensor type")
	}
	data := out.GetData()
	outShape := out.GetShape()
	e.logger.Debug("inference", "shape", outShape, "tokens", countAttended(mask))

	var vec []float32
	switch len(outShape) {
	case 2:
		// Already pooled.
		if len(data) < e.dims {
			return nil, fmt.Errorf("onnx: output has %d values, want %d", len(data), e.dims)
		}
		vec = append([]float32(nil), data[:e.dims]...)
	case 3:
		if outShape[0] != 1 {
			return nil, fmt.Errorf("onnx: batch size %d, want 1", outShape[0])
		}
		if outShape[2] != int64(e.dims) {
			return nil, fmt.Errorf("onnx: hidden size %d, want %d", outShape[2], e.dims)
		}
		pooled, err := meanPool(data, int(outShape[1]), e.dims, mask)
		if err != nil {
			return nil, fmt.Errorf("onnx: %w", err)
		}
		vec = pooled
	default:
		return nil, fmt.Errorf("onnx: unexpected output shape %v", outShape)
	}

	return embedder.Normalize(vec), nil
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.dims
}

// Close releases the session.
func (e *Embedder) Close() error {
	if e.session == nil {
		return nil
	}
	return e.session.Destroy()
}

func countAttended(mask []int64) int {
	n := 0
	for _, m := range mask {
		if m != 0 {
			n++
		}
	}
	return n
}
