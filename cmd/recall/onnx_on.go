//go:build onnx

package main

import (
	"log/slog"

	"github.com/becomeliminal/nim-recall/config"
	"github.com/becomeliminal/nim-recall/memory/embedder/onnx"
)

func newONNXEmbedder(cfg config.Config, logger *slog.Logger) (closingEmbedder, error) {
	return onnx.New(onnx.Config{
		ModelPath:     cfg.ONNXModelPath,
		TokenizerPath: cfg.ONNXTokenizerPath,
		LibraryPath:   cfg.ONNXLibraryPath,
		Dimensions:    cfg.EmbeddingDim,
		Logger:        logger,
	})
}
