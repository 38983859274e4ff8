//go:build !onnx

package main

import (
	"errors"
	"log/slog"

	"github.com/becomeliminal/nim-recall/config"
)

func newONNXEmbedder(config.Config, *slog.Logger) (closingEmbedder, error) {
	return nil, errors.New("onnx embedder unavailable: rebuild with -tags onnx")
}
