// Package onnx embeds text locally with a sentence-transformer model
// exported to ONNX, such as all-MiniLM-L6-v2.
//
// The embedder itself needs the onnxruntime shared library and is only
// built with the onnx build tag. The tokenizer and pooling helpers are
// always available.
package onnx
