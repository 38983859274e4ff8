// Package memory provides long-term memory for the assistant.
//
// Every stored item is a Record: a piece of text with a type, an importance
// score in [0, 1] and an embedding used for similarity search. Records are
// scored on the way in (Score, ScoreConversation) and ranked on the way out
// by blending vector similarity with importance.
//
// Architecture:
//   - Store: vector storage backend (chromem-go locally, hnsw in-process, pgvector)
//   - Embedder: text-to-vector conversion (mock, OpenAI API, local ONNX model)
//   - Manager: scoring, ranked search, token-budgeted context assembly,
//     statistics and export
//
// Integration:
//   - RETRIEVE: OptimizedContext builds the prompt block for a user turn
//   - RECORD: AddConversation stores each exchange after a reply
package memory
