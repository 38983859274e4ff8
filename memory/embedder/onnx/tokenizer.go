package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Standard BERT special token IDs, used when the vocab lacks them.
const (
	defaultUNK = 100
	defaultCLS = 101
	defaultSEP = 102
)

// Tokenizer performs lowercase BERT WordPiece tokenization.
type Tokenizer struct {
	vocab map[string]int
	cls   int64
	sep   int64
	unk   int64
}

// NewTokenizer builds a tokenizer from a token-to-ID vocabulary.
func NewTokenizer(vocab map[string]int) *Tokenizer {
	lookup := func(tok string, fallback int) int64 {
		if id, ok := vocab[tok]; ok {
			return int64(id)
		}
		return int64(fallback)
	}
	return &Tokenizer{
		vocab: vocab,
		cls:   lookup("[CLS]", defaultCLS),
		sep:   lookup("[SEP]", defaultSEP),
		unk:   lookup("[UNK]", defaultUNK),
	}
}

// LoadTokenizer reads the vocabulary from a HuggingFace tokenizer.json.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}

	var file struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tokenizer: %w", err)
	}
	if len(file.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has no vocab", path)
	}
	return NewTokenizer(file.Model.Vocab), nil
}

// Tokenize converts text to token IDs without special tokens.
func (t *Tokenizer) Tokenize(text string) []int64 {
	var tokens []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()[]")
		if word == "" {
			continue
		}
		if id, ok := t.vocab[word]; ok {
			tokens = append(tokens, int64(id))
			continue
		}
		pieces := t.wordPieces(word)
		if pieces == nil {
			tokens = append(tokens, t.unk)
			continue
		}
		tokens = append(tokens, pieces...)
	}
	return tokens
}

// Encode produces fixed-length model inputs: [CLS] tokens [SEP], padded
// with zeros to maxLen. Long inputs are truncated.
func (t *Tokenizer) Encode(text string, maxLen int) (ids, mask, typeIDs []int64) {
	ids = make([]int64, maxLen)
	mask = make([]int64, maxLen)
	typeIDs = make([]int64, maxLen)

	tokens := t.Tokenize(text)
	if len(tokens) > maxLen-2 {
		tokens = tokens[:maxLen-2]
	}

	ids[0], mask[0] = t.cls, 1
	for i, tok := range tokens {
		ids[i+1], mask[i+1] = tok, 1
	}
	end := len(tokens) + 1
	ids[end], mask[end] = t.sep, 1
	return ids, mask, typeIDs
}

// wordPieces splits a word by greedy longest-prefix match, marking
// continuation pieces with "##". Returns nil when any span has no match.
func (t *Tokenizer) wordPieces(word string) []int64 {
	runes := []rune(word)
	var ids []int64
	for start := 0; start < len(runes); {
		end := len(runes)
		for ; end > start; end-- {
			piece := string(runes[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := t.vocab[piece]; ok {
				ids = append(ids, int64(id))
				break
			}
		}
		if end == start {
			return nil
		}
		start = end
	}
	return ids
}

// meanPool averages hidden states over attended positions.
// hidden is laid out [seqLen][dims].
func meanPool(hidden []float32, seqLen, dims int, mask []int64) ([]float32, error) {
	if len(hidden) < seqLen*dims {
		return nil, fmt.Errorf("hidden state too short: %d < %d", len(hidden), seqLen*dims)
	}
	out := make([]float32, dims)
	var attended float32
	for i := 0; i < seqLen && i < len(mask); i++ {
		if mask[i] == 0 {
			continue
		}
		attended++
		row := hidden[i*dims : (i+1)*dims]
		for j, v := range row {
			out[j] += v
		}
	}
	if attended == 0 {
		return out, nil
	}
	for j := range out {
		out[j] /= attended
	}
	return out, nil
}
