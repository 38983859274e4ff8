// Package embedder holds helpers shared by the memory.Embedder
// implementations in its subpackages.
package embedder

import "math"

// Normalize returns vec scaled to unit length. A zero vector is returned
// unchanged.
func Normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}

	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v / norm
	}

	return normalized
}
