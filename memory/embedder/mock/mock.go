// Package mock provides a deterministic embedder for tests: embeddings
// are derived from a hash of the text, so identical inputs always map
// to identical vectors without any model files.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder generates hash-seeded pseudo-random unit vectors.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder sized like the MiniLM sentence
// transformers, so it drops into the same collections.
func New() *Embedder {
	return &Embedder{dimensions: 384}
}

// Embed hashes the text into a seed and expands it through an LCG, so
// equal inputs always produce equal vectors.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, e.dimensions)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec), nil
}

// Dimensions reports the vector width.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

func normalize(vec []float32) []float32 {
	var sum float32
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(float64(sum)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
