// Package embedding defines the abstract embedding capability the index
// depends on: turn text into a fixed-length vector, or report that the
// provider is unavailable. Everything that consumes it (sync, search)
// degrades to a no-op when the provider is not configured.
package embedding

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedder.go -package=mocks memorybank/internal/embedding Embedder

import (
	"context"
	"math"
)

// Embedder is the embedding capability consumed by the index and search.
type Embedder interface {
	// IsConfigured reports whether the provider can serve requests. When
	// false, Embed and EmbedBatch must not be called; callers degrade
	// instead of erroring.
	IsConfigured() bool
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input text. A nil entry represents
	// a per-item failure, not a whole-batch failure.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Cosine computes the cosine similarity of two vectors: their dot product
// divided by the product of their magnitudes. Mismatched or zero-magnitude
// vectors score 0 rather than erroring.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
