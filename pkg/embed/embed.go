// Package embed provides text embedding for the memory core.
//
// An Embedder converts memory content into dense vector representations
// used for similarity search against the backing store's vector index.
//
// # Implementations
//
//   - [OpenAI] - the OpenAI embeddings API, or any compatible endpoint
//   - [Ollama] - a local Ollama server (nomic-embed-text and friends)
//
// Results can be cached in memory with [Cache] or persistently with
// [BadgerCache]; both key on a hash of the input text so repeated writes
// of identical content never hit the API twice.
package embed

import (
	"context"
	"errors"
	"math"
)

// Embedder converts text into dense float32 vectors.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embedding vectors for multiple texts.
	// Implementations may split large batches into smaller API calls
	// transparently.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimensionality of the output vectors.
	Dimension() int
}

// Common errors.
var (
	// ErrEmptyInput is returned when the input text is empty.
	ErrEmptyInput = errors.New("embed: empty input")
)

// Cosine returns the cosine similarity of a and b, clamped to [-1, 1].
// Mismatched lengths and zero-norm vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, sim))
}
