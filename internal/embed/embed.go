// Package embed defines the embedding interface the vector pipeline builds
// on, plus the bundled deterministic embedder. The production model runtime
// is a black box behind Embedder; everything downstream only assumes it
// emits unit-norm vectors of a fixed dimensionality.
package embed

import (
	"context"
	"math"
)

// Dimensions is the embedding dimensionality the vector index is built
// for. Initialization fails if an embedder reports anything else.
const Dimensions = 1024

// BatchSize is the number of chunks embedded per inference call.
const BatchSize = 32

// QueryInstruction is prepended to search queries. The embedding model is
// instruction-aware: queries carry the prefix, documents are embedded raw.
const QueryInstruction = "Instruct: Retrieve semantically similar source code or documentation\nQuery: "

// Embedder generates unit-norm vector embeddings for text.
type Embedder interface {
	// EmbedBatch embeds texts, returning one unit vector per input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Embed embeds a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimensionality.
	Dimensions() int

	// ModelName identifies the model for cache keying.
	ModelName() string

	// Close releases resources.
	Close() error
}

// normalize scales v to unit length in place. Zero vectors are left as-is.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
