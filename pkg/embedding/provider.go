// Package embedding turns text into unit-length vectors. A remote
// OpenAI-compatible client and a deterministic local fallback implement
// the same Provider interface; a ristretto-backed cache can wrap either.
package embedding

import (
	"context"
	"errors"
)

// Common errors.
var (
	ErrEmptyInput = errors.New("embedding input is empty")
)

// Provider generates embeddings. Every returned vector is unit-normalized
// regardless of what the underlying source produced. Implementations must
// be safe for concurrent use.
type Provider interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embeddings for texts, same length and order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions reports the vector length this provider produces.
	Dimensions() int
}
