package embedding

import (
	"context"
	"hash/fnv"

	"github.com/engramdev/engram/pkg/vmath"
)

// Local is a deterministic, dependency-free embedding provider. Vectors
// are derived from an FNV hash of the text expanded through an LCG, then
// unit-normalized. Identical input always yields the identical vector, so
// it doubles as the offline fallback and the test embedder.
type Local struct {
	dim int
}

// NewLocal creates a local provider producing vectors of length dim.
func NewLocal(dim int) *Local {
	if dim <= 0 {
		dim = 384
	}
	return &Local{dim: dim}
}

func (l *Local) Dimensions() int { return l.dim }

func (l *Local) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, l.dim)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(1<<63)
	}
	return vmath.Normalize(vec), nil
}

func (l *Local) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := l.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}
