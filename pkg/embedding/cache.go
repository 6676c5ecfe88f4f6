package embedding

import (
	"context"

	"github.com/dgraph-io/ristretto"
)

// Cached is a read-through cache in front of another Provider. Repeated
// retrieval objectives and re-written snippets hit the same texts often
// enough that skipping the network round trip is worth the memory.
type Cached struct {
	inner Provider
	cache *ristretto.Cache
}

// NewCached wraps inner with an in-process cache of roughly maxBytes of
// vectors. maxBytes <= 0 defaults to 64 MiB.
func NewCached(inner Provider, maxBytes int64) (*Cached, error) {
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) Dimensions() int { return c.inner.Dimensions() }

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec, int64(len(vec)*4))
	return vec, nil
}

func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	// Collect only the misses for the upstream batch call.
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			if vec, ok := v.([]float32); ok {
				out[i] = vec
				continue
			}
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for i, vec := range vecs {
		idx := missingIdx[i]
		out[idx] = vec
		c.cache.Set(texts[idx], vec, int64(len(vec)*4))
	}
	return out, nil
}

// Close releases the cache's internal goroutines.
func (c *Cached) Close() {
	c.cache.Close()
}
