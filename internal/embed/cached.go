package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of query embeddings kept in memory.
// At 1024 dimensions x 4 bytes x 1024 entries that is about 4MB.
const DefaultCacheSize = 1024

// CachedEmbedder wraps an Embedder with an LRU so repeated queries skip
// re-embedding. Intended for the search path; document embedding goes
// through the inner embedder directly via EmbedBatch.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps inner with a cache of the given size
// (DefaultCacheSize if size <= 0).
func NewCachedEmbedder(inner Embedder, size int) *CachedEmbedder {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &CachedEmbedder{inner: inner, cache: cache}
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + c.inner.ModelName()))
	return hex.EncodeToString(sum[:])
}

// Embed returns the cached embedding when available.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch delegates to the inner embedder; batch inputs are document
// chunks that rarely repeat, so they bypass the cache.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedBatch(ctx, texts)
}

// Dimensions returns the inner embedder's dimensionality.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// ModelName returns the inner embedder's model name.
func (c *CachedEmbedder) ModelName() string { return c.inner.ModelName() }

// Close closes the inner embedder.
func (c *CachedEmbedder) Close() error { return c.inner.Close() }

var _ Embedder = (*CachedEmbedder)(nil)
