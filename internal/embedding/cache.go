package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// CachedEmbedder memoizes another embedder's vectors in an expiring LRU keyed by text hash.
type CachedEmbedder struct {
	next   Embedder
	cache  *expirable.LRU[string, []float32]
	logger *zap.Logger
}

// NewCachedEmbedder wraps next. A non-positive size disables caching and returns next unchanged.
// A non-positive ttl keeps entries until evicted by size.
func NewCachedEmbedder(next Embedder, size int, ttl time.Duration, logger *zap.Logger) Embedder {
	if next == nil || size <= 0 {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		next:   next,
		cache:  expirable.NewLRU[string, []float32](size, nil, ttl),
		logger: logger,
	}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func cloneEmbedding(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

// Embed returns a cached vector or computes and stores one.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if v, ok := c.cache.Get(key); ok {
		c.logger.Debug("embedding cache hit")
		return cloneEmbedding(v), nil
	}
	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, cloneEmbedding(v))
	return v, nil
}

// EmbedBatch serves cached texts locally and sends only the misses upstream, in one batch.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missTexts []string
		missIdx   []int
	)
	for i, t := range texts {
		if v, ok := c.cache.Get(cacheKey(t)); ok {
			out[i] = cloneEmbedding(v)
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	vecs, err := c.next.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if err := checkBatch(missTexts, vecs); err != nil {
		return nil, err
	}
	for j, v := range vecs {
		out[missIdx[j]] = v
		c.cache.Add(cacheKey(missTexts[j]), cloneEmbedding(v))
	}
	return out, nil
}

// Dimensions returns the wrapped embedder's dimension.
func (c *CachedEmbedder) Dimensions() int {
	return c.next.Dimensions()
}

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}

// Close purges the cache and closes the wrapped embedder.
func (c *CachedEmbedder) Close() error {
	c.cache.Purge()
	return c.next.Close()
}
