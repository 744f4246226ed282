package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"dupguard/internal/adapter/logging"
	"dupguard/internal/port"
)

// NewCached wraps e with an expiring LRU. A non-positive size or ttl
// returns e unchanged.
func NewCached(e port.Embedder, size int, ttl time.Duration) port.Embedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &cachedEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type cachedEmbedder struct {
	next  port.Embedder
	cache *expirable.LRU[string, []float32]
}

func (c *cachedEmbedder) Embed(ctx context.Context, text, language string) ([]float32, error) {
	key := cacheKey(c.next.ModelName(), language, text)
	if cached, ok := c.cache.Get(key); ok {
		logging.FromContext(ctx).Debug("embedding cache hit", zap.String("language", language))
		return cloneEmbedding(cached), nil
	}
	res, err := c.next.Embed(ctx, text, language)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, cloneEmbedding(res))
	return res, nil
}

func (c *cachedEmbedder) Dimension() int {
	return c.next.Dimension()
}

func (c *cachedEmbedder) ModelName() string {
	return c.next.ModelName()
}

func cacheKey(model, language, text string) string {
	sum := sha256.Sum256([]byte(text))
	return model + ":" + language + ":" + hex.EncodeToString(sum[:])
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
