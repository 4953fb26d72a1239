package vector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Embedder produces an embedding vector for a piece of text.
type Embedder interface {
	CreateEmbedding(ctx context.Context, input string, model string) ([]float32, error)
}

// CachedEmbedder fronts an Embedder with a Redis cache keyed by a content
// hash of the input. Cache failures are tolerated: a broken or absent Redis
// degrades to computing every embedding.
type CachedEmbedder struct {
	inner  Embedder
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedEmbedder wraps inner with a Redis cache. A nil client disables
// caching entirely.
func NewCachedEmbedder(inner Embedder, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger.Named("embedding-cache"),
	}
}

var _ Embedder = (*CachedEmbedder)(nil)

// CreateEmbedding returns the cached vector for input when present,
// otherwise computes and caches it.
func (c *CachedEmbedder) CreateEmbedding(ctx context.Context, input string, model string) ([]float32, error) {
	if c.client == nil {
		return c.inner.CreateEmbedding(ctx, input, model)
	}

	key := cacheKey(input, model)

	cached, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var embedding []float32
		if jsonErr := json.Unmarshal(cached, &embedding); jsonErr == nil && len(embedding) > 0 {
			return embedding, nil
		}
		// Corrupt entry; fall through and recompute.
	} else if err != redis.Nil {
		c.logger.Warn("embedding cache read failed", zap.Error(err))
	}

	embedding, err := c.inner.CreateEmbedding(ctx, input, model)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(embedding)
	if err == nil {
		if setErr := c.client.Set(ctx, key, encoded, c.ttl).Err(); setErr != nil {
			c.logger.Warn("embedding cache write failed", zap.Error(setErr))
		}
	}

	return embedding, nil
}

// cacheKey hashes the input so arbitrary question text never becomes a raw
// Redis key.
func cacheKey(input string, model string) string {
	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf("embedding:%s:%s", model, hex.EncodeToString(sum[:]))
}
