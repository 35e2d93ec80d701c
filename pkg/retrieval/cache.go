package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EmbeddingCache caches query vectors keyed by the text they embed. A cache
// miss or failure is never an error; callers fall through to the provider.
type EmbeddingCache interface {
	Get(ctx context.Context, text string) ([]float32, bool)
	Put(ctx context.Context, text string, vector []float32)
}

const embeddingCacheTTL = 24 * time.Hour

// redisCache stores embedding vectors in redis. The same text always embeds
// to the same vector for a given model, so entries are keyed by a hash of
// the text and expire rather than invalidate.
type redisCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisCache wraps a redis client as an embedding cache. Returns nil when
// the client is nil so callers can wire the optional dependency directly.
func NewRedisCache(client *redis.Client, logger *zap.Logger) EmbeddingCache {
	if client == nil {
		return nil
	}
	return &redisCache{
		client: client,
		logger: logger.Named("embedding_cache"),
	}
}

func (c *redisCache) Get(ctx context.Context, text string) ([]float32, bool) {
	payload, err := c.client.Get(ctx, cacheKey(text)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("embedding cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var vector []float32
	if err := json.Unmarshal(payload, &vector); err != nil {
		c.logger.Debug("embedding cache entry corrupt, ignoring", zap.Error(err))
		return nil, false
	}
	return vector, true
}

func (c *redisCache) Put(ctx context.Context, text string, vector []float32) {
	payload, err := json.Marshal(vector)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(text), payload, embeddingCacheTTL).Err(); err != nil {
		c.logger.Debug("embedding cache write failed", zap.Error(err))
	}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "lineage:emb:" + hex.EncodeToString(sum[:])
}
