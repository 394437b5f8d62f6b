package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const embedCacheKeyPrefix = "embed_cache"

// cachedEmbedder fronts an Embedder with a Redis cache keyed by
// provider/model/content hash. Repeated query embeddings (the common case
// during evaluations) skip the provider entirely. Cache failures degrade to
// the inner embedder, never to an error.
type cachedEmbedder struct {
	inner    Embedder
	provider string
	redis    *redis.Client
	ttl      time.Duration
}

func newCachedEmbedder(inner Embedder, provider string, redisClient *redis.Client, ttl time.Duration) *cachedEmbedder {
	return &cachedEmbedder{
		inner:    inner,
		provider: provider,
		redis:    redisClient,
		ttl:      ttl,
	}
}

type cachedVector struct {
	Vector    []float32 `json:"vector"`
	Dimension int       `json:"dimension"`
}

func (c *cachedEmbedder) key(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s:%s:%s:%s", embedCacheKeyPrefix, c.provider, model, hex.EncodeToString(sum[:]))
}

func (c *cachedEmbedder) Embed(ctx context.Context, model string, texts []string) (*EmbedResult, error) {
	vectors := make([][]float32, len(texts))
	dim := 0

	var missed []string
	var missedIdx []int
	for i, text := range texts {
		data, err := c.redis.Get(ctx, c.key(model, text)).Bytes()
		if err == nil {
			var entry cachedVector
			if json.Unmarshal(data, &entry) == nil && len(entry.Vector) > 0 {
				vectors[i] = entry.Vector
				dim = entry.Dimension
				continue
			}
		}
		missed = append(missed, text)
		missedIdx = append(missedIdx, i)
	}

	tokenCount := 0
	if len(missed) > 0 {
		result, err := c.inner.Embed(ctx, model, missed)
		if err != nil {
			return nil, err
		}
		tokenCount = result.TokenCount
		dim = result.Dimension

		for j, vec := range result.Vectors {
			vectors[missedIdx[j]] = vec
			if data, err := json.Marshal(cachedVector{Vector: vec, Dimension: result.Dimension}); err == nil {
				// Best effort; a failed write just means a future miss.
				c.redis.Set(ctx, c.key(model, missed[j]), data, c.ttl)
			}
		}
	}

	return &EmbedResult{
		Vectors:    vectors,
		Dimension:  dim,
		TokenCount: tokenCount,
	}, nil
}
