package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/makkenzo/prospect-enrichment-api/internal/domain/enrichment"
	"github.com/makkenzo/prospect-enrichment-api/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cachePrefix = "enrich:v1:"

type Enricher interface {
	Enrich(ctx context.Context, req enrichment.Request) (*enrichment.Result, error)
}

// EnrichmentCache stores definitive lookup answers in Redis in front of an
// Enricher. Failures of the lookup machinery are never cached. Redis errors
// degrade to a pass-through.
type EnrichmentCache struct {
	next        Enricher
	client      redis.Cmdable
	ttl         time.Duration
	notFoundTTL time.Duration
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func NewEnrichmentCache(next Enricher, client redis.Cmdable, ttl, notFoundTTL time.Duration, m *metrics.Metrics, logger *zap.Logger) *EnrichmentCache {
	return &EnrichmentCache{
		next:        next,
		client:      client,
		ttl:         ttl,
		notFoundTTL: notFoundTTL,
		metrics:     m,
		logger:      logger.Named("EnrichmentCache"),
	}
}

func (c *EnrichmentCache) Enrich(ctx context.Context, req enrichment.Request) (*enrichment.Result, error) {
	if err := req.Validate(); err != nil {
		return c.next.Enrich(ctx, req)
	}
	key := CacheKey(req)

	if res, ok := c.get(ctx, key); ok {
		c.metrics.CacheLookup(true)
		return res, nil
	}
	c.metrics.CacheLookup(false)

	res, err := c.next.Enrich(ctx, req)
	if err != nil || res == nil {
		return res, err
	}
	if ttl := c.ttlFor(res); ttl > 0 {
		c.set(ctx, key, res, ttl)
	}
	return res, nil
}

// CacheKey hashes the category and the normalized query so raw URLs and
// names do not appear in Redis keys.
func CacheKey(req enrichment.Request) string {
	sum := sha256.Sum256([]byte(string(req.Category) + "\n" + req.Query.CacheKey()))
	return cachePrefix + hex.EncodeToString(sum[:])
}

func (c *EnrichmentCache) ttlFor(res *enrichment.Result) time.Duration {
	switch {
	case !res.ErrorKind.Definitive():
		return 0
	case res.Success:
		return c.ttl
	default:
		return c.notFoundTTL
	}
}

func (c *EnrichmentCache) get(ctx context.Context, key string) (*enrichment.Result, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var res enrichment.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		c.logger.Warn("Dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = c.client.Del(ctx, key).Err()
		return nil, false
	}
	return &res, true
}

// set stores the answer without the key that produced it. The key may be
// deleted long before the entry expires, and a hit consumes no key.
func (c *EnrichmentCache) set(ctx context.Context, key string, res *enrichment.Result, ttl time.Duration) {
	entry := *res
	entry.KeyID = nil
	entry.KeySuffix = ""
	entry.CreditsRemaining = nil

	raw, err := json.Marshal(&entry)
	if err != nil {
		c.logger.Error("Failed to encode result for cache", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.logger.Warn("Cache write failed", zap.Error(err))
	}
}
