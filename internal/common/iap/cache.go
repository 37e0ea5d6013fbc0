package iap

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"purchase-sync/internal/common/logger"
	"purchase-sync/internal/common/metrics"
	"purchase-sync/internal/models"
)

const DefaultOfferingsCacheKey = "iap:offerings"

// CachedClient serves FetchOfferings from Redis when possible. Customer
// snapshots always go to the vendor; only the catalog is cached.
type CachedClient struct {
	Client
	redis  *redis.Client
	key    string
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedClient(inner Client, rdb *redis.Client, ttl time.Duration, log logger.Logger) *CachedClient {
	return &CachedClient{
		Client: inner,
		redis:  rdb,
		key:    DefaultOfferingsCacheKey,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "offerings-cache"}),
	}
}

// WithKey scopes the cache entry, e.g. per project or locale.
func (c *CachedClient) WithKey(key string) *CachedClient {
	c.key = key
	return c
}

func (c *CachedClient) FetchOfferings(ctx context.Context) (*models.Offerings, error) {
	val, err := c.redis.Get(ctx, c.key).Result()
	switch {
	case err == nil:
		var cached models.Offerings
		if jsonErr := json.Unmarshal([]byte(val), &cached); jsonErr == nil {
			relinkCurrent(&cached)
			metrics.OfferingsCacheRequests.WithLabelValues("hit").Inc()
			return &cached, nil
		}
		c.logger.Warn("discarding unreadable cached offerings", map[string]interface{}{"key": c.key})
	case errors.Is(err, redis.Nil):
		// miss
	default:
		c.logger.Warn("offerings cache read failed", map[string]interface{}{"error": err.Error()})
	}
	metrics.OfferingsCacheRequests.WithLabelValues("miss").Inc()

	offerings, err := c.Client.FetchOfferings(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(offerings)
	if err == nil {
		if setErr := c.redis.Set(ctx, c.key, data, c.ttl).Err(); setErr != nil {
			c.logger.Warn("offerings cache write failed", map[string]interface{}{"error": setErr.Error()})
		}
	}
	return offerings, nil
}

// Invalidate drops the cached catalog.
func (c *CachedClient) Invalidate(ctx context.Context) error {
	return c.redis.Del(ctx, c.key).Err()
}

// relinkCurrent points Current back into All after a JSON round trip so both
// refer to the same offering.
func relinkCurrent(o *models.Offerings) {
	if o.Current == nil || o.All == nil {
		return
	}
	if same, ok := o.All[o.Current.Identifier]; ok {
		o.Current = same
	}
}
