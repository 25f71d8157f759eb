package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/healthbridge/platform/pkg/common/logger"
)

const resultCachePrefix = "healthbridge:"

// redisKV is the part of the redis client the cache needs.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// ResultCache keeps serialised pipeline results in Redis keyed by content hash.
type ResultCache struct {
	client redisKV
	ttl    time.Duration
}

func NewResultCache(client redisKV, ttl time.Duration) *ResultCache {
	return &ResultCache{client: client, ttl: ttl}
}

func (c *ResultCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, resultCachePrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	logger.Log.WithField("key", key).Debug("result cache hit")
	return data, true, nil
}

func (c *ResultCache) Set(ctx context.Context, key string, value []byte) error {
	return c.client.Set(ctx, resultCachePrefix+key, value, c.ttl).Err()
}
