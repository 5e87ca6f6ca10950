package rates

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// redisKeyPrefix namespaces rate entries: rates:{key} -> "350.5".
const redisKeyPrefix = "rates:"

// RedisCache is a Cache shared by every API instance.
type RedisCache struct {
	rdb redis.UniversalClient
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache creates a Cache on top of the given client.
func NewRedisCache(rdb redis.UniversalClient) *RedisCache {
	return &RedisCache{rdb: rdb}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (decimal.Decimal, bool, error) {
	s, err := c.rdb.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, errors.Wrap(err, "get")
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, errors.Wrapf(err, "decode %q", s)
	}
	return v, true, nil
}

// Set implements Cache. A zero ttl stores the entry without expiration.
func (c *RedisCache) Set(ctx context.Context, key string, v decimal.Decimal, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, redisKeyPrefix+key, v.String(), ttl).Err(); err != nil {
		return errors.Wrap(err, "set")
	}
	return nil
}
