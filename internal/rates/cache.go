package rates

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/icpay/backend/internal/models"
)

// RedisCache holds the single current rate entry per currency, keyed
// rate:<CCY>. Entries are overwritten on refresh and carry no TTL: even an
// old entry is useful as a stale fallback.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, currency string) (*models.ExchangeRate, error) {
	val, err := c.rdb.Get(ctx, cacheKey(currency)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rate models.ExchangeRate
	if err := json.Unmarshal([]byte(val), &rate); err != nil {
		return nil, err
	}
	return &rate, nil
}

func (c *RedisCache) Set(ctx context.Context, rate *models.ExchangeRate) error {
	data, err := json.Marshal(rate)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, cacheKey(rate.Currency), data, 0).Err()
}

func cacheKey(currency string) string {
	return "rate:" + currency
}
