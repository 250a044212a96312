package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

type Cache interface {
	Set(ctx context.Context, key string, val string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(k string) string { return fmt.Sprintf("%s:%s", c.prefix, k) }

func (c *RedisCache) Set(ctx context.Context, key string, val string, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(key), val, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	s, err := c.client.Get(ctx, c.key(key)).Result()
	if err == redis.Nil {
		return "", ErrCacheMiss
	}
	return s, err
}
