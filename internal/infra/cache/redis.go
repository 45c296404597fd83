package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"boxd-notifier/internal/domain"
	"boxd-notifier/internal/infra/metrics"
)

// RedisCache реализует domain.Cache через Redis.
type RedisCache struct {
	client redis.Cmdable
}

var _ domain.Cache = (*RedisCache)(nil)

// NewRedis создаёт кэш.
func NewRedis(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client}
}

// Connect подключается к Redis и проверяет соединение.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	start := time.Now()
	err := client.Ping(ctx).Err()
	metrics.ObserveNetworkRequest("redis", "ping", addr, start, err)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Set задаёт значение.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.client.Set(ctx, key, value, ttl).Err()
	metrics.ObserveNetworkRequest("redis", "set", "cache", start, err)
	return err
}

// Get возвращает значение. Отсутствующий ключ даёт domain.ErrNotFound.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	value, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.ObserveNetworkRequest("redis", "get", "cache", start, nil)
		return nil, domain.ErrNotFound
	}
	metrics.ObserveNetworkRequest("redis", "get", "cache", start, err)
	return value, err
}
