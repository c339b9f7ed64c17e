// Package cache fournit le cache partagé de régénération d'URLs médias.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache ouvre un client Redis. La TTL s'applique à toutes les entrées.
func NewRedisCache(addr string, ttl time.Duration) Cache {
	return &redisCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

func (c *redisCache) Get(ctx context.Context, key string) (string, bool) {
	v, err := c.client.Get(ctx, key).Result()
	if err != nil {
		// redis.Nil ou cache indisponible : on régénère, jamais bloquant.
		return "", false
	}
	return v, true
}

func (c *redisCache) Set(ctx context.Context, key, value string) {
	c.client.Set(ctx, key, value, c.ttl)
}

// Noop est un cache inactif, utilisé quand CACHE_ENABLED=false.
type Noop struct{}

func (Noop) Get(ctx context.Context, key string) (string, bool) { return "", false }
func (Noop) Set(ctx context.Context, key, value string)         {}
