// Package redis caches rendered content HTML in Redis.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/mlr-content/pkg/mlrcontent"
)

const (
	DefaultTTL       = 10 * time.Minute
	DefaultKeyPrefix = "mlr:html:"
)

// Config configures the cache
type Config struct {
	TTL       time.Duration
	KeyPrefix string
}

// Cache implements mlrcontent.HTMLCache
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

var _ mlrcontent.HTMLCache = (*Cache)(nil)

// New wraps an existing client.
func New(client *redis.Client, config Config) *Cache {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultKeyPrefix
	}
	return &Cache{client: client, ttl: config.TTL, prefix: config.KeyPrefix}
}

// Connect dials addr and verifies the connection with PING.
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (c *Cache) key(id uuid.UUID) string {
	return c.prefix + id.String()
}

// Get returns the cached HTML for id. A miss is not an error.
func (c *Cache) Get(ctx context.Context, id uuid.UUID) (string, bool, error) {
	html, err := c.client.Get(ctx, c.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return html, true, nil
}

// Set caches html for the configured TTL
func (c *Cache) Set(ctx context.Context, id uuid.UUID, html string) error {
	return c.client.Set(ctx, c.key(id), html, c.ttl).Err()
}

// Delete evicts id
func (c *Cache) Delete(ctx context.Context, id uuid.UUID) error {
	return c.client.Del(ctx, c.key(id)).Err()
}
