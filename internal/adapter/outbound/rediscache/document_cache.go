// Package rediscache shares fetched OpenAPI documents between adapter
// instances through Redis.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/port/outbound"
)

// DefaultKeyPrefix namespaces document keys.
const DefaultKeyPrefix = "unified-adapter:openapi:"

// DocumentCache implements outbound.DocumentCache on Redis. Keys are the
// prefix followed by the xxhash of the document URL.
type DocumentCache struct {
	client *redis.Client
	prefix string
}

// Options configures the Redis connection.
type Options struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, opts Options) (*DocumentCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	return NewWithClient(client, opts.KeyPrefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string) *DocumentCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &DocumentCache{client: client, prefix: prefix}
}

// Key returns the Redis key for a document URL.
func (c *DocumentCache) Key(url string) string {
	return c.prefix + strconv.FormatUint(xxhash.Sum64String(url), 16)
}

// Get returns the cached document body.
func (c *DocumentCache) Get(ctx context.Context, url string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.Key(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

// Set stores a document body with a TTL.
func (c *DocumentCache) Set(ctx context.Context, url string, data []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.Key(url), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (c *DocumentCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (c *DocumentCache) Close() error {
	return c.client.Close()
}

// Compile-time interface verification.
var _ outbound.DocumentCache = (*DocumentCache)(nil)
