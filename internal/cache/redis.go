package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisKey is the default key used to store the rate snapshot in Redis.
	DefaultRedisKey = "pricecatalog:currency_rates"

	// DefaultRedisTTL is the default time-to-live for the cached snapshot (24 hours).
	DefaultRedisTTL = 24 * time.Hour
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379" or "redis://:password@host:6379/0")
	URL string

	// Key is the Redis key holding the snapshot (defaults to DefaultRedisKey)
	Key string

	// TTL is the time-to-live for cached data (defaults to 24 hours)
	TTL time.Duration
}

// RedisCache implements Cache using Redis for distributed storage.
// Instances behind a load balancer share one snapshot.
type RedisCache struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedisCache creates a new Redis-based cache and verifies the connection.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	c := newRedisCache(client, cfg.Key, cfg.TTL)
	slog.Info("redis cache connected", "key", c.key, "ttl", c.ttl)
	return c, nil
}

func newRedisCache(client redis.UniversalClient, key string, ttl time.Duration) *RedisCache {
	if key == "" {
		key = DefaultRedisKey
	}
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisCache{
		client: client,
		key:    key,
		ttl:    ttl,
	}
}

// Get retrieves the rate snapshot from Redis.
func (c *RedisCache) Get(ctx context.Context) (*RateSnapshot, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache from redis: %w", err)
	}

	snapshot, err := decodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("redis key %s: %w", c.key, err)
	}
	return snapshot, nil
}

// Set stores the rate snapshot in Redis.
func (c *RedisCache) Set(ctx context.Context, snapshot *RateSnapshot) error {
	stamped := *snapshot
	stamped.Version = SnapshotVersion
	data, err := json.Marshal(stamped)
	if err != nil {
		return fmt.Errorf("failed to marshal rate snapshot: %w", err)
	}

	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache in redis: %w", err)
	}

	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
