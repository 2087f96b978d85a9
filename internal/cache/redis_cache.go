package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vasilistotskas/recommendation-engine/internal/observability"
)

// RedisCache implements Cache against a single Redis instance,
// grounded on the teacher's pkg/cache.RedisCache. Dropped the
// teacher's UseIAMAuth/TLS branch: no SPEC_FULL.md component
// authenticates to a managed Redis offering, only a plain instance
// reachable by address.
type RedisCache struct {
	client *redis.Client
	logger observability.Logger
}

// NewRedisCache dials Redis and verifies connectivity with a bounded
// Ping, same as the teacher's constructor.
func NewRedisCache(cfg RedisConfig, logger observability.Logger) (*RedisCache, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client, logger: logger}, nil
}

// NewRedisCacheFromClient wraps an already-constructed client (used by
// tests against a miniredis instance).
func NewRedisCacheFromClient(client *redis.Client, logger observability.Logger) *RedisCache {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &RedisCache{client: client, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string, value interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get value from cache: %w", err)
	}
	if err := json.Unmarshal(data, value); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set value in cache: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete value from cache: %w", err)
	}
	return nil
}

// DeletePattern scans and deletes every key matching pattern, used by
// the model updater to invalidate `rec:{user}:*` and
// `trending:{tenant}:*` key families. Grounded on the teacher's
// Service.InvalidatePattern Redis branch.
func (c *RedisCache) DeletePattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Warn("failed to delete matched cache key", map[string]interface{}{
				"error": err.Error(),
				"key":   iter.Val(),
			})
		}
	}
	return iter.Err()
}

func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	result, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check if key exists: %w", err)
	}
	return result > 0, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
