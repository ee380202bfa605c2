package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"compliance-lab/internal/config"
	"compliance-lab/pkg/logger"
)

// RedisCache wraps the Redis client with typed operations
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	logger    *logger.Logger
}

// NewRedis creates a new Redis client
func NewRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*RedisCache, error) {
	log = log.WithComponent("redis")
	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("connecting to Redis")

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	log.Info().Msg("connected to Redis successfully")

	return NewWithClient(client, cfg.KeyPrefix, log), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, keyPrefix string, log *logger.Logger) *RedisCache {
	return &RedisCache{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    log,
	}
}

// Ping checks the connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	c.logger.Info().Msg("closing Redis connection")
	return c.client.Close()
}

func (c *RedisCache) key(k string) string {
	return c.keyPrefix + k
}

// GetJSON retrieves and unmarshals a JSON value from cache.
// A miss is reported as redis.Nil.
func (c *RedisCache) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// SetJSON marshals and stores a value in cache
func (c *RedisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

// Delete removes keys from cache
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixedKeys := make([]string, len(keys))
	for i, k := range keys {
		prefixedKeys[i] = c.key(k)
	}
	return c.client.Del(ctx, prefixedKeys...).Err()
}

// Cache key constants
const (
	KeyAnalyticsPrefix = "cache:analytics:"
	KeyRateLimitPrefix = "rate_limit:"
)

// AnalyticsKey returns the cache key for one analytics view
func AnalyticsKey(view string) string {
	return KeyAnalyticsPrefix + view
}

// IsMiss reports whether err is a cache miss
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}

// CheckRateLimit checks and increments a fixed-window counter.
// Returns (allowed, remaining, resetTime, error)
func (c *RedisCache) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, time.Time, error) {
	now := time.Now()
	windowStart := now.Unix() / int64(window.Seconds())
	windowKey := fmt.Sprintf("%s%s:%d", KeyRateLimitPrefix, key, windowStart)

	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, c.key(windowKey))
	pipe.Expire(ctx, c.key(windowKey), window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, time.Time{}, err
	}

	count := incr.Val()
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	resetTime := time.Unix((windowStart+1)*int64(window.Seconds()), 0)

	return count <= limit, remaining, resetTime, nil
}
