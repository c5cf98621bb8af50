package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/ai-pro-cosmic-go/internal/config"
	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Service stores encoded page payloads for a fixed TTL.
type Service interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte) error
	// Clear drops every cached entry.
	Clear(ctx context.Context) error
}

// NewCache creates the backend selected by cfg.Type. A disabled cache never
// hits and drops every write.
func NewCache(cfg *config.CacheConfig, logger *logrus.Logger) (Service, error) {
	if !cfg.Enabled {
		return disabled{}, nil
	}

	switch cfg.Type {
	case "memory", "":
		return NewMemoryCache(cfg.TTL, cfg.CleanupInterval, logger), nil
	case "redis":
		return NewRedisCache(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

type disabled struct{}

func (disabled) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (disabled) Set(context.Context, string, []byte) error  { return nil }
func (disabled) Clear(context.Context) error                { return nil }

// MemoryCache keeps entries in process.
type MemoryCache struct {
	cache  *cache.Cache
	logger *logrus.Logger
}

// NewMemoryCache creates an in-process cache expiring entries after ttl.
func NewMemoryCache(ttl, cleanup time.Duration, logger *logrus.Logger) *MemoryCache {
	if cleanup <= 0 {
		cleanup = ttl * 2
	}
	return &MemoryCache{
		cache:  cache.New(ttl, cleanup),
		logger: logger,
	}
}

// Get returns the cached value for key.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, found := c.cache.Get(key)
	if !found {
		return nil, false
	}
	c.logger.WithField("key", key).Debug("Cache hit")
	return val.([]byte), true
}

// Set stores value under key with the default TTL.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte) error {
	c.cache.SetDefault(key, value)
	c.logger.WithField("key", key).Debug("Page cached")
	return nil
}

// Clear flushes every entry.
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.cache.Flush()
	c.logger.Info("Cache cleared")
	return nil
}

// RedisCache shares entries across instances under a key prefix.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *logrus.Logger
}

// NewRedisCache connects to redis and fails when it cannot be pinged.
func NewRedisCache(cfg *config.CacheConfig, logger *logrus.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{
		client: client,
		prefix: cfg.Redis.KeyPrefix,
		ttl:    cfg.TTL,
		logger: logger,
	}, nil
}

// Get returns the cached value for key. Read errors count as misses.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to read cache")
		return nil, false
	}
	return data, true
}

// Set stores value under the prefixed key with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	return c.client.Set(ctx, c.prefix+key, value, c.ttl).Err()
}

// Clear deletes every key under the prefix.
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return err
	}
	c.logger.WithField("keys", len(keys)).Info("Cache cleared")
	return nil
}

// Close releases the redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
