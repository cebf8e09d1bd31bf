package identity

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gatekeeper/internal/core/ports"
	localcache "gatekeeper/pkg/cache"
)

const redisKeyPrefix = "gatekeeper:display_name:"

// RedisNameCache caches display names in Redis so they survive restarts
// and are shared between content generations.
type RedisNameCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewRedisNameCache connects to Redis; a failed ping returns an error and
// the caller is expected to fall back to the in-memory cache.
func NewRedisNameCache(address, password string, db, poolSize int, ttl time.Duration, logger *zap.SugaredLogger) (*RedisNameCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         address,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	logger.Infow("connected to Redis for display name cache", "address", address, "db", db)
	return &RedisNameCache{client: client, ttl: ttl, logger: logger}, nil
}

var _ ports.DisplayNameCache = (*RedisNameCache)(nil)

func (c *RedisNameCache) Get(ctx context.Context, externalID string) (string, bool) {
	value, err := c.client.Get(ctx, redisKeyPrefix+externalID).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warnw("display name cache read failed", "external_id", externalID, "error", err)
		}
		return "", false
	}
	return value, true
}

func (c *RedisNameCache) Set(ctx context.Context, externalID, displayName string) {
	if err := c.client.Set(ctx, redisKeyPrefix+externalID, displayName, c.ttl).Err(); err != nil {
		c.logger.Warnw("display name cache write failed", "external_id", externalID, "error", err)
	}
}

// Client exposes the underlying connection for health checks.
func (c *RedisNameCache) Client() *redis.Client {
	return c.client
}

// Close releases the Redis connection.
func (c *RedisNameCache) Close() error {
	return c.client.Close()
}

// MemoryNameCache is the in-process fallback cache.
type MemoryNameCache struct {
	cache *localcache.StringCache
}

func NewMemoryNameCache(ttl time.Duration) *MemoryNameCache {
	return &MemoryNameCache{cache: localcache.New(ttl)}
}

var _ ports.DisplayNameCache = (*MemoryNameCache)(nil)

func (c *MemoryNameCache) Get(ctx context.Context, externalID string) (string, bool) {
	return c.cache.Get(externalID)
}

func (c *MemoryNameCache) Set(ctx context.Context, externalID, displayName string) {
	c.cache.Set(externalID, displayName)
}

// Stop terminates the cleanup goroutine of the underlying cache.
func (c *MemoryNameCache) Stop() {
	c.cache.Stop()
}
