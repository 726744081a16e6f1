package bundle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "iconforge/archive/"

// CacheKey identifies an archive by the hash of its source image and the
// ordered platform list
func CacheKey(src []byte, ids []string) string {
	hash := sha256.Sum256(src)
	return hex.EncodeToString(hash[:]) + "/" + strings.Join(ids, ",")
}

// RedisCache implements Cache on top of Redis with a fixed TTL
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates an archive cache from an existing client
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
	}
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Ping tests the Redis connection
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func buildKey(key string) string {
	return cacheKeyPrefix + key
}

// Get retrieves an archive from the cache
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	cacheKey := buildKey(key)

	data, err := r.client.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get key %s from Redis: %w", cacheKey, err)
	}

	return data, true, nil
}

// Set stores an archive with the cache TTL
func (r *RedisCache) Set(ctx context.Context, key string, data []byte) error {
	cacheKey := buildKey(key)

	if err := r.client.Set(ctx, cacheKey, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s in Redis: %w", cacheKey, err)
	}

	return nil
}

// Stats returns the number of cached archives
func (r *RedisCache) Stats(ctx context.Context) (int64, error) {
	pattern := cacheKeyPrefix + "*"

	var count int64
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()

	for iter.Next(ctx) {
		count++
	}

	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to count keys with pattern %s: %w", pattern, err)
	}

	return count, nil
}
