package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/syurodev/system/query/executor"
)

// RedisCache stores rows as JSON in Redis. Values come back with JSON
// types: numbers as float64 and times as RFC 3339 strings.
type RedisCache struct {
	rdb        *redis.Client
	defaultTTL time.Duration
	namespace  string
	hits       atomic.Int64
	misses     atomic.Int64
}

// NewRedisCache wraps an existing client. namespace prefixes every key.
func NewRedisCache(rdb *redis.Client, namespace string, defaultTTL time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, namespace: namespace, defaultTTL: defaultTTL}
}

// OpenRedisCache parses a redis:// URL, connects and pings the server.
func OpenRedisCache(ctx context.Context, url, namespace string, defaultTTL time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("could not parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not reach redis: %w", err)
	}
	return NewRedisCache(rdb, namespace, defaultTTL), nil
}

func (c *RedisCache) key(key string) string {
	return c.namespace + key
}

// Get reads and decodes the row stored under key.
func (c *RedisCache) Get(ctx context.Context, key string) (executor.RawRow, bool, error) {
	data, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var row executor.RawRow
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, false, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	c.hits.Add(1)
	return row, true, nil
}

// Set encodes row and stores it under key.
func (c *RedisCache) Set(ctx context.Context, key string, row executor.RawRow, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if ttl < 0 {
		ttl = 0
	}
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(key), data, ttl).Err()
}

// Invalidate deletes key.
func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.key(key)).Err()
}

// InvalidatePrefix scans for keys starting with prefix and deletes them.
func (c *RedisCache) InvalidatePrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, c.key(prefix)+"*", 1000).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Stats returns hit and miss counters for this process.
func (c *RedisCache) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	return Stats{Hits: hits, Misses: misses, HitRate: hitRate(hits, misses)}
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
