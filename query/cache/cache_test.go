package cache_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syurodev/system/query/cache"
	"github.com/syurodev/system/query/executor"
)

func TestLRUCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := cache.NewLRUCache(2, 0)

	require.NoError(t, c.Set(ctx, cache.Key("users", "1"), executor.RawRow{"id": "1"}, 0))
	row, ok, err := c.Get(ctx, cache.Key("users", "1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", row["id"])

	row["id"] = "mutated"
	again, _, _ := c.Get(ctx, cache.Key("users", "1"))
	assert.Equal(t, "1", again["id"], "callers get copies")

	_, ok, _ = c.Get(ctx, cache.Key("users", "2"))
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestLRUCache_Eviction(t *testing.T) {
	ctx := context.Background()
	c := cache.NewLRUCache(2, 0)

	require.NoError(t, c.Set(ctx, "a", executor.RawRow{"v": 1}, 0))
	require.NoError(t, c.Set(ctx, "b", executor.RawRow{"v": 2}, 0))
	_, _, _ = c.Get(ctx, "a")
	require.NoError(t, c.Set(ctx, "c", executor.RawRow{"v": 3}, 0))

	_, ok, _ := c.Get(ctx, "b")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok, _ = c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Evictions)
	assert.Equal(t, 2, c.Stats().Size)
}

func TestLRUCache_TTL(t *testing.T) {
	ctx := context.Background()
	c := cache.NewLRUCache(10, time.Millisecond)

	require.NoError(t, c.Set(ctx, "a", executor.RawRow{"v": 1}, 0))
	require.NoError(t, c.Set(ctx, "b", executor.RawRow{"v": 2}, -1))
	time.Sleep(5 * time.Millisecond)

	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "b")
	assert.True(t, ok, "negative ttl never expires")
}

func TestLRUCache_InvalidatePrefix(t *testing.T) {
	ctx := context.Background()
	c := cache.NewLRUCache(10, 0)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Set(ctx, cache.Key("users", fmt.Sprint(i)), executor.RawRow{}, 0))
	}
	require.NoError(t, c.Set(ctx, cache.Key("sessions", "1"), executor.RawRow{}, 0))

	require.NoError(t, c.InvalidatePrefix(ctx, cache.TablePrefix("users")))
	assert.Equal(t, 1, c.Stats().Size)

	require.NoError(t, c.Invalidate(ctx, cache.Key("sessions", "1")))
	assert.Zero(t, c.Stats().Size)

	c.Clear()
	assert.Zero(t, c.Stats().Hits)
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()

	c, err := cache.OpenRedisCache(ctx, url, fmt.Sprintf("test:%d:", time.Now().UnixNano()), time.Minute)
	require.NoError(t, err)
	defer c.Close()

	key := cache.Key("users", "1")
	require.NoError(t, c.Set(ctx, key, executor.RawRow{"id": "1", "age": 3}, 0))

	row, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", row["id"])
	assert.Equal(t, float64(3), row["age"])

	require.NoError(t, c.InvalidatePrefix(ctx, cache.TablePrefix("users")))
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
