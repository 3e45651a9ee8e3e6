// Package cache provides read-through row caching for primary key lookups.
package cache

import (
	"context"
	"maps"
	"strings"
	"time"

	"github.com/syurodev/system/query/executor"
)

// Cache stores raw rows by key. Implementations are safe for concurrent use.
type Cache interface {
	// Get returns the row stored under key.
	Get(ctx context.Context, key string) (executor.RawRow, bool, error)
	// Set stores row under key. A zero ttl uses the cache default.
	Set(ctx context.Context, key string, row executor.RawRow, ttl time.Duration) error
	// Invalidate removes key.
	Invalidate(ctx context.Context, key string) error
	// InvalidatePrefix removes every key starting with prefix.
	InvalidatePrefix(ctx context.Context, prefix string) error
	// Stats returns hit and miss counters.
	Stats() Stats
}

// Stats represents cache statistics
type Stats struct {
	Hits      int64
	Misses    int64
	Size      int
	MaxSize   int
	Evictions int64
	HitRate   float64
}

const keyPrefix = "row:"

// Key returns the cache key of one row of table.
func Key(table, id string) string {
	return keyPrefix + table + ":" + id
}

// TablePrefix returns the prefix shared by every row key of table.
func TablePrefix(table string) string {
	return keyPrefix + table + ":"
}

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

func cloneRow(row executor.RawRow) executor.RawRow {
	if row == nil {
		return nil
	}
	return maps.Clone(row)
}

func hasPrefix(key, prefix string) bool {
	return prefix == "" || strings.HasPrefix(key, prefix)
}
