package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/syurodev/system/internal/debug"
	"github.com/syurodev/system/query/cache"
	"github.com/syurodev/system/query/executor"
	"github.com/syurodev/system/query/mapper"
	"github.com/syurodev/system/query/sqlgen"
)

// DB is the storage a repository dispatches through. *client.Client
// satisfies it.
type DB interface {
	Generator() *sqlgen.Generator
	Query(ctx context.Context, tx *executor.Tx, q *sqlgen.Query) ([]executor.RawRow, error)
	QueryOne(ctx context.Context, tx *executor.Tx, q *sqlgen.Query) (executor.RawRow, error)
	Exec(ctx context.Context, tx *executor.Tx, q *sqlgen.Query) (int64, error)
	Scalar(ctx context.Context, tx *executor.Tx, q *sqlgen.Query) (int64, error)
	Transaction(ctx context.Context, fn func(tx *executor.Tx) error) error
}

// RowMapper converts one result row into an entity.
type RowMapper[T any] func(row executor.RawRow) (*T, error)

// Option configures a repository.
type Option func(*settings)

type settings struct {
	idColumn  string
	createdAt string
	updatedAt string
	names     *mapper.FieldNameMap
	cache     cache.Cache
	cacheTTL  time.Duration
	logger    *slog.Logger
	now       func() time.Time
	newID     func() (string, error)
	strict    bool
}

func defaultSettings() settings {
	return settings{
		idColumn:  "id",
		createdAt: "created_at",
		updatedAt: "updated_at",
		now:       func() time.Time { return time.Now().UTC() },
		newID:     newUUID,
	}
}

func newUUID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// WithIDColumn sets the primary key column. The default is "id".
func WithIDColumn(column string) Option {
	return func(s *settings) { s.idColumn = column }
}

// WithTimestamps sets the creation and modification timestamp columns.
// An empty name disables that column.
func WithTimestamps(createdAt, updatedAt string) Option {
	return func(s *settings) {
		s.createdAt = createdAt
		s.updatedAt = updatedAt
	}
}

// WithFieldNames normalizes rows through m before they are mapped, so
// entities can be tagged with field names instead of column names.
func WithFieldNames(m *mapper.FieldNameMap) Option {
	return func(s *settings) { s.names = m }
}

// WithCache caches FindByID lookups made outside a transaction.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *settings) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithStrictReads makes reads return storage errors instead of logging
// them and reporting an empty result.
func WithStrictReads() Option {
	return func(s *settings) { s.strict = true }
}

// WithLogger sets the logger used for degraded reads.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithIDGenerator replaces the primary key generator used by creates.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(s *settings) { s.newID = fn }
}

func (s *settings) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return debug.Logger()
}
