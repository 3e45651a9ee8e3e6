// Package authstore adapts the query stack to the storage contract of an
// authentication library. Models are addressed by name, input and output
// records use camelCase field names, and every error is returned to the
// caller. Every operation takes an optional transaction; nil runs on the
// ambient connection.
package authstore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/syurodev/system/internal/debug"
	"github.com/syurodev/system/query/executor"
	"github.com/syurodev/system/query/mapper"
	"github.com/syurodev/system/query/sqlgen"
)

// DB is the storage the adapter dispatches through. *client.Client
// satisfies it.
type DB interface {
	Generator() *sqlgen.Generator
	Query(ctx context.Context, tx *executor.Tx, q *sqlgen.Query) ([]executor.RawRow, error)
	Exec(ctx context.Context, tx *executor.Tx, q *sqlgen.Query) (int64, error)
	Scalar(ctx context.Context, tx *executor.Tx, q *sqlgen.Query) (int64, error)
	Transaction(ctx context.Context, fn func(tx *executor.Tx) error) error
}

// SortBy orders FindMany results.
type SortBy struct {
	Field     string
	Direction sqlgen.Direction
}

// FindManyOptions selects records for FindMany. Zero Limit and Offset are
// omitted.
type FindManyOptions struct {
	Where  []sqlgen.Condition
	Limit  int
	Offset int
	SortBy *SortBy
	Select []string
}

// Option configures a Store.
type Option func(*Store)

// WithPlural controls whether model names are pluralized into table
// names. It defaults to true.
func WithPlural(plural bool) Option {
	return func(s *Store) { s.plural = plural }
}

// WithFieldNames replaces the column/field name map. It defaults to
// mapper.DefaultFieldNames.
func WithFieldNames(m *mapper.FieldNameMap) Option {
	return func(s *Store) { s.names = m }
}

// WithTables maps model names to explicit table names.
func WithTables(tables map[string]string) Option {
	return func(s *Store) { s.tables = tables }
}

// WithIDGenerator replaces the id generator used by Create.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(s *Store) { s.newID = fn }
}

// WithLogger enables per-call debug logs on l.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store is the adapter.
type Store struct {
	db     DB
	names  *mapper.FieldNameMap
	tables map[string]string
	plural bool
	newID  func() (string, error)
	logger *slog.Logger
}

// New creates a Store over db.
func New(db DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		names:  mapper.DefaultFieldNames(),
		plural: true,
		newID: func() (string, error) {
			id, err := uuid.NewV7()
			return id.String(), err
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Table returns the table that stores model.
func (s *Store) Table(model string) string {
	if t, ok := s.tables[model]; ok {
		return t
	}
	name := toSnakeCase(model)
	if s.plural {
		name = pluralize(name)
	}
	return name
}

func (s *Store) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return debug.Logger()
}

// Create inserts data into model and returns the stored record. A nil or
// missing id is generated. When sel is set only those fields are returned.
func (s *Store) Create(ctx context.Context, model string, data mapper.Record, sel []string, tx *executor.Tx) (mapper.Record, error) {
	fields := s.names.Denormalize(data)
	if fields == nil {
		fields = sqlgen.Fields{}
	}
	if v, ok := fields["id"]; !ok || v == nil || v == sqlgen.Unset || v == "" {
		id, err := s.newID()
		if err != nil {
			return nil, fmt.Errorf("authstore: generate id: %w", err)
		}
		fields["id"] = id
	}
	table := s.Table(model)
	q, err := s.db.Generator().Insert(table, fields)
	if err != nil {
		return nil, err
	}
	s.log().Debug("authstore create", "model", model, "table", table)

	var rows []executor.RawRow
	if q.Returning {
		rows, err = s.db.Query(ctx, tx, q)
	} else {
		err = s.atomic(ctx, tx, func(tx *executor.Tx) error {
			if _, err := s.db.Exec(ctx, tx, q); err != nil {
				return err
			}
			var err error
			rows, err = s.selectRows(ctx, tx, table, []sqlgen.Condition{sqlgen.Where("id", fields["id"])}, 1)
			return err
		})
	}
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return s.project(s.names.Normalize(rows[0]), sel), nil
}

// FindOne returns the first record of model matching where, or nil.
func (s *Store) FindOne(ctx context.Context, model string, where []sqlgen.Condition, sel []string, tx *executor.Tx) (mapper.Record, error) {
	out, err := s.FindMany(ctx, model, FindManyOptions{Where: where, Limit: 1, Select: sel}, tx)
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return out[0], nil
}

// FindMany returns the records of model matching opts.
func (s *Store) FindMany(ctx context.Context, model string, opts FindManyOptions, tx *executor.Tx) ([]mapper.Record, error) {
	spec := sqlgen.QuerySpec{
		Table:  s.Table(model),
		Where:  s.names.Conditions(opts.Where),
		Select: s.columns(opts.Select),
	}
	if opts.SortBy != nil {
		spec.OrderBy = []sqlgen.OrderBy{{Field: s.names.Column(opts.SortBy.Field), Direction: opts.SortBy.Direction}}
	}
	if opts.Limit > 0 {
		spec.Limit = sqlgen.Ptr(opts.Limit)
	}
	if opts.Offset > 0 {
		spec.Offset = sqlgen.Ptr(opts.Offset)
	}
	q, err := s.db.Generator().Select(spec)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, tx, q)
	if err != nil {
		return nil, err
	}
	return s.names.NormalizeAll(rows), nil
}

// Update applies update to the records of model matching where and
// returns the first of them, or nil when none matched.
func (s *Store) Update(ctx context.Context, model string, where []sqlgen.Condition, update mapper.Record, tx *executor.Tx) (mapper.Record, error) {
	table := s.Table(model)
	conds := s.names.Conditions(where)
	fields := s.names.Denormalize(update)
	q, err := s.db.Generator().Update(table, fields, conds)
	if err != nil {
		return nil, err
	}
	if q.Kind != sqlgen.KindUpdate || q.Returning {
		rows, err := s.db.Query(ctx, tx, q)
		if err != nil || len(rows) == 0 {
			return nil, err
		}
		return s.names.Normalize(rows[0]), nil
	}

	// Without RETURNING, find the target first since the update may
	// change the columns of where. The three statements share one
	// transaction.
	var out mapper.Record
	err = s.atomic(ctx, tx, func(tx *executor.Tx) error {
		targets, err := s.selectRows(ctx, tx, table, conds, 1)
		if err != nil || len(targets) == 0 {
			return err
		}
		if _, err := s.db.Exec(ctx, tx, q); err != nil {
			return err
		}
		rows, err := s.selectRows(ctx, tx, table, []sqlgen.Condition{sqlgen.Where("id", targets[0]["id"])}, 1)
		if err != nil || len(rows) == 0 {
			return err
		}
		out = s.names.Normalize(rows[0])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateMany applies update to every record of model matching where and
// returns how many changed.
func (s *Store) UpdateMany(ctx context.Context, model string, where []sqlgen.Condition, update mapper.Record, tx *executor.Tx) (int64, error) {
	fields := s.names.Denormalize(update)
	if len(fields.Columns()) == 0 {
		return 0, nil
	}
	q, err := s.db.Generator().Update(s.Table(model), fields, s.names.Conditions(where))
	if err != nil {
		return 0, err
	}
	if q.Returning {
		rows, err := s.db.Query(ctx, tx, q)
		return int64(len(rows)), err
	}
	return s.db.Exec(ctx, tx, q)
}

// Delete removes the records of model matching where.
func (s *Store) Delete(ctx context.Context, model string, where []sqlgen.Condition, tx *executor.Tx) error {
	_, err := s.DeleteMany(ctx, model, where, tx)
	return err
}

// DeleteMany removes the records of model matching where and returns how
// many were removed.
func (s *Store) DeleteMany(ctx context.Context, model string, where []sqlgen.Condition, tx *executor.Tx) (int64, error) {
	q, err := s.db.Generator().Delete(s.Table(model), s.names.Conditions(where))
	if err != nil {
		return 0, err
	}
	return s.db.Exec(ctx, tx, q)
}

// Count returns the number of records of model matching where.
func (s *Store) Count(ctx context.Context, model string, where []sqlgen.Condition, tx *executor.Tx) (int64, error) {
	q, err := s.db.Generator().Count(s.Table(model), s.names.Conditions(where))
	if err != nil {
		return 0, err
	}
	return s.db.Scalar(ctx, tx, q)
}

// atomic runs fn in tx, or in a new transaction when tx is nil.
func (s *Store) atomic(ctx context.Context, tx *executor.Tx, fn func(tx *executor.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	return s.db.Transaction(ctx, fn)
}

func (s *Store) selectRows(ctx context.Context, tx *executor.Tx, table string, where []sqlgen.Condition, limit int) ([]executor.RawRow, error) {
	q, err := s.db.Generator().Select(sqlgen.QuerySpec{Table: table, Where: where, Limit: sqlgen.Ptr(limit)})
	if err != nil {
		return nil, err
	}
	return s.db.Query(ctx, tx, q)
}

func (s *Store) columns(fields []string) []string {
	if len(fields) == 0 {
		return nil
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = s.names.Column(f)
	}
	return out
}

func (s *Store) project(rec mapper.Record, sel []string) mapper.Record {
	if len(sel) == 0 {
		return rec
	}
	out := make(mapper.Record, len(sel))
	for k, v := range rec {
		if slices.Contains(sel, k) {
			out[k] = v
		}
	}
	return out
}
