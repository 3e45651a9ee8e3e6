// Package repository provides a generic table repository on top of the
// statement generator and executor.
//
// Reads degrade: a storage failure is logged and reported as an empty
// result, unless WithStrictReads is set. Writes through Create, Save,
// SaveAll and BatchCreate return every error. Invalid input such as a bad
// identifier is always returned.
package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/syurodev/system/query/cache"
	"github.com/syurodev/system/query/executor"
	"github.com/syurodev/system/query/mapper"
	"github.com/syurodev/system/query/sqlgen"
)

// DefaultPageSize is the FindMany limit when none is given.
const DefaultPageSize = 10

// FindOptions selects rows. A zero Limit or Offset is omitted.
type FindOptions struct {
	Where   []sqlgen.Condition
	Select  []string
	OrderBy []sqlgen.OrderBy
	Limit   int
	Offset  int
}

// Page is one page of FindMany results.
type Page[T any] struct {
	Data       []*T
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// Repository reads and writes one table as entities of type T.
type Repository[T any] struct {
	settings
	db     DB
	table  string
	mapRow RowMapper[T]
}

// New creates a repository that maps rows onto T by struct tags.
func New[T any](db DB, table string, opts ...Option) *Repository[T] {
	return NewWithMapper[T](db, table, nil, opts...)
}

// NewWithMapper creates a repository with a custom row mapper. A nil
// mapper falls back to struct tag mapping.
func NewWithMapper[T any](db DB, table string, m RowMapper[T], opts ...Option) *Repository[T] {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	if m == nil {
		rm := mapper.NewResultMapper()
		m = func(row executor.RawRow) (*T, error) { return mapper.Map[T](rm, row) }
	}
	return &Repository[T]{settings: s, db: db, table: table, mapRow: m}
}

// Table returns the table name.
func (r *Repository[T]) Table() string { return r.table }

// FindByID returns the row whose primary key is id, or nil. Lookups made
// outside a transaction go through the cache when one is configured.
func (r *Repository[T]) FindByID(ctx context.Context, id string, tx *executor.Tx) (*T, error) {
	row, err := r.findRow(ctx, id, tx)
	if err != nil {
		return nil, r.degrade("FindByID", err)
	}
	if row == nil {
		return nil, nil
	}
	return r.toEntity(row)
}

// FindOne returns the first row matching opts, or nil.
func (r *Repository[T]) FindOne(ctx context.Context, opts FindOptions, tx *executor.Tx) (*T, error) {
	opts.Limit = 1
	rows, err := r.Find(ctx, opts, tx)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Find returns every row matching opts.
func (r *Repository[T]) Find(ctx context.Context, opts FindOptions, tx *executor.Tx) ([]*T, error) {
	out, err := r.find(ctx, opts, tx)
	if err != nil {
		return []*T{}, r.degrade("Find", err)
	}
	return out, nil
}

// FindAll returns every row of the table.
func (r *Repository[T]) FindAll(ctx context.Context, tx *executor.Tx) ([]*T, error) {
	return r.Find(ctx, FindOptions{}, tx)
}

// FindMany returns one page of rows and the total match count.
func (r *Repository[T]) FindMany(ctx context.Context, opts FindOptions, tx *executor.Tx) (Page[T], error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultPageSize
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	empty := Page[T]{Data: []*T{}, Page: 1, Limit: opts.Limit}

	data, err := r.find(ctx, opts, tx)
	if err != nil {
		return empty, r.degrade("FindMany", err)
	}
	total, err := r.count(ctx, opts.Where, tx)
	if err != nil {
		return empty, r.degrade("FindMany", err)
	}
	limit := int64(opts.Limit)
	return Page[T]{
		Data:       data,
		Total:      total,
		Page:       opts.Offset/opts.Limit + 1,
		Limit:      opts.Limit,
		TotalPages: int((total + limit - 1) / limit),
	}, nil
}

// Count returns the number of rows matching where.
func (r *Repository[T]) Count(ctx context.Context, where []sqlgen.Condition, tx *executor.Tx) (int64, error) {
	n, err := r.count(ctx, where, tx)
	if err != nil {
		return 0, r.degrade("Count", err)
	}
	return n, nil
}

// Exists reports whether a row with primary key id exists.
func (r *Repository[T]) Exists(ctx context.Context, id string, tx *executor.Tx) (bool, error) {
	q, err := r.db.Generator().Exists(r.table, r.byID(id))
	if err != nil {
		return false, err
	}
	row, err := r.db.QueryOne(ctx, tx, q)
	if err != nil {
		return false, r.degrade("Exists", err)
	}
	return row != nil, nil
}

// Create inserts data and returns the stored row. A missing primary key
// is generated and the timestamp columns are filled in.
func (r *Repository[T]) Create(ctx context.Context, data sqlgen.Fields, tx *executor.Tx) (*T, error) {
	fields, id, err := r.prepareCreate(data, r.now())
	if err != nil {
		return nil, err
	}
	q, err := r.db.Generator().Insert(r.table, fields)
	if err != nil {
		return nil, err
	}
	rows, err := r.write(ctx, tx, q, []string{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, r.table, id)
	}
	return r.toEntity(rows[0])
}

// Update sets data on the row with primary key id and returns it, or nil
// when no such row exists. Empty data just reads the row.
func (r *Repository[T]) Update(ctx context.Context, id string, data sqlgen.Fields, tx *executor.Tx) (*T, error) {
	out, err := r.update(ctx, id, data, tx)
	if err != nil {
		return nil, r.degrade("Update", err)
	}
	return out, nil
}

// Delete removes the row with primary key id and reports whether it existed.
func (r *Repository[T]) Delete(ctx context.Context, id string, tx *executor.Tx) (bool, error) {
	q, err := r.db.Generator().Delete(r.table, r.byID(id))
	if err != nil {
		return false, err
	}
	n, err := r.db.Exec(ctx, tx, q)
	if err != nil {
		return false, r.degrade("Delete", err)
	}
	r.invalidate(ctx, id, tx)
	return n > 0, nil
}

// Save updates data when it carries a primary key and creates it
// otherwise. Updating a missing row returns ErrNotFound.
func (r *Repository[T]) Save(ctx context.Context, data sqlgen.Fields, tx *executor.Tx) (*T, error) {
	id, ok := r.idOf(data)
	if !ok {
		return r.Create(ctx, data, tx)
	}
	out, err := r.update(ctx, id, data, tx)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, r.table, id)
	}
	return out, nil
}

// SaveAll saves items in order. Without tx the items are saved in a new
// transaction. When every item is a create sharing one column set they
// are inserted with a single statement.
func (r *Repository[T]) SaveAll(ctx context.Context, items []sqlgen.Fields, tx *executor.Tx) ([]*T, error) {
	if len(items) == 0 {
		return []*T{}, nil
	}
	if tx != nil {
		return r.saveAll(ctx, items, tx)
	}
	var out []*T
	err := r.db.Transaction(ctx, func(tx *executor.Tx) error {
		var err error
		out, err = r.saveAll(ctx, items, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BatchCreate inserts every item with one INSERT statement. All items
// must write the same columns.
func (r *Repository[T]) BatchCreate(ctx context.Context, items []sqlgen.Fields, tx *executor.Tx) ([]*T, error) {
	if len(items) == 0 {
		return []*T{}, nil
	}
	now := r.now()
	rows := make([]sqlgen.Fields, len(items))
	ids := make([]string, len(items))
	for i, item := range items {
		fields, id, err := r.prepareCreate(item, now)
		if err != nil {
			return nil, err
		}
		rows[i], ids[i] = fields, id
	}
	q, err := r.db.Generator().InsertMany(r.table, rows)
	if err != nil {
		return nil, err
	}
	stored, err := r.write(ctx, tx, q, ids)
	if err != nil {
		return nil, err
	}
	return r.toEntities(stored)
}

// InvalidateCache drops every cached row of the table.
func (r *Repository[T]) InvalidateCache(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.InvalidatePrefix(ctx, cache.TablePrefix(r.table))
}

func (r *Repository[T]) saveAll(ctx context.Context, items []sqlgen.Fields, tx *executor.Tx) ([]*T, error) {
	if len(items) > 1 && r.batchable(items) {
		return r.BatchCreate(ctx, items, tx)
	}
	out := make([]*T, 0, len(items))
	for _, item := range items {
		saved, err := r.Save(ctx, item, tx)
		if err != nil {
			return nil, err
		}
		out = append(out, saved)
	}
	return out, nil
}

func (r *Repository[T]) batchable(items []sqlgen.Fields) bool {
	cols := items[0].Columns()
	for _, item := range items {
		if _, ok := r.idOf(item); ok {
			return false
		}
		if !slices.Equal(cols, item.Columns()) {
			return false
		}
	}
	return true
}

func (r *Repository[T]) find(ctx context.Context, opts FindOptions, tx *executor.Tx) ([]*T, error) {
	spec := sqlgen.QuerySpec{
		Table:   r.table,
		Where:   opts.Where,
		Select:  opts.Select,
		OrderBy: opts.OrderBy,
	}
	if opts.Limit > 0 {
		spec.Limit = sqlgen.Ptr(opts.Limit)
	}
	if opts.Offset > 0 {
		spec.Offset = sqlgen.Ptr(opts.Offset)
	}
	q, err := r.db.Generator().Select(spec)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, tx, q)
	if err != nil {
		return nil, err
	}
	return r.toEntities(rows)
}

func (r *Repository[T]) count(ctx context.Context, where []sqlgen.Condition, tx *executor.Tx) (int64, error) {
	q, err := r.db.Generator().Count(r.table, where)
	if err != nil {
		return 0, err
	}
	return r.db.Scalar(ctx, tx, q)
}

func (r *Repository[T]) findRow(ctx context.Context, id string, tx *executor.Tx) (executor.RawRow, error) {
	key := cache.Key(r.table, id)
	cached := r.cache != nil && tx == nil
	if cached {
		row, ok, err := r.cache.Get(ctx, key)
		switch {
		case err != nil:
			r.log().Warn("cache get failed", "table", r.table, "key", key, "err", err)
		case ok:
			return row, nil
		}
	}

	q, err := r.db.Generator().Select(sqlgen.QuerySpec{Table: r.table, Where: r.byID(id), Limit: sqlgen.Ptr(1)})
	if err != nil {
		return nil, err
	}
	row, err := r.db.QueryOne(ctx, tx, q)
	if err != nil || row == nil {
		return nil, err
	}
	if cached {
		if err := r.cache.Set(ctx, key, row, r.cacheTTL); err != nil {
			r.log().Warn("cache set failed", "table", r.table, "key", key, "err", err)
		}
	}
	return row, nil
}

func (r *Repository[T]) update(ctx context.Context, id string, data sqlgen.Fields, tx *executor.Tx) (*T, error) {
	fields := maps.Clone(data)
	if fields == nil {
		fields = sqlgen.Fields{}
	}
	delete(fields, r.idColumn)
	if len(fields.Columns()) == 0 {
		row, err := r.findRow(ctx, id, tx)
		if err != nil || row == nil {
			return nil, err
		}
		return r.toEntity(row)
	}
	if r.updatedAt != "" {
		fields[r.updatedAt] = r.now()
	}

	q, err := r.db.Generator().Update(r.table, fields, r.byID(id))
	if err != nil {
		return nil, err
	}
	rows, err := r.write(ctx, tx, q, []string{id})
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, id, tx)
	if len(rows) == 0 {
		return nil, nil
	}
	return r.toEntity(rows[0])
}

// write runs an INSERT or UPDATE and returns the affected rows in the
// order of ids. Dialects without RETURNING read the rows back by primary
// key.
func (r *Repository[T]) write(ctx context.Context, tx *executor.Tx, q *sqlgen.Query, ids []string) ([]executor.RawRow, error) {
	var rows []executor.RawRow
	if q.Returning {
		var err error
		if rows, err = r.db.Query(ctx, tx, q); err != nil {
			return nil, err
		}
	} else {
		// Rows affected is not used: MySQL counts changed rows, so a
		// no-op update reports 0 for a row that exists.
		if _, err := r.db.Exec(ctx, tx, q); err != nil {
			return nil, err
		}
		sel, err := r.db.Generator().Select(sqlgen.QuerySpec{
			Table: r.table,
			Where: []sqlgen.Condition{sqlgen.WhereOp(r.idColumn, sqlgen.In, ids)},
		})
		if err != nil {
			return nil, err
		}
		if rows, err = r.db.Query(ctx, tx, sel); err != nil {
			return nil, err
		}
	}

	// Row order is not guaranteed by RETURNING or IN, so restore the
	// order of ids.
	byID := make(map[string]executor.RawRow, len(rows))
	for _, row := range rows {
		byID[idString(row[r.idColumn])] = row
	}
	out := make([]executor.RawRow, 0, len(ids))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *Repository[T]) prepareCreate(data sqlgen.Fields, now time.Time) (sqlgen.Fields, string, error) {
	fields := maps.Clone(data)
	if fields == nil {
		fields = sqlgen.Fields{}
	}
	id, ok := r.idOf(fields)
	if !ok {
		var err error
		if id, err = r.newID(); err != nil {
			return nil, "", fmt.Errorf("generate id: %w", err)
		}
		fields[r.idColumn] = id
	}
	for _, col := range []string{r.createdAt, r.updatedAt} {
		if col == "" {
			continue
		}
		if v, set := fields[col]; !set || v == nil || v == sqlgen.Unset {
			fields[col] = now
		}
	}
	return fields, id, nil
}

func (r *Repository[T]) idOf(data sqlgen.Fields) (string, bool) {
	v, ok := data[r.idColumn]
	if !ok || v == nil || v == sqlgen.Unset {
		return "", false
	}
	id := idString(v)
	return id, id != ""
}

func (r *Repository[T]) byID(id string) []sqlgen.Condition {
	return []sqlgen.Condition{sqlgen.Where(r.idColumn, id)}
}

// invalidate drops the cached row for id. Inside a transaction the entry
// is dropped again after commit, since ambient reads made before the commit
// may have cached the old row.
func (r *Repository[T]) invalidate(ctx context.Context, id string, tx *executor.Tx) {
	if r.cache == nil {
		return
	}
	key := cache.Key(r.table, id)
	drop := func(ctx context.Context) {
		if err := r.cache.Invalidate(ctx, key); err != nil {
			r.log().Warn("cache invalidate failed", "table", r.table, "key", key, "err", err)
		}
	}
	drop(ctx)
	if tx != nil {
		after := context.WithoutCancel(ctx)
		tx.OnCommit(func() { drop(after) })
	}
}

func (r *Repository[T]) toEntity(row executor.RawRow) (*T, error) {
	if r.names != nil {
		row = executor.RawRow(r.names.Normalize(row))
	}
	out, err := r.mapRow(row)
	if err != nil {
		return nil, fmt.Errorf("map %s row: %w", r.table, err)
	}
	return out, nil
}

func (r *Repository[T]) toEntities(rows []executor.RawRow) ([]*T, error) {
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		e, err := r.toEntity(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// degrade swallows storage failures after logging them unless strict
// reads are enabled. Any other error is returned unchanged.
func (r *Repository[T]) degrade(op string, err error) error {
	if r.strict || !executor.IsStorageError(err) {
		return err
	}
	r.log().Error("query failed", "table", r.table, "op", op, "err", err)
	return nil
}

func idString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
