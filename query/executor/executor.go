// Package executor dispatches compiled statements against the ambient
// connection pool or an explicit transaction.
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/syurodev/system/internal/debug"
	"github.com/syurodev/system/query/sqlgen"
)

// Conn is the part of *sql.DB and *sql.Tx the executor dispatches on.
type Conn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Beginner starts transactions. *sql.DB implements it.
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// RawRow is one result row keyed by column name.
type RawRow map[string]any

// Event describes one dispatched statement.
type Event struct {
	Kind     sqlgen.Kind
	Table    string
	SQL      string
	Args     []any
	Duration time.Duration
	Rows     int64
	InTx     bool
	Err      error
}

// Observer is called after every dispatch, including failed ones.
type Observer func(ctx context.Context, ev Event)

// Executor runs queries built by sqlgen.
type Executor struct {
	db        Conn
	timeout   time.Duration
	observers []Observer
	logger    *slog.Logger

	cacheStmts bool
	stmtCache  map[string]*sql.Stmt
	cacheMu    sync.RWMutex
}

// Option configures an Executor.
type Option func(*Executor)

// WithQueryTimeout bounds every statement with a deadline. Zero disables it.
func WithQueryTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observers = append(e.observers, o) }
}

// WithLogger sets the statement logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithStatementCache prepares ambient statements once and reuses them.
// It has no effect unless the connection is a *sql.DB.
func WithStatementCache(enabled bool) Option {
	return func(e *Executor) { e.cacheStmts = enabled }
}

// New creates an executor over the ambient connection db.
func New(db Conn, opts ...Option) *Executor {
	e := &Executor{
		db:        db,
		stmtCache: make(map[string]*sql.Stmt),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return debug.Logger()
}

// Conn returns the ambient connection.
func (e *Executor) Conn() Conn { return e.db }

// Begin starts a transaction on the ambient connection.
func (e *Executor) Begin(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	b, ok := e.db.(Beginner)
	if !ok {
		return nil, ErrNoTransactions
	}
	tx, err := b.BeginTx(ctx, opts)
	if err != nil {
		return nil, newStorageError("begin", "", "", err)
	}
	return NewTx(tx), nil
}

// Query runs q and returns every row. A nil tx uses the ambient connection.
func (e *Executor) Query(ctx context.Context, tx *Tx, q *sqlgen.Query) ([]RawRow, error) {
	var out []RawRow
	err := e.dispatch(ctx, tx, q, func(ctx context.Context, conn Conn) (int64, error) {
		rows, err := e.queryRows(ctx, conn, tx, q)
		if err != nil {
			return 0, err
		}
		defer rows.Close()
		out, err = scanRows(rows)
		return int64(len(out)), err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// QueryOne runs q and returns its first row, or nil when there is none.
func (e *Executor) QueryOne(ctx context.Context, tx *Tx, q *sqlgen.Query) (RawRow, error) {
	rows, err := e.Query(ctx, tx, q)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Exec runs q and returns the number of affected rows.
func (e *Executor) Exec(ctx context.Context, tx *Tx, q *sqlgen.Query) (int64, error) {
	var affected int64
	err := e.dispatch(ctx, tx, q, func(ctx context.Context, conn Conn) (int64, error) {
		res, err := conn.ExecContext(ctx, q.SQL, q.Args...)
		if err != nil {
			return 0, err
		}
		affected, err = res.RowsAffected()
		return affected, err
	})
	return affected, err
}

// Scalar runs q and returns the first column of the first row as an
// integer. It is used for COUNT queries.
func (e *Executor) Scalar(ctx context.Context, tx *Tx, q *sqlgen.Query) (int64, error) {
	row, err := e.QueryOne(ctx, tx, q)
	if err != nil {
		return 0, err
	}
	if v, ok := row["count"]; ok {
		return toInt64(v)
	}
	for _, v := range row {
		return toInt64(v)
	}
	return 0, nil
}

// Close releases cached prepared statements. The ambient connection is
// owned by the caller.
func (e *Executor) Close() error {
	e.ClearStmtCache()
	return nil
}

// ClearStmtCache closes and forgets every prepared statement.
func (e *Executor) ClearStmtCache() {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()

	for _, stmt := range e.stmtCache {
		stmt.Close()
	}
	e.stmtCache = make(map[string]*sql.Stmt)
}

func (e *Executor) dispatch(ctx context.Context, tx *Tx, q *sqlgen.Query, run func(context.Context, Conn) (int64, error)) error {
	if err := q.Validate(); err != nil {
		return err
	}

	conn := e.db
	if tx != nil {
		c, err := tx.conn()
		if err != nil {
			return err
		}
		conn = c
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	n, err := run(ctx, conn)
	ev := Event{
		Kind:     q.Kind,
		Table:    q.Table,
		SQL:      q.SQL,
		Args:     q.Args,
		Duration: time.Since(start),
		Rows:     n,
		InTx:     tx != nil,
	}
	if err != nil {
		err = newStorageError(string(q.Kind), q.Table, q.SQL, err)
		ev.Err = err
	}

	e.log().Debug("sql", "sql", ev.SQL, "args", ev.Args, "duration", ev.Duration, "tx", ev.InTx, "err", ev.Err)
	for _, o := range e.observers {
		o(ctx, ev)
	}
	return err
}

func (e *Executor) queryRows(ctx context.Context, conn Conn, tx *Tx, q *sqlgen.Query) (*sql.Rows, error) {
	if tx == nil && e.cacheStmts {
		if db, ok := conn.(*sql.DB); ok {
			stmt, err := e.getCachedStmt(ctx, db, q.SQL)
			if err != nil {
				return nil, err
			}
			return stmt.QueryContext(ctx, q.Args...)
		}
	}
	return conn.QueryContext(ctx, q.SQL, q.Args...)
}

// getCachedStmt gets a cached prepared statement or creates a new one
func (e *Executor) getCachedStmt(ctx context.Context, db *sql.DB, query string) (*sql.Stmt, error) {
	e.cacheMu.RLock()
	stmt, ok := e.stmtCache[query]
	e.cacheMu.RUnlock()

	if ok && stmt != nil {
		return stmt, nil
	}

	stmt, err := db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	e.cacheMu.Lock()
	if existing, ok := e.stmtCache[query]; ok {
		e.cacheMu.Unlock()
		stmt.Close()
		return existing, nil
	}
	e.stmtCache[query] = stmt
	e.cacheMu.Unlock()

	return stmt, nil
}
