// Package client owns the process-wide connection pool and hands out the
// executor, statement generator and transactions built on it.
package client

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-version"

	"github.com/syurodev/system/internal/debug"
	"github.com/syurodev/system/query/executor"
	"github.com/syurodev/system/query/sqlgen"
)

// Config describes one database.
type Config struct {
	// Provider is one of Providers.
	Provider string
	// URL is the driver data source name.
	URL  string
	Pool PoolConfig
	// QueryTimeout bounds every statement (0 = no deadline).
	QueryTimeout time.Duration
	// StatementCache prepares ambient statements once.
	StatementCache bool
	// SkipVersionCheck disables the server version probe on Connect.
	SkipVersionCheck bool
}

// DefaultConfig returns a config with the default pool settings.
func DefaultConfig(provider, url string) Config {
	return Config{
		Provider:     provider,
		URL:          url,
		Pool:         DefaultPoolConfig(),
		QueryTimeout: 30 * time.Second,
	}
}

// Option configures a Client.
type Option func(*Client)

// WithExecutorOptions passes options to the executor created on Connect.
func WithExecutorOptions(opts ...executor.Option) Option {
	return func(c *Client) { c.execOpts = append(c.execOpts, opts...) }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client owns one connection pool. Construct it once at startup, Connect
// it, pass it to every consumer and Close it at shutdown.
type Client struct {
	cfg      Config
	driver   string
	dialect  sqlgen.Dialect
	execOpts []executor.Option
	logger   *slog.Logger

	mu      sync.RWMutex
	pool    *Pool
	exec    *executor.Executor
	gen     *sqlgen.Generator
	version *version.Version
}

// New validates cfg. It does not connect.
func New(cfg Config, opts ...Option) (*Client, error) {
	driver, dialect, err := resolveProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	c := &Client{cfg: cfg, driver: driver, dialect: dialect}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = debug.With("component", "client", "provider", cfg.Provider)
	}
	return c, nil
}

// Connect opens the pool, verifies connectivity and probes the server
// version. Calling it on a connected client returns ErrAlreadyConnected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool != nil {
		return ErrAlreadyConnected
	}

	pool, err := OpenPool(c.driver, c.cfg.URL, c.cfg.Pool)
	if err != nil {
		return err
	}
	if err := c.attach(ctx, pool); err != nil {
		pool.Close()
		return err
	}
	return nil
}

// ConnectDB adopts an already opened database instead of opening one.
func (c *Client) ConnectDB(ctx context.Context, db *sql.DB) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool != nil {
		return ErrAlreadyConnected
	}
	pool := NewPool(db, c.cfg.Pool)
	if err := c.attach(ctx, pool); err != nil {
		pool.Close()
		return err
	}
	return nil
}

func (c *Client) attach(ctx context.Context, pool *Pool) error {
	pingCtx := ctx
	if c.cfg.Pool.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, c.cfg.Pool.ConnectTimeout)
		defer cancel()
	}
	if err := pool.HealthCheck(pingCtx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.cfg.Provider, err)
	}

	returning := c.dialect.SupportsReturning()
	var v *version.Version
	if !c.cfg.SkipVersionCheck {
		var err error
		v, err = ServerVersion(pingCtx, pool.DB(), c.dialect)
		if err != nil {
			return err
		}
		if returning, err = CheckServerVersion(c.dialect, v); err != nil {
			return err
		}
	}

	opts := []executor.Option{
		executor.WithQueryTimeout(c.cfg.QueryTimeout),
		executor.WithStatementCache(c.cfg.StatementCache),
	}
	c.pool = pool
	c.exec = executor.New(pool.DB(), append(opts, c.execOpts...)...)
	c.gen = sqlgen.NewGenerator(c.dialect, sqlgen.WithReturning(returning))
	c.version = v
	if v != nil {
		c.logger.Info("connected", "version", v.String(), "returning", returning)
	}
	return nil
}

// Close closes the pool. Closing a client that is not connected is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool == nil {
		return nil
	}
	c.exec.Close()
	err := c.pool.Close()
	c.pool, c.exec, c.gen, c.version = nil, nil, nil, nil
	c.logger.Info("disconnected")
	return err
}

// Connected reports whether Connect has succeeded and Close has not run.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pool != nil
}

// Dialect returns the SQL dialect of the provider.
func (c *Client) Dialect() sqlgen.Dialect { return c.dialect }

// Provider returns the configured provider name.
func (c *Client) Provider() string { return c.cfg.Provider }

// ServerVersion returns the version probed on Connect, or nil.
func (c *Client) ServerVersion() *version.Version {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Generator returns the statement generator. Before Connect it returns a
// generator with the dialect defaults.
func (c *Client) Generator() *sqlgen.Generator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.gen == nil {
		return sqlgen.NewGenerator(c.dialect)
	}
	return c.gen
}

// Executor returns the executor of the open pool.
func (c *Client) Executor() (*executor.Executor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.exec == nil {
		return nil, ErrNotConnected
	}
	return c.exec, nil
}

// DB returns the underlying database of the open pool.
func (c *Client) DB() (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pool == nil {
		return nil, ErrNotConnected
	}
	return c.pool.DB(), nil
}

// Ping runs a health check.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.RLock()
	pool := c.pool
	c.mu.RUnlock()
	if pool == nil {
		return ErrNotConnected
	}
	return pool.HealthCheck(ctx)
}

// Stats returns pool statistics.
func (c *Client) Stats() (PoolStats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pool == nil {
		return PoolStats{}, ErrNotConnected
	}
	return c.pool.Stats(), nil
}

// Query runs q and returns all rows. A nil tx uses the pool.
func (c *Client) Query(ctx context.Context, tx *executor.Tx, q *sqlgen.Query) ([]executor.RawRow, error) {
	exec, err := c.Executor()
	if err != nil {
		return nil, err
	}
	return exec.Query(ctx, tx, q)
}

// QueryOne runs q and returns its first row or nil.
func (c *Client) QueryOne(ctx context.Context, tx *executor.Tx, q *sqlgen.Query) (executor.RawRow, error) {
	exec, err := c.Executor()
	if err != nil {
		return nil, err
	}
	return exec.QueryOne(ctx, tx, q)
}

// Exec runs q and returns the affected row count.
func (c *Client) Exec(ctx context.Context, tx *executor.Tx, q *sqlgen.Query) (int64, error) {
	exec, err := c.Executor()
	if err != nil {
		return 0, err
	}
	return exec.Exec(ctx, tx, q)
}

// Scalar runs q and returns its single integer result.
func (c *Client) Scalar(ctx context.Context, tx *executor.Tx, q *sqlgen.Query) (int64, error) {
	exec, err := c.Executor()
	if err != nil {
		return 0, err
	}
	return exec.Scalar(ctx, tx, q)
}
