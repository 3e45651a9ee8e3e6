package client

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/syurodev/system/internal/debug"
)

// PoolConfig holds connection pool configuration.
type PoolConfig struct {
	// MaxOpenConns is the maximum number of open connections (0 = unlimited).
	MaxOpenConns int
	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int
	// ConnMaxLifetime is the maximum lifetime of a connection.
	ConnMaxLifetime time.Duration
	// ConnMaxIdleTime is the maximum idle time of a connection.
	ConnMaxIdleTime time.Duration
	// ConnectTimeout bounds the initial ping.
	ConnectTimeout time.Duration
	// HealthCheckInterval is how often to run health checks (0 = never).
	HealthCheckInterval time.Duration
}

// DefaultPoolConfig returns the pool settings the service runs with.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:        5,
		MaxIdleConns:        5,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     30 * time.Second,
		ConnectTimeout:      10 * time.Second,
		HealthCheckInterval: time.Minute,
	}
}

// Pool wraps *sql.DB with health checking.
type Pool struct {
	db     *sql.DB
	config PoolConfig

	mu              sync.RWMutex
	failedChecks    int64
	lastHealthCheck time.Time
	lastError       error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// OpenPool opens a pool for driverName and applies config.
func OpenPool(driverName, dataSourceName string, config PoolConfig) (*Pool, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewPool(db, config), nil
}

// NewPool adopts db and applies config.
func NewPool(db *sql.DB, config PoolConfig) *Pool {
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{db: db, config: config, ctx: ctx, cancel: cancel}

	if config.HealthCheckInterval > 0 {
		p.wg.Add(1)
		go p.healthCheckLoop()
	}
	return p
}

// DB returns the underlying *sql.DB.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// PoolStats represents pool statistics.
type PoolStats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration
	MaxIdleClosed      int64
	MaxLifetimeClosed  int64
	FailedHealthChecks int64
	LastHealthCheck    time.Time
	LastError          error
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	dbStats := p.db.Stats()
	return PoolStats{
		MaxOpenConnections: dbStats.MaxOpenConnections,
		OpenConnections:    dbStats.OpenConnections,
		InUse:              dbStats.InUse,
		Idle:               dbStats.Idle,
		WaitCount:          dbStats.WaitCount,
		WaitDuration:       dbStats.WaitDuration,
		MaxIdleClosed:      dbStats.MaxIdleClosed,
		MaxLifetimeClosed:  dbStats.MaxLifetimeClosed,
		FailedHealthChecks: p.failedChecks,
		LastHealthCheck:    p.lastHealthCheck,
		LastError:          p.lastError,
	}
}

// HealthCheck runs SELECT 1 on a pooled connection.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var one int
	err := p.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)

	p.mu.Lock()
	p.lastHealthCheck = time.Now()
	p.lastError = err
	if err != nil {
		p.failedChecks++
	}
	p.mu.Unlock()

	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// healthCheckLoop runs periodic health checks.
func (p *Pool) healthCheckLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
			if err := p.HealthCheck(ctx); err != nil {
				debug.Warn("database health check failed", "err", err)
			}
			cancel()
		}
	}
}

// Close stops the health check loop and closes the database. It is safe
// to call more than once.
func (p *Pool) Close() error {
	var err error
	p.once.Do(func() {
		p.cancel()
		p.wg.Wait()
		err = p.db.Close()
	})
	return err
}
