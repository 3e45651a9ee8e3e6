package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/syurodev/system/query/executor"
)

// IsolationLevel represents transaction isolation levels
type IsolationLevel int

const (
	// DefaultIsolation uses the server default
	DefaultIsolation IsolationLevel = iota
	// ReadUncommitted allows dirty reads
	ReadUncommitted
	// ReadCommitted prevents dirty reads
	ReadCommitted
	// RepeatableRead prevents dirty reads and non-repeatable reads
	RepeatableRead
	// Serializable prevents dirty reads, non-repeatable reads, and phantom reads
	Serializable
)

// ToSQLIsolationLevel converts IsolationLevel to sql.IsolationLevel
func (level IsolationLevel) ToSQLIsolationLevel() sql.IsolationLevel {
	switch level {
	case ReadUncommitted:
		return sql.LevelReadUncommitted
	case ReadCommitted:
		return sql.LevelReadCommitted
	case RepeatableRead:
		return sql.LevelRepeatableRead
	case Serializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// NewTxOptions creates sql.TxOptions from isolation level
func NewTxOptions(isolation IsolationLevel, readOnly bool) *sql.TxOptions {
	return &sql.TxOptions{
		Isolation: isolation.ToSQLIsolationLevel(),
		ReadOnly:  readOnly,
	}
}

// TransactionFunc runs inside a transaction. The handle must not be kept
// after the function returns.
type TransactionFunc = func(tx *executor.Tx) error

// Transaction runs fn in a transaction. It commits when fn returns nil and
// rolls back when fn returns an error or panics.
func (c *Client) Transaction(ctx context.Context, fn TransactionFunc) error {
	return c.TransactionWithOptions(ctx, nil, fn)
}

// TransactionWithOptions runs fn in a transaction started with opts.
func (c *Client) TransactionWithOptions(ctx context.Context, opts *sql.TxOptions, fn TransactionFunc) error {
	exec, err := c.Executor()
	if err != nil {
		return err
	}
	tx, err := exec.Begin(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// TransactionWithIsolation executes a transaction with a specific isolation level
func (c *Client) TransactionWithIsolation(ctx context.Context, isolation IsolationLevel, fn TransactionFunc) error {
	return c.TransactionWithOptions(ctx, NewTxOptions(isolation, false), fn)
}

// ReadOnlyTransaction executes a read-only transaction
func (c *Client) ReadOnlyTransaction(ctx context.Context, fn TransactionFunc) error {
	return c.TransactionWithOptions(ctx, &sql.TxOptions{ReadOnly: true}, fn)
}
