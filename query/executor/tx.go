package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// Tx is a transaction handle. It is owned by the scope that opened it and
// is released exactly once by Commit or Rollback. Any use after release
// fails with ErrTxDone.
type Tx struct {
	tx *sql.Tx

	mu         sync.Mutex
	done       bool
	savepoints int
	onCommit   []func()
}

// NewTx wraps tx.
func NewTx(tx *sql.Tx) *Tx {
	return &Tx{tx: tx}
}

// Done reports whether the transaction has been released.
func (t *Tx) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *Tx) conn() (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil, ErrTxDone
	}
	return t.tx, nil
}

// OnCommit registers fn to run after a successful Commit. Hooks run in
// registration order and are dropped on Rollback. Registering on a released
// transaction does nothing.
func (t *Tx) OnCommit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.onCommit = append(t.onCommit, fn)
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	err := t.release(t.tx.Commit)
	hooks := t.takeHooks()
	if err != nil {
		return err
	}
	for _, fn := range hooks {
		fn()
	}
	return nil
}

// Rollback aborts the transaction.
func (t *Tx) Rollback() error {
	err := t.release(t.tx.Rollback)
	t.takeHooks()
	return err
}

func (t *Tx) takeHooks() []func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	hooks := t.onCommit
	t.onCommit = nil
	return hooks
}

func (t *Tx) release(fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	t.done = true
	if err := fn(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return ErrTxDone
		}
		return newStorageError("release", "", "", err)
	}
	return nil
}

// Nested runs fn inside a savepoint of this transaction. The savepoint is
// rolled back when fn returns an error or panics, leaving the outer
// transaction usable.
func (t *Tx) Nested(ctx context.Context, fn func(*Tx) error) error {
	conn, err := t.conn()
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.savepoints++
	name := fmt.Sprintf("sp_%d", t.savepoints)
	t.mu.Unlock()

	if _, err := conn.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return newStorageError("savepoint", "", "SAVEPOINT "+name, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_, _ = conn.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name)
			panic(p)
		}
	}()

	if err := fn(t); err != nil {
		if _, rbErr := conn.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("rollback to savepoint %s failed: %v (original error: %w)", name, rbErr, err)
		}
		return err
	}

	if _, err := conn.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return newStorageError("release savepoint", "", "RELEASE SAVEPOINT "+name, err)
	}
	return nil
}
