package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTxDone is returned when a transaction handle is used after commit or rollback.
	ErrTxDone = errors.New("executor: transaction already committed or rolled back")

	// ErrNoTransactions is returned by Begin when the connection cannot start transactions.
	ErrNoTransactions = errors.New("executor: connection does not support transactions")

	// ErrUniqueConstraint is returned when a unique constraint is violated.
	ErrUniqueConstraint = errors.New("unique constraint violation")

	// ErrForeignKeyConstraint is returned when a foreign key constraint is violated.
	ErrForeignKeyConstraint = errors.New("foreign key constraint violation")

	// ErrNullConstraint is returned when a not-null constraint is violated.
	ErrNullConstraint = errors.New("null constraint violation")

	// ErrTimeout is returned when a statement exceeds its deadline.
	ErrTimeout = errors.New("operation timeout")

	// ErrCanceled is returned when the caller cancels a statement.
	ErrCanceled = errors.New("operation canceled")
)

// StorageError wraps a failure reported by the database for one statement.
type StorageError struct {
	Op    string
	Table string
	SQL   string
	Cause error
	// Kind is one of the constraint or deadline sentinels, or nil.
	Kind error
}

func (e *StorageError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s on %s: %v", e.Op, e.Table, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

// Unwrap returns the driver error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// Is matches the classified kind as well as the wrapped cause.
func (e *StorageError) Is(target error) bool {
	return e.Kind != nil && e.Kind == target
}

// IsStorageError reports whether err carries a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsUniqueConstraint checks if an error is a unique constraint violation.
func IsUniqueConstraint(err error) bool {
	return errors.Is(err, ErrUniqueConstraint)
}

// IsForeignKeyConstraint checks if an error is a foreign key constraint violation.
func IsForeignKeyConstraint(err error) bool {
	return errors.Is(err, ErrForeignKeyConstraint)
}

func newStorageError(op, table, sql string, cause error) *StorageError {
	return &StorageError{Op: op, Table: table, SQL: sql, Cause: cause, Kind: Classify(cause)}
}

// Classify maps a driver error onto ErrUniqueConstraint,
// ErrForeignKeyConstraint, ErrNullConstraint, ErrTimeout or ErrCanceled.
// It returns nil when the error has no known class.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return ErrCanceled
	}
	for _, c := range driverClassifiers {
		if kind := c(err); kind != nil {
			return kind
		}
	}
	return classifyMessage(err.Error())
}

// classifyMessage is the fallback for drivers whose error types are not
// linked into the binary.
func classifyMessage(msg string) error {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "unique constraint"),
		strings.Contains(msg, "duplicate key"),
		strings.Contains(msg, "duplicate entry"):
		return ErrUniqueConstraint
	case strings.Contains(msg, "foreign key constraint"):
		return ErrForeignKeyConstraint
	case strings.Contains(msg, "not null constraint"),
		strings.Contains(msg, "not-null constraint"),
		strings.Contains(msg, "cannot be null"):
		return ErrNullConstraint
	}
	return nil
}
