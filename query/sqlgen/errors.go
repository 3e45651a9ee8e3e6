package sqlgen

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyFields is returned when an insert has no columns to write.
	ErrEmptyFields = errors.New("sqlgen: no fields to write")
	// ErrUnsafeMutation is returned for UPDATE or DELETE whose WHERE clause
	// is empty or holds for every row.
	ErrUnsafeMutation = errors.New("sqlgen: update or delete requires at least one condition")
	// ErrMismatchedRows is returned when batch rows do not share one column set.
	ErrMismatchedRows = errors.New("sqlgen: batch rows have different columns")
	// ErrInvalidPagination is returned for a negative limit or offset.
	ErrInvalidPagination = errors.New("sqlgen: limit and offset must be non-negative")
	// ErrInvalidIdentifier is returned for table or column names that are not plain identifiers.
	ErrInvalidIdentifier = errors.New("sqlgen: invalid identifier")
	// ErrUnsupportedDialect is returned by ParseDialect for unknown providers.
	ErrUnsupportedDialect = errors.New("sqlgen: unsupported dialect")
)

// InvalidConditionError reports a malformed predicate. It is raised at
// compile time and is never retried.
type InvalidConditionError struct {
	Index  int
	Field  string
	Reason string
}

func (e *InvalidConditionError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("sqlgen: invalid condition #%d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("sqlgen: invalid condition #%d (%s): %s", e.Index, e.Field, e.Reason)
}

// ParameterCountMismatchError means a statement and its argument list
// disagree. It indicates a defect in whoever built the Query.
type ParameterCountMismatchError struct {
	SQL          string
	Placeholders int
	Args         int
}

func (e *ParameterCountMismatchError) Error() string {
	return fmt.Sprintf("sqlgen: statement has %d placeholders but %d args: %s", e.Placeholders, e.Args, e.SQL)
}
