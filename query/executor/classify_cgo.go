//go:build cgo

package executor

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

func init() {
	driverClassifiers = append(driverClassifiers, classifyMattn)
}

func classifyMattn(err error) error {
	var liteErr sqlite3.Error
	if !errors.As(err, &liteErr) {
		return nil
	}
	switch liteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return ErrUniqueConstraint
	case sqlite3.ErrConstraintForeignKey:
		return ErrForeignKeyConstraint
	case sqlite3.ErrConstraintNotNull:
		return ErrNullConstraint
	}
	return nil
}
