package executor

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var driverClassifiers = []func(error) error{
	classifyPQ,
	classifyPgx,
	classifyMySQL,
	classifyModernc,
}

// SQLSTATE class 23 codes shared by lib/pq and pgx.
func classifyPostgresCode(code string) error {
	switch code {
	case "23505":
		return ErrUniqueConstraint
	case "23503":
		return ErrForeignKeyConstraint
	case "23502":
		return ErrNullConstraint
	}
	return nil
}

func classifyPQ(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyPostgresCode(string(pqErr.Code))
	}
	return nil
}

func classifyPgx(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyPostgresCode(pgErr.Code)
	}
	return nil
}

func classifyMySQL(err error) error {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return nil
	}
	switch myErr.Number {
	case 1062:
		return ErrUniqueConstraint
	case 1451, 1452:
		return ErrForeignKeyConstraint
	case 1048, 1364:
		return ErrNullConstraint
	}
	return nil
}

func classifyModernc(err error) error {
	var liteErr *sqlite.Error
	if !errors.As(err, &liteErr) {
		return nil
	}
	switch liteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return ErrUniqueConstraint
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return ErrForeignKeyConstraint
	case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		return ErrNullConstraint
	}
	return nil
}
