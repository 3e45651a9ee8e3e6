package sqlgen

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects the positional parameter syntax and statement features
// of a target database.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

// ParseDialect maps a provider or driver name to its dialect.
func ParseDialect(provider string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDialect, provider)
	}
}

// Placeholder returns the marker for the n-th bound parameter (1-based).
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// SupportsReturning reports whether INSERT/UPDATE can carry RETURNING *.
// SQLite only supports it from 3.35, which the client verifies on connect.
func (d Dialect) SupportsReturning() bool {
	return d == Postgres || d == SQLite
}

func (d Dialect) String() string { return string(d) }
