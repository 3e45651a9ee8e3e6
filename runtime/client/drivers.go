package client

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver (pgx)
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver (cgo)
	_ "modernc.org/sqlite"             // SQLite driver (pure Go)

	"github.com/syurodev/system/query/sqlgen"
)

// Providers lists the accepted provider names.
var Providers = []string{"postgres", "pgx", "mysql", "sqlite3", "sqlite"}

// resolveProvider maps a provider name to a database/sql driver and dialect.
func resolveProvider(provider string) (string, sqlgen.Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "postgres", "postgresql":
		return "postgres", sqlgen.Postgres, nil
	case "pgx":
		return "pgx", sqlgen.Postgres, nil
	case "mysql":
		return "mysql", sqlgen.MySQL, nil
	case "sqlite3":
		return "sqlite3", sqlgen.SQLite, nil
	case "sqlite":
		return "sqlite", sqlgen.SQLite, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
}
