package client

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/syurodev/system/query/sqlgen"
)

// Oldest server releases the generated SQL is known to work on.
var minimumVersions = map[sqlgen.Dialect]string{
	sqlgen.Postgres: "9.5",
	sqlgen.MySQL:    "5.7",
	sqlgen.SQLite:   "3.8.3",
}

// sqliteReturning is the first SQLite release with RETURNING.
var sqliteReturning = version.Must(version.NewVersion("3.35.0"))

var versionQueries = map[sqlgen.Dialect]string{
	sqlgen.Postgres: "SHOW server_version",
	sqlgen.MySQL:    "SELECT VERSION()",
	sqlgen.SQLite:   "SELECT sqlite_version()",
}

// ServerVersion queries and parses the server version.
func ServerVersion(ctx context.Context, db *sql.DB, d sqlgen.Dialect) (*version.Version, error) {
	query, ok := versionQueries[d]
	if !ok {
		return nil, fmt.Errorf("%w: %s", sqlgen.ErrUnsupportedDialect, d)
	}
	var raw string
	if err := db.QueryRowContext(ctx, query).Scan(&raw); err != nil {
		return nil, fmt.Errorf("failed to read server version: %w", err)
	}
	return ParseServerVersion(raw)
}

// ParseServerVersion parses strings such as "16.2 (Debian 16.2-1)" or
// "8.0.36-0ubuntu0.22.04.1", keeping only the leading release numbers.
func ParseServerVersion(raw string) (*version.Version, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty server version")
	}
	release := fields[0]
	if i := strings.IndexFunc(release, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	}); i >= 0 {
		release = release[:i]
	}
	v, err := version.NewVersion(strings.TrimSuffix(release, "."))
	if err != nil {
		return nil, fmt.Errorf("invalid server version %q: %w", raw, err)
	}
	return v, nil
}

// CheckServerVersion rejects servers older than the supported minimum and
// reports whether INSERT and UPDATE may use RETURNING.
func CheckServerVersion(d sqlgen.Dialect, v *version.Version) (returning bool, err error) {
	if minimum, ok := minimumVersions[d]; ok {
		if v.LessThan(version.Must(version.NewVersion(minimum))) {
			return false, fmt.Errorf("%w: %s %s is older than %s", ErrServerTooOld, d, v, minimum)
		}
	}
	if d == sqlgen.SQLite {
		return v.GreaterThanOrEqual(sqliteReturning), nil
	}
	return d.SupportsReturning(), nil
}
