package client

import (
	"context"

	"github.com/syurodev/system/query/sqlgen"
)

// ConnectionInfo describes server-side connection limits.
type ConnectionInfo struct {
	MaxConnections     int64
	CurrentConnections int64
}

// ConnectionInfo reports max_connections and the number of open backends.
// Only PostgreSQL exposes both; other dialects return zeros.
func (c *Client) ConnectionInfo(ctx context.Context) (ConnectionInfo, error) {
	var info ConnectionInfo
	if c.dialect != sqlgen.Postgres {
		return info, nil
	}
	exec, err := c.Executor()
	if err != nil {
		return info, err
	}

	maxConns, err := exec.Scalar(ctx, nil, sqlgen.Raw("SELECT setting::bigint FROM pg_settings WHERE name = 'max_connections'", 0))
	if err != nil {
		return info, err
	}
	current, err := exec.Scalar(ctx, nil, sqlgen.Raw("SELECT COUNT(*) AS count FROM pg_stat_activity", 0))
	if err != nil {
		return info, err
	}
	info.MaxConnections = maxConns
	info.CurrentConnections = current
	return info, nil
}
