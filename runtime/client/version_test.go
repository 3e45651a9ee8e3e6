package client_test

import (
	"testing"

	"github.com/hashicorp/go-version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syurodev/system/query/sqlgen"
	"github.com/syurodev/system/runtime/client"
)

func TestParseServerVersion(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"16.2 (Debian 16.2-1.pgdg120+2)", "16.2.0"},
		{"8.0.36-0ubuntu0.22.04.1", "8.0.36"},
		{"3.45.1", "3.45.1"},
		{"17beta1", "17.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			v, err := client.ParseServerVersion(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.String())
		})
	}

	_, err := client.ParseServerVersion("")
	assert.Error(t, err)
}

func TestCheckServerVersion(t *testing.T) {
	returning, err := client.CheckServerVersion(sqlgen.SQLite, version.Must(version.NewVersion("3.34.1")))
	require.NoError(t, err)
	assert.False(t, returning)

	returning, err = client.CheckServerVersion(sqlgen.SQLite, version.Must(version.NewVersion("3.45.0")))
	require.NoError(t, err)
	assert.True(t, returning)

	returning, err = client.CheckServerVersion(sqlgen.MySQL, version.Must(version.NewVersion("8.0.36")))
	require.NoError(t, err)
	assert.False(t, returning)

	_, err = client.CheckServerVersion(sqlgen.Postgres, version.Must(version.NewVersion("9.4")))
	assert.ErrorIs(t, err, client.ErrServerTooOld)
}
