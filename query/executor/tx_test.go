package executor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syurodev/system/query/executor"
	"github.com/syurodev/system/query/sqlgen"
)

func TestTx_CommitAndRelease(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	gen := sqlgen.NewGenerator(sqlgen.SQLite)

	var inTx []bool
	exec := executor.New(db, executor.WithObserver(func(_ context.Context, ev executor.Event) {
		inTx = append(inTx, ev.InTx)
	}))

	tx, err := exec.Begin(ctx, nil)
	require.NoError(t, err)

	insert, err := gen.Insert("users", sqlgen.Fields{"id": "u1", "email": "a@b.c"})
	require.NoError(t, err)
	_, err = exec.Query(ctx, tx, insert)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.True(t, tx.Done())
	assert.ErrorIs(t, tx.Commit(), executor.ErrTxDone)
	assert.ErrorIs(t, tx.Rollback(), executor.ErrTxDone)

	_, err = exec.Query(ctx, tx, insert)
	assert.ErrorIs(t, err, executor.ErrTxDone)
	assert.Equal(t, []bool{true}, inTx)

	count, err := gen.Count("users", nil)
	require.NoError(t, err)
	n, err := exec.Scalar(ctx, nil, count)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestTx_Rollback(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	gen := sqlgen.NewGenerator(sqlgen.SQLite)
	exec := executor.New(db)

	tx, err := exec.Begin(ctx, nil)
	require.NoError(t, err)
	insert, err := gen.Insert("users", sqlgen.Fields{"id": "u1", "email": "a@b.c"})
	require.NoError(t, err)
	_, err = exec.Query(ctx, tx, insert)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	count, err := gen.Count("users", nil)
	require.NoError(t, err)
	n, err := exec.Scalar(ctx, nil, count)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTx_Nested(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	gen := sqlgen.NewGenerator(sqlgen.SQLite)
	exec := executor.New(db)

	tx, err := exec.Begin(ctx, nil)
	require.NoError(t, err)

	first, err := gen.Insert("users", sqlgen.Fields{"id": "u1", "email": "a@b.c"})
	require.NoError(t, err)
	second, err := gen.Insert("users", sqlgen.Fields{"id": "u2", "email": "b@b.c"})
	require.NoError(t, err)

	_, err = exec.Query(ctx, tx, first)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = tx.Nested(ctx, func(tx *executor.Tx) error {
		if _, err := exec.Query(ctx, tx, second); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, tx.Commit())

	sel, err := gen.Select(sqlgen.QuerySpec{Table: "users"})
	require.NoError(t, err)
	rows, err := exec.Query(ctx, nil, sel)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "u1", rows[0]["id"])
}

func TestTx_OnCommit(t *testing.T) {
	ctx := context.Background()
	exec := executor.New(openDB(t))

	tx, err := exec.Begin(ctx, nil)
	require.NoError(t, err)
	var calls []string
	tx.OnCommit(func() { calls = append(calls, "first") })
	tx.OnCommit(func() { calls = append(calls, "second") })
	assert.Empty(t, calls)
	require.NoError(t, tx.Commit())
	assert.Equal(t, []string{"first", "second"}, calls)

	tx.OnCommit(func() { calls = append(calls, "late") })
	assert.ErrorIs(t, tx.Commit(), executor.ErrTxDone)
	assert.Len(t, calls, 2)

	rolled, err := exec.Begin(ctx, nil)
	require.NoError(t, err)
	rolled.OnCommit(func() { calls = append(calls, "rolled back") })
	require.NoError(t, rolled.Rollback())
	assert.ErrorIs(t, rolled.Commit(), executor.ErrTxDone)
	assert.Len(t, calls, 2)
}
