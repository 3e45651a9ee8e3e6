package executor_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syurodev/system/query/executor"
	"github.com/syurodev/system/query/sqlgen"
	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT
	)`)
	require.NoError(t, err)
	return db
}

func TestExecutor_QueryAndExec(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	gen := sqlgen.NewGenerator(sqlgen.SQLite)
	exec := executor.New(db)

	insert, err := gen.Insert("users", sqlgen.Fields{"id": "u1", "email": "a@b.c", "full_name": "Ann"})
	require.NoError(t, err)
	rows, err := exec.Query(ctx, nil, insert)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a@b.c", rows[0]["email"])

	sel, err := gen.Select(sqlgen.QuerySpec{Table: "users", Where: []sqlgen.Condition{sqlgen.Where("id", "u1")}})
	require.NoError(t, err)
	row, err := exec.QueryOne(ctx, nil, sel)
	require.NoError(t, err)
	assert.Equal(t, "Ann", row["full_name"])

	count, err := gen.Count("users", nil)
	require.NoError(t, err)
	n, err := exec.Scalar(ctx, nil, count)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	del, err := gen.Delete("users", []sqlgen.Condition{sqlgen.Where("id", "u1")})
	require.NoError(t, err)
	affected, err := exec.Exec(ctx, nil, del)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
}

func TestExecutor_QuestionMarkInValue(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	gen := sqlgen.NewGenerator(sqlgen.SQLite)
	exec := executor.New(db)

	insert, err := gen.Insert("users", sqlgen.Fields{"id": "u?1", "email": "what?@b.c"})
	require.NoError(t, err)
	_, err = exec.Query(ctx, nil, insert)
	require.NoError(t, err)

	sel, err := gen.Select(sqlgen.QuerySpec{Table: "users", Where: []sqlgen.Condition{
		sqlgen.Where("id", "u?1"),
		sqlgen.Where("email", "what?@b.c"),
	}})
	require.NoError(t, err)
	rows, err := exec.Query(ctx, nil, sel)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestExecutor_ParameterCountMismatch(t *testing.T) {
	db := openDB(t)
	calls := 0
	exec := executor.New(db, executor.WithObserver(func(context.Context, executor.Event) { calls++ }))

	_, err := exec.Query(context.Background(), nil, sqlgen.Raw("SELECT * FROM users WHERE id = ?", 1))
	var mismatch *sqlgen.ParameterCountMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Zero(t, calls, "nothing may be dispatched")
}

func TestExecutor_StorageError(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	gen := sqlgen.NewGenerator(sqlgen.SQLite)
	exec := executor.New(db)

	insert, err := gen.Insert("users", sqlgen.Fields{"id": "u1", "email": "dup@b.c"})
	require.NoError(t, err)
	_, err = exec.Query(ctx, nil, insert)
	require.NoError(t, err)

	insert, err = gen.Insert("users", sqlgen.Fields{"id": "u2", "email": "dup@b.c"})
	require.NoError(t, err)
	_, err = exec.Query(ctx, nil, insert)
	require.Error(t, err)

	var se *executor.StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "users", se.Table)
	assert.NotNil(t, se.Cause)
	assert.True(t, executor.IsUniqueConstraint(err))

	insert, err = gen.Insert("users", sqlgen.Fields{"id": "u3", "email": nil})
	require.NoError(t, err)
	_, err = exec.Query(ctx, nil, insert)
	assert.ErrorIs(t, err, executor.ErrNullConstraint)
}

func TestExecutor_Observer(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	gen := sqlgen.NewGenerator(sqlgen.SQLite)

	var events []executor.Event
	exec := executor.New(db, executor.WithObserver(func(_ context.Context, ev executor.Event) {
		events = append(events, ev)
	}))

	q, err := gen.Select(sqlgen.QuerySpec{Table: "users"})
	require.NoError(t, err)
	_, err = exec.Query(ctx, nil, q)
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, sqlgen.KindSelect, events[0].Kind)
	assert.Equal(t, "SELECT * FROM users", events[0].SQL)
	assert.False(t, events[0].InTx)
	assert.NoError(t, events[0].Err)
}

func TestExecutor_StatementCache(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	gen := sqlgen.NewGenerator(sqlgen.SQLite)
	exec := executor.New(db, executor.WithStatementCache(true))
	defer exec.Close()

	q, err := gen.Select(sqlgen.QuerySpec{Table: "users"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = exec.Query(ctx, nil, q)
		require.NoError(t, err)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	db := openDB(t)
	exec := executor.New(db, executor.WithQueryTimeout(time.Nanosecond))

	q := sqlgen.Raw("WITH RECURSIVE c(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM c WHERE x < 5000000) SELECT count(*) FROM c", 0)
	_, err := exec.Query(context.Background(), nil, q)
	require.Error(t, err)
	assert.True(t, executor.IsStorageError(err))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"deadline", context.DeadlineExceeded, executor.ErrTimeout},
		{"canceled", context.Canceled, executor.ErrCanceled},
		{"postgres unique", errors.New(`duplicate key value violates unique constraint "users_email_key"`), executor.ErrUniqueConstraint},
		{"mysql unique", errors.New("Error 1062: Duplicate entry 'a' for key 'email'"), executor.ErrUniqueConstraint},
		{"foreign key", errors.New("FOREIGN KEY constraint failed"), executor.ErrForeignKeyConstraint},
		{"not null", errors.New("NOT NULL constraint failed: users.email"), executor.ErrNullConstraint},
		{"other", errors.New("syntax error"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, executor.Classify(tt.err))
		})
	}
}
