package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syurodev/system/query/cache"
	"github.com/syurodev/system/query/executor"
	"github.com/syurodev/system/query/mapper"
	"github.com/syurodev/system/query/sqlgen"
	"github.com/syurodev/system/repository"
	"github.com/syurodev/system/runtime/client"
)

type widget struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Qty       int       `db:"qty"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type recorder struct {
	mu     sync.Mutex
	events []executor.Event
}

func (r *recorder) observe(_ context.Context, ev executor.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recorder) count(kind sqlgen.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newClient(t *testing.T, maxConns int, rec *recorder) *client.Client {
	t.Helper()
	cfg := client.DefaultConfig("sqlite", filepath.Join(t.TempDir(), "repo.db"))
	cfg.Pool.MaxOpenConns = maxConns
	cfg.Pool.HealthCheckInterval = 0

	var opts []client.Option
	if rec != nil {
		opts = append(opts, client.WithExecutorOptions(executor.WithObserver(rec.observe)))
	}
	c, err := client.New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func createWidgets(t *testing.T, c *client.Client) {
	t.Helper()
	_, err := c.Exec(context.Background(), nil, sqlgen.Raw(`CREATE TABLE widgets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		qty INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`, 0))
	require.NoError(t, err)
}

func setup(t *testing.T, opts ...repository.Option) (*repository.Repository[widget], *client.Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	c := newClient(t, 1, rec)
	createWidgets(t, c)
	rec.reset()

	opts = append([]repository.Option{repository.WithClock(func() time.Time { return fixedNow })}, opts...)
	return repository.New[widget](c, "widgets", opts...), c, rec
}

func TestRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := setup(t)

	w, err := repo.Create(ctx, sqlgen.Fields{"name": "bolt", "qty": 3}, nil)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.NotEmpty(t, w.ID)
	assert.Equal(t, "bolt", w.Name)
	assert.Equal(t, 3, w.Qty)
	assert.True(t, fixedNow.Equal(w.CreatedAt))
	assert.True(t, fixedNow.Equal(w.UpdatedAt))

	found, err := repo.FindByID(ctx, w.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, w.ID, found.ID)

	missing, err := repo.FindByID(ctx, "nope", nil)
	require.NoError(t, err)
	assert.Nil(t, missing)

	ok, err := repo.Exists(ctx, w.ID, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRepository_CreateKeepsGivenID(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := setup(t)

	w, err := repo.Create(ctx, sqlgen.Fields{"id": "w-1", "name": "nut"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "w-1", w.ID)
}

func TestRepository_FindAndPaging(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := setup(t)

	for i, name := range []string{"a", "b", "c", "d", "e"} {
		_, err := repo.Create(ctx, sqlgen.Fields{"name": name, "qty": i}, nil)
		require.NoError(t, err)
	}

	rows, err := repo.Find(ctx, repository.FindOptions{
		Where:   []sqlgen.Condition{sqlgen.WhereOp("qty", sqlgen.Gte, 2)},
		OrderBy: []sqlgen.OrderBy{{Field: "qty", Direction: sqlgen.Desc}},
	}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "e", rows[0].Name)

	one, err := repo.FindOne(ctx, repository.FindOptions{Where: sqlgen.Match(map[string]any{"name": "c"})}, nil)
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.Equal(t, 2, one.Qty)

	page, err := repo.FindMany(ctx, repository.FindOptions{
		OrderBy: []sqlgen.OrderBy{{Field: "qty"}},
		Limit:   2,
		Offset:  2,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "c", page.Data[0].Name)

	page, err = repo.FindMany(ctx, repository.FindOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, repository.DefaultPageSize, page.Limit)
	assert.Equal(t, 1, page.TotalPages)

	n, err := repo.Count(ctx, []sqlgen.Condition{sqlgen.WhereOp("name", sqlgen.In, []string{"a", "b"})}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	all, err := repo.FindAll(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestRepository_ReadsDegradeOnStorageError(t *testing.T) {
	ctx := context.Background()
	repo, c, _ := setup(t)
	_, err := c.Exec(ctx, nil, sqlgen.Raw("DROP TABLE widgets", 0))
	require.NoError(t, err)

	rows, err := repo.Find(ctx, repository.FindOptions{}, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)

	page, err := repo.FindMany(ctx, repository.FindOptions{Limit: 5, Offset: 10}, nil)
	require.NoError(t, err)
	assert.Equal(t, repository.Page[widget]{Data: []*widget{}, Page: 1, Limit: 5}, page)

	w, err := repo.FindByID(ctx, "x", nil)
	require.NoError(t, err)
	assert.Nil(t, w)

	n, err := repo.Count(ctx, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = repo.Create(ctx, sqlgen.Fields{"name": "x"}, nil)
	assert.True(t, executor.IsStorageError(err))
}

func TestRepository_StrictReads(t *testing.T) {
	ctx := context.Background()
	repo, c, _ := setup(t, repository.WithStrictReads())
	_, err := c.Exec(ctx, nil, sqlgen.Raw("DROP TABLE widgets", 0))
	require.NoError(t, err)

	_, err = repo.FindMany(ctx, repository.FindOptions{}, nil)
	assert.True(t, executor.IsStorageError(err))

	_, err = repo.FindByID(ctx, "x", nil)
	assert.True(t, executor.IsStorageError(err))

	_, err = repo.Count(ctx, nil, nil)
	assert.True(t, executor.IsStorageError(err))
}

func TestRepository_InvalidInputIsReturned(t *testing.T) {
	ctx := context.Background()
	repo, _, rec := setup(t)

	_, err := repo.Find(ctx, repository.FindOptions{Where: []sqlgen.Condition{sqlgen.Where("bad field", 1)}}, nil)
	assert.ErrorIs(t, err, sqlgen.ErrInvalidIdentifier)
	assert.Zero(t, rec.total())
}

func TestRepository_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := setup(t)

	w, err := repo.Create(ctx, sqlgen.Fields{"name": "gear", "qty": 1}, nil)
	require.NoError(t, err)

	updated, err := repo.Update(ctx, w.ID, sqlgen.Fields{"qty": 9}, nil)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, 9, updated.Qty)
	assert.True(t, fixedNow.Equal(updated.UpdatedAt))

	same, err := repo.Update(ctx, w.ID, sqlgen.Fields{}, nil)
	require.NoError(t, err)
	require.NotNil(t, same)
	assert.Equal(t, 9, same.Qty)

	none, err := repo.Update(ctx, "missing", sqlgen.Fields{"qty": 1}, nil)
	require.NoError(t, err)
	assert.Nil(t, none)

	deleted, err := repo.Delete(ctx, w.ID, nil)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, w.ID, nil)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestRepository_Save(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := setup(t)

	created, err := repo.Save(ctx, sqlgen.Fields{"name": "cog"}, nil)
	require.NoError(t, err)

	saved, err := repo.Save(ctx, sqlgen.Fields{"id": created.ID, "qty": 4}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, saved.Qty)
	assert.Equal(t, "cog", saved.Name)

	_, err = repo.Save(ctx, sqlgen.Fields{"id": "ghost", "qty": 1}, nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = repo.Save(ctx, sqlgen.Fields{"name": "cog"}, nil)
	assert.True(t, executor.IsUniqueConstraint(err))
}

func TestRepository_BatchCreateUsesOneInsert(t *testing.T) {
	ctx := context.Background()
	repo, _, rec := setup(t)

	out, err := repo.BatchCreate(ctx, []sqlgen.Fields{
		{"name": "a", "qty": 1},
		{"name": "b", "qty": 2},
		{"name": "c", "qty": 3},
	}, nil)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, 1, rec.count(sqlgen.KindInsert))
	for i, w := range out {
		assert.Equal(t, i+1, w.Qty)
		assert.NotEmpty(t, w.ID)
		assert.True(t, fixedNow.Equal(w.CreatedAt))
	}

	rec.reset()
	out, err = repo.BatchCreate(ctx, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, rec.total())
}

func TestRepository_SaveAll(t *testing.T) {
	ctx := context.Background()
	repo, c, rec := setup(t)

	out, err := repo.SaveAll(ctx, []sqlgen.Fields{{"name": "x"}, {"name": "y"}}, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 1, rec.count(sqlgen.KindInsert))

	rec.reset()
	out, err = repo.SaveAll(ctx, []sqlgen.Fields{
		{"id": out[0].ID, "qty": 7},
		{"name": "z"},
	}, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 7, out[0].Qty)
	assert.Equal(t, "z", out[1].Name)
	assert.Equal(t, 1, rec.count(sqlgen.KindUpdate))
	assert.Equal(t, 1, rec.count(sqlgen.KindInsert))

	empty, err := repo.SaveAll(ctx, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = repo.SaveAll(ctx, []sqlgen.Fields{{"name": "fresh"}, {"name": "x"}}, nil)
	assert.True(t, executor.IsUniqueConstraint(err))
	n, err := repo.Count(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	err = c.Transaction(ctx, func(tx *executor.Tx) error {
		_, err := repo.SaveAll(ctx, []sqlgen.Fields{{"name": "p"}, {"name": "q"}}, tx)
		if err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)
	n, err = repo.Count(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRepository_WithoutReturning(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, 1, nil)
	createWidgets(t, c)

	db := plainDB{Client: c, gen: sqlgen.NewGenerator(sqlgen.SQLite, sqlgen.WithReturning(false))}
	repo := repository.New[widget](db, "widgets", repository.WithTimestamps("", ""))

	out, err := repo.BatchCreate(ctx, []sqlgen.Fields{{"name": "b", "qty": 2}, {"name": "a", "qty": 1}}, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].Name)
	assert.Equal(t, "a", out[1].Name)

	w, err := repo.Update(ctx, out[1].ID, sqlgen.Fields{"qty": 5}, nil)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, 5, w.Qty)

	none, err := repo.Update(ctx, "missing", sqlgen.Fields{"qty": 5}, nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

// plainDB compiles writes without RETURNING, as for MySQL.
type plainDB struct {
	*client.Client
	gen *sqlgen.Generator
}

func (p plainDB) Generator() *sqlgen.Generator { return p.gen }

// changedRowsDB reports zero affected rows for every write, the way MySQL
// counts an UPDATE that leaves the row unchanged.
type changedRowsDB struct {
	plainDB
}

func (d changedRowsDB) Exec(ctx context.Context, tx *executor.Tx, q *sqlgen.Query) (int64, error) {
	if _, err := d.Client.Exec(ctx, tx, q); err != nil {
		return 0, err
	}
	return 0, nil
}

func TestRepository_SaveUnchangedRowWithoutReturning(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, 1, nil)
	createWidgets(t, c)

	db := changedRowsDB{plainDB{Client: c, gen: sqlgen.NewGenerator(sqlgen.SQLite, sqlgen.WithReturning(false))}}
	repo := repository.New[widget](db, "widgets", repository.WithTimestamps("", ""))

	w, err := repo.Create(ctx, sqlgen.Fields{"name": "pin", "qty": 3}, nil)
	require.NoError(t, err)

	saved, err := repo.Save(ctx, sqlgen.Fields{"id": w.ID, "qty": 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, w.ID, saved.ID)
	assert.Equal(t, 3, saved.Qty)

	_, err = repo.Save(ctx, sqlgen.Fields{"id": "ghost", "qty": 3}, nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRepository_Cache(t *testing.T) {
	ctx := context.Background()
	lru := cache.NewLRUCache(16, time.Minute)
	repo, c, rec := setup(t, repository.WithCache(lru, 0))

	w, err := repo.Create(ctx, sqlgen.Fields{"name": "spring", "qty": 1}, nil)
	require.NoError(t, err)

	rec.reset()
	_, err = repo.FindByID(ctx, w.ID, nil)
	require.NoError(t, err)
	_, err = repo.FindByID(ctx, w.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.count(sqlgen.KindSelect))

	_, err = repo.Update(ctx, w.ID, sqlgen.Fields{"qty": 2}, nil)
	require.NoError(t, err)
	got, err := repo.FindByID(ctx, w.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Qty)

	rec.reset()
	err = c.Transaction(ctx, func(tx *executor.Tx) error {
		_, err := repo.FindByID(ctx, w.ID, tx)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.count(sqlgen.KindSelect))

	require.NoError(t, repo.InvalidateCache(ctx))
	assert.Zero(t, lru.Stats().Size)
}

func TestRepository_CacheInvalidatedAfterCommit(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, 2, nil)
	createWidgets(t, c)
	lru := cache.NewLRUCache(16, time.Hour)
	repo := repository.New[widget](c, "widgets", repository.WithCache(lru, 0))

	w, err := repo.Create(ctx, sqlgen.Fields{"name": "spring", "qty": 1}, nil)
	require.NoError(t, err)

	err = c.Transaction(ctx, func(tx *executor.Tx) error {
		if _, err := repo.Update(ctx, w.ID, sqlgen.Fields{"qty": 2}, tx); err != nil {
			return err
		}
		// An ambient read before commit sees and caches the committed row.
		before, err := repo.FindByID(ctx, w.ID, nil)
		if err != nil {
			return err
		}
		assert.Equal(t, 1, before.Qty)
		return nil
	})
	require.NoError(t, err)

	got, err := repo.FindByID(ctx, w.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Qty)

	err = c.Transaction(ctx, func(tx *executor.Tx) error {
		if _, err := repo.Delete(ctx, w.ID, tx); err != nil {
			return err
		}
		if _, err := repo.FindByID(ctx, w.ID, nil); err != nil {
			return err
		}
		return nil
	})
	require.NoError(t, err)

	gone, err := repo.FindByID(ctx, w.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

type account struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
}

func TestRepository_FieldNames(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, 1, nil)
	_, err := c.Exec(ctx, nil, sqlgen.Raw("CREATE TABLE accounts (id TEXT PRIMARY KEY, first_name TEXT)", 0))
	require.NoError(t, err)

	names := mapper.MustFieldNameMap([]mapper.Pair{{Column: "first_name", Field: "firstName"}}, nil)
	repo := repository.New[account](c, "accounts",
		repository.WithFieldNames(names),
		repository.WithTimestamps("", ""),
	)

	a, err := repo.Create(ctx, sqlgen.Fields{"first_name": "Ada"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Ada", a.FirstName)
}
