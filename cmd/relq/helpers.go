package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/syurodev/system/internal/config"
	"github.com/syurodev/system/internal/ui"
	"github.com/syurodev/system/query/cache"
	"github.com/syurodev/system/query/executor"
	"github.com/syurodev/system/query/filter"
	"github.com/syurodev/system/query/mapper"
	"github.com/syurodev/system/query/sqlgen"
	"github.com/syurodev/system/repository"
	"github.com/syurodev/system/runtime/client"
)

// openClient connects using the loaded configuration. The caller closes
// the returned client.
func openClient(ctx context.Context) (*client.Client, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("no database URL: set --url, database.url or DATABASE_URL")
	}
	c, err := client.New(cfg.ClientConfig(),
		client.WithExecutorOptions(executor.WithObserver(metrics.Observer())))
	if err != nil {
		return nil, err
	}
	spinner := ui.Spinner(fmt.Sprintf("connecting to %s", cfg.Database.Provider))
	err = c.Connect(ctx)
	ui.StopSpinner(spinner)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// openCache builds the configured row cache, or nil.
func openCache(ctx context.Context) (cache.Cache, func(), error) {
	switch cfg.Cache.Backend {
	case config.CacheMemory:
		return cache.NewLRUCache(cfg.Cache.Size, cfg.Cache.TTL), func() {}, nil
	case config.CacheRedis:
		rc, err := cache.OpenRedisCache(ctx, cfg.Cache.RedisURL, "relq", cfg.Cache.TTL)
		if err != nil {
			return nil, nil, err
		}
		return rc, func() { rc.Close() }, nil
	}
	return nil, func() {}, nil
}

// fieldNames returns the configured field name map. raw disables
// normalization.
func fieldNames(raw bool) (*mapper.FieldNameMap, error) {
	switch {
	case raw:
		return nil, nil
	case cfg.FieldMapPath != "":
		return mapper.LoadFieldNameMap(config.AppFs, cfg.FieldMapPath)
	}
	return mapper.DefaultFieldNames(), nil
}

// recordRepository reads any table as records keyed by field name.
func recordRepository(db repository.DB, table string, opts ...repository.Option) *repository.Repository[mapper.Record] {
	return repository.NewWithMapper[mapper.Record](db, table, func(row executor.RawRow) (*mapper.Record, error) {
		rec := mapper.Record(row)
		return &rec, nil
	}, opts...)
}

func parseWhere(exprs []string) ([]sqlgen.Condition, error) {
	return filter.ParseAll(exprs)
}

// parseOrder parses field[:asc|desc] terms.
func parseOrder(terms []string) ([]sqlgen.OrderBy, error) {
	out := make([]sqlgen.OrderBy, 0, len(terms))
	for _, t := range terms {
		field, dir, _ := strings.Cut(t, ":")
		ob := sqlgen.OrderBy{Field: field, Direction: sqlgen.Asc}
		switch strings.ToLower(dir) {
		case "", "asc":
		case "desc":
			ob.Direction = sqlgen.Desc
		default:
			return nil, fmt.Errorf("invalid order %q (expected field[:asc|desc])", t)
		}
		out = append(out, ob)
	}
	return out, nil
}

func printRecords(records []*mapper.Record) error {
	rows := make([]map[string]any, len(records))
	for i, r := range records {
		rows[i] = *r
	}
	if flagJSON {
		return printJSON(rows)
	}
	return ui.PrintRows(rows)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Fprintln(ui.Out, string(out))
	return nil
}

func printStats() error {
	snap := metrics.Snapshot()
	if len(snap) == 0 {
		return nil
	}
	ui.PrintSection("statements")
	rows := make([][]string, len(snap))
	for i, s := range snap {
		rows[i] = []string{
			s.Table,
			s.Kind,
			fmt.Sprint(s.Queries),
			fmt.Sprint(s.Errors),
			fmt.Sprint(s.Rows),
			s.Mean().String(),
			s.Max.String(),
		}
	}
	return ui.PrintTable([]string{"table", "kind", "queries", "errors", "rows", "mean", "max"}, rows)
}
