package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syurodev/system/internal/ui"
	"github.com/syurodev/system/repository"
)

var (
	findWhere  []string
	findSelect []string
	findOrder  []string
	findLimit  int
	findOffset int
	findID     string
	findRaw    bool
)

var findCmd = &cobra.Command{
	Use:   "find <table>",
	Short: "Read rows of a table",
	Long: `Find reads rows of a table a page at a time.

Filters use the expression syntax shown by 'relq filters'. Multiple --where
flags are joined with AND. Column names in the output are normalized with
the configured field name map unless --raw is given.

Example:
  relq find users --where "is_active = true" --order created_at:desc --limit 20
  relq find sessions --where "user_id = 'u1'" --select id,expires_at
  relq find users --id 0190f7d2-...`,
	Args: cobra.ExactArgs(1),
	RunE: runFind,
}

func init() {
	findCmd.Flags().StringArrayVarP(&findWhere, "where", "w", nil, "filter expression")
	findCmd.Flags().StringSliceVarP(&findSelect, "select", "s", nil, "columns to return")
	findCmd.Flags().StringSliceVarP(&findOrder, "order", "o", nil, "order terms as field[:asc|desc]")
	findCmd.Flags().IntVarP(&findLimit, "limit", "l", repository.DefaultPageSize, "page size")
	findCmd.Flags().IntVar(&findOffset, "offset", 0, "rows to skip")
	findCmd.Flags().StringVar(&findID, "id", "", "look up a single row by id")
	findCmd.Flags().BoolVar(&findRaw, "raw", false, "keep column names as stored")
}

func runFind(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	where, err := parseWhere(findWhere)
	if err != nil {
		return err
	}
	order, err := parseOrder(findOrder)
	if err != nil {
		return err
	}
	names, err := fieldNames(findRaw)
	if err != nil {
		return err
	}

	c, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	opts := []repository.Option{repository.WithFieldNames(names), repository.WithStrictReads()}
	if findID != "" {
		rowCache, closeCache, err := openCache(ctx)
		if err != nil {
			return err
		}
		defer closeCache()
		if rowCache != nil {
			opts = append(opts, repository.WithCache(rowCache, cfg.Cache.TTL))
		}
	}
	repo := recordRepository(c, args[0], opts...)

	if findID != "" {
		rec, err := repo.FindByID(ctx, findID, nil)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("%s: no row with id %q", args[0], findID)
		}
		if flagJSON {
			return printJSON(rec)
		}
		return ui.PrintRows([]map[string]any{*rec})
	}

	page, err := repo.FindMany(ctx, repository.FindOptions{
		Where:   where,
		Select:  findSelect,
		OrderBy: order,
		Limit:   findLimit,
		Offset:  findOffset,
	}, nil)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(map[string]any{
			"data":       page.Data,
			"total":      page.Total,
			"page":       page.Page,
			"limit":      page.Limit,
			"totalPages": page.TotalPages,
		})
	}
	if err := printRecords(page.Data); err != nil {
		return err
	}
	ui.PrintInfo("page %d of %d (%d rows total)", page.Page, page.TotalPages, page.Total)
	return nil
}
