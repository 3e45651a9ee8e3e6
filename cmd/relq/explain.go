package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syurodev/system/internal/ui"
	"github.com/syurodev/system/query/sqlgen"
)

var (
	explainWhere   []string
	explainOrder   []string
	explainSelect  []string
	explainLimit   int
	explainOffset  int
	explainDialect string
)

var explainCmd = &cobra.Command{
	Use:   "explain <select|count|delete> <table>",
	Short: "Print the SQL a command would run, without a database",
	Long: `Explain compiles a statement and prints it with its arguments. The
dialect comes from --dialect, or from the configured provider.

Example:
  relq explain select users --where "email = 'a@b.c'" --limit 1 --dialect postgres`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"select", "count", "delete"},
	RunE:      runExplain,
}

func init() {
	explainCmd.Flags().StringArrayVarP(&explainWhere, "where", "w", nil, "filter expression")
	explainCmd.Flags().StringSliceVarP(&explainOrder, "order", "o", nil, "order terms as field[:asc|desc]")
	explainCmd.Flags().StringSliceVarP(&explainSelect, "select", "s", nil, "columns to return")
	explainCmd.Flags().IntVarP(&explainLimit, "limit", "l", -1, "row limit (omitted when negative)")
	explainCmd.Flags().IntVar(&explainOffset, "offset", 0, "rows to skip")
	explainCmd.Flags().StringVar(&explainDialect, "dialect", "", "postgres, mysql or sqlite")
}

func runExplain(cmd *cobra.Command, args []string) error {
	name := explainDialect
	if name == "" {
		name = cfg.Database.Provider
	}
	d, err := sqlgen.ParseDialect(name)
	if err != nil {
		return err
	}
	where, err := parseWhere(explainWhere)
	if err != nil {
		return err
	}
	q, err := explainQuery(sqlgen.NewGenerator(d), args[0], args[1], where)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(map[string]any{"sql": q.SQL, "args": q.Args, "dialect": d.String()})
	}
	ui.PrintSQL(q.SQL, q.Args)
	return nil
}

func explainQuery(gen *sqlgen.Generator, kind, table string, where []sqlgen.Condition) (*sqlgen.Query, error) {
	switch kind {
	case "select":
		order, err := parseOrder(explainOrder)
		if err != nil {
			return nil, err
		}
		spec := sqlgen.QuerySpec{Table: table, Where: where, Select: explainSelect, OrderBy: order}
		if explainLimit >= 0 {
			spec.Limit = sqlgen.Ptr(explainLimit)
		}
		if explainOffset > 0 {
			spec.Offset = sqlgen.Ptr(explainOffset)
		}
		return gen.Select(spec)
	case "count":
		return gen.Count(table, where)
	case "delete":
		return gen.Delete(table, where)
	}
	return nil, fmt.Errorf("unknown statement %q (expected select, count or delete)", kind)
}
