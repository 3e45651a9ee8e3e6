package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syurodev/system/internal/ui"
)

var countWhere []string

var countCmd = &cobra.Command{
	Use:   "count <table>",
	Short: "Count rows matching a filter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		where, err := parseWhere(countWhere)
		if err != nil {
			return err
		}
		c, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		q, err := c.Generator().Count(args[0], where)
		if err != nil {
			return err
		}
		n, err := c.Scalar(ctx, nil, q)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(map[string]int64{"count": n})
		}
		fmt.Fprintln(ui.Out, n)
		return nil
	},
}

func init() {
	countCmd.Flags().StringArrayVarP(&countWhere, "where", "w", nil, "filter expression")
}
