package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syurodev/system/internal/ui"
	"github.com/syurodev/system/query/filter"
)

const filtersHelp = `# Filter expressions

A filter is a list of conditions joined with **AND** or a comma.

| Form | Example |
|---|---|
| comparison | ` + "`age >= 18`" + `, ` + "`status != 'banned'`" + ` |
| null check | ` + "`deleted_at IS NULL`" + `, ` + "`banned_at IS NOT NULL`" + ` |
| list | ` + "`role IN ('admin', 'owner')`" + `, ` + "`id NOT IN (1, 2)`" + ` |
| pattern | ` + "`email LIKE '%@example.com'`" + `, ` + "`name ILIKE 'a%'`" + ` |

Values are quoted strings, numbers, ` + "`true`" + `, ` + "`false`" + ` or ` + "`null`" + `.
Comparing with ` + "`null`" + ` is the same as a null check. An empty list
matches nothing for IN and everything for NOT IN. Keywords are case
insensitive. Field names may be qualified as ` + "`table.column`" + `.
`

var filtersCmd = &cobra.Command{
	Use:   "filters",
	Short: "Describe the --where filter syntax",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		grammar := fmt.Sprintf("## Grammar\n\n```ebnf\n%s\n```\n", filter.Grammar())
		return ui.PrintMarkdown(filtersHelp + "\n" + grammar)
	},
}
