package main

import (
	"errors"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/spf13/cobra"

	"github.com/syurodev/system/internal/ui"
	"github.com/syurodev/system/query/executor"
)

var (
	deleteWhere []string
	deleteYes   bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete <table>",
	Short: "Delete rows matching a filter",
	Long: `Delete removes the rows of a table matching --where. A filter is
required. The matching rows are counted first and the deletion must be
confirmed unless --yes is given. Count and delete run in one transaction.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().StringArrayVarP(&deleteWhere, "where", "w", nil, "filter expression (required)")
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip the confirmation prompt")
	_ = deleteCmd.MarkFlagRequired("where")
}

var errAborted = errors.New("aborted")

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	table := args[0]
	where, err := parseWhere(deleteWhere)
	if err != nil {
		return err
	}
	c, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	gen := c.Generator()
	countQ, err := gen.Count(table, where)
	if err != nil {
		return err
	}
	deleteQ, err := gen.Delete(table, where)
	if err != nil {
		return err
	}

	var deleted int64
	err = c.Transaction(ctx, func(tx *executor.Tx) error {
		n, err := c.Scalar(ctx, tx, countQ)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if !deleteYes {
			ok := false
			prompt := &survey.Confirm{Message: fmt.Sprintf("Delete %d rows from %s?", n, table)}
			if err := survey.AskOne(prompt, &ok); err != nil {
				if errors.Is(err, terminal.InterruptErr) {
					return errAborted
				}
				return err
			}
			if !ok {
				return errAborted
			}
		}
		deleted, err = c.Exec(ctx, tx, deleteQ)
		return err
	})
	if errors.Is(err, errAborted) {
		ui.PrintWarning("nothing deleted")
		return nil
	}
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(map[string]int64{"deleted": deleted})
	}
	ui.PrintSuccess("deleted %d rows from %s", deleted, table)
	return nil
}
