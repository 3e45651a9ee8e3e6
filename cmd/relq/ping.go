package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syurodev/system/internal/ui"
	"github.com/syurodev/system/query/sqlgen"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Connect, run a health check and show pool statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Ping(ctx); err != nil {
			return err
		}
		stats, err := c.Stats()
		if err != nil {
			return err
		}

		values := map[string]string{
			"provider":  c.Provider(),
			"dialect":   c.Dialect().String(),
			"returning": fmt.Sprint(c.Generator().Returning()),
			"open":      fmt.Sprint(stats.OpenConnections),
			"in use":    fmt.Sprint(stats.InUse),
			"idle":      fmt.Sprint(stats.Idle),
			"max open":  fmt.Sprint(stats.MaxOpenConnections),
		}
		if v := c.ServerVersion(); v != nil {
			values["server"] = v.String()
		}
		if c.Dialect() == sqlgen.Postgres {
			info, err := c.ConnectionInfo(ctx)
			if err != nil {
				ui.PrintWarning("connection info unavailable: %v", err)
			} else {
				values["server max connections"] = fmt.Sprint(info.MaxConnections)
				values["server connections"] = fmt.Sprint(info.CurrentConnections)
			}
		}

		if flagJSON {
			return printJSON(values)
		}
		ui.PrintSuccess("connected")
		ui.PrintKeyValues(values)
		return nil
	},
}
