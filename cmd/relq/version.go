package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syurodev/system/internal/ui"
	"github.com/syurodev/system/internal/version"
	"github.com/syurodev/system/runtime/client"
)

var versionRequire string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()
		if versionRequire != "" {
			ok, err := info.Satisfies(versionRequire)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("relq %s does not satisfy %q", info.Version, versionRequire)
			}
		}
		if flagJSON {
			return printJSON(map[string]any{
				"version":   info.Version,
				"buildDate": info.BuildDate,
				"gitCommit": info.GitCommit,
				"goVersion": info.GoVersion,
				"platform":  info.Platform,
				"providers": client.Providers,
			})
		}
		ui.PrintBox("relq", info.FullString())
		ui.PrintInfo("providers: %v", client.Providers)
		return nil
	},
}

func init() {
	versionCmd.Flags().StringVar(&versionRequire, "require", "", "fail unless the version satisfies this constraint")
}
