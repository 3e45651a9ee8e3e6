// Package main provides the relq CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/syurodev/system/internal/config"
	"github.com/syurodev/system/internal/debug"
	"github.com/syurodev/system/internal/ui"
	"github.com/syurodev/system/internal/version"
	"github.com/syurodev/system/telemetry"
)

// Global flag values.
var (
	flagConfig   string
	flagProvider string
	flagURL      string
	flagDebug    bool
	flagJSON     bool
	flagStats    bool
)

// cfg is loaded by PersistentPreRunE.
var cfg *config.Config

// metrics collects every statement run by the command.
var metrics = telemetry.New()

var rootCmd = &cobra.Command{
	Use:   "relq",
	Short: "relq inspects relational databases through the query compiler",
	Long: `relq connects to PostgreSQL, MySQL or SQLite and runs filtered reads,
counts and deletes compiled by the same statement generator the library uses.

Configuration is read from .relq.yaml, RELQ_* environment variables and
.env files. Flags take precedence.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig(flagConfig, cmd.Flags())
		if err != nil {
			return err
		}
		cfg = loaded
		debug.Init(cfg.Debug)
		if cfg.File != "" {
			debug.Debug("config loaded", "file", cfg.File)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if flagStats {
			return printStats()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: .relq.yaml, ~/.relq.yaml or ~/.config/relq/.relq.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "database provider: postgres, pgx, mysql, sqlite, sqlite3")
	rootCmd.PersistentFlags().StringVar(&flagURL, "url", "", "database connection URL (default: $DATABASE_URL)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "log every statement to stderr")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&flagStats, "stats", false, "print per-statement metrics when done")

	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(filtersCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("%v", err)
		fmt.Fprintln(os.Stderr)
		os.Exit(1)
	}
}
