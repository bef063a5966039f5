package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mortasa/storefront/internal/config"
	"github.com/mortasa/storefront/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate <up|down>",
	Short:     "Apply or roll back the PostgreSQL schema",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Backend != config.BackendPostgres {
			return fmt.Errorf("migrate requires the postgres backend, configured backend is %s", cfg.Backend)
		}
		if err := postgres.Migrate(cfg.DatabaseURL, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
