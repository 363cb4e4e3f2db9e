package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/metergrid/edgesync/internal/store"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the local database",
		Long: `Bring the local database schema up to date. The run and sync commands
migrate automatically at startup; this command exists for provisioning
pipelines that prepare the database before the daemon is enabled.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()

			if err := store.Migrate(cmd.Context(), resolvedCfg.Local.DSN(), logger); err != nil {
				return fmt.Errorf("migrating local schema: %w", err)
			}

			return nil
		},
	}
}
