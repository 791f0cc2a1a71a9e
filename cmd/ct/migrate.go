package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/cafetrace/internal/config"
	"github.com/alfredjeanlab/cafetrace/internal/store/postgres"
)

var migrateCmd = &cobra.Command{
	Use:               "migrate",
	Short:             "Apply database migrations and print the schema version",
	GroupID:           "system",
	Args:              cobra.NoArgs,
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, map[string]uint{"schema_version": store.SchemaVersion()})
		}
		fmt.Fprintf(out, "Schema version: %d\n", store.SchemaVersion())
		return nil
	},
}
