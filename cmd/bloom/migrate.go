package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vbonduro/bloom/internal/db"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, err := db.Open(opts.cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() {
				if err := database.Close(); err != nil {
					opts.logger.Error("failed to close database", "error", err)
				}
			}()

			version, err := db.Migrate(database.DB)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database at schema version %d.\n", version)
			return nil
		},
	}
}
