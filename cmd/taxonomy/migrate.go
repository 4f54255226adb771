package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(root)
			if err != nil {
				return err
			}
			pool, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			pool.Close()
			slog.Info("migrations applied")
			return nil
		},
	}
}
