package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"taxonomy/internal/database"
	"taxonomy/internal/hierarchy"
	"taxonomy/internal/store"
)

func newSeedCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the sample hierarchy into an empty database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(root)
			if err != nil {
				return err
			}
			pool, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := hierarchy.NewService(hierarchy.ServiceConfig{
				Repo: store.NewNodeStore(pool),
				Tx:   store.NewTransactor(pool),
			})
			if err := database.Seed(cmd.Context(), pool, svc); err != nil {
				return err
			}
			slog.Info("seed complete")
			return nil
		},
	}
}
