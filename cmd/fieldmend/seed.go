package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the default correction patterns",
		Long: `Insert the default correction patterns at seed confidence. Patterns
that already exist are left untouched, so seeding never clobbers
learned confidence.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.SeedDefaultCorrections(ctx); err != nil {
				return fmt.Errorf("failed to seed corrections: %w", err)
			}

			slog.Info("Seeded default correction patterns")
			return nil
		},
	}
}
