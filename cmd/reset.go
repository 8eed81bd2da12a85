package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mxfeinberg/agtalk-scraper/internal/database"
)

// newResetCmd creates and configures the 'reset' subcommand.
func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Drops and recreates the posts table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			provider, err := database.NewPostgresProvider(cmd.Context(), cfg.DB.DSN, logger)
			if err != nil {
				return fmt.Errorf("init database: %w", err)
			}
			defer provider.Close()

			if err := provider.Reset(cmd.Context()); err != nil {
				return fmt.Errorf("reset database: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database reset")
			return nil
		},
	}
}
