package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mxfeinberg/agtalk-scraper/internal/database"
)

// newStatsCmd creates and configures the 'stats' subcommand.
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Prints statistics about the stored posts",
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

			stats, err := provider.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("query stats: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total posts:    %d\n", stats.TotalPosts)
			fmt.Fprintf(out, "Unique authors: %d\n", stats.UniqueAuthors)
			fmt.Fprintf(out, "Unique threads: %d\n", stats.UniqueThreads)
			if !stats.FirstScraped.IsZero() {
				fmt.Fprintf(out, "First scraped:  %s\n", stats.FirstScraped.Format("2006-01-02 15:04:05"))
				fmt.Fprintf(out, "Last scraped:   %s\n", stats.LastScraped.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}
