// Package cmd defines and implements the CLI commands for the agtalk-scraper
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mxfeinberg/agtalk-scraper/internal/config"
	"github.com/mxfeinberg/agtalk-scraper/internal/logging"
)

var (
	cfgFile  string
	logLevel string
)

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agtalk-scraper",
		Short: "A respectful scraper for the AgTalk discussion forums.",
		Long: `agtalk-scraper retrieves discussion posts from the AgTalk forums and
stores them in PostgreSQL. It honors robots.txt, paces its requests with a
configurable delay, and crawls multiple forums round-robin so no single
section bears the request load.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newResetCmd())

	return cmd
}

// setup loads .env, the config file, and builds the logger. Shared by every
// subcommand; any error here is a configuration error and aborts before any
// network activity.
func setup() (config.Config, *zap.Logger, error) {
	// A missing .env is fine; credentials may come from the environment.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, logLevel)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
