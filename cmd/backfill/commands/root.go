// Package commands implements the diamond-backfill CLI: scrape box scores
// straight to CSV or the database, parse saved pages, and rebuild features.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fortuna/diamond/internal/config"
	"github.com/fortuna/diamond/internal/logging"
)

var (
	configPath string
	logLevel   string

	cfg config.Config
	log *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:           "diamond-backfill",
	Short:         "diamond-backfill scrapes Baseball-Reference box scores and derives pre-game features.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
			if err := cfg.Validate(); err != nil {
				return err
			}
		}
		// stdout carries tables and CSV, so logs go to stderr.
		log = logging.NewJSONTo(os.Stderr, cfg.Level()).With("app", "diamond-backfill")
		logging.SetDefault(log)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("DIAMOND_CONFIG"), "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
