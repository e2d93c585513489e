package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath string
	dbPath     string
	logLevel   string
	workers    int
)

var rootCmd = &cobra.Command{
	Use:   "mediadedup",
	Short: "Detect duplicate and variant media before publication",
	Long: `mediadedup harvests media records from upstream sources and decides, for
each record, whether it duplicates or varies media already known.

Every asset gets a SHA-256 content fingerprint; images also get a
perceptual fingerprint. Records matching an existing record closely enough
are marked as duplicates (and ignored for publication) or as variants.

Example usage:
  mediadedup ingest ./photos               # Add records from a folder
  mediadedup ingest --url https://ex.org/  # Add images linked from a page
  mediadedup classify                      # Fingerprint and classify pending records
  mediadedup list                          # Show clusters of related records
  mediadedup show <id>                     # Show one record with its edges`,
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (default ~/.config/mediadedup/config.toml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "Number of parallel workers (overrides config)")
}
