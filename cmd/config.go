package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"mediadedup/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a sample configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	target := configPath
	if len(args) == 1 {
		target = args[0]
	}
	var err error
	if target == "" {
		target, err = config.DefaultConfigPath()
	} else {
		target, err = config.ExpandPath(target)
	}
	if err != nil {
		return err
	}

	if _, err := os.Stat(target); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", target)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}

	if err := config.CreateSample(target); err != nil {
		return err
	}
	fmt.Printf("Wrote sample configuration to %s\n", target)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, path, exists, err := config.Load(configPath)
	if err != nil {
		return err
	}
	source := path
	if !exists {
		source = "defaults (no file at " + path + ")"
	}

	fmt.Printf("Config:            %s\n", source)
	fmt.Printf("Database:          %s\n", cfg.Paths.Database)
	fmt.Printf("Lock file:         %s\n", cfg.Paths.LockFile)
	fmt.Printf("Coarse threshold:  %.3f\n", cfg.Classifier.CoarseThreshold)
	fmt.Printf("Variant threshold: %.3f\n", cfg.Classifier.VariantThreshold)
	fmt.Printf("Fingerprint bits:  %d\n", cfg.Classifier.FingerprintBits)
	fmt.Printf("Partition:         %s\n", cfg.Partition())
	fmt.Printf("Workers:           %d\n", cfg.Pipeline.Workers)
	fmt.Printf("Log:               %s %s\n", cfg.Logging.Format, cfg.Logging.Level)
	return nil
}
