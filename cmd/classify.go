package cmd

import (
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"mediadedup/internal/pipeline"
	"mediadedup/internal/storage"
)

var (
	classifySource string
	classifyQuiet  bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Fingerprint and classify stored media records",
	Long: `Fingerprint every record that still lacks fingerprints, then match each
record against the known population and record duplicate and variant edges.

Records whose assets cannot be fetched are left unfingerprinted and are
retried on the next run. Images that cannot be decoded are marked
unreadable and ignored.

Only one classification may run against a database at a time.

Example:
  mediadedup classify
  mediadedup classify --source holiday
  mediadedup classify --workers 16`,
	Args: cobra.NoArgs,
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&classifySource, "source", "", "Only process records of this source")
	classifyCmd.Flags().BoolVarP(&classifyQuiet, "quiet", "q", false, "Do not print progress")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	lock := flock.New(a.cfg.Paths.LockFile)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another classification holds %s", a.cfg.Paths.LockFile)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			a.logger.Warn("failed to release lock", "lock", a.cfg.Paths.LockFile, "error", err)
		}
	}()

	ctx := cmd.Context()
	filter := storage.Filter{}
	filter.Scope.Source = classifySource
	records, err := a.store.List(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to load records: %w", err)
	}

	fmt.Printf("Records:    %d\n", len(records))
	fmt.Printf("Partition:  %s\n", a.cfg.Partition())
	fmt.Printf("Thresholds: coarse %.3f, variant %.3f\n", a.cfg.Classifier.CoarseThreshold, a.cfg.Classifier.VariantThreshold)
	fmt.Printf("Workers:    %d\n\n", a.cfg.Pipeline.Workers)

	if len(records) == 0 {
		fmt.Println("No records found.")
		return nil
	}

	var opts []pipeline.Option
	progress := &progressLine{w: os.Stdout}
	if !classifyQuiet && isTerminal(os.Stdout) {
		opts = append(opts, pipeline.WithProgress(progress.update))
	}

	runner, err := a.runner(opts...)
	if err != nil {
		return err
	}

	sum, err := runner.Run(ctx, records)
	progress.clear()
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}

	fmt.Println("=== Classification Complete ===")
	fmt.Printf("Records:          %d\n", sum.Records)
	fmt.Printf("Fingerprinted:    %d\n", sum.Fingerprinted)
	fmt.Printf("Unreadable:       %d\n", sum.Unreadable)
	fmt.Printf("Classified:       %d\n", sum.Classified)
	fmt.Printf("Duplicate edges:  %d\n", sum.Duplicates)
	fmt.Printf("Variant edges:    %d\n", sum.Variants)
	fmt.Printf("Newly ignored:    %d\n", sum.Ignored)
	fmt.Printf("Failed:           %d\n", sum.Failed)

	if sum.Duplicates+sum.Variants > 0 {
		fmt.Println()
		fmt.Println("Run 'mediadedup list' to see related records")
	}
	return nil
}
