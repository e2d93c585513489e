package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"mediadedup/internal/source"
)

var (
	ingestURL    string
	ingestSource string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [folder]",
	Short: "Add media records from a folder or a web page",
	Long: `Harvest media records from an upstream source and store them unclassified.

A folder is walked recursively; every file with a known media extension
becomes one record. With --url, the page is fetched and every image it
embeds becomes one record, with a linked larger version as its full
resolution channel.

Record ids derive from the asset location, so ingesting the same source
twice adds nothing new.

Example:
  mediadedup ingest ./photos
  mediadedup ingest ./photos --source holiday
  mediadedup ingest --url https://example.org/gallery`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "Harvest images from a web page instead of a folder")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "Source name recorded on new media (default folder name or page host)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	connector, err := newConnector(args)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	fmt.Printf("Scanning: %s\n", connector.Name())
	records, err := connector.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	added := 0
	for _, m := range records {
		created, err := a.store.Create(ctx, m)
		if err != nil {
			return fmt.Errorf("failed to save %s: %w", m.Primary().AssetLocation, err)
		}
		if created {
			added++
		}
	}
	a.logger.Info("ingest complete", "source", connector.Name(), "found", len(records), "added", added)

	fmt.Println()
	fmt.Println("=== Ingest Complete ===")
	fmt.Printf("Media found:      %d\n", len(records))
	fmt.Printf("New records:      %d\n", added)
	fmt.Printf("Already known:    %d\n", len(records)-added)

	if added > 0 {
		fmt.Println()
		fmt.Println("Run 'mediadedup classify' to fingerprint and classify new records")
	}
	return nil
}

func newConnector(args []string) (source.Connector, error) {
	if ingestURL != "" {
		if len(args) > 0 {
			return nil, errors.New("give either a folder or --url, not both")
		}
		return source.NewPage(ingestURL, ingestSource, http.DefaultClient), nil
	}
	if len(args) == 0 {
		return nil, errors.New("a folder or --url is required")
	}

	absFolder, err := filepath.Abs(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(absFolder)
	if err != nil {
		return nil, fmt.Errorf("folder not found: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absFolder)
	}
	return source.NewDirectory(absFolder, ingestSource), nil
}
