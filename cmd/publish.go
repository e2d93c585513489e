package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mediadedup/internal/storage"
)

var publishCmd = &cobra.Command{
	Use:   "publish <id> <catalog-id>",
	Short: "Record that a media record was published to the catalog",
	Long: `Record the catalog identifier of a media record published on its own.

A published record is preferred as the one to keep when its cluster is
listed, and an existing publication is never replaced by classification.

Example:
  mediadedup publish 1b4e28ba-2fa1-51d2-883f-0016d3cca427 M12345`,
	Args: cobra.ExactArgs(2),
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	id, catalogID := args[0], args[1]
	if err := a.store.SetPublication(cmd.Context(), id, catalogID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no media record %s", id)
		}
		return fmt.Errorf("failed to record publication: %w", err)
	}
	a.logger.Info("publication recorded", "media_id", id, "publication_id", catalogID)
	fmt.Printf("Recorded %s as published (%s)\n", id, catalogID)
	return nil
}
