package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mediadedup/internal/models"
	"mediadedup/internal/storage"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one media record with its fingerprints and edges",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	m, err := a.store.Get(cmd.Context(), args[0])
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no media record %s", args[0])
	}
	if err != nil {
		return err
	}

	if showJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}

	fmt.Printf("ID:          %s\n", m.ID)
	fmt.Printf("Source:      %s\n", m.Source)
	fmt.Printf("Category:    %s\n", m.Category)
	fmt.Printf("Readable:    %s\n", m.Readable)
	if m.Ignored {
		fmt.Printf("Ignored:     yes (%s)\n", m.IgnoredReason)
	} else {
		fmt.Printf("Ignored:     no\n")
	}
	if m.HasPublication() {
		fmt.Printf("Published:   %s\n", m.PublicationID)
	}
	fmt.Println()

	rows := make([][]string, 0, models.ChannelCount)
	for _, c := range m.ActiveChannels() {
		md := m.Metadata(c)
		rows = append(rows, []string{c.String(), formatSize(md.Size), md.ContentFingerprint, md.PerceptualFingerprint, md.AssetLocation})
	}
	fmt.Println(renderTable(
		[]string{"Channel", "Size", "Content", "Perceptual", "Location"},
		rows,
		[]columnAlignment{alignLeft, alignRight},
	))

	for _, kind := range models.EdgeKinds {
		edges := m.Edges(kind).Edges()
		if len(edges) == 0 {
			continue
		}
		fmt.Printf("\n%s of:\n", kind)
		for _, e := range edges {
			fmt.Printf("  %s  score %.4f\n", e.OriginalID, e.SimilarityScore)
		}
	}
	return nil
}
