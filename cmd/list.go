package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"mediadedup/internal/models"
	"mediadedup/internal/report"
	"mediadedup/internal/storage"
)

var (
	listJSON    bool
	listVerbose bool
	listSummary bool
	listSource  string
	listLimit   int
	listOffset  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List clusters of related media records",
	Long: `Display clusters of records joined by duplicate or variant edges.

Each cluster shows:
- Cluster ID
- Its records, the one to publish marked with ✓
- Duplicates (ignored) marked with ✗, variants marked with ~

Example:
  mediadedup list              # Show first 10 clusters (default)
  mediadedup list -n 0         # Show all clusters
  mediadedup list -s           # Summary view (compact)
  mediadedup list --offset 10  # Clusters 11-20`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	listCmd.Flags().BoolVarP(&listVerbose, "verbose", "v", false, "Show asset locations and edge scores")
	listCmd.Flags().BoolVarP(&listSummary, "summary", "s", false, "Show summary only (one line per cluster)")
	listCmd.Flags().StringVar(&listSource, "source", "", "Only show records of this source")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 10, "Limit number of clusters to display (0 = all)")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Skip first N clusters (for pagination)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	filter := storage.Filter{Related: true}
	filter.Scope.Source = listSource
	records, err := a.store.List(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to load records: %w", err)
	}
	clusters := report.Clusters(records)

	if listJSON {
		return printClustersJSON(clusters)
	}

	if len(clusters) == 0 {
		fmt.Println("No related records found.")
		fmt.Println("Run 'mediadedup classify' after ingesting media.")
		return nil
	}

	duplicates := lo.SumBy(clusters, func(c *report.Cluster) int { return len(c.Duplicates()) })
	fmt.Printf("Found %d clusters (%d duplicates, %d records)\n\n",
		len(clusters), duplicates, lo.SumBy(clusters, func(c *report.Cluster) int { return len(c.Members) }))

	// Apply pagination
	total := len(clusters)
	startIdx := min(listOffset, total)
	clusters = clusters[startIdx:]
	if listLimit > 0 && listLimit < len(clusters) {
		clusters = clusters[:listLimit]
	}

	switch {
	case len(clusters) == 0:
		fmt.Printf("No clusters in range (offset %d exceeds total %d)\n", listOffset, total)
	case listSummary:
		printSummaryTable(clusters)
	default:
		for _, c := range clusters {
			printCluster(c, listVerbose)
		}
	}

	endIdx := startIdx + len(clusters)
	if len(clusters) > 0 {
		fmt.Printf("Showing clusters %d-%d of %d\n", startIdx+1, endIdx, total)
		if endIdx < total {
			limitArg := ""
			if listLimit > 0 {
				limitArg = fmt.Sprintf(" -n %d", listLimit)
			}
			fmt.Printf("Next page: mediadedup list%s --offset %d\n", limitArg, endIdx)
		}
	}
	return nil
}

type clusterJSON struct {
	ID      int                   `json:"id"`
	Keep    string                `json:"keep"`
	Members []*models.MediaRecord `json:"members"`
	Links   []linkJSON            `json:"links"`
}

type linkJSON struct {
	MediaID    string  `json:"media_id"`
	OriginalID string  `json:"original_id"`
	Kind       string  `json:"kind"`
	Score      float64 `json:"similarity_score"`
}

func printClustersJSON(clusters []*report.Cluster) error {
	out := lo.Map(clusters, func(c *report.Cluster, _ int) clusterJSON {
		return clusterJSON{
			ID:      c.ID,
			Keep:    c.Keep.ID,
			Members: c.Members,
			Links: lo.Map(c.Links, func(l report.Link, _ int) linkJSON {
				return linkJSON{MediaID: l.MediaID, OriginalID: l.OriginalID, Kind: l.Kind.String(), Score: l.Score}
			}),
		}
	})
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printSummaryTable(clusters []*report.Cluster) {
	rows := make([][]string, 0, len(clusters))
	for _, c := range clusters {
		rows = append(rows, []string{
			fmt.Sprintf("#%d", c.ID),
			fmt.Sprintf("%d", len(c.Members)),
			fmt.Sprintf("%d", len(c.Duplicates())),
			fmt.Sprintf("%d", lo.CountBy(c.Members, func(m *models.MediaRecord) bool {
				return m.Duplicates.Len() == 0 && m.Variants.Len() > 0
			})),
			shortenLocation(c.Keep.Primary().AssetLocation, 40),
		})
	}
	fmt.Println(renderTable(
		[]string{"Cluster", "Records", "Duplicates", "Variants", "Keep"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
	))
	fmt.Println()
}

func printCluster(c *report.Cluster, verbose bool) {
	fmt.Printf("Cluster #%d (%d records)\n", c.ID, len(c.Members))

	rows := make([][]string, 0, len(c.Members))
	for _, m := range c.Members {
		location := m.Primary().AssetLocation
		if !verbose {
			location = shortenLocation(location, 40)
		}
		rows = append(rows, []string{
			memberMarker(c, m),
			m.ID[:min(8, len(m.ID))],
			m.Source,
			m.Category.String(),
			formatSize(m.Primary().Size),
			location,
		})
	}
	fmt.Println(renderTable(
		[]string{"", "ID", "Source", "Category", "Size", "Location"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))

	if verbose {
		for _, l := range c.Links {
			fmt.Printf("  %s -> %s  %s  score %.4f\n", l.MediaID, l.OriginalID, l.Kind, l.Score)
		}
	}
	fmt.Println()
}

func memberMarker(c *report.Cluster, m *models.MediaRecord) string {
	switch {
	case m == c.Keep:
		return "✓"
	case m.Duplicates.Len() > 0:
		return "✗"
	case m.Variants.Len() > 0:
		return "~"
	default:
		return " "
	}
}

func shortenLocation(location string, maxLen int) string {
	if len(location) <= maxLen {
		return location
	}

	// Keep the file name and as much of its parent as fits
	dir, file := path.Split(location)
	if len(file) >= maxLen-3 {
		return "..." + file[len(file)-(maxLen-3):]
	}

	remaining := maxLen - len(file) - 4 // 4 for ".../"
	if remaining > 0 && len(dir) > remaining {
		dir = dir[len(dir)-remaining:]
	}
	return "..." + dir + file
}

func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes <= 0:
		return "-"
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
