package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"dsdiff.click/internal/catalog"
)

// newCatalogCommand creates the catalog command with subcommands
func newCatalogCommand() *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Query the catalog of scanned containers",
		Long:  "Query the tracks recorded by previous scans",
	}

	catalogCmd.AddCommand(newCatalogListCommand())

	return catalogCmd
}

// newCatalogListCommand creates the catalog list subcommand
func newCatalogListCommand() *cobra.Command {
	var filter catalog.Filter

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List catalogued tracks",
		Long: `List the tracks recorded by previous scans, grouped by container.

--since accepts today, yesterday, week, month, all or a natural language
date such as "3 days ago" or "last monday".

Examples:
  dsdiff catalog list
  dsdiff catalog list --since "2 weeks ago"
  dsdiff catalog list --codec dst --area multichannel`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogList(cmd, filter)
		},
	}

	listCmd.Flags().StringVar(&filter.Since, "since", "", "Only tracks scanned since this date")
	listCmd.Flags().StringVar(&filter.Codec, "codec", "", "Filter by codec (dsd, dst)")
	listCmd.Flags().StringVar(&filter.Container, "container", "", "Filter by container path")
	listCmd.Flags().StringVar(&filter.Area, "area", "", "Filter by area (stereo, multichannel)")
	listCmd.Flags().IntVar(&filter.Limit, "limit", 0, "Maximum number of results to show (0 = all)")

	return listCmd
}

func runCatalogList(cmd *cobra.Command, filter catalog.Filter) error {
	slog.Debug("running catalog list command",
		"since", filter.Since,
		"codec", filter.Codec,
		"container", filter.Container,
		"area", filter.Area,
		"limit", filter.Limit)

	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	store, err := cli.openCatalog()
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	if store == nil {
		return fmt.Errorf("the catalog is not enabled")
	}

	records, err := store.List(filter)
	if err != nil {
		slog.Error("failed to list catalog", "error", err)
		return fmt.Errorf("failed to list catalog: %w", err)
	}

	outputRecords(cmd.OutOrStdout(), records)
	return nil
}

func outputRecords(w io.Writer, records []catalog.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No catalogued tracks found.")
		return
	}

	var container string
	for _, r := range records {
		if r.Container != container {
			container = r.Container
			fmt.Fprintf(w, "%s (scanned %s)\n", container, r.ScannedAt.Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(w, "  %3d  %-24s %-4s %-12s %9s  %s\n",
			r.Number, r.Name, r.Codec, r.Area, formatDuration(r.Duration), r.Title)
	}
	fmt.Fprintf(w, "\n%d tracks\n", len(records))
}
