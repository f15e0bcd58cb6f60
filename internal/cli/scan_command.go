package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"dsdiff.click/internal/catalog"
	"dsdiff.click/internal/decoder"
	"dsdiff.click/internal/fs"
	"dsdiff.click/internal/tag"
)

var ErrUnsupportedFormat = errors.New("unsupported format")

// newScanCommand creates the scan command
func newScanCommand() *cobra.Command {
	var noCatalog bool

	scanCmd := &cobra.Command{
		Use:   "scan CONTAINER...",
		Short: "List the tracks inside DSDIFF containers",
		Long: `List the virtual tracks stored inside one or more DSDIFF containers.

Containers holding a single track list nothing; play them directly.
When the catalog is enabled every scan replaces what was recorded for the
container before.

Examples:
  dsdiff scan album.dff
  dsdiff scan --no-catalog *.dff`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args, noCatalog)
		},
	}

	scanCmd.Flags().BoolVar(&noCatalog, "no-catalog", false, "Do not record the scan in the catalog")

	return scanCmd
}

func runScan(cmd *cobra.Command, containers []string, noCatalog bool) error {
	slog.Debug("running scan command", "containers", len(containers), "no_catalog", noCatalog)

	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	var store *catalog.Store
	if !noCatalog {
		var err error
		store, err = cli.openCatalog()
		if err != nil {
			slog.Warn("continuing without catalog", "error", err)
		}
	}

	w := cmd.OutOrStdout()
	var failed int
	for _, container := range containers {
		if err := cli.checkFormat(container); err != nil {
			cmd.PrintErrf("Error: %s: %v\n", container, err)
			failed++
			continue
		}

		entries, err := cli.plugin.ContainerScan(container)
		if err != nil {
			cmd.PrintErrf("Error: %s: %v\n", container, err)
			slog.Error("container scan failed", "path", container, "error", err)
			failed++
			continue
		}

		printEntries(w, container, entries)

		if store != nil {
			if err := store.Replace(container, entries); err != nil {
				slog.Error("failed to record scan in catalog", "path", container, "error", err)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d containers could not be scanned", failed, len(containers))
	}
	return nil
}

func printEntries(w io.Writer, container string, entries []decoder.Entry) {
	fmt.Fprintf(w, "%s\n", container)
	if len(entries) == 0 {
		fmt.Fprintf(w, "  (single track)\n")
		return
	}
	for _, e := range entries {
		number, _ := e.Tag.Get(tag.Track)
		title, _ := e.Tag.Get(tag.Title)
		fmt.Fprintf(w, "  %3s  %-24s %-4s %9s  %s\n",
			number, e.Name, e.Codec(), formatDuration(e.Tag.Duration), title)
	}
}

// newInfoCommand creates the info command
func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info PATH",
		Short: "Show the metadata of a track",
		Long: `Show the metadata of a container or of a track inside it.

Examples:
  dsdiff info album.dff
  dsdiff info album.dff/M_AUDIO__TRACK002.dff`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd, args[0])
		},
	}
}

func runInfo(cmd *cobra.Command, path string) error {
	slog.Debug("running info command", "path", path)

	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	if err := cli.checkFormat(path); err != nil {
		return err
	}

	b := tag.NewBuilder()
	if err := cli.plugin.ScanFile(path, b); err != nil {
		slog.Error("scan failed", "path", path, "error", err)
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	printTag(cmd.OutOrStdout(), path, b.Commit())
	return nil
}

func printTag(w io.Writer, path string, t tag.Tag) {
	fmt.Fprintf(w, "%s\n", path)
	fmt.Fprintf(w, "  %-10s %s\n", "duration", formatDuration(t.Duration))
	for _, item := range t.Items {
		fmt.Fprintf(w, "  %-10s %s\n", item.Type, item.Value)
	}

	for _, p := range t.Pairs {
		fmt.Fprintf(w, "  %-10s %s\n", p.Name, p.Value)
	}
}

// checkFormat rejects paths no registered decoder can handle. Real files are
// sniffed by content, virtual tracks by their suffix.
func (c *CLI) checkFormat(path string) error {
	if fs.FileExists(c.fs, path) {
		f, err := c.fs.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if c.registry.DetectFormatWithContent(path, f) == nil {
			return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
		}
		return nil
	}
	if c.registry.DetectFormat(path) == nil {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Millisecond)
	minutes := int(d / time.Minute)
	seconds := (d % time.Minute).Seconds()
	return fmt.Sprintf("%d:%06.3f", minutes, seconds)
}
