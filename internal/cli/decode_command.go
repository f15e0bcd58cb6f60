package cli

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"dsdiff.click/internal/decoder"
	"dsdiff.click/internal/dsdiff"
	"dsdiff.click/internal/sink"
	"dsdiff.click/internal/tag"
)

// output formats understood by decode
const (
	formatRaw = "raw"
	formatDff = "dff"
	formatWav = "wav"
)

type decodeOptions struct {
	format string
	output string
	start  time.Duration
	length time.Duration
}

// sinkClient is a decode client the CLI can finalize and report on
type sinkClient interface {
	decoder.Client
	Close() error
	Frames() int
	Written() time.Duration
	OnProgress(fn func(written, total time.Duration))
}

// newDecodeCommand creates the decode command
func newDecodeCommand() *cobra.Command {
	var opts decodeOptions

	decodeCmd := &cobra.Command{
		Use:   "decode PATH",
		Short: "Decode a track to raw DSD, DSDIFF or a WAV preview",
		Long: `Decode a container or a track inside it.

Formats:
  raw   interleaved DSD bytes, least significant bit first when lsbitfirst is set
  dff   an uncompressed DSDIFF file (DST tracks are decompressed)
  wav   a 16-bit PCM preview, needs --output

Examples:
  dsdiff decode album.dff/2_AUDIO__TRACK001.dff > track.dsd
  dsdiff decode --format dff -o track.dff album.dff/M_AUDIO__TRACK002.dff
  dsdiff decode --format wav --start 1m --length 30s -o preview.wav album.dff`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd, args[0], opts)
		},
	}

	decodeCmd.Flags().StringVarP(&opts.format, "format", "f", formatRaw, "Output format (raw, dff, wav)")
	decodeCmd.Flags().StringVarP(&opts.output, "output", "o", "-", "Output file, - for stdout (raw only)")
	decodeCmd.Flags().DurationVar(&opts.start, "start", 0, "Start offset within the track")
	decodeCmd.Flags().DurationVar(&opts.length, "length", 0, "Amount of audio to decode, 0 for all")

	return decodeCmd
}

func runDecode(cmd *cobra.Command, path string, opts decodeOptions) error {
	slog.Debug("running decode command",
		"path", path,
		"format", opts.format,
		"output", opts.output,
		"start", opts.start,
		"length", opts.length)

	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	if opts.start < 0 || opts.length < 0 {
		return fmt.Errorf("start and length must not be negative")
	}
	if err := cli.checkFormat(path); err != nil {
		return err
	}

	client, closeOutput, err := cli.newSink(cmd, path, opts)
	if err != nil {
		return err
	}

	if w, ok := cmd.ErrOrStderr().(fdWriter); ok && cli.isInteractiveTerminal(int(w.Fd())) {
		client.OnProgress(progressPrinter(w))
	}

	decodeErr := cli.plugin.FileDecode(client, path)
	sinkErr := client.Close()
	closeErr := closeOutput()

	if decodeErr != nil {
		return fmt.Errorf("failed to decode %s: %w", path, decodeErr)
	}
	if sinkErr != nil {
		return fmt.Errorf("failed to write %s: %w", opts.output, sinkErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", opts.output, closeErr)
	}

	slog.Info("decode finished",
		"path", path,
		"format", opts.format,
		"frames", client.Frames(),
		"written", client.Written())
	return nil
}

// newSink builds the client for the requested format along with a function
// closing its destination
func (c *CLI) newSink(cmd *cobra.Command, path string, opts decodeOptions) (sinkClient, func() error, error) {
	limits := sink.Limits{Start: opts.start, Length: opts.length}
	noop := func() error { return nil }

	if opts.output == "-" {
		if opts.format != formatRaw {
			return nil, nil, fmt.Errorf("format %q needs a seekable --output file", opts.format)
		}
		return sink.NewRawWriter(cmd.OutOrStdout(), limits), noop, nil
	}

	switch opts.format {
	case formatRaw, formatDff, formatWav:
	default:
		return nil, nil, fmt.Errorf("unknown format %q, must be one of: raw, dff, wav", opts.format)
	}

	f, err := c.fs.Create(opts.output)
	if err != nil {
		slog.Error("failed to create output", "output", opts.output, "error", err)
		return nil, nil, fmt.Errorf("failed to create output: %w", err)
	}

	switch opts.format {
	case formatDff:
		return sink.NewDffWriter(f, c.writerOptions(path), limits), f.Close, nil
	case formatWav:
		return sink.NewWavWriter(f, limits), f.Close, nil
	default:
		return sink.NewRawWriter(f, limits), f.Close, nil
	}
}

// writerOptions carries the track title over into a DSDIFF copy
func (c *CLI) writerOptions(path string) dsdiff.WriterOptions {
	var opts dsdiff.WriterOptions
	b := tag.NewBuilder()
	if err := c.plugin.ScanFile(path, b); err != nil {
		slog.Debug("no metadata for DSDIFF copy", "path", path, "error", err)
		return opts
	}
	info := b.Commit()
	opts.Title, _ = info.Get(tag.Title)
	opts.Artist, _ = info.Get(tag.Artist)
	return opts
}

// fdWriter is an output backed by a file descriptor
type fdWriter interface {
	io.Writer
	Fd() uintptr
}

func progressPrinter(w io.Writer) func(written, total time.Duration) {
	var last time.Duration
	printed := false
	return func(written, total time.Duration) {
		if printed && written-last < time.Second && written < total {
			return
		}
		printed = true
		last = written
		fmt.Fprintf(w, "\r%s / %s", formatDuration(written), formatDuration(total))
		if written >= total {
			fmt.Fprintln(w)
		}
	}
}
