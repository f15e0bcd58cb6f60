package sink

import (
	"fmt"
	"io"
	"log/slog"

	"dsdiff.click/internal/decoder"
	"dsdiff.click/internal/dsdiff"
)

// RawWriter writes the interleaved DSD stream as it arrives, in the bit order
// the decoder delivers
type RawWriter struct {
	session
	w io.Writer
}

// NewRawWriter returns a client writing raw DSD bytes to w
func NewRawWriter(w io.Writer, limits Limits) *RawWriter {
	r := &RawWriter{w: w}
	r.session = newSession(r, limits)
	return r
}

func (r *RawWriter) begin(decoder.AudioFormat) error { return nil }

func (r *RawWriter) write(data []byte) error {
	_, err := r.w.Write(data)
	return err
}

// Close flushes nothing; it reports the first error seen while writing
func (r *RawWriter) Close() error {
	return r.err
}

// DffWriter stores the stream as an uncompressed DSDIFF file. DSDIFF sound
// data is most significant bit first whatever order the stream arrives in.
type DffWriter struct {
	session
	w       io.WriteSeeker
	opts    dsdiff.WriterOptions
	enc     *dsdiff.Writer
	reverse bool
	scratch []byte
}

// NewDffWriter returns a client writing a DSDIFF file to w
func NewDffWriter(w io.WriteSeeker, opts dsdiff.WriterOptions, limits Limits) *DffWriter {
	d := &DffWriter{w: w, opts: opts}
	d.session = newSession(d, limits)
	return d
}

func (d *DffWriter) begin(format decoder.AudioFormat) error {
	enc, err := dsdiff.NewWriter(d.w, format.Channels, format.SampleRate*8, d.opts)
	if err != nil {
		return fmt.Errorf("failed to start DSDIFF output: %w", err)
	}
	d.enc = enc
	d.reverse = format.LSBitFirst
	return nil
}

func (d *DffWriter) write(data []byte) error {
	if d.reverse {
		d.scratch = append(d.scratch[:0], data...)
		decoder.BitReverse(d.scratch)
		data = d.scratch
	}
	_, err := d.enc.Write(data)
	return err
}

// Close finalizes the DSDIFF file
func (d *DffWriter) Close() error {
	if d.enc == nil {
		return d.err
	}
	if err := d.enc.Close(); err != nil {
		slog.Error("failed to finalize DSDIFF output", "error", err)
		return err
	}
	d.enc = nil
	return d.err
}
