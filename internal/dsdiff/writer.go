package dsdiff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// FormatVersion is written into FVER
const FormatVersion = 0x01050000

var ErrWriterClosed = errors.New("DSDIFF writer is closed")

// WriterOptions carries the optional edited master information
type WriterOptions struct {
	Artist  string
	Title   string
	EMID    string
	Markers []Marker
}

// Writer produces an uncompressed DSDIFF file. Sound data is streamed with
// Write; sizes are patched in on Close, so the destination must seek.
type Writer struct {
	w          io.WriteSeeker
	opts       WriterOptions
	formOffset int64
	dataOffset int64
	written    int64
	closed     bool
}

// NewWriter writes the container header for interleaved DSD with the given
// layout and returns a writer positioned at the start of the sound data.
func NewWriter(w io.WriteSeeker, channels, sampleRate int, opts WriterOptions) (*Writer, error) {
	if channels <= 0 || channels > MaxChannels || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid DSDIFF layout: channels=%d sample_rate=%d", channels, sampleRate)
	}

	start, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	var hdr []byte
	hdr = appendChunkHeader(hdr, idFRM8, 0)
	hdr = append(hdr, idDSD[:]...)
	hdr = appendChunk(hdr, idFVER, binary.BigEndian.AppendUint32(nil, FormatVersion))
	hdr = appendChunk(hdr, idPROP, propBody(channels, sampleRate, idDSD, "not compressed"))
	hdr = appendChunkHeader(hdr, idDSD, 0)

	if _, err := w.Write(hdr); err != nil {
		return nil, fmt.Errorf("failed to write DSDIFF header: %w", err)
	}

	return &Writer{
		w:          w,
		opts:       opts,
		formOffset: start,
		dataOffset: start + int64(len(hdr)),
	}, nil
}

func propBody(channels, sampleRate int, compression chunkID, name string) []byte {
	body := append([]byte(nil), idSND[:]...)
	body = appendChunk(body, idFS, binary.BigEndian.AppendUint32(nil, uint32(sampleRate)))

	chnl := binary.BigEndian.AppendUint16(nil, uint16(channels))
	for i := 0; i < channels; i++ {
		chnl = append(chnl, channelID(channels, i)...)
	}
	body = appendChunk(body, idCHNL, chnl)

	cmpr := append([]byte(nil), compression[:]...)
	cmpr = append(cmpr, byte(len(name)))
	cmpr = append(cmpr, name...)
	return appendChunk(body, idCMPR, cmpr)
}

func channelID(channels, i int) []byte {
	if channels == 2 {
		return [][]byte{[]byte("SLFT"), []byte("SRGT")}[i]
	}
	if channels == 5 || channels == 6 {
		return [][]byte{[]byte("MLFT"), []byte("MRGT"), []byte("C   "), []byte("LFE "), []byte("LS  "), []byte("RS  ")}[i]
	}
	return []byte(fmt.Sprintf("C%03d", i))
}

// Write appends interleaved sound data
func (wr *Writer) Write(p []byte) (int, error) {
	if wr.closed {
		return 0, ErrWriterClosed
	}
	n, err := wr.w.Write(p)
	wr.written += int64(n)
	return n, err
}

// Close pads the sound data, appends DIIN metadata and patches chunk sizes.
// It does not close the underlying writer.
func (wr *Writer) Close() error {
	if wr.closed {
		return nil
	}
	wr.closed = true

	var tail []byte
	if wr.written&1 == 1 {
		tail = append(tail, 0)
	}
	if diin := wr.diinBody(); len(diin) > 0 {
		tail = appendChunk(tail, idDIIN, diin)
	}
	if _, err := wr.w.Write(tail); err != nil {
		return fmt.Errorf("failed to write DSDIFF trailer: %w", err)
	}
	end := wr.dataOffset + wr.written + int64(len(tail))

	if err := wr.patchSize(wr.dataOffset-8, uint64(wr.written)); err != nil {
		return err
	}
	if err := wr.patchSize(wr.formOffset+4, uint64(end-wr.formOffset-chunkHeaderSize)); err != nil {
		return err
	}
	if _, err := wr.w.Seek(end, io.SeekStart); err != nil {
		return err
	}

	slog.Debug("DSDIFF writer closed", "sound_bytes", wr.written, "file_bytes", end-wr.formOffset)
	return nil
}

func (wr *Writer) patchSize(at int64, size uint64) error {
	if _, err := wr.w.Seek(at, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to chunk size: %w", err)
	}
	if _, err := wr.w.Write(binary.BigEndian.AppendUint64(nil, size)); err != nil {
		return fmt.Errorf("failed to patch chunk size: %w", err)
	}
	return nil
}

func (wr *Writer) diinBody() []byte {
	var body []byte
	if wr.opts.EMID != "" {
		body = appendChunk(body, idEMID, []byte(wr.opts.EMID))
	}
	for _, m := range wr.opts.Markers {
		body = appendChunk(body, idMARK, markerBody(m))
	}
	if wr.opts.Artist != "" {
		body = appendChunk(body, idDIAR, countedText(wr.opts.Artist))
	}
	if wr.opts.Title != "" {
		body = appendChunk(body, idDITI, countedText(wr.opts.Title))
	}
	return body
}

func markerBody(m Marker) []byte {
	b := binary.BigEndian.AppendUint16(nil, m.Hours)
	b = append(b, m.Minutes, m.Seconds)
	b = binary.BigEndian.AppendUint32(b, m.Samples)
	b = binary.BigEndian.AppendUint32(b, uint32(m.Offset))
	b = binary.BigEndian.AppendUint16(b, m.Type)
	b = binary.BigEndian.AppendUint16(b, m.Channel)
	b = binary.BigEndian.AppendUint16(b, m.Flags)
	return append(b, countedText(m.Text)...)
}

func countedText(s string) []byte {
	return append(binary.BigEndian.AppendUint32(nil, uint32(len(s))), s...)
}

func appendChunkHeader(b []byte, id chunkID, size uint64) []byte {
	b = append(b, id[:]...)
	return binary.BigEndian.AppendUint64(b, size)
}

// appendChunk appends a complete chunk, pad byte included
func appendChunk(b []byte, id chunkID, body []byte) []byte {
	b = appendChunkHeader(b, id, uint64(len(body)))
	b = append(b, body...)
	if len(body)&1 == 1 {
		b = append(b, 0)
	}
	return b
}
