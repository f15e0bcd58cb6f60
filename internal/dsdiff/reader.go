// Package dsdiff reads DSDIFF (.dff) containers holding plain DSD or
// DST-compressed sound data, exposing them as a catalog of tracks that can
// be read frame by frame.
package dsdiff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"dsdiff.click/internal/media"
)

// Container errors
var (
	ErrNotDSDIFF       = errors.New("not a DSDIFF container")
	ErrMalformed       = errors.New("malformed DSDIFF container")
	ErrNotOpen         = errors.New("container is not open")
	ErrNoTrack         = errors.New("no track selected")
	ErrAreaUnavailable = errors.New("area not present in container")
	ErrTrackOutOfRange = errors.New("track index out of range")
	ErrShortBuffer     = errors.New("frame does not fit the buffer")
	ErrSeekOutOfRange  = errors.New("seek target outside the track")
)

// DSDFrameRate is the frame rate of uncompressed DSD sound data
const DSDFrameRate = 75

// MaxChannels is the widest channel layout an SACD area carries
const MaxChannels = 6

// maxMetaChunk bounds the metadata chunks read into memory
const maxMetaChunk = 1 << 20

// Area is a channel-layout grouping of tracks
type Area int

const (
	AreaBoth Area = iota
	AreaTwoCh
	AreaMulCh
)

func (a Area) String() string {
	switch a {
	case AreaTwoCh:
		return "stereo"
	case AreaMulCh:
		return "multichannel"
	default:
		return "both"
	}
}

// Mode selects how markers are turned into tracks
type Mode int

const (
	ModeMultiTrack Mode = iota
	ModeSingleTrack
)

// FrameType tags each frame returned by ReadFrame
type FrameType int

const (
	FrameInvalid FrameType = iota
	FrameDSD
	FrameDST
)

func (t FrameType) String() string {
	switch t {
	case FrameDSD:
		return "DSD"
	case FrameDST:
		return "DST"
	default:
		return "invalid"
	}
}

// Marker types defined by DSDIFF
const (
	MarkTrackStart   = 0
	MarkTrackStop    = 1
	MarkProgramStart = 2
	MarkIndex        = 4
)

// Marker is a position in the sound data, in samples per channel
type Marker struct {
	Hours   uint16
	Minutes uint8
	Seconds uint8
	Samples uint32
	Offset  int32
	Type    uint16
	Channel uint16
	Flags   uint16
	Text    string
}

// position returns the marker position in samples for the given rate
func (m Marker) position(sampleRate int) int64 {
	secs := (int64(m.Hours)*60+int64(m.Minutes))*60 + int64(m.Seconds)
	return secs*int64(sampleRate) + int64(m.Samples) + int64(m.Offset)
}

type frameRef struct {
	offset int64
	size   uint32
}

type trackSpan struct {
	start int64 // samples
	stop  int64 // samples
	title string
}

// Reader is a DSDIFF container session. It is not safe for concurrent use.
type Reader struct {
	media media.Media
	mode  Mode

	version    uint32
	channels   int
	sampleRate int
	frameRate  int
	dst        bool

	dataOffset int64
	dataSize   int64
	frames     []frameRef

	markers    []Marker
	emid       string
	discArtist string
	discTitle  string

	emaster bool
	tracks  []trackSpan

	area       Area
	track      int
	selected   bool
	cursor     int64 // next frame index
	firstFrame int64
	endFrame   int64
}

// NewReader returns a closed reader
func NewReader() *Reader {
	return &Reader{}
}

// Open parses the container on m. The reader does not take ownership of m.
func (r *Reader) Open(m media.Media, mode Mode) error {
	r.reset()
	slog.Debug("opening DSDIFF container", "path", m.Path(), "mode", mode)

	form, err := readChunkHeader(m, 0)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotDSDIFF, err)
	}
	if form.id != idFRM8 {
		return fmt.Errorf("%w: leading chunk is %q", ErrNotDSDIFF, form.id.String())
	}

	var formType chunkID
	if _, err := io.ReadFull(m, formType[:]); err != nil || formType != idDSD {
		return fmt.Errorf("%w: form type %q", ErrNotDSDIFF, formType.String())
	}

	end := form.offset + int64(form.size)
	if size := m.Size(); size > 0 && end > size {
		slog.Warn("FRM8 chunk extends past end of media, clamping",
			"path", m.Path(),
			"declared_end", end,
			"media_size", size)
		end = size
	}

	r.media = m
	r.mode = mode
	if err := r.parseForm(form.offset+4, end); err != nil {
		r.reset()
		return err
	}

	r.buildTracks()
	r.area = r.ownArea()

	slog.Info("DSDIFF container opened",
		"path", m.Path(),
		"channels", r.channels,
		"sample_rate", r.sampleRate,
		"frame_rate", r.frameRate,
		"dst", r.dst,
		"frames", r.totalFrames(),
		"tracks", len(r.tracks))
	return nil
}

func (r *Reader) parseForm(start, end int64) error {
	var haveProp, haveSound bool
	compression := idDSD

	for pos := start; pos+chunkHeaderSize <= end; {
		h, err := readChunkHeader(r.media, pos)
		if err != nil {
			return err
		}

		switch h.id {
		case idFVER:
			data, err := readChunkData(r.media, h, 4)
			if err != nil {
				return err
			}
			if len(data) == 4 {
				r.version = binary.BigEndian.Uint32(data)
			}
		case idPROP:
			if compression, err = r.parseProp(h); err != nil {
				return err
			}
			haveProp = true
		case idDSD:
			r.dst = false
			r.dataOffset = h.offset
			r.dataSize = min(int64(h.size), end-h.offset)
			haveSound = true
		case idDST:
			r.dst = true
			if err := r.parseDST(h, end); err != nil {
				return err
			}
			haveSound = true
		case idDIIN:
			if err := r.parseDIIN(h); err != nil {
				return err
			}
		default:
			slog.Debug("skipping chunk", "id", h.id.String(), "size", h.size)
		}
		pos = h.end()
	}

	if !haveProp {
		return fmt.Errorf("%w: missing PROP chunk", ErrMalformed)
	}
	if !haveSound {
		return fmt.Errorf("%w: missing sound data chunk", ErrMalformed)
	}
	if r.channels <= 0 || r.channels > MaxChannels || r.sampleRate <= 0 {
		return fmt.Errorf("%w: channels=%d sample_rate=%d", ErrMalformed, r.channels, r.sampleRate)
	}
	if (compression == idDST) != r.dst {
		return fmt.Errorf("%w: compression %q does not match sound data", ErrMalformed, compression.String())
	}
	if !r.dst {
		r.frameRate = DSDFrameRate
	}
	if r.frameRate <= 0 {
		r.frameRate = DSDFrameRate
	}
	// every frame must hold at least one byte per channel
	if r.sampleRate/8/r.frameRate == 0 {
		return fmt.Errorf("%w: sample_rate=%d too low for frame_rate=%d", ErrMalformed, r.sampleRate, r.frameRate)
	}
	return nil
}

func (r *Reader) parseProp(prop chunkHeader) (chunkID, error) {
	compression := idDSD

	var propType chunkID
	if _, err := r.media.Seek(prop.offset, io.SeekStart); err != nil {
		return compression, err
	}
	if _, err := io.ReadFull(r.media, propType[:]); err != nil {
		return compression, fmt.Errorf("%w: PROP type: %v", ErrMalformed, err)
	}
	if propType != idSND {
		return compression, fmt.Errorf("%w: PROP type %q", ErrMalformed, propType.String())
	}

	err := walkChunks(r.media, prop.offset+4, prop.offset+int64(prop.size), func(h chunkHeader) error {
		switch h.id {
		case idFS:
			data, err := readChunkData(r.media, h, 4)
			if err != nil {
				return err
			}
			if len(data) != 4 {
				return fmt.Errorf("%w: FS chunk size %d", ErrMalformed, len(data))
			}
			r.sampleRate = int(binary.BigEndian.Uint32(data))
		case idCHNL:
			data, err := readChunkData(r.media, h, maxMetaChunk)
			if err != nil {
				return err
			}
			if len(data) < 2 {
				return fmt.Errorf("%w: CHNL chunk size %d", ErrMalformed, len(data))
			}
			r.channels = int(binary.BigEndian.Uint16(data))
		case idCMPR:
			data, err := readChunkData(r.media, h, maxMetaChunk)
			if err != nil {
				return err
			}
			if len(data) < 4 {
				return fmt.Errorf("%w: CMPR chunk size %d", ErrMalformed, len(data))
			}
			copy(compression[:], data[:4])
		}
		return nil
	})
	return compression, err
}

func (r *Reader) parseDST(dst chunkHeader, limit int64) error {
	end := min(dst.offset+int64(dst.size), limit)
	declared := -1

	err := walkChunks(r.media, dst.offset, end, func(h chunkHeader) error {
		switch h.id {
		case idFRTE:
			data, err := readChunkData(r.media, h, 64)
			if err != nil {
				return err
			}
			if len(data) < 6 {
				return fmt.Errorf("%w: FRTE chunk size %d", ErrMalformed, len(data))
			}
			declared = int(binary.BigEndian.Uint32(data))
			r.frameRate = int(binary.BigEndian.Uint16(data[4:]))
			// a DSTF chunk takes at least a header, so the chunk bounds the count
			r.frames = make([]frameRef, 0, min(int64(declared), (end-dst.offset)/chunkHeaderSize))
		case idDSTF:
			if h.size > 1<<32-1 {
				return fmt.Errorf("%w: DSTF chunk of %d bytes", ErrMalformed, h.size)
			}
			r.frames = append(r.frames, frameRef{offset: h.offset, size: uint32(h.size)})
		}
		return nil
	})
	if err != nil {
		return err
	}

	if declared >= 0 && declared != len(r.frames) {
		slog.Warn("DST frame count differs from FRTE",
			"declared", declared,
			"found", len(r.frames))
	}
	return nil
}

func (r *Reader) parseDIIN(diin chunkHeader) error {
	return walkChunks(r.media, diin.offset, diin.offset+int64(diin.size), func(h chunkHeader) error {
		switch h.id {
		case idEMID:
			data, err := readChunkData(r.media, h, maxMetaChunk)
			if err != nil {
				return err
			}
			r.emid = string(data)
		case idDIAR:
			data, err := readChunkData(r.media, h, maxMetaChunk)
			if err != nil {
				return err
			}
			r.discArtist = readCountedText(data)
		case idDITI:
			data, err := readChunkData(r.media, h, maxMetaChunk)
			if err != nil {
				return err
			}
			r.discTitle = readCountedText(data)
		case idMARK:
			data, err := readChunkData(r.media, h, maxMetaChunk)
			if err != nil {
				return err
			}
			m, err := parseMarker(data)
			if err != nil {
				return err
			}
			r.markers = append(r.markers, m)
		}
		return nil
	})
}

func parseMarker(data []byte) (Marker, error) {
	const fixed = 22
	if len(data) < fixed {
		return Marker{}, fmt.Errorf("%w: MARK chunk size %d", ErrMalformed, len(data))
	}
	m := Marker{
		Hours:   binary.BigEndian.Uint16(data[0:]),
		Minutes: data[2],
		Seconds: data[3],
		Samples: binary.BigEndian.Uint32(data[4:]),
		Offset:  int32(binary.BigEndian.Uint32(data[8:])),
		Type:    binary.BigEndian.Uint16(data[12:]),
		Channel: binary.BigEndian.Uint16(data[14:]),
		Flags:   binary.BigEndian.Uint16(data[16:]),
	}
	m.Text = readCountedText(data[18:])
	return m, nil
}

// Close releases the container. The media stays open; its owner closes it.
func (r *Reader) Close() error {
	if r.media != nil {
		slog.Debug("closing DSDIFF container", "path", r.media.Path())
	}
	r.reset()
	return nil
}

func (r *Reader) reset() {
	emaster := r.emaster
	*r = Reader{emaster: emaster}
}

func (r *Reader) isOpen() bool {
	return r.media != nil
}

// samplesPerFrame returns the per-channel sample count of one frame
func (r *Reader) samplesPerFrame() int64 {
	if r.frameRate <= 0 {
		return 0
	}
	return int64(r.sampleRate / r.frameRate)
}

// frameBytes returns the size of one uncompressed frame, all channels
func (r *Reader) frameBytes() int64 {
	if r.frameRate <= 0 {
		return 0
	}
	return int64(r.sampleRate/8/r.frameRate) * int64(r.channels)
}

func (r *Reader) totalFrames() int64 {
	if r.dst {
		return int64(len(r.frames))
	}
	fb := r.frameBytes()
	if fb == 0 {
		return 0
	}
	return (r.dataSize + fb - 1) / fb
}

func (r *Reader) totalSamples() int64 {
	if r.dst {
		return int64(len(r.frames)) * r.samplesPerFrame()
	}
	return r.dataSize * 8 / int64(r.channels)
}

func (r *Reader) ownArea() Area {
	if r.channels == 2 {
		return AreaTwoCh
	}
	return AreaMulCh
}

// buildTracks derives track spans from the markers
func (r *Reader) buildTracks() {
	total := r.totalSamples()
	r.tracks = nil

	var starts, stops []int64
	titles := map[int64]string{}
	if r.mode == ModeMultiTrack {
		for _, m := range r.markers {
			pos := m.position(r.sampleRate)
			if pos < 0 || pos >= total {
				slog.Debug("ignoring marker outside sound data", "type", m.Type, "position", pos)
				continue
			}
			switch m.Type {
			case MarkTrackStart:
				starts = append(starts, pos)
				titles[pos] = m.Text
			case MarkTrackStop:
				stops = append(stops, pos)
			}
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	sort.Slice(stops, func(i, j int) bool { return stops[i] < stops[j] })

	for i, start := range starts {
		if i > 0 && start == starts[i-1] {
			continue
		}
		stop := total
		if i+1 < len(starts) {
			stop = starts[i+1]
		}
		for _, s := range stops {
			if s > start && s < stop {
				stop = s
				break
			}
		}
		r.tracks = append(r.tracks, trackSpan{start: start, stop: stop, title: titles[start]})
	}

	if len(r.tracks) == 0 {
		r.tracks = []trackSpan{{start: 0, stop: total, title: r.discTitle}}
		return
	}

	if !r.emaster {
		r.tracks[0].start = 0
		r.tracks[len(r.tracks)-1].stop = total
	}
}

// SetEditedMaster selects marker-exact track spans when on
func (r *Reader) SetEditedMaster(on bool) {
	if r.emaster == on {
		return
	}
	r.emaster = on
	if r.isOpen() {
		r.buildTracks()
	}
}

// Tracks returns the number of tracks in area
func (r *Reader) Tracks(area Area) int {
	if !r.isOpen() {
		return 0
	}
	if area != AreaBoth && area != r.ownArea() {
		return 0
	}
	return len(r.tracks)
}

// Channels returns the channel count
func (r *Reader) Channels() int { return r.channels }

// SampleRate returns the DSD sample rate in Hz
func (r *Reader) SampleRate() int { return r.sampleRate }

// FrameRate returns frames per second
func (r *Reader) FrameRate() int { return r.frameRate }

// IsDST reports whether the sound data is DST compressed
func (r *Reader) IsDST() bool { return r.dst }

// Version returns the FVER value, zero when absent
func (r *Reader) Version() uint32 { return r.version }

// Duration returns the length of track in seconds
func (r *Reader) Duration(track int) float64 {
	if track < 0 || track >= len(r.tracks) || r.sampleRate == 0 {
		return 0
	}
	span := r.tracks[track]
	return float64(span.stop-span.start) / float64(r.sampleRate)
}

// SelectArea makes area current for subsequent per-track queries
func (r *Reader) SelectArea(area Area) {
	if r.Tracks(area) == 0 {
		slog.Debug("selected area has no tracks", "area", area)
	}
	r.area = area
}

// SelectTrack positions the reader at offset frames into track of area
func (r *Reader) SelectTrack(track int, area Area, offset int) error {
	if !r.isOpen() {
		return ErrNotOpen
	}
	if r.Tracks(area) == 0 {
		return fmt.Errorf("%w: %s", ErrAreaUnavailable, area)
	}
	if track < 0 || track >= len(r.tracks) {
		return fmt.Errorf("%w: %d of %d", ErrTrackOutOfRange, track, len(r.tracks))
	}

	spf := r.samplesPerFrame()
	if spf == 0 {
		return fmt.Errorf("%w: empty frames", ErrMalformed)
	}
	span := r.tracks[track]
	r.area = area
	r.track = track
	r.firstFrame = span.start / spf
	r.endFrame = min((span.stop+spf-1)/spf, r.totalFrames())
	r.cursor = min(r.firstFrame+int64(max(offset, 0)), r.endFrame)
	r.selected = true

	slog.Debug("track selected",
		"track", track,
		"area", area,
		"first_frame", r.firstFrame,
		"end_frame", r.endFrame)
	return nil
}

// ReadFrame reads the next frame of the selected track into buf. It returns
// io.EOF once the track is exhausted.
func (r *Reader) ReadFrame(buf []byte) (int, FrameType, error) {
	if !r.isOpen() {
		return 0, FrameInvalid, ErrNotOpen
	}
	if !r.selected {
		return 0, FrameInvalid, ErrNoTrack
	}
	if r.cursor >= r.endFrame {
		return 0, FrameInvalid, io.EOF
	}

	if r.dst {
		return r.readDSTFrame(buf)
	}
	return r.readDSDFrame(buf)
}

func (r *Reader) readDSDFrame(buf []byte) (int, FrameType, error) {
	fb := r.frameBytes()
	start := r.cursor * fb
	n := min(fb, r.dataSize-start)
	if n > int64(len(buf)) {
		return 0, FrameInvalid, fmt.Errorf("%w: need %d, have %d", ErrShortBuffer, n, len(buf))
	}

	if _, err := r.media.Seek(r.dataOffset+start, io.SeekStart); err != nil {
		return 0, FrameInvalid, err
	}
	if _, err := io.ReadFull(r.media, buf[:n]); err != nil {
		return 0, FrameInvalid, fmt.Errorf("failed to read DSD frame %d: %w", r.cursor, err)
	}
	r.cursor++
	return int(n), FrameDSD, nil
}

func (r *Reader) readDSTFrame(buf []byte) (int, FrameType, error) {
	f := r.frames[r.cursor]
	if int64(f.size) > int64(len(buf)) {
		return 0, FrameInvalid, fmt.Errorf("%w: need %d, have %d", ErrShortBuffer, f.size, len(buf))
	}
	if f.size == 0 {
		r.cursor++
		return 0, FrameInvalid, nil
	}

	if _, err := r.media.Seek(f.offset, io.SeekStart); err != nil {
		return 0, FrameInvalid, err
	}
	if _, err := io.ReadFull(r.media, buf[:f.size]); err != nil {
		return 0, FrameInvalid, fmt.Errorf("failed to read DST frame %d: %w", r.cursor, err)
	}
	r.cursor++
	return int(f.size), FrameDST, nil
}

// Seek moves the selected track to seconds from its start
func (r *Reader) Seek(seconds float64) error {
	if !r.isOpen() {
		return ErrNotOpen
	}
	if !r.selected {
		return ErrNoTrack
	}
	if seconds < 0 {
		return fmt.Errorf("%w: %.3fs", ErrSeekOutOfRange, seconds)
	}

	target := r.firstFrame + int64(seconds*float64(r.frameRate))
	if target > r.endFrame {
		return fmt.Errorf("%w: %.3fs", ErrSeekOutOfRange, seconds)
	}
	r.cursor = target
	slog.Debug("seeked", "seconds", seconds, "frame", target)
	return nil
}

// Markers returns the markers found in the container
func (r *Reader) Markers() []Marker {
	return r.markers
}
