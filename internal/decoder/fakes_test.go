package decoder

import (
	"errors"
	"fmt"
	"io"
	"math"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"dsdiff.click/internal/dsdiff"
	"dsdiff.click/internal/media"
	"dsdiff.click/internal/tag"
)

type fakeFrame struct {
	data []byte
	typ  dsdiff.FrameType
}

func dsdFrame(b ...byte) fakeFrame { return fakeFrame{data: b, typ: dsdiff.FrameDSD} }
func dstFrame(b ...byte) fakeFrame { return fakeFrame{data: b, typ: dsdiff.FrameDST} }

type selection struct {
	track int
	area  dsdiff.Area
}

// fakeReader is a scripted container session
type fakeReader struct {
	twoch, mulch int
	channels     int
	sampleRate   int
	frameRate    int
	dstAreas     map[dsdiff.Area]bool
	frames       []fakeFrame
	openErr      error
	seekErr      error
	moveOnSeek   bool

	opens, closes int
	openedPath    string
	mode          dsdiff.Mode
	emaster       bool
	area          dsdiff.Area
	selected      []selection
	seeks         []float64
	cursor        int
}

func newFakeReader(twoch, mulch int) *fakeReader {
	return &fakeReader{
		twoch:      twoch,
		mulch:      mulch,
		channels:   2,
		sampleRate: 6000, // 10 bytes per channel per frame at 75 fps
		frameRate:  75,
		dstAreas:   map[dsdiff.Area]bool{},
	}
}

func (f *fakeReader) Open(m media.Media, mode dsdiff.Mode) error {
	f.opens++
	if f.openErr != nil {
		return f.openErr
	}
	f.openedPath = m.Path()
	f.mode = mode
	f.cursor = 0
	return nil
}

func (f *fakeReader) Close() error {
	f.closes++
	return nil
}

func (f *fakeReader) Tracks(area dsdiff.Area) int {
	switch area {
	case dsdiff.AreaTwoCh:
		return f.twoch
	case dsdiff.AreaMulCh:
		return f.mulch
	default:
		return f.twoch + f.mulch
	}
}

func (f *fakeReader) Channels() int   { return f.channels }
func (f *fakeReader) SampleRate() int { return f.sampleRate }
func (f *fakeReader) FrameRate() int  { return f.frameRate }

func (f *fakeReader) Duration(track int) float64 {
	return float64(track+1) * 10
}

func (f *fakeReader) Info(track int, h tag.Handler) {
	h.OnTag(tag.Title, fmt.Sprintf("%s title %d", f.area, track))
	h.OnTag(tag.Artist, "Artist")
}

func (f *fakeReader) IsDST() bool { return f.dstAreas[f.area] }

func (f *fakeReader) SelectArea(area dsdiff.Area) { f.area = area }

func (f *fakeReader) SelectTrack(track int, area dsdiff.Area, offset int) error {
	if track < 0 || track >= f.Tracks(area) {
		return dsdiff.ErrTrackOutOfRange
	}
	f.area = area
	f.selected = append(f.selected, selection{track: track, area: area})
	return nil
}

func (f *fakeReader) SetEditedMaster(on bool) { f.emaster = on }

func (f *fakeReader) ReadFrame(buf []byte) (int, dsdiff.FrameType, error) {
	if f.cursor >= len(f.frames) {
		return 0, dsdiff.FrameInvalid, io.EOF
	}
	frame := f.frames[f.cursor]
	if len(frame.data) > len(buf) {
		return 0, dsdiff.FrameInvalid, dsdiff.ErrShortBuffer
	}
	f.cursor++
	return copy(buf, frame.data), frame.typ, nil
}

func (f *fakeReader) Seek(seconds float64) error {
	f.seeks = append(f.seeks, seconds)
	if f.seekErr == nil && f.moveOnSeek {
		f.cursor = int(math.Round(seconds * float64(f.frameRate)))
	}
	return f.seekErr
}

// fakeDecompressor expands each frame to a full frame of its first byte and
// holds back delay frames
type fakeDecompressor struct {
	threads int
	delay   int
	initErr error

	initialized      bool
	initCalls        int
	channels         int
	channelFrameSize int
	inputs           [][]byte
	queue            [][]byte
	discarded        int
	closed           bool
}

func (d *fakeDecompressor) IsInit() bool { return d.initialized }

func (d *fakeDecompressor) Init(channels, channelFrameSize int) error {
	d.initCalls++
	if d.initErr != nil {
		return d.initErr
	}
	d.initialized = true
	d.channels = channels
	d.channelFrameSize = channelFrameSize
	return nil
}

func (d *fakeDecompressor) Run(buf []byte) []byte {
	d.inputs = append(d.inputs, append([]byte(nil), buf...))
	if len(buf) > 0 {
		out := make([]byte, d.channels*d.channelFrameSize)
		for i := range out {
			out[i] = buf[0]
		}
		d.queue = append(d.queue, out)
		if len(d.queue) <= d.delay {
			return nil
		}
	}
	if len(d.queue) == 0 {
		return nil
	}
	out := d.queue[0]
	d.queue = d.queue[1:]
	return out
}

func (d *fakeDecompressor) Discard() int {
	n := len(d.queue)
	d.discarded += n
	d.queue = nil
	return n
}

func (d *fakeDecompressor) Close() error {
	d.closed = true
	return nil
}

// fakeClient records everything the decode loop hands it
type fakeClient struct {
	// commands[i] is returned from the i-th SubmitAudio
	commands     []Command
	afterSeek    Command
	seekTime     time.Duration
	readyCalls   int
	format       AudioFormat
	seekable     bool
	duration     time.Duration
	submitted    [][]byte
	kbitRates    []int
	commandCalls int
	finished     int
	seekErrors   int
}

func (c *fakeClient) Ready(format AudioFormat, seekable bool, duration time.Duration) {
	c.readyCalls++
	c.format = format
	c.seekable = seekable
	c.duration = duration
}

func (c *fakeClient) SubmitAudio(data []byte, kbitRate int) Command {
	i := len(c.submitted)
	c.submitted = append(c.submitted, append([]byte(nil), data...))
	c.kbitRates = append(c.kbitRates, kbitRate)
	if i < len(c.commands) {
		return c.commands[i]
	}
	return CommandNone
}

func (c *fakeClient) Command() Command {
	c.commandCalls++
	return c.afterSeek
}

func (c *fakeClient) SeekTime() time.Duration { return c.seekTime }
func (c *fakeClient) CommandFinished()        { c.finished++ }
func (c *fakeClient) SeekError()              { c.seekErrors++ }

var errOpen = errors.New("bad container")

const testContainer = "/music/album.dff"

// newTestPlugin returns a plugin over an in-memory filesystem holding
// testContainer and /music/other.dff, backed by fakes
func newTestPlugin(t *testing.T, opts Options, reader *fakeReader, dec *fakeDecompressor) *Plugin {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, testContainer, []byte("FRM8 container"), 0644))
	require.NoError(t, afero.WriteFile(fsys, "/music/other.dff", []byte("FRM8 other"), 0644))

	p := NewPlugin(opts, fsys)
	p.newReader = func() ContainerReader { return reader }
	p.newDecompressor = func(threads int) Decompressor {
		dec.threads = threads
		return dec
	}
	t.Cleanup(func() { p.Close() })
	return p
}
