package decoder

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"dsdiff.click/internal/dsdiff"
	"dsdiff.click/internal/dst"
)

// Command is what a client asks of a running decode
type Command int

const (
	CommandNone Command = iota
	CommandSeek
	CommandStop
)

func (c Command) String() string {
	switch c {
	case CommandSeek:
		return "seek"
	case CommandStop:
		return "stop"
	default:
		return "none"
	}
}

// SampleFormat identifies the encoding of delivered audio
type SampleFormat int

const (
	SampleFormatUndefined SampleFormat = iota
	SampleFormatDSD
)

func (f SampleFormat) String() string {
	if f == SampleFormatDSD {
		return "dsd"
	}
	return "undefined"
}

// MaxChannels is the largest channel count a client accepts
const MaxChannels = 8

var ErrInvalidAudioFormat = errors.New("invalid audio format")

// AudioFormat describes the delivered stream. For DSD the sample rate counts
// bytes per second per channel.
type AudioFormat struct {
	SampleRate int
	Format     SampleFormat
	Channels   int
	LSBitFirst bool // each byte holds its oldest sample in the low bit
}

// Validate checks that a client can be offered the format
func (f AudioFormat) Validate() error {
	if f.SampleRate <= 0 || f.SampleRate >= 1<<30 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidAudioFormat, f.SampleRate)
	}
	if f.Format != SampleFormatDSD {
		return fmt.Errorf("%w: sample format %s", ErrInvalidAudioFormat, f.Format)
	}
	if f.Channels <= 0 || f.Channels > MaxChannels {
		return fmt.Errorf("%w: %d channels", ErrInvalidAudioFormat, f.Channels)
	}
	return nil
}

// Client receives a decoded stream
type Client interface {
	// Ready announces the stream format before any audio is submitted
	Ready(format AudioFormat, seekable bool, duration time.Duration)
	// SubmitAudio delivers one buffer and returns the pending command. The
	// buffer is only valid for the duration of the call.
	SubmitAudio(data []byte, kbitRate int) Command
	Command() Command
	SeekTime() time.Duration
	CommandFinished()
	SeekError()
}

// FileDecode streams the virtual track at path to client. It returns once the
// track is exhausted or the client stops it.
func (p *Plugin) FileDecode(client Client, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.updateContainer(path); err != nil {
		slog.Error("cannot decode, container unavailable", "path", path, "error", err)
		return err
	}

	track, area, err := p.locate(path)
	if err != nil {
		return err
	}

	r := p.reader
	r.SetEditedMaster(p.opts.EditedMaster)
	if err := r.SelectTrack(track, area, 0); err != nil {
		slog.Error("cannot select track", "path", path, "track", track, "area", area, "error", err)
		return fmt.Errorf("failed to select track %d in %s area: %w", track, area, err)
	}

	channels := r.Channels()
	sampleRate := r.SampleRate()
	frameRate := r.FrameRate()
	if frameRate <= 0 {
		return fmt.Errorf("%w: frame rate %d", ErrInvalidAudioFormat, frameRate)
	}
	channelFrameSize := sampleRate / 8 / frameRate

	format := AudioFormat{
		SampleRate: sampleRate / 8,
		Format:     SampleFormatDSD,
		Channels:   channels,
		LSBitFirst: p.opts.LSBitFirst,
	}
	if err := format.Validate(); err != nil {
		slog.Error("container reports an unusable audio format", "path", path, "error", err)
		return err
	}

	duration := seconds(r.Duration(track))
	slog.Info("decoding track",
		"path", path,
		"track", track,
		"area", area,
		"channels", channels,
		"sample_rate", sampleRate,
		"frame_rate", frameRate,
		"dst", r.IsDST(),
		"duration", duration)
	client.Ready(format, true, duration)

	dec := p.newDecompressor(p.opts.DSTDecThreads)
	defer dec.Close()

	s := stream{
		client:           client,
		reader:           r,
		dec:              dec,
		channels:         channels,
		channelFrameSize: channelFrameSize,
		kbitRate:         channels * sampleRate / 1000,
		lsbFirst:         p.opts.LSBitFirst,
	}
	s.run()
	return nil
}

// stream is the state of one FileDecode loop
type stream struct {
	client           Client
	reader           ContainerReader
	dec              Decompressor
	channels         int
	channelFrameSize int
	kbitRate         int
	lsbFirst         bool

	dstInitFailed bool
	delivered     int
}

func (s *stream) frameSize() int {
	return s.channelFrameSize * s.channels
}

func (s *stream) run() {
	// stored DST frames carry a header on top of the DSD payload
	readBuf := make([]byte, 2*s.frameSize())
	frameRead := true

	for {
		var buf []byte
		if frameRead {
			buf, frameRead = s.read(readBuf)
		}

		if s.dec.IsInit() {
			buf = s.dec.Run(buf)
		}

		if len(buf) == 0 {
			if !frameRead {
				break
			}
			continue
		}

		if s.lsbFirst {
			BitReverse(buf)
		}
		cmd := s.client.SubmitAudio(buf, s.kbitRate)
		s.delivered++

		if cmd == CommandSeek {
			s.seek()
			cmd = s.client.Command()
		}
		if cmd == CommandStop {
			slog.Debug("decode stopped by client", "frames_delivered", s.delivered)
			return
		}
	}

	slog.Debug("decode reached end of track", "frames_delivered", s.delivered)
}

// read fetches the next frame and prepares it for decompression. It reports
// false once the reader has nothing more to give.
func (s *stream) read(readBuf []byte) ([]byte, bool) {
	n, frameType, err := s.reader.ReadFrame(readBuf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			slog.Debug("no more frames")
		} else {
			slog.Warn("frame read failed, ending stream", "error", err)
		}
		return nil, false
	}

	buf := readBuf[:n]
	switch frameType {
	case dsdiff.FrameDSD:
	case dsdiff.FrameDST:
		if !s.dec.IsInit() && !s.dstInitFailed {
			if err := s.dec.Init(s.channels, s.channelFrameSize); err != nil {
				s.dstInitFailed = true
				slog.Warn("DST decoder init failed, DST frames will be replaced with silence",
					"channels", s.channels,
					"channel_frame_size", s.channelFrameSize,
					"error", err)
			}
		}
		if !s.dec.IsInit() {
			buf = filler(readBuf, s.frameSize())
		}
	default:
		buf = filler(buf, n)
	}
	return buf, true
}

// filler overwrites the first n bytes of buf with DSD silence
func filler(buf []byte, n int) []byte {
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	for i := range buf {
		buf[i] = dst.FillerByte
	}
	return buf
}

func (s *stream) seek() {
	target := s.client.SeekTime()
	if err := s.reader.Seek(target.Seconds()); err != nil {
		slog.Warn("seek failed", "target", target, "error", err)
		s.client.SeekError()
		return
	}
	if s.dec.IsInit() {
		// frames still in the pipeline belong to the old position
		if n := s.dec.Discard(); n > 0 {
			slog.Debug("dropped pipelined DST frames after seek", "frames", n)
		}
	}
	slog.Debug("seek completed", "target", target)
	s.client.CommandFinished()
}
