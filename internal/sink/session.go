// Package sink provides decode clients that write a streamed track to an
// output: raw DSD bytes, a DSDIFF file or a PCM preview WAV.
package sink

import (
	"errors"
	"log/slog"
	"time"

	"dsdiff.click/internal/decoder"
)

var ErrSeekFailed = errors.New("seek to start offset failed")

// Limits restricts the portion of a track a sink keeps
type Limits struct {
	Start  time.Duration // issue one seek to this offset before writing
	Length time.Duration // stop once this much audio was written, 0 = no limit
}

// output receives the audio a session accepts
type output interface {
	begin(format decoder.AudioFormat) error
	write(data []byte) error
}

// session implements the command side of decoder.Client shared by every sink
type session struct {
	limits Limits
	out    output

	format   decoder.AudioFormat
	duration time.Duration
	ready    bool

	seekPending bool
	next        decoder.Command
	remaining   int64 // bytes left before Length is reached, -1 = unlimited
	written     int64
	frames      int
	err         error

	progress func(written time.Duration, total time.Duration)
}

func newSession(out output, limits Limits) session {
	return session{limits: limits, out: out, remaining: -1}
}

// Ready implements decoder.Client
func (s *session) Ready(format decoder.AudioFormat, seekable bool, duration time.Duration) {
	s.format = format
	s.duration = duration
	s.ready = true
	s.seekPending = s.limits.Start > 0 && seekable

	if s.limits.Length > 0 {
		s.remaining = s.bytesFor(s.limits.Length)
	}

	slog.Debug("sink ready",
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
		"seekable", seekable,
		"duration", duration,
		"start", s.limits.Start,
		"length", s.limits.Length)

	if err := s.out.begin(format); err != nil {
		slog.Error("sink could not start output", "error", err)
		s.err = err
	}
}

// SubmitAudio implements decoder.Client
func (s *session) SubmitAudio(data []byte, kbitRate int) decoder.Command {
	if s.err != nil {
		return decoder.CommandStop
	}
	if s.seekPending {
		// audio before the start offset is dropped
		return decoder.CommandSeek
	}

	if s.remaining >= 0 && int64(len(data)) > s.remaining {
		data = data[:s.remaining]
	}
	if len(data) > 0 {
		if err := s.out.write(data); err != nil {
			slog.Error("sink write failed", "error", err, "written", s.written)
			s.err = err
			return decoder.CommandStop
		}
		s.written += int64(len(data))
		s.frames++
	}
	if s.remaining >= 0 {
		s.remaining -= int64(len(data))
		if s.remaining == 0 {
			slog.Debug("sink length reached", "written", s.written)
			return decoder.CommandStop
		}
	}

	if s.progress != nil {
		s.progress(s.Written(), s.duration)
	}
	return decoder.CommandNone
}

// Command implements decoder.Client
func (s *session) Command() decoder.Command {
	cmd := s.next
	s.next = decoder.CommandNone
	return cmd
}

// SeekTime implements decoder.Client
func (s *session) SeekTime() time.Duration {
	return s.limits.Start
}

// CommandFinished implements decoder.Client
func (s *session) CommandFinished() {
	slog.Debug("sink seek finished", "start", s.limits.Start)
	s.seekPending = false
}

// SeekError implements decoder.Client
func (s *session) SeekError() {
	slog.Warn("sink seek failed", "start", s.limits.Start, "duration", s.duration)
	s.seekPending = false
	s.err = ErrSeekFailed
	s.next = decoder.CommandStop
}

// Format returns the format announced by the decoder
func (s *session) Format() decoder.AudioFormat { return s.format }

// Duration returns the track duration announced by the decoder
func (s *session) Duration() time.Duration { return s.duration }

// Frames returns the number of buffers written
func (s *session) Frames() int { return s.frames }

// Err returns the first error the sink ran into
func (s *session) Err() error { return s.err }

// OnProgress registers a callback run after every written buffer
func (s *session) OnProgress(fn func(written, total time.Duration)) {
	s.progress = fn
}

// Written returns the amount of audio written
func (s *session) Written() time.Duration {
	rate := int64(s.format.SampleRate) * int64(s.format.Channels)
	if rate == 0 {
		return 0
	}
	return time.Duration(s.written * int64(time.Second) / rate)
}

func (s *session) bytesFor(d time.Duration) int64 {
	rate := int64(s.format.SampleRate) * int64(s.format.Channels)
	n := int64(d) * rate / int64(time.Second)
	// keep whole interleaved samples
	if c := int64(s.format.Channels); c > 0 {
		n -= n % c
	}
	return n
}
