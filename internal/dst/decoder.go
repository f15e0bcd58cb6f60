// Package dst turns DST-compressed DSDIFF frames back into plain DSD. Frames
// are decoded by a fixed pool of workers and handed back strictly in the order
// they were submitted.
package dst

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
)

// FillerByte is DSD silence, used for frames that fail to decode
const FillerByte = 0xAA

// MaxChannels is the largest channel count DST defines
const MaxChannels = 6

var (
	ErrAlreadyInitialized = errors.New("DST decoder already initialized")
	ErrInvalidParams      = errors.New("invalid DST decoder parameters")
)

type job struct {
	in   []byte
	out  []byte
	done chan struct{}
}

// Decoder is a pipelined DST frame decoder. Run is not safe for concurrent
// use; the workers behind it are.
type Decoder struct {
	threads int
	codec   FrameCodec

	channels         int
	channelFrameSize int

	jobs    chan *job
	wg      sync.WaitGroup
	pending []*job

	initialized bool
	closed      bool
	warnOnce    sync.Once
}

// New returns an uninitialized decoder with threads workers, or one per CPU
// when threads is zero
func New(threads int) *Decoder {
	return NewWithCodec(threads, UncodedCodec{})
}

// NewWithCodec is New with a custom frame codec
func NewWithCodec(threads int, codec FrameCodec) *Decoder {
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	return &Decoder{threads: threads, codec: codec}
}

// Threads returns the worker count
func (d *Decoder) Threads() int { return d.threads }

// IsInit reports whether Init has succeeded
func (d *Decoder) IsInit() bool { return d.initialized }

// FrameSize returns the decoded size of one frame, all channels
func (d *Decoder) FrameSize() int { return d.channels * d.channelFrameSize }

// Init sizes the decoder for the stream and starts its workers. It may only
// be called once.
func (d *Decoder) Init(channels, channelFrameSize int) error {
	if d.initialized {
		return ErrAlreadyInitialized
	}
	if d.closed {
		return fmt.Errorf("%w: decoder is closed", ErrInvalidParams)
	}
	if channels <= 0 || channels > MaxChannels || channelFrameSize <= 0 {
		return fmt.Errorf("%w: channels=%d channel_frame_size=%d", ErrInvalidParams, channels, channelFrameSize)
	}

	d.channels = channels
	d.channelFrameSize = channelFrameSize
	d.jobs = make(chan *job, d.threads)
	for i := 0; i < d.threads; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.initialized = true

	slog.Debug("DST decoder initialized",
		"channels", channels,
		"channel_frame_size", channelFrameSize,
		"threads", d.threads)
	return nil
}

func (d *Decoder) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		j.out = d.decode(j.in)
		close(j.done)
	}
}

func (d *Decoder) decode(frame []byte) []byte {
	out := make([]byte, d.FrameSize())
	if err := d.codec.DecodeFrame(frame, d.channels, d.channelFrameSize, out); err != nil {
		d.warnOnce.Do(func() {
			slog.Warn("DST frame could not be decoded, substituting silence",
				"frame_bytes", len(frame),
				"error", err)
		})
		for i := range out {
			out[i] = FillerByte
		}
	}
	return out
}

// Run submits one compressed frame and returns the oldest decoded frame once
// the pipeline is full. While the pipeline fills it returns an empty slice.
// An empty buf submits nothing and drains one pending frame, so callers flush
// by calling Run(nil) until it returns empty.
func (d *Decoder) Run(buf []byte) []byte {
	if !d.initialized || d.closed {
		return nil
	}

	if len(buf) > 0 {
		j := &job{in: append([]byte(nil), buf...), done: make(chan struct{})}
		d.jobs <- j
		d.pending = append(d.pending, j)
		if len(d.pending) < d.threads {
			return nil
		}
	}

	if len(d.pending) == 0 {
		return nil
	}
	j := d.pending[0]
	d.pending[0] = nil
	d.pending = d.pending[1:]
	<-j.done
	return j.out
}

// Pending returns the number of frames submitted but not yet returned
func (d *Decoder) Pending() int { return len(d.pending) }

// Discard drops every pending frame once its worker is done with it and
// returns how many were dropped. The next Run starts warming up again.
func (d *Decoder) Discard() int {
	n := len(d.pending)
	for i, j := range d.pending {
		<-j.done
		d.pending[i] = nil
	}
	d.pending = d.pending[:0]
	return n
}

// Close stops the workers. Frames still pending are discarded.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.initialized {
		close(d.jobs)
		d.wg.Wait()
		if len(d.pending) > 0 {
			slog.Debug("DST decoder closed with pending frames", "pending", len(d.pending))
		}
		d.pending = nil
	}
	return nil
}
