package sink

import (
	"fmt"
	"io"
	"log/slog"
	"math/bits"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"dsdiff.click/internal/decoder"
)

// PreviewRate is the PCM rate a WAV preview aims for
const PreviewRate = 44100

const (
	previewBitDepth = 16
	wavFormatPCM    = 1
)

// WavWriter turns the DSD stream into a 16-bit PCM preview. Each output
// sample is the bit density of a run of DSD bytes, which is a crude boxcar
// low-pass.
type WavWriter struct {
	session
	w   io.WriteSeeker
	enc *wav.Encoder
	buf *audio.IntBuffer

	decimation int   // DSD bytes per PCM sample
	ones       []int // per channel set bits of the current run
	count      int   // bytes accumulated per channel in the current run
	channel    int   // channel of the next incoming byte
}

// NewWavWriter returns a client writing a WAV preview to w
func NewWavWriter(w io.WriteSeeker, limits Limits) *WavWriter {
	v := &WavWriter{w: w}
	v.session = newSession(v, limits)
	return v
}

func (v *WavWriter) begin(format decoder.AudioFormat) error {
	v.decimation = format.SampleRate / PreviewRate
	if v.decimation < 1 {
		v.decimation = 1
	}
	rate := format.SampleRate / v.decimation

	v.enc = wav.NewEncoder(v.w, rate, previewBitDepth, format.Channels, wavFormatPCM)
	v.buf = &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: format.Channels, SampleRate: rate},
		SourceBitDepth: previewBitDepth,
	}
	v.ones = make([]int, format.Channels)

	slog.Debug("wav preview started",
		"pcm_rate", rate,
		"decimation", v.decimation,
		"channels", format.Channels)
	return nil
}

func (v *WavWriter) write(data []byte) error {
	channels := len(v.ones)
	v.buf.Data = v.buf.Data[:0]

	for _, b := range data {
		v.ones[v.channel] += bits.OnesCount8(b)
		v.channel++
		if v.channel < channels {
			continue
		}
		v.channel = 0
		v.count++
		if v.count < v.decimation {
			continue
		}
		for ch := range v.ones {
			v.buf.Data = append(v.buf.Data, densityToPCM(v.ones[ch], v.decimation*8))
			v.ones[ch] = 0
		}
		v.count = 0
	}

	if len(v.buf.Data) == 0 {
		return nil
	}
	if err := v.enc.Write(v.buf); err != nil {
		return fmt.Errorf("failed to write PCM preview: %w", err)
	}
	return nil
}

// densityToPCM maps the share of set bits in a run of n bits to a signed
// 16-bit sample
func densityToPCM(ones, n int) int {
	return (2*ones - n) * 32767 / n
}

// Close finalizes the WAV header
func (v *WavWriter) Close() error {
	if v.enc == nil {
		return v.err
	}
	if err := v.enc.Close(); err != nil {
		slog.Error("failed to finalize WAV preview", "error", err)
		return err
	}
	v.enc = nil
	return v.err
}
