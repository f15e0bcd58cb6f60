package dst

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/icza/bitio"
)

var (
	ErrCodedFrame     = errors.New("DST frame is entropy coded")
	ErrMalformedFrame = errors.New("malformed DST frame")
)

// FrameCodec decodes a single DST frame into out, which is sized for one
// frame of interleaved DSD across all channels.
type FrameCodec interface {
	DecodeFrame(frame []byte, channels, channelFrameSize int, out []byte) error
}

// UncodedCodec handles frames the encoder stored as plain DSD. Their header
// is a zero processing-mode bit, one reserved bit and six zero stuffing bits;
// the DSD bytes follow.
type UncodedCodec struct{}

func (UncodedCodec) DecodeFrame(frame []byte, channels, channelFrameSize int, out []byte) error {
	r := bitio.NewReader(bytes.NewReader(frame))

	coded, err := r.ReadBool()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if coded {
		return ErrCodedFrame
	}
	if _, err := r.ReadBits(1); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	stuffing, err := r.ReadBits(6)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if stuffing != 0 {
		return fmt.Errorf("%w: stuffing bits %06b", ErrMalformedFrame, stuffing)
	}

	want := channels * channelFrameSize
	payload := frame[1:]
	if len(payload) < want || len(out) < want {
		return fmt.Errorf("%w: %d bytes of DSD for a %d byte frame", ErrMalformedFrame, len(payload), want)
	}
	copy(out, payload[:want])
	return nil
}
