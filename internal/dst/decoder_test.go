package dst

import (
	"bytes"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uncoded builds a stored frame whose DSD bytes are all b
func uncoded(b byte, size int) []byte {
	return append([]byte{0x00}, bytes.Repeat([]byte{b}, size)...)
}

func TestNewDefaultsToCPUCount(t *testing.T) {
	assert.Equal(t, runtime.NumCPU(), New(0).Threads())
	assert.Equal(t, 3, New(3).Threads())
}

func TestInit(t *testing.T) {
	d := New(1)
	defer d.Close()

	assert.False(t, d.IsInit())
	assert.Nil(t, d.Run(uncoded(1, 4)))

	assert.ErrorIs(t, d.Init(0, 4), ErrInvalidParams)
	assert.ErrorIs(t, d.Init(MaxChannels+1, 4), ErrInvalidParams)
	assert.ErrorIs(t, d.Init(2, 0), ErrInvalidParams)
	assert.False(t, d.IsInit())

	require.NoError(t, d.Init(2, 2))
	assert.True(t, d.IsInit())
	assert.Equal(t, 4, d.FrameSize())
	assert.ErrorIs(t, d.Init(2, 2), ErrAlreadyInitialized)
}

func TestRunSingleThreadIsSynchronous(t *testing.T) {
	d := New(1)
	defer d.Close()
	require.NoError(t, d.Init(2, 2))

	assert.Equal(t, []byte{7, 7, 7, 7}, d.Run(uncoded(7, 4)))
	assert.Equal(t, 0, d.Pending())
	assert.Empty(t, d.Run(nil))
}

func TestRunSubstitutesFillerForBadFrames(t *testing.T) {
	d := New(1)
	defer d.Close()
	require.NoError(t, d.Init(2, 2))

	filler := []byte{FillerByte, FillerByte, FillerByte, FillerByte}
	assert.Equal(t, filler, d.Run([]byte{0x80, 1, 2, 3, 4}), "coded frame")
	assert.Equal(t, filler, d.Run([]byte{0x01, 1, 2, 3, 4}), "stuffing bits set")
	assert.Equal(t, filler, d.Run([]byte{0x00, 1}), "short payload")
}

func TestRunPipelineOrderAndFlush(t *testing.T) {
	d := New(3)
	defer d.Close()
	require.NoError(t, d.Init(1, 2))

	// warming up
	assert.Empty(t, d.Run(uncoded(1, 2)))
	assert.Empty(t, d.Run(uncoded(2, 2)))

	assert.Equal(t, []byte{1, 1}, d.Run(uncoded(3, 2)))
	assert.Equal(t, []byte{2, 2}, d.Run(uncoded(4, 2)))
	assert.Equal(t, 2, d.Pending())

	// flush on empty input
	assert.Equal(t, []byte{3, 3}, d.Run(nil))
	assert.Equal(t, []byte{4, 4}, d.Run(nil))
	assert.Empty(t, d.Run(nil))
}

func TestDiscardDropsPendingFrames(t *testing.T) {
	d := New(3)
	defer d.Close()
	assert.Equal(t, 0, d.Discard())
	require.NoError(t, d.Init(1, 2))

	assert.Empty(t, d.Run(uncoded(1, 2)))
	assert.Empty(t, d.Run(uncoded(2, 2)))
	assert.Equal(t, 2, d.Discard())
	assert.Equal(t, 0, d.Pending())

	assert.Empty(t, d.Run(uncoded(5, 2)))
	assert.Empty(t, d.Run(uncoded(6, 2)))
	assert.Equal(t, []byte{5, 5}, d.Run(uncoded(7, 2)))
	assert.Equal(t, []byte{6, 6}, d.Run(nil))
	assert.Equal(t, []byte{7, 7}, d.Run(nil))
	assert.Empty(t, d.Run(nil))
}

type slowFirstCodec struct {
	calls atomic.Int32
}

func (c *slowFirstCodec) DecodeFrame(frame []byte, channels, channelFrameSize int, out []byte) error {
	if c.calls.Add(1) == 1 {
		time.Sleep(20 * time.Millisecond)
	}
	copy(out, frame)
	return nil
}

func TestRunKeepsSubmissionOrder(t *testing.T) {
	d := NewWithCodec(4, &slowFirstCodec{})
	defer d.Close()
	require.NoError(t, d.Init(1, 1))

	var got []byte
	for i := byte(1); i <= 8; i++ {
		got = append(got, d.Run([]byte{i})...)
	}
	for out := d.Run(nil); len(out) > 0; out = d.Run(nil) {
		got = append(got, out...)
	}
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, got)
}

func TestRunCopiesInput(t *testing.T) {
	d := New(2)
	defer d.Close()
	require.NoError(t, d.Init(1, 2))

	buf := uncoded(5, 2)
	assert.Empty(t, d.Run(buf))
	buf[1], buf[2] = 9, 9

	assert.Equal(t, []byte{5, 5}, d.Run(nil))
}

func TestClose(t *testing.T) {
	d := New(2)
	require.NoError(t, d.Init(1, 2))
	assert.Empty(t, d.Run(uncoded(1, 2)))

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.Nil(t, d.Run(uncoded(2, 2)))
	assert.Nil(t, d.Run(nil))
	assert.ErrorIs(t, d.Init(1, 2), ErrAlreadyInitialized)

	assert.NoError(t, New(1).Close())
}
