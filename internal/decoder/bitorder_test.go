package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitReverse(t *testing.T) {
	buf := []byte{0x00, 0x01, 0x80, 0x0F, 0xAA, 0x69, 0xFF}
	BitReverse(buf)
	assert.Equal(t, []byte{0x00, 0x80, 0x01, 0xF0, 0x55, 0x96, 0xFF}, buf)

	BitReverse(nil)
}

func TestBitReverseIsInvolution(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	buf := append([]byte(nil), all...)

	BitReverse(buf)
	assert.NotEqual(t, all, buf)
	BitReverse(buf)
	assert.Equal(t, all, buf)
}
