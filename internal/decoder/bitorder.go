package decoder

import "math/bits"

var reversed = func() (t [256]byte) {
	for i := range t {
		t[i] = bits.Reverse8(uint8(i))
	}
	return t
}()

// BitReverse reverses the bit order of every byte of buf in place
func BitReverse(buf []byte) {
	for i, b := range buf {
		buf[i] = reversed[b]
	}
}
