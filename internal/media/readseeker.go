package media

import (
	"errors"
	"io"
)

const (
	defaultBufSize    = 64 * 1024
	minReadBufferSize = 16
)

var errNegativeRead = errors.New("media: reader returned negative count from Read")

// ReadSeeker buffers reads from an io.ReadSeeker while keeping Seek cheap
// for targets that land inside the current buffer.
type ReadSeeker struct {
	buf  []byte
	pos  int64 // absolute offset of buf[0]
	rd   io.ReadSeeker
	r, w int
	err  error
}

// NewReadSeekerSize returns a ReadSeeker whose buffer holds at least size bytes
func NewReadSeekerSize(rd io.ReadSeeker, size int) *ReadSeeker {
	if b, ok := rd.(*ReadSeeker); ok && len(b.buf) >= size {
		return b
	}
	if size < minReadBufferSize {
		size = minReadBufferSize
	}
	return &ReadSeeker{buf: make([]byte, size), rd: rd}
}

// NewReadSeeker returns a ReadSeeker with the default buffer size
func NewReadSeeker(rd io.ReadSeeker) *ReadSeeker {
	return NewReadSeekerSize(rd, defaultBufSize)
}

func (b *ReadSeeker) readErr() error {
	err := b.err
	b.err = nil
	return err
}

func (b *ReadSeeker) buffered() int { return b.w - b.r }

// Read reads into p using at most one Read on the underlying reader
func (b *ReadSeeker) Read(p []byte) (int, error) {
	if len(p) == 0 {
		if b.buffered() > 0 {
			return 0, nil
		}
		return 0, b.readErr()
	}

	if b.r == b.w {
		if b.err != nil {
			return 0, b.readErr()
		}
		if len(p) >= len(b.buf) {
			// Large read into an empty buffer goes straight to the caller.
			b.pos += int64(b.w)
			b.r, b.w = 0, 0
			n, err := b.rd.Read(p)
			if n < 0 {
				panic(errNegativeRead)
			}
			b.pos += int64(n)
			b.err = err
			return n, b.readErr()
		}

		b.pos += int64(b.w)
		b.r, b.w = 0, 0
		n, err := b.rd.Read(b.buf)
		if n < 0 {
			panic(errNegativeRead)
		}
		b.err = err
		if n == 0 {
			return 0, b.readErr()
		}
		b.w = n
	}

	n := copy(p, b.buf[b.r:b.w])
	b.r += n
	return n, nil
}

// Seek sets the offset for the next Read
func (b *ReadSeeker) Seek(offset int64, whence int) (int64, error) {
	if offset == 0 && whence == io.SeekCurrent {
		return b.position(), nil
	}
	if whence == io.SeekEnd {
		return b.seek(offset, whence)
	}

	abs := offset
	if whence == io.SeekCurrent {
		abs += b.position()
	}
	if abs >= b.pos && abs < b.pos+int64(b.w) {
		b.r = int(abs - b.pos)
		return abs, nil
	}
	return b.seek(abs, io.SeekStart)
}

func (b *ReadSeeker) seek(offset int64, whence int) (int64, error) {
	b.r, b.w = 0, 0
	b.err = nil
	pos, err := b.rd.Seek(offset, whence)
	if err != nil {
		return b.pos, err
	}
	b.pos = pos
	return pos, nil
}

func (b *ReadSeeker) position() int64 {
	return b.pos + int64(b.r)
}
