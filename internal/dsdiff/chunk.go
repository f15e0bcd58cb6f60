package dsdiff

import (
	"encoding/binary"
	"fmt"
	"io"
)

// chunkID is a four character chunk identifier
type chunkID [4]byte

func (id chunkID) String() string {
	return string(id[:])
}

var (
	idFRM8 = chunkID{'F', 'R', 'M', '8'}
	idDSD  = chunkID{'D', 'S', 'D', ' '}
	idDST  = chunkID{'D', 'S', 'T', ' '}
	idFVER = chunkID{'F', 'V', 'E', 'R'}
	idPROP = chunkID{'P', 'R', 'O', 'P'}
	idSND  = chunkID{'S', 'N', 'D', ' '}
	idFS   = chunkID{'F', 'S', ' ', ' '}
	idCHNL = chunkID{'C', 'H', 'N', 'L'}
	idCMPR = chunkID{'C', 'M', 'P', 'R'}
	idFRTE = chunkID{'F', 'R', 'T', 'E'}
	idDSTF = chunkID{'D', 'S', 'T', 'F'}
	idDIIN = chunkID{'D', 'I', 'I', 'N'}
	idEMID = chunkID{'E', 'M', 'I', 'D'}
	idMARK = chunkID{'M', 'A', 'R', 'K'}
	idDIAR = chunkID{'D', 'I', 'A', 'R'}
	idDITI = chunkID{'D', 'I', 'T', 'I'}
)

const chunkHeaderSize = 12

// maxChunkSize keeps chunk ends representable as file offsets
const maxChunkSize = 1 << 62

// chunkHeader locates one chunk. offset is the absolute position of the
// first data byte; size excludes the pad byte of odd-sized chunks.
type chunkHeader struct {
	id     chunkID
	size   uint64
	offset int64
}

// end returns the offset just past the chunk, pad byte included
func (h chunkHeader) end() int64 {
	return h.offset + int64(h.size) + int64(h.size&1)
}

// readChunkHeader reads the header at offset
func readChunkHeader(r io.ReadSeeker, offset int64) (chunkHeader, error) {
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return chunkHeader{}, err
	}

	var raw [chunkHeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return chunkHeader{}, fmt.Errorf("%w: chunk header at %d: %v", ErrMalformed, offset, err)
	}

	var h chunkHeader
	copy(h.id[:], raw[:4])
	h.size = binary.BigEndian.Uint64(raw[4:])
	h.offset = offset + chunkHeaderSize
	if h.size > maxChunkSize {
		return chunkHeader{}, fmt.Errorf("%w: %s chunk of %d bytes", ErrMalformed, h.id, h.size)
	}
	return h, nil
}

// readChunkData reads the whole body of a small chunk
func readChunkData(r io.ReadSeeker, h chunkHeader, limit uint64) ([]byte, error) {
	if h.size > limit {
		return nil, fmt.Errorf("%w: %s chunk of %d bytes exceeds %d", ErrMalformed, h.id, h.size, limit)
	}
	if _, err := r.Seek(h.offset, io.SeekStart); err != nil {
		return nil, err
	}
	data := make([]byte, h.size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("%w: %s chunk body: %v", ErrMalformed, h.id, err)
	}
	return data, nil
}

// walkChunks calls fn for each chunk header in [start, end)
func walkChunks(r io.ReadSeeker, start, end int64, fn func(chunkHeader) error) error {
	for pos := start; pos+chunkHeaderSize <= end; {
		h, err := readChunkHeader(r, pos)
		if err != nil {
			return err
		}
		if h.end() > end+1 {
			return fmt.Errorf("%w: %s chunk overruns its parent", ErrMalformed, h.id)
		}
		if err := fn(h); err != nil {
			return err
		}
		pos = h.end()
	}
	return nil
}

// counted text is a ulong length followed by that many bytes
func readCountedText(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	n := binary.BigEndian.Uint32(data)
	text := data[4:]
	if uint64(n) < uint64(len(text)) {
		text = text[:n]
	}
	return string(text)
}

// Sniff reports whether raw starts like a DSDIFF container
func Sniff(raw []byte) bool {
	return len(raw) >= chunkHeaderSize+4 &&
		chunkID(raw[0:4]) == idFRM8 &&
		chunkID(raw[chunkHeaderSize:chunkHeaderSize+4]) == idDSD
}
