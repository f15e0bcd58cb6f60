package media

import (
	"bytes"
	"io"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMedia(t *testing.T, content []byte) afero.Fs {
	t.Helper()
	memFS := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(memFS, "/disc.dff", content, 0644))
	return memFS
}

func TestOpenStrategies(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 100)
	memFS := writeMedia(t, content)

	for _, useStdio := range []bool{true, false} {
		m, err := Open(memFS, "/disc.dff", useStdio)
		require.NoError(t, err)

		assert.Equal(t, int64(len(content)), m.Size())
		assert.Equal(t, "/disc.dff", m.Path())

		got, err := io.ReadAll(m)
		require.NoError(t, err)
		assert.Equal(t, content, got, "use_stdio=%v", useStdio)

		pos, err := m.Seek(505, io.SeekStart)
		require.NoError(t, err)
		assert.Equal(t, int64(505), pos)

		buf := make([]byte, 3)
		_, err = io.ReadFull(m, buf)
		require.NoError(t, err)
		assert.Equal(t, []byte("567"), buf)

		require.NoError(t, m.Close())
		_, err = m.Read(buf)
		assert.ErrorIs(t, err, ErrClosed)
	}
}

func TestOpenErrors(t *testing.T) {
	memFS := writeMedia(t, []byte("x"))
	require.NoError(t, memFS.MkdirAll("/dir", 0755))

	_, err := OpenFile(memFS, "")
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = OpenFile(memFS, "/missing.dff")
	assert.Error(t, err)

	_, err = OpenStream(memFS, "/dir")
	assert.Error(t, err)
}

func TestReadSeekerSeekInsideBuffer(t *testing.T) {
	content := make([]byte, 256)
	for i := range content {
		content[i] = byte(i)
	}
	rs := NewReadSeekerSize(bytes.NewReader(content), 32)

	buf := make([]byte, 4)
	_, err := io.ReadFull(rs, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 3}, buf)

	pos, err := rs.Seek(10, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(14), pos)

	_, err = io.ReadFull(rs, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{14, 15, 16, 17}, buf)

	pos, err = rs.Seek(-2, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(254), pos)

	rest, err := io.ReadAll(rs)
	require.NoError(t, err)
	assert.Equal(t, []byte{254, 255}, rest)

	cur, err := rs.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(256), cur)
}

func TestReadSeekerLargeRead(t *testing.T) {
	content := bytes.Repeat([]byte{0xAA, 0x55}, 64)
	rs := NewReadSeekerSize(bytes.NewReader(content), 16)

	big := make([]byte, 100)
	_, err := io.ReadFull(rs, big)
	require.NoError(t, err)
	assert.Equal(t, content[:100], big)

	cur, err := rs.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(100), cur)
}
