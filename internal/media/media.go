// Package media opens the byte sources a container reader parses.
//
// Two access strategies exist. File access puts a read-ahead buffer in front
// of the file, which suits the many small chunk-header reads a DSDIFF parse
// performs. Stream access reads straight from the underlying handle.
package media

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/afero"
)

var (
	ErrEmptyPath = errors.New("media path is empty")
	ErrClosed    = errors.New("media is closed")
)

// Media is an open, seekable container source
type Media interface {
	io.ReadSeeker
	io.Closer

	// Size returns the total length in bytes
	Size() int64

	// Path returns the path the media was opened from
	Path() string
}

// Open opens path with the strategy selected by useStdio
func Open(fsys afero.Fs, path string, useStdio bool) (Media, error) {
	if useStdio {
		return OpenFile(fsys, path)
	}
	return OpenStream(fsys, path)
}

// OpenFile opens path for buffered access
func OpenFile(fsys afero.Fs, path string) (Media, error) {
	f, size, err := openHandle(fsys, path)
	if err != nil {
		return nil, err
	}

	slog.Debug("opened buffered media", "path", path, "size", size)
	return &fileMedia{
		handle: handle{file: f, path: path, size: size},
		rs:     NewReadSeeker(f),
	}, nil
}

// OpenStream opens path for unbuffered access
func OpenStream(fsys afero.Fs, path string) (Media, error) {
	f, size, err := openHandle(fsys, path)
	if err != nil {
		return nil, err
	}

	slog.Debug("opened stream media", "path", path, "size", size)
	return &streamMedia{handle: handle{file: f, path: path, size: size}}, nil
}

func openHandle(fsys afero.Fs, path string) (afero.File, int64, error) {
	if path == "" {
		return nil, 0, ErrEmptyPath
	}

	f, err := fsys.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open media: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("failed to stat media: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("failed to open media: %s is a directory", path)
	}

	return f, info.Size(), nil
}

type handle struct {
	file afero.File
	path string
	size int64
}

func (h *handle) Size() int64  { return h.size }
func (h *handle) Path() string { return h.path }

func (h *handle) close() error {
	if h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file = nil
	if err != nil {
		slog.Error("failed to close media", "path", h.path, "error", err)
		return err
	}
	slog.Debug("media closed", "path", h.path)
	return nil
}

type fileMedia struct {
	handle
	rs *ReadSeeker
}

func (m *fileMedia) Read(p []byte) (int, error) {
	if m.file == nil {
		return 0, ErrClosed
	}
	return m.rs.Read(p)
}

func (m *fileMedia) Seek(offset int64, whence int) (int64, error) {
	if m.file == nil {
		return 0, ErrClosed
	}
	return m.rs.Seek(offset, whence)
}

func (m *fileMedia) Close() error {
	return m.close()
}

type streamMedia struct {
	handle
}

func (m *streamMedia) Read(p []byte) (int, error) {
	if m.file == nil {
		return 0, ErrClosed
	}
	return m.file.Read(p)
}

func (m *streamMedia) Seek(offset int64, whence int) (int64, error) {
	if m.file == nil {
		return 0, ErrClosed
	}
	return m.file.Seek(offset, whence)
}

func (m *streamMedia) Close() error {
	return m.close()
}
