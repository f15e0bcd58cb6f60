package fs

import (
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
)

// Factory provides filesystem instances for production and testing
type Factory interface {
	// Production returns a filesystem that operates on the real OS filesystem
	Production() afero.Fs
	// Memory returns an in-memory filesystem for testing
	Memory() afero.Fs
}

// DefaultFactory provides the standard filesystem factory implementation
type DefaultFactory struct{}

// NewDefaultFactory creates a new filesystem factory
func NewDefaultFactory() Factory {
	return &DefaultFactory{}
}

// Production returns a filesystem that operates on the real OS filesystem
func (f *DefaultFactory) Production() afero.Fs {
	return afero.NewOsFs()
}

// Memory returns an in-memory filesystem for testing
func (f *DefaultFactory) Memory() afero.Fs {
	return afero.NewMemMapFs()
}

// FileExists reports whether path names an existing regular file.
// Directories do not count.
func FileExists(fsys afero.Fs, path string) bool {
	if path == "" {
		return false
	}
	info, err := fsys.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// ResolveContainerPath maps a possibly virtual path onto the file that backs it.
// An existing file resolves to itself; anything else resolves to its parent,
// which is how sub-track names such as "album.dff/2_AUDIO__TRACK001.dff" reach
// their container. The returned path may still not exist.
func ResolveContainerPath(fsys afero.Fs, path string) string {
	if path == "" {
		return ""
	}
	if FileExists(fsys, path) {
		return path
	}

	parent := filepath.Dir(path)
	slog.Debug("path is not a file, falling back to parent",
		"path", path,
		"parent", parent)
	return parent
}
