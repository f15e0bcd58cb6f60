package decoder

import (
	"io"
	"log/slog"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	"dsdiff.click/internal/dsdiff"
)

// Descriptor is what a registry knows about a decoder plugin
type Descriptor interface {
	Name() string
	FormatName() string
	Suffixes() []string
	MimeTypes() []string
	CanDecode(filename string) bool
}

var registerMimeOnce sync.Once

// registerMime teaches mimetype to recognize DSDIFF content
func registerMime() {
	registerMimeOnce.Do(func() {
		mimetype.Extend(func(raw []byte, limit uint32) bool {
			return dsdiff.Sniff(raw)
		}, "audio/x-dff", ".dff", "application/x-dff", "audio/x-dsd")
		slog.Debug("registered DSDIFF content detector")
	})
}

// Registry manages decoder plugins and provides format detection
type Registry struct {
	plugins []Descriptor
}

// NewRegistry creates a new empty registry
func NewRegistry() *Registry {
	slog.Debug("creating new decoder registry")
	registerMime()
	return &Registry{
		plugins: make([]Descriptor, 0),
	}
}

// Register adds a plugin to the registry
func (r *Registry) Register(plugin Descriptor) {
	if plugin == nil {
		slog.Warn("attempted to register nil plugin")
		return
	}

	r.plugins = append(r.plugins, plugin)

	slog.Debug("plugin registered",
		"plugin", plugin.Name(),
		"format", plugin.FormatName(),
		"total_plugins", len(r.plugins))
}

// Plugins returns all registered plugins
func (r *Registry) Plugins() []Descriptor {
	return r.plugins
}

// SupportedFormats returns the format names of all registered plugins
func (r *Registry) SupportedFormats() []string {
	formats := make([]string, 0, len(r.plugins))
	for _, plugin := range r.plugins {
		formats = append(formats, plugin.FormatName())
	}
	return formats
}

// DetectFormat finds the plugin for filename by its suffix
func (r *Registry) DetectFormat(filename string) Descriptor {
	slog.Debug("detecting format by extension", "filename", filename)

	if filename == "" {
		return nil
	}

	for _, plugin := range r.plugins {
		if plugin.CanDecode(filename) {
			slog.Debug("format detected by extension",
				"filename", filename,
				"plugin", plugin.Name())
			return plugin
		}
	}

	slog.Debug("no plugin found for filename", "filename", filename)
	return nil
}

// DetectFormatWithContent detects the plugin from magic bytes first and
// falls back to the suffix
func (r *Registry) DetectFormatWithContent(filename string, reader io.Reader) Descriptor {
	slog.Debug("detecting format with content analysis", "filename", filename)

	buffer := make([]byte, 512)
	n, err := io.ReadFull(reader, buffer)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		slog.Error("failed to read header for magic detection", "filename", filename, "error", err)
		return r.DetectFormat(filename)
	}
	if n == 0 {
		slog.Debug("empty content, using extension fallback", "filename", filename)
		return r.DetectFormat(filename)
	}

	mtype := mimetype.Detect(buffer[:n])
	slog.Debug("magic byte detection result",
		"filename", filename,
		"detected_mime", mtype.String(),
		"bytes_analyzed", n)

	if plugin := r.findByMime(mtype); plugin != nil {
		slog.Debug("format detected by magic bytes",
			"filename", filename,
			"plugin", plugin.Name(),
			"mime_type", mtype.String())
		return plugin
	}

	slog.Debug("magic detection failed, falling back to extension", "filename", filename)
	return r.DetectFormat(filename)
}

func (r *Registry) findByMime(mtype *mimetype.MIME) Descriptor {
	for _, plugin := range r.plugins {
		for _, mime := range plugin.MimeTypes() {
			if mtype.Is(mime) {
				return plugin
			}
		}
	}
	return nil
}
