// Package decoder exposes DSDIFF containers to a media server: it lists the
// tracks inside a container as virtual files and streams any one of them as
// DSD, decompressing DST frames on the way.
package decoder

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"dsdiff.click/internal/dsdiff"
	"dsdiff.click/internal/dst"
	"dsdiff.click/internal/fs"
	"dsdiff.click/internal/media"
	"dsdiff.click/internal/tag"
)

var (
	ErrNoContainer       = errors.New("no container path")
	ErrContainerNotFound = errors.New("container not found")
	ErrTrackOutOfRange   = errors.New("sub-track index is out of range")
)

// ContainerReader is an open DSDIFF container session
type ContainerReader interface {
	Open(m media.Media, mode dsdiff.Mode) error
	Close() error
	Tracks(area dsdiff.Area) int
	Channels() int
	SampleRate() int
	FrameRate() int
	Duration(track int) float64
	Info(track int, h tag.Handler)
	IsDST() bool
	SelectArea(area dsdiff.Area)
	SelectTrack(track int, area dsdiff.Area, offset int) error
	SetEditedMaster(on bool)
	ReadFrame(buf []byte) (int, dsdiff.FrameType, error)
	Seek(seconds float64) error
}

// Decompressor turns DST frames into DSD. Run may hold frames back and
// return them on later calls; Run(nil) drains one held frame.
type Decompressor interface {
	IsInit() bool
	Init(channels, channelFrameSize int) error
	Run(buf []byte) []byte
	Discard() int
	Close() error
}

// Plugin is the DSDIFF decoder plugin. It caches one open container between
// calls; calls are serialized.
type Plugin struct {
	opts Options
	fs   afero.Fs

	newReader       func() ContainerReader
	newDecompressor func(threads int) Decompressor

	mu     sync.Mutex
	path   string
	media  media.Media
	reader ContainerReader
}

// NewPlugin creates a plugin reading containers from fsys
func NewPlugin(opts Options, fsys afero.Fs) *Plugin {
	slog.Debug("creating DSDIFF decoder plugin",
		"dstdec_threads", opts.DSTDecThreads,
		"edited_master", opts.EditedMaster,
		"single_track", opts.SingleTrack,
		"lsbitfirst", opts.LSBitFirst,
		"playable_area", opts.PlayableArea,
		"use_stdio", opts.UseStdio)

	return &Plugin{
		opts:      opts,
		fs:        fsys,
		newReader: func() ContainerReader { return dsdiff.NewReader() },
		newDecompressor: func(threads int) Decompressor {
			return dst.New(threads)
		},
	}
}

// Options returns the options the plugin was created with
func (p *Plugin) Options() Options { return p.opts }

// Name returns the plugin name
func (p *Plugin) Name() string { return "dsdiff" }

// FormatName returns the name of the format this plugin handles
func (p *Plugin) FormatName() string { return "DSDIFF" }

// Suffixes returns the file suffixes the plugin handles
func (p *Plugin) Suffixes() []string { return []string{"dff"} }

// MimeTypes returns the content types the plugin handles
func (p *Plugin) MimeTypes() []string {
	return []string{"application/x-dff", "audio/x-dff", "audio/x-dsd"}
}

// CanDecode checks the file suffix of filename
func (p *Plugin) CanDecode(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, suffix := range p.Suffixes() {
		if ext == "."+suffix {
			return true
		}
	}
	return false
}

// Close releases the cached container
func (p *Plugin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.release()
	return nil
}

// updateContainer makes the cached session reflect path. Paths that do not
// exist are taken to be virtual tracks and resolve to their parent. An empty
// path releases the session.
func (p *Plugin) updateContainer(path string) error {
	resolved := fs.ResolveContainerPath(p.fs, path)
	if resolved != "" && resolved == p.path {
		slog.Debug("container already open", "path", resolved)
		return nil
	}

	p.release()
	if resolved == "" {
		return ErrNoContainer
	}
	if !fs.FileExists(p.fs, resolved) {
		slog.Warn("container does not exist", "path", path, "resolved", resolved)
		return fmt.Errorf("%w: %s", ErrContainerNotFound, resolved)
	}

	m, err := media.Open(p.fs, resolved, p.opts.UseStdio)
	if err != nil {
		slog.Warn("failed to open container media", "path", resolved, "error", err)
		return fmt.Errorf("failed to open media: %w", err)
	}

	reader := p.newReader()
	reader.SetEditedMaster(p.opts.EditedMaster)
	if err := reader.Open(m, p.opts.mode()); err != nil {
		m.Close()
		slog.Warn("failed to open container", "path", resolved, "error", err)
		return fmt.Errorf("failed to open container: %w", err)
	}

	p.path = resolved
	p.media = m
	p.reader = reader
	slog.Debug("container session updated", "path", resolved)
	return nil
}

func (p *Plugin) release() {
	if p.reader != nil {
		if err := p.reader.Close(); err != nil {
			slog.Warn("failed to close container", "path", p.path, "error", err)
		}
		p.reader = nil
	}
	if p.media != nil {
		if err := p.media.Close(); err != nil {
			slog.Warn("failed to close container media", "path", p.path, "error", err)
		}
		p.media = nil
	}
	if p.path != "" {
		slog.Debug("container session released", "path", p.path)
	}
	p.path = ""
}

// locate resolves the virtual track name against the open session and
// returns the area-relative index
func (p *Plugin) locate(path string) (int, dsdiff.Area, error) {
	twoch := p.reader.Tracks(dsdiff.AreaTwoCh)
	mulch := p.reader.Tracks(dsdiff.AreaMulCh)

	track := ResolveTrack(path, twoch, mulch)
	if track < twoch {
		return track, dsdiff.AreaTwoCh, nil
	}
	track -= twoch
	if track < mulch {
		return track, dsdiff.AreaMulCh, nil
	}

	slog.Error("sub-track index is out of range",
		"path", path,
		"track", track,
		"twoch_tracks", twoch,
		"mulch_tracks", mulch)
	return 0, dsdiff.AreaBoth, fmt.Errorf("%w: %s", ErrTrackOutOfRange, filepath.Base(path))
}

// displayNumber is the one based track number shown for track of area
func (p *Plugin) displayNumber(track int, area dsdiff.Area) int {
	if area == dsdiff.AreaMulCh {
		return track + p.reader.Tracks(dsdiff.AreaTwoCh) + 1
	}
	return track + 1
}
