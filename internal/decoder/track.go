package decoder

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"

	"dsdiff.click/internal/dsdiff"
)

// ContainerPlaceholder is the entry listed for a container root
const ContainerPlaceholder = "multitrack_dsdiff"

// trackNamePattern matches virtual sub-track names. The "2C_"/"MC_" spelling
// written by older scanners is accepted too.
var trackNamePattern = regexp.MustCompile(`^([2M])C?_AUDIO__TRACK(\d{3})\.(\S{1,3})`)

// TrackName returns the virtual file name of track number in area. Numbers
// are one based and relative to the area.
func TrackName(area dsdiff.Area, number int, suffix string) string {
	areaChar := '2'
	if area == dsdiff.AreaMulCh {
		areaChar = 'M'
	}
	if suffix == "" {
		suffix = "dff"
	}
	return fmt.Sprintf("%c_AUDIO__TRACK%03d.%s", areaChar, number, suffix)
}

// ResolveTrack maps a virtual file name to an absolute track index. Two
// channel tracks come first; a multichannel name adds twoch to its number.
// Names that do not parse resolve to the first track.
func ResolveTrack(name string, twoch, mulch int) int {
	if twoch+mulch < 2 {
		return 0
	}

	base := filepath.Base(name)
	m := trackNamePattern.FindStringSubmatch(base)
	if m == nil {
		slog.Debug("not a sub-track name, falling back to first track", "name", base)
		return 0
	}

	number, err := strconv.Atoi(m[2])
	if err != nil || number == 0 {
		slog.Debug("invalid sub-track number, falling back to first track", "name", base)
		return 0
	}
	if m[1] == "M" {
		number += twoch
	}

	slog.Debug("resolved sub-track", "name", base, "track", number-1)
	return number - 1
}

// suffixOf returns the extension of path without its dot
func suffixOf(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	return ext[1:]
}
