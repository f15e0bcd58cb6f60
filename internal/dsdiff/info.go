package dsdiff

import (
	"strconv"

	"dsdiff.click/internal/tag"
)

// Info emits the metadata the container holds for track
func (r *Reader) Info(track int, h tag.Handler) {
	if track < 0 || track >= len(r.tracks) {
		return
	}

	title := r.tracks[track].title
	if title == "" {
		title = r.discTitle
	}
	h.OnTag(tag.Title, title)
	h.OnTag(tag.Artist, r.discArtist)
	h.OnTag(tag.Album, r.discTitle)

	if r.emid != "" {
		h.OnPair("emid", r.emid)
	}
	h.OnPair("channels", strconv.Itoa(r.channels))
	h.OnPair("samplerate", strconv.Itoa(r.sampleRate))
}
