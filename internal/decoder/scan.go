package decoder

import (
	"log/slog"
	"strconv"
	"time"

	"dsdiff.click/internal/dsdiff"
	"dsdiff.click/internal/tag"
)

// Entry is a virtual track inside a container
type Entry struct {
	Name  string
	Area  dsdiff.Area
	Track int // index within Area
	Tag   tag.Tag
}

// Codec returns the codec recorded for the entry
func (e Entry) Codec() string {
	codec, _ := e.Tag.Pair("codec")
	return codec
}

// ContainerScan lists the virtual tracks of the container at path. An empty
// path lists the placeholder root entry. Containers with fewer than two
// tracks list nothing.
func (p *Plugin) ContainerScan(path string) ([]Entry, error) {
	if path == "" {
		if p.opts.SingleTrack {
			return nil, nil
		}
		return []Entry{{Name: ContainerPlaceholder}}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.updateContainer(path); err != nil {
		return nil, err
	}

	twoch := p.reader.Tracks(dsdiff.AreaTwoCh)
	mulch := p.reader.Tracks(dsdiff.AreaMulCh)
	if twoch+mulch < 2 {
		slog.Debug("container has a single track, not listing", "path", path)
		return nil, nil
	}

	suffix := suffixOf(path)
	entries := make([]Entry, 0, twoch+mulch)
	b := tag.NewBuilder()

	if twoch > 0 && p.opts.PlayableArea != dsdiff.AreaMulCh {
		entries = p.scanArea(entries, b, dsdiff.AreaTwoCh, twoch, suffix)
	}
	if mulch > 0 && p.opts.PlayableArea != dsdiff.AreaTwoCh {
		entries = p.scanArea(entries, b, dsdiff.AreaMulCh, mulch, suffix)
	}

	slog.Info("container scanned",
		"path", path,
		"twoch_tracks", twoch,
		"mulch_tracks", mulch,
		"entries", len(entries))
	return entries, nil
}

func (p *Plugin) scanArea(entries []Entry, b *tag.Builder, area dsdiff.Area, count int, suffix string) []Entry {
	p.reader.SelectArea(area)
	for track := 0; track < count; track++ {
		p.scanInfo(track, area, b)
		entries = append(entries, Entry{
			Name:  TrackName(area, track+1, suffix),
			Area:  area,
			Track: track,
			Tag:   b.Commit(),
		})
	}
	return entries
}

func (p *Plugin) scanInfo(track int, area dsdiff.Area, h tag.Handler) {
	h.OnTag(tag.Track, strconv.Itoa(p.displayNumber(track, area)))
	h.OnDuration(seconds(p.reader.Duration(track)))
	p.reader.Info(track, h)

	codec := "DSD"
	if p.reader.IsDST() {
		codec = "DST"
	}
	h.OnPair("codec", codec)
}

// ScanFile reports the metadata of the virtual track at path
func (p *Plugin) ScanFile(path string, h tag.Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.updateContainer(path); err != nil {
		return err
	}

	track, area, err := p.locate(path)
	if err != nil {
		return err
	}
	p.reader.SelectArea(area)
	p.scanInfo(track, area, h)
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
