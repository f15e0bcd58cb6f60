package decoder

import (
	"dsdiff.click/internal/config"
	"dsdiff.click/internal/dsdiff"
)

// Options are fixed for the lifetime of a Plugin
type Options struct {
	DSTDecThreads int
	EditedMaster  bool
	SingleTrack   bool
	LSBitFirst    bool
	PlayableArea  dsdiff.Area
	UseStdio      bool
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		PlayableArea: dsdiff.AreaBoth,
		UseStdio:     true,
	}
}

// OptionsFromConfig converts the decoder block of the configuration.
// Unrecognized playable areas mean both areas.
func OptionsFromConfig(cfg config.DecoderConfig) Options {
	opts := Options{
		DSTDecThreads: max(cfg.DSTDecThreads, 0),
		EditedMaster:  cfg.EditedMaster,
		SingleTrack:   cfg.SingleTrack,
		LSBitFirst:    cfg.LSBitFirst,
		PlayableArea:  dsdiff.AreaBoth,
		UseStdio:      cfg.UseStdioOrDefault(),
	}
	switch cfg.PlayableArea {
	case config.PlayableAreaStereo:
		opts.PlayableArea = dsdiff.AreaTwoCh
	case config.PlayableAreaMultichannel:
		opts.PlayableArea = dsdiff.AreaMulCh
	}
	return opts
}

func (o Options) mode() dsdiff.Mode {
	if o.SingleTrack {
		return dsdiff.ModeSingleTrack
	}
	return dsdiff.ModeMultiTrack
}
