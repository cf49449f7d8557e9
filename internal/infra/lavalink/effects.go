package lavalink

import (
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
)

var ErrUnknownEffect = errors.New("unknown effect")

// Filters is the Lavalink v4 filters object. An empty value clears every filter.
type Filters struct {
	Equalizer []EqualizerBand `json:"equalizer,omitempty"`
	Karaoke   *Karaoke        `json:"karaoke,omitempty"`
	Timescale *Timescale      `json:"timescale,omitempty"`
	Rotation  *Rotation       `json:"rotation,omitempty"`
}

type EqualizerBand struct {
	Band int     `json:"band"`
	Gain float64 `json:"gain"`
}

type Karaoke struct {
	Level       float64 `json:"level"`
	MonoLevel   float64 `json:"monoLevel"`
	FilterBand  float64 `json:"filterBand"`
	FilterWidth float64 `json:"filterWidth"`
}

type Timescale struct {
	Speed float64 `json:"speed"`
	Pitch float64 `json:"pitch"`
	Rate  float64 `json:"rate"`
}

type Rotation struct {
	RotationHz float64 `json:"rotationHz"`
}

// presets maps effect names to the filters they enable.
var presets = map[string]func(*Filters){
	"nightcore": func(f *Filters) {
		f.Timescale = &Timescale{Speed: 1.25, Pitch: 1.25, Rate: 1}
	},
	"vaporwave": func(f *Filters) {
		f.Timescale = &Timescale{Speed: 0.8, Pitch: 0.8, Rate: 1}
		f.Equalizer = mergeBands(f.Equalizer, []EqualizerBand{{Band: 0, Gain: 0.3}, {Band: 1, Gain: 0.3}})
	},
	"bassboost": func(f *Filters) {
		f.Equalizer = mergeBands(f.Equalizer, []EqualizerBand{
			{Band: 0, Gain: 0.2}, {Band: 1, Gain: 0.15}, {Band: 2, Gain: 0.1}, {Band: 3, Gain: 0.05},
		})
	},
	"karaoke": func(f *Filters) {
		f.Karaoke = &Karaoke{Level: 1, MonoLevel: 1, FilterBand: 220, FilterWidth: 100}
	},
	"8d": func(f *Filters) {
		f.Rotation = &Rotation{RotationHz: 0.2}
	},
}

// EffectNames returns the supported effect names, sorted.
func EffectNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// BuildFilters combines the named presets in order. Later presets override
// earlier ones where they set the same filter; equalizer gains are summed per band.
func BuildFilters(names []string) (Filters, error) {
	var f Filters
	for _, name := range names {
		apply, ok := presets[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return Filters{}, errors.Wrapf(ErrUnknownEffect, "%q", name)
		}
		apply(&f)
	}
	return f, nil
}

func mergeBands(current, add []EqualizerBand) []EqualizerBand {
	out := slices.Clone(current)
	for _, b := range add {
		i := slices.IndexFunc(out, func(e EqualizerBand) bool { return e.Band == b.Band })
		if i < 0 {
			out = append(out, b)
			continue
		}
		out[i].Gain = min(out[i].Gain+b.Gain, 1.0)
	}
	slices.SortFunc(out, func(a, b EqualizerBand) int { return a.Band - b.Band })
	return out
}
