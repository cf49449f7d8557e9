// Package filter provides the filter chain that screens autoplay candidates.
package filter

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/guildbox/internal/domain/track"
)

// Rejection codes.
const (
	CodeDuplicateTitle = "duplicate_title"
	CodeDuration       = "duration_out_of_range"
	CodeLiveStream     = "live_stream"
)

// Result is the verdict of a filter on one candidate.
type Result struct {
	Accepted bool
	Code     string // Rejection code, empty when accepted
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Code: code}
}

func (r Result) String() string {
	if r.Accepted {
		return "accepted"
	}
	return "rejected(" + r.Code + ")"
}

// Filter screens one autoplay candidate against the guild's queue.
type Filter interface {
	// Name returns the filter name used as its config key.
	Name() string
	Description() string
	// ReturnCodes returns the codes this filter can reject with.
	ReturnCodes() []string
	// ValidateConfig validates and applies the filter settings.
	ValidateConfig(settings map[string]any) error
	Check(ctx context.Context, t track.Track, queued []track.QueueEntry) Result
}

var registry = make(map[string]func() Filter)

// Register makes a filter available to NewChainFromConfig. Registering a name twice panics.
func Register(name string, factory func() Filter) {
	if _, dup := registry[name]; dup {
		panic("filter: duplicate registration of " + name)
	}
	registry[name] = factory
}

// Lookup creates a fresh instance of the named filter.
func Lookup(name string) (Filter, bool) {
	factory, ok := registry[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// Names returns the registered filter names in order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// decodeSettings decodes a free-form settings map into out, applies defaults and validates it.
// Duration fields accept strings such as "90s" or "15m".
func decodeSettings(settings map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     out,
		TagName:    "mapstructure",
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
