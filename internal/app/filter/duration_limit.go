package filter

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/domain/track"
)

// DurationConfig bounds the length of autoplay candidates. Max 0 means no upper bound.
type DurationConfig struct {
	Min time.Duration `mapstructure:"min" default:"1m" validate:"gte=0"`
	Max time.Duration `mapstructure:"max" validate:"gte=0"`
}

// DurationLimitFilter rejects candidates that are too short or too long.
type DurationLimitFilter struct {
	config *DurationConfig
}

// NewDurationLimitFilter creates an unconfigured filter that accepts everything.
func NewDurationLimitFilter() *DurationLimitFilter {
	return &DurationLimitFilter{}
}

func (f *DurationLimitFilter) Name() string {
	return "duration_limit_filter"
}

func (f *DurationLimitFilter) Description() string {
	return "Rejects candidates shorter than min or longer than max"
}

func (f *DurationLimitFilter) ReturnCodes() []string {
	return []string{CodeDuration}
}

func (f *DurationLimitFilter) ValidateConfig(settings map[string]any) error {
	var config DurationConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	if config.Max > 0 && config.Min > config.Max {
		return errors.Newf("min (%s) is greater than max (%s)", config.Min, config.Max)
	}
	f.config = &config
	zlog.Info().Msgf("filter: duration limit min=%s max=%s", config.Min, config.Max)
	return nil
}

func (f *DurationLimitFilter) Check(ctx context.Context, t track.Track, queued []track.QueueEntry) Result {
	// Streams are left to stream_filter; a zero length is unknown.
	if f.config == nil || t.IsStream || t.Duration == 0 {
		return Accept()
	}
	if t.Duration < f.config.Min || (f.config.Max > 0 && t.Duration > f.config.Max) {
		zlog.Debug().Msgf("filter: duration out of range title=%s duration=%s", t.Title, t.Duration)
		return Reject(CodeDuration)
	}
	return Accept()
}

func init() {
	Register("duration_limit_filter", func() Filter {
		return NewDurationLimitFilter()
	})
}
