package autoplay

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/domain/track"
	"github.com/osa030/guildbox/internal/infra/lastfm"
)

// LastFmClient defines the Last.fm operations used for recommendations.
type LastFmClient interface {
	GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.SimilarTrack, error)
	SearchTracks(ctx context.Context, trackName string, limit int) ([]lastfm.SearchResult, error)
}

type LastFmConfig struct {
	APIKey      string  `mapstructure:"api_key" validate:"required"`
	TimeoutSec  int     `mapstructure:"timeout_sec" default:"10" validate:"gte=1"`
	CacheTTLMin int     `mapstructure:"cache_ttl_min" default:"30" validate:"gte=0"`
	MinMatch    float64 `mapstructure:"min_match" default:"0" validate:"gte=0,lte=1"`
}

// LastFmRecommender recommends tracks Last.fm lists as similar to the seed.
type LastFmRecommender struct {
	client LastFmClient
	config LastFmConfig
}

// NewLastFmRecommender creates a Last.fm recommender from provider settings.
func NewLastFmRecommender(settings map[string]any) (*LastFmRecommender, error) {
	var config LastFmConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	client, err := lastfm.New(lastfm.Config{
		APIKey:   config.APIKey,
		Timeout:  time.Duration(config.TimeoutSec) * time.Second,
		CacheTTL: time.Duration(config.CacheTTLMin) * time.Minute,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}
	return &LastFmRecommender{client: client, config: config}, nil
}

// Recommend returns tracks similar to the seed. Without an artist, the top
// track.search match for the title supplies one.
func (r *LastFmRecommender) Recommend(ctx context.Context, artist, title string, limit int) ([]Candidate, error) {
	if title == "" || limit <= 0 {
		return nil, nil
	}

	if artist == "" {
		matches, err := r.client.SearchTracks(ctx, title, 1)
		if err != nil {
			return nil, errors.Wrap(err, "track search failed")
		}
		if len(matches) == 0 {
			return nil, nil
		}
		artist, title = matches[0].Artist, matches[0].Name
		zlog.Debug().Msgf("autoplay: last.fm seed from search artist=%q title=%q", artist, title)
	}

	similar, err := r.client.GetSimilarTracks(ctx, title, artist, limit)
	if err != nil {
		return nil, errors.Wrap(err, "similar tracks lookup failed")
	}

	out := make([]Candidate, 0, len(similar))
	for _, s := range similar {
		if s.Match < r.config.MinMatch || track.SameTitle(s.Name, title) {
			continue
		}
		out = append(out, Candidate{Title: s.Name, Artist: s.Artist})
	}
	return out, nil
}

// Name returns the recommender name.
func (r *LastFmRecommender) Name() string {
	return "lastfm"
}
