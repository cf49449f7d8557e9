package autoplay

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/infra/config"
	"github.com/osa030/guildbox/internal/infra/youtube"
)

var ErrNoRecommenders = errors.New("no autoplay providers configured")

// NewChainFromConfig creates a recommender chain from configuration.
func NewChainFromConfig(cfg config.AutoplayConfig) (*Chain, error) {
	if len(cfg.Providers) == 0 {
		return nil, ErrNoRecommenders
	}

	var recommenders []NamedRecommender
	for i, pcfg := range cfg.Providers {
		var (
			rec Recommender
			err error
		)
		zlog.Debug().Msgf("autoplay: creating provider index=%d type=%s", i+1, pcfg.Type)
		switch pcfg.Type {
		case "lastfm":
			rec, err = NewLastFmRecommender(pcfg.Settings)

		case "ytmusic":
			rec = NewYouTubeMusicRecommender(youtube.NewMusicSearcher())

		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", pcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}

		recommenders = append(recommenders, NamedRecommender{
			Recommender: rec,
			DisplayName: pcfg.DisplayName,
		})

		zlog.Info().Msgf("autoplay: registered provider index=%d type=%s display_name=%s", i+1, pcfg.Type, pcfg.DisplayName)
	}

	return NewChain(recommenders), nil
}
