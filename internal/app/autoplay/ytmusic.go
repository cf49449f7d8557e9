package autoplay

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/guildbox/internal/domain/track"
	"github.com/osa030/guildbox/internal/infra/youtube"
)

// MusicSearcher searches a music catalogue.
type MusicSearcher interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]youtube.MusicTrack, error)
}

// YouTubeMusicRecommender recommends YouTube Music search hits for the seed.
// Results by the seed artist are kept; the seed itself is dropped.
type YouTubeMusicRecommender struct {
	searcher MusicSearcher
}

// NewYouTubeMusicRecommender creates a YouTube Music recommender.
func NewYouTubeMusicRecommender(searcher MusicSearcher) *YouTubeMusicRecommender {
	return &YouTubeMusicRecommender{searcher: searcher}
}

// Recommend searches for the seed and returns the other tracks found.
func (r *YouTubeMusicRecommender) Recommend(ctx context.Context, artist, title string, limit int) ([]Candidate, error) {
	if title == "" || limit <= 0 {
		return nil, nil
	}

	query := strings.TrimSpace(artist + " " + title)
	// One extra result makes room for the seed track itself.
	tracks, err := r.searcher.SearchTracks(ctx, query, limit+1)
	if err != nil {
		return nil, errors.Wrap(err, "youtube music search failed")
	}

	out := make([]Candidate, 0, len(tracks))
	for _, t := range tracks {
		if track.SameTitle(t.Title, title) {
			continue
		}
		out = append(out, Candidate{Title: t.Title, Artist: t.Artist()})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Name returns the recommender name.
func (r *YouTubeMusicRecommender) Name() string {
	return "ytmusic"
}
