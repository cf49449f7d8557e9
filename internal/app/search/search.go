// Package search turns user queries and links into playable tracks.
package search

import (
	"context"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/osa030/guildbox/internal/domain/track"
	"github.com/osa030/guildbox/internal/infra/lavalink"
	"github.com/osa030/guildbox/internal/infra/spotify"
	"github.com/osa030/guildbox/internal/infra/youtube"
)

var ErrNoMatches = errors.New("no playable tracks found")

const (
	searchPrefix       = "ytsearch:"
	defaultConcurrency = 4
)

// Loader resolves backend identifiers into tracks.
type Loader interface {
	LoadTracks(ctx context.Context, identifier string) (lavalink.LoadResult, error)
}

// LinkResolver expands streaming-service links into track metadata.
type LinkResolver interface {
	Resolve(ctx context.Context, link string) ([]spotify.Metadata, error)
}

// VideoSearcher searches videos outside the audio backend.
type VideoSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]youtube.Video, error)
}

// Deps holds the collaborators of a Service. Spotify and Fallback are optional.
type Deps struct {
	Loader   Loader
	Spotify  LinkResolver
	Fallback VideoSearcher
}

// Result is the outcome of loading a query for enqueue.
type Result struct {
	Tracks       []track.Track
	PlaylistName string
}

// Service resolves queries through the audio backend.
type Service struct {
	deps        Deps
	concurrency int
}

// New creates a search service.
func New(deps Deps) *Service {
	return &Service{deps: deps, concurrency: defaultConcurrency}
}

// Resolve returns the best playable track for query, or nil when nothing matches.
func (s *Service) Resolve(ctx context.Context, query string) (*track.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	if isURL(query) {
		res, err := s.deps.Loader.LoadTracks(ctx, query)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load %s", query)
		}
		return first(res.Tracks), nil
	}

	res, err := s.deps.Loader.LoadTracks(ctx, searchPrefix+query)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to search %q", query)
	}
	if t := first(res.Tracks); t != nil {
		return t, nil
	}
	return s.fallback(ctx, query)
}

// Load resolves query into the tracks to enqueue.
// Spotify links are expanded to their tracks, other links are loaded as-is
// and free text yields the top search hit.
func (s *Service) Load(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, ErrNoMatches
	}

	if _, _, ok := spotify.ParseLink(query); ok {
		return s.loadSpotify(ctx, query)
	}

	if isURL(query) {
		res, err := s.deps.Loader.LoadTracks(ctx, query)
		if err != nil {
			return Result{}, errors.Wrapf(err, "failed to load %s", query)
		}
		if len(res.Tracks) == 0 {
			return Result{}, ErrNoMatches
		}
		zlog.Debug().Msgf("search: loaded url tracks=%d type=%s", len(res.Tracks), res.Type)
		return Result{Tracks: res.Tracks, PlaylistName: res.PlaylistName}, nil
	}

	t, err := s.Resolve(ctx, query)
	if err != nil {
		return Result{}, err
	}
	if t == nil {
		return Result{}, ErrNoMatches
	}
	return Result{Tracks: []track.Track{*t}}, nil
}

// loadSpotify resolves each Spotify track by searching for its artist and title.
// Tracks that cannot be found are dropped; order follows the Spotify listing.
func (s *Service) loadSpotify(ctx context.Context, link string) (Result, error) {
	if s.deps.Spotify == nil {
		return Result{}, errors.New("spotify links are not enabled")
	}

	metas, err := s.deps.Spotify.Resolve(ctx, link)
	if err != nil {
		return Result{}, errors.Wrap(err, "failed to resolve spotify link")
	}

	resolved := make([]*track.Track, len(metas))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, m := range metas {
		g.Go(func() error {
			t, err := s.Resolve(gctx, m.Query())
			if err != nil {
				zlog.Warn().Err(err).Msgf("search: spotify track not resolved id=%s", m.ID)
				return nil
			}
			resolved[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var out []track.Track
	for _, t := range resolved {
		if t != nil {
			out = append(out, *t)
		}
	}
	if len(out) == 0 {
		return Result{}, ErrNoMatches
	}

	zlog.Info().Msgf("search: spotify link resolved=%d of %d", len(out), len(metas))
	return Result{Tracks: out}, nil
}

func (s *Service) fallback(ctx context.Context, query string) (*track.Track, error) {
	if s.deps.Fallback == nil {
		return nil, nil
	}

	videos, err := s.deps.Fallback.Search(ctx, query, 1)
	if err != nil {
		return nil, errors.Wrap(err, "fallback search failed")
	}
	if len(videos) == 0 {
		return nil, nil
	}

	res, err := s.deps.Loader.LoadTracks(ctx, videos[0].URL())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load fallback hit %s", videos[0].ID)
	}
	zlog.Debug().Msgf("search: fallback hit query=%q video=%s", query, videos[0].ID)
	return first(res.Tracks), nil
}

func first(ts []track.Track) *track.Track {
	if len(ts) == 0 {
		return nil
	}
	t := ts[0]
	return &t
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
