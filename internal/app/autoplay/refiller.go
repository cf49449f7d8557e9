package autoplay

import (
	"context"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/filter"
	"github.com/osa030/guildbox/internal/domain/track"
)

const defaultCandidateLimit = 20

// Resolver resolves a search query to a playable track, or nil.
type Resolver interface {
	Resolve(ctx context.Context, query string) (*track.Track, error)
}

// Screener accepts or rejects resolved candidates.
type Screener interface {
	Execute(ctx context.Context, t track.Track, queued []track.QueueEntry) filter.Result
}

// Refiller picks tracks to append when a guild's queue runs out.
type Refiller struct {
	recommender    Recommender
	resolver       Resolver
	screener       Screener
	candidateLimit int
}

// NewRefiller creates a refiller. screener may be nil.
func NewRefiller(recommender Recommender, resolver Resolver, screener Screener, candidateLimit int) *Refiller {
	if candidateLimit <= 0 {
		candidateLimit = defaultCandidateLimit
	}
	return &Refiller{
		recommender:    recommender,
		resolver:       resolver,
		screener:       screener,
		candidateLimit: candidateLimit,
	}
}

// Refill returns up to count playable tracks related to seed whose titles are not already queued.
// An empty result with a nil error means nothing suitable was found.
func (r *Refiller) Refill(ctx context.Context, seed track.Track, queued []track.QueueEntry, count int) ([]track.Track, error) {
	if count <= 0 {
		return nil, nil
	}
	refillID := uuid.New().String()

	s := ParseSeed(seed)
	candidates, err := r.candidates(ctx, refillID, s)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		zlog.Debug().Msgf("autoplay: no recommendations refill=%s artist=%q title=%q", refillID, s.Artist, s.Title)
		return nil, nil
	}

	var (
		out     []track.Track
		pending = queued
	)
	for _, cand := range candidates {
		if len(out) >= count {
			break
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if titleQueued(pending, cand.Title) {
			continue
		}

		t, err := r.resolver.Resolve(ctx, cand.Query())
		if err != nil {
			zlog.Warn().Err(err).Msgf("autoplay: resolve failed refill=%s query=%q", refillID, cand.Query())
			continue
		}
		if t == nil {
			continue
		}
		if r.screener != nil {
			if res := r.screener.Execute(ctx, *t, pending); !res.Accepted {
				zlog.Debug().Msgf("autoplay: candidate rejected refill=%s title=%q code=%s", refillID, t.Title, res.Code)
				continue
			}
		}

		out = append(out, *t)
		pending = append(pending[:len(pending):len(pending)], track.QueueEntry{Track: *t})
	}

	zlog.Info().Msgf("autoplay: refill=%s seed=%q candidates=%d picked=%d", refillID, s.Title, len(candidates), len(out))
	return out, nil
}

// candidates queries with artist and title first, then with the title alone.
func (r *Refiller) candidates(ctx context.Context, refillID string, s Seed) ([]Candidate, error) {
	if s.Title == "" {
		return nil, nil
	}

	if s.Artist != "" {
		cands, err := r.recommender.Recommend(ctx, s.Artist, s.Title, r.candidateLimit)
		if err != nil {
			zlog.Warn().Err(err).Msgf("autoplay: recommendation failed refill=%s, retrying with title", refillID)
		}
		if len(cands) > 0 {
			return cands, nil
		}
	}
	return r.recommender.Recommend(ctx, "", s.Title, r.candidateLimit)
}

func titleQueued(entries []track.QueueEntry, title string) bool {
	for _, e := range entries {
		if track.SameTitle(e.Track.Title, title) {
			return true
		}
	}
	return false
}
