// Package autoplay refills a guild's queue with tracks related to what is playing.
package autoplay

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Candidate is a recommended track before it is resolved to something playable.
type Candidate struct {
	Title  string
	Artist string
}

// Query returns the search text for the candidate.
func (c Candidate) Query() string {
	if c.Artist == "" {
		return c.Title
	}
	return c.Artist + " " + c.Title
}

func (c Candidate) key() string {
	return strings.ToLower(strings.TrimSpace(c.Artist)) + "\x00" + strings.ToLower(strings.TrimSpace(c.Title))
}

// Recommender finds tracks related to a seed. artist may be empty.
type Recommender interface {
	Recommend(ctx context.Context, artist, title string, limit int) ([]Candidate, error)
	Name() string
}

// NamedRecommender wraps a recommender with its display name.
type NamedRecommender struct {
	Recommender Recommender
	DisplayName string
}

// Chain asks each recommender in order until enough candidates are collected.
type Chain struct {
	recommenders []NamedRecommender
}

// NewChain creates a new recommender chain.
func NewChain(recommenders []NamedRecommender) *Chain {
	return &Chain{recommenders: recommenders}
}

// Recommend collects candidates from the recommenders in order, skipping duplicates.
// It fails only when every recommender failed.
func (c *Chain) Recommend(ctx context.Context, artist, title string, limit int) ([]Candidate, error) {
	var (
		out    []Candidate
		seen   = make(map[string]bool)
		failed int
		errs   error
	)

	for i, nr := range c.recommenders {
		if len(out) >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		zlog.Debug().Msgf("autoplay: trying recommender index=%d total=%d name=%s type=%s",
			i+1, len(c.recommenders), nr.DisplayName, nr.Recommender.Name())

		candidates, err := nr.Recommender.Recommend(ctx, artist, title, limit-len(out))
		if err != nil {
			failed++
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "recommender %s", nr.DisplayName))
			zlog.Warn().Msgf("autoplay: recommender failed, trying next: name=%s error=%v", nr.DisplayName, err)
			continue
		}

		for _, cand := range candidates {
			if cand.Title == "" || seen[cand.key()] {
				continue
			}
			seen[cand.key()] = true
			out = append(out, cand)
		}

		zlog.Debug().Msgf("autoplay: recommender returned candidates: name=%s count=%d total_so_far=%d",
			nr.DisplayName, len(candidates), len(out))
	}

	if len(c.recommenders) > 0 && failed == len(c.recommenders) {
		return nil, errors.Wrap(errs, "all recommenders failed")
	}
	return out, nil
}

// Name returns the chain name.
func (c *Chain) Name() string {
	return "recommender_chain"
}
