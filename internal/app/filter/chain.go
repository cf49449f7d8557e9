package filter

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/domain/track"
	"github.com/osa030/guildbox/internal/infra/config"
)

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// NewChainFromConfig builds a chain from the enabled filters in cfg, ordered by name.
// Unknown filter names and invalid settings are errors.
func NewChainFromConfig(cfg map[string]config.FilterConfig) (*Chain, error) {
	names := make([]string, 0, len(cfg))
	for name, fc := range cfg {
		if fc.Enabled {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	chain := NewChain()
	for _, name := range names {
		f, ok := Lookup(name)
		if !ok {
			return nil, errors.Newf("unknown filter: %s", name)
		}
		if err := f.ValidateConfig(cfg[name].Settings); err != nil {
			return nil, errors.Wrapf(err, "invalid settings for %s", name)
		}
		chain.Add(f)
		zlog.Debug().Msgf("filter: enabled %s", name)
	}
	return chain, nil
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the track.
func (c *Chain) Execute(ctx context.Context, t track.Track, queued []track.QueueEntry) Result {
	for _, f := range c.filters {
		result := f.Check(ctx, t, queued)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
