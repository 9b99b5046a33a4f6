package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tracksheet/internal/domain/track"
	"github.com/osa030/tracksheet/internal/infra/config"
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

// NewChainFromConfig creates a chain holding every enabled, registered
// filter, in name order.
func NewChainFromConfig(cfg *config.Config) (*Chain, error) {
	chain := NewChain()
	for name := range cfg.Filters {
		if _, ok := registry[name]; !ok && cfg.IsFilterEnabled(name) {
			return nil, errors.Newf("unknown filter: %s", name)
		}
	}

	for _, name := range Names() {
		if !cfg.IsFilterEnabled(name) {
			continue
		}
		f := registry[name]()
		settings := cfg.Filters[name].Settings
		if settings == nil {
			settings = map[string]any{}
		}
		if err := f.ValidateConfig(settings); err != nil {
			return nil, errors.Wrapf(err, "invalid settings for filter %s", name)
		}
		chain.Add(f)
		zlog.Info().Msgf("enabled filter: %s", name)
	}
	return chain, nil
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the track.
func (c *Chain) Execute(ctx context.Context, t track.Track) Result {
	for _, f := range c.filters {
		result := f.Check(ctx, t)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Apply returns the tracks accepted by every filter, in input order.
func (c *Chain) Apply(ctx context.Context, tracks []track.Track) []track.Track {
	for _, f := range c.filters {
		if tr, ok := f.(Tracker); ok {
			tr.Reset()
		}
	}

	rejected := make(map[string]int)
	kept := make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		result := c.Execute(ctx, t)
		if !result.Accepted {
			rejected[result.Code]++
			continue
		}
		for _, f := range c.filters {
			if tr, ok := f.(Tracker); ok {
				tr.Accepted(t)
			}
		}
		kept = append(kept, t)
	}

	if len(c.filters) > 0 {
		zerolog.Ctx(ctx).Info().Msgf("filtered candidates: kept=%d total=%d rejected=%v", len(kept), len(tracks), rejected)
	}
	return kept
}
