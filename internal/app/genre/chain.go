package genre

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tracksheet/internal/domain/track"
)

// ProviderWithMetadata wraps a provider with its metadata.
type ProviderWithMetadata struct {
	Provider    Provider
	DisplayName string
}

// Chain asks multiple providers in order. Each provider only receives the
// artists that earlier providers left without genres.
type Chain struct {
	providers []ProviderWithMetadata
}

// NewChain creates a new provider chain.
func NewChain(providers []ProviderWithMetadata) *Chain {
	return &Chain{
		providers: providers,
	}
}

// ArtistGenres resolves genres for the given artists. The result holds every
// artist at least one provider answered for; artists no provider could answer
// for are absent. A failing provider is skipped.
func (c *Chain) ArtistGenres(ctx context.Context, artists []track.Artist) (map[string][]string, error) {
	result := make(map[string][]string, len(artists))
	pending := artists

	for i, pm := range c.providers {
		if len(pending) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return result, errors.Wrap(err, "genre lookup interrupted")
		}

		zlog.Debug().Msgf("trying provider: index=%d total=%d name=%s provider_type=%s pending=%d",
			i+1, len(c.providers), pm.DisplayName, pm.Provider.Name(), len(pending))

		genres, err := pm.Provider.ArtistGenres(ctx, pending)
		if err != nil {
			zlog.Warn().Msgf("provider failed, trying next: provider=%s error=%v", pm.DisplayName, err)
			continue
		}

		resolved := 0
		for id, g := range genres {
			if len(g) > 0 {
				resolved++
				result[id] = g
			} else if _, ok := result[id]; !ok {
				result[id] = []string{}
			}
		}

		zlog.Info().Msgf("provider returned genres: provider=%s answered=%d with_genres=%d",
			pm.DisplayName, len(genres), resolved)

		pending = withoutGenres(pending, result)
	}

	return result, nil
}

// Name returns the chain name.
func (c *Chain) Name() string {
	return "provider_chain"
}

func withoutGenres(artists []track.Artist, resolved map[string][]string) []track.Artist {
	rest := make([]track.Artist, 0, len(artists))
	for _, a := range artists {
		if len(resolved[ArtistKey(a)]) == 0 {
			rest = append(rest, a)
		}
	}
	return rest
}
