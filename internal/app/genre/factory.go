package genre

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tracksheet/internal/infra/config"
)

// NewChainFromConfig creates a provider chain from configuration.
func NewChainFromConfig(cfg *config.Config, spotify SpotifyClient) (*Chain, error) {
	if len(cfg.Genres.Providers) == 0 {
		return nil, errors.New("no genre providers configured")
	}

	var providers []ProviderWithMetadata

	for i, pcfg := range cfg.Genres.Providers {
		var provider Provider
		var err error
		zlog.Debug().Msgf("creating genre provider: index=%d type=%s", i+1, pcfg.Type)
		switch pcfg.Type {
		case "spotify":
			provider, err = NewSpotifyProvider(spotify, cfg.Genres.BatchSize)

		case "lastfm":
			provider, err = NewLastFmProvider(pcfg.Settings)

		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", pcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}

		providers = append(providers, ProviderWithMetadata{
			Provider:    provider,
			DisplayName: pcfg.Type,
		})

		zlog.Info().Msgf("registered genre provider: index=%d type=%s", i+1, pcfg.Type)
	}

	return NewChain(providers), nil
}
