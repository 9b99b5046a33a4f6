package genre

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tracksheet/internal/domain/track"
)

// SpotifyProvider resolves genres from Spotify artist objects.
type SpotifyProvider struct {
	spotify   SpotifyClient
	batchSize int
}

// NewSpotifyProvider creates a new SpotifyProvider. batchSize bounds the
// number of artists sent per lookup call.
func NewSpotifyProvider(spotify SpotifyClient, batchSize int) (*SpotifyProvider, error) {
	if spotify == nil {
		return nil, errors.New("spotify client is required")
	}
	if batchSize <= 0 || batchSize > 50 {
		batchSize = 50
	}
	return &SpotifyProvider{spotify: spotify, batchSize: batchSize}, nil
}

// ArtistGenres implements Provider.
func (p *SpotifyProvider) ArtistGenres(ctx context.Context, artists []track.Artist) (map[string][]string, error) {
	ids := make([]string, 0, len(artists))
	for _, a := range artists {
		if a.ID != "" {
			ids = append(ids, a.ID)
		}
	}

	result := make(map[string][]string, len(ids))
	for start := 0; start < len(ids); start += p.batchSize {
		end := min(start+p.batchSize, len(ids))

		genres, err := p.spotify.GetArtistGenres(ctx, ids[start:end])
		if err != nil {
			if len(result) > 0 {
				zlog.Warn().Msgf("spotify genre lookup stopped early: resolved=%d total=%d error=%v", len(result), len(ids), err)
				return result, nil
			}
			return nil, errors.Wrap(err, "failed to get artist genres")
		}
		for id, g := range genres {
			result[id] = g
		}
		zlog.Debug().Msgf("fetched artist genres: %d/%d", end, len(ids))
	}

	return result, nil
}

// Name returns the provider name.
func (p *SpotifyProvider) Name() string {
	return "spotify"
}
