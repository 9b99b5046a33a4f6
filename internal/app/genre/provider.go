// Package genre resolves artist genres from remote providers and attaches them
// to tracks.
package genre

import (
	"context"
	"strings"

	"github.com/osa030/tracksheet/internal/domain/track"
)

// Provider is the interface for artist genre providers.
type Provider interface {
	// ArtistGenres looks up the genres of the given artists, keyed by ArtistKey.
	// An artist the provider answered for with no genres maps to an empty list;
	// artists it could not answer for are absent.
	ArtistGenres(ctx context.Context, artists []track.Artist) (map[string][]string, error)

	// Name returns the provider name (used in config).
	Name() string
}

// ArtistKey identifies an artist in provider results and the cache: its ID,
// or its normalized name when the ID is unknown.
func ArtistKey(a track.Artist) string {
	if a.ID != "" {
		return a.ID
	}
	return "name:" + strings.ToLower(strings.TrimSpace(a.Name))
}

// SpotifyClient defines the Spotify operations needed by the Spotify provider.
type SpotifyClient interface {
	GetArtistGenres(ctx context.Context, artistIDs []string) (map[string][]string, error)
}

// Cache stores resolved artist genres between runs.
type Cache interface {
	Get(ctx context.Context, keys []string) (map[string][]string, error)
	Put(ctx context.Context, genres map[string][]string, source string) error
}
