package genre

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/osa030/tracksheet/internal/domain/track"
)

// Stats summarizes one enrichment run.
type Stats struct {
	Tracks           int
	Artists          int
	CacheHits        int
	Fetched          int
	Unresolved       int
	TracksWithGenres int
}

// Enricher attaches artist genres to tracks, consulting the cache before the
// provider.
type Enricher struct {
	provider Provider
	cache    Cache
}

// NewEnricher creates a new Enricher. cache may be nil.
func NewEnricher(provider Provider, cache Cache) *Enricher {
	return &Enricher{provider: provider, cache: cache}
}

// Enrich returns a copy of tracks where each track's genres are the
// de-duplicated union of its artists' genres, in artist order. A track none of
// whose artists could be resolved keeps the genres it already had.
func (e *Enricher) Enrich(ctx context.Context, tracks []track.Track) ([]track.Track, Stats, error) {
	log := zerolog.Ctx(ctx)
	stats := Stats{Tracks: len(tracks)}

	artists := distinctArtists(tracks)
	stats.Artists = len(artists)

	resolved := make(map[string][]string, len(artists))
	if e.cache != nil && len(artists) > 0 {
		cached, err := e.cache.Get(ctx, artistKeys(artists))
		if err != nil {
			log.Warn().Msgf("genre cache lookup failed, fetching all artists: %v", err)
		} else {
			for id, g := range cached {
				resolved[id] = g
			}
			stats.CacheHits = len(cached)
		}
	}

	missing := make([]track.Artist, 0, len(artists))
	for _, a := range artists {
		if _, ok := resolved[ArtistKey(a)]; !ok {
			missing = append(missing, a)
		}
	}

	if len(missing) > 0 {
		fetched, err := e.provider.ArtistGenres(ctx, missing)
		if err != nil {
			if ctx.Err() != nil {
				return nil, stats, errors.Wrap(err, "genre enrichment interrupted")
			}
			log.Warn().Msgf("genre lookup failed: provider=%s error=%v", e.provider.Name(), err)
		}
		stats.Fetched = len(fetched)

		if e.cache != nil && len(fetched) > 0 {
			if err := e.cache.Put(ctx, fetched, e.provider.Name()); err != nil {
				log.Warn().Msgf("failed to store genres in cache: %v", err)
			}
		}
		for id, g := range fetched {
			resolved[id] = g
		}
	}
	stats.Unresolved = len(artists) - len(resolved)

	out := make([]track.Track, len(tracks))
	for i, t := range tracks {
		lists := make([][]string, 0, len(t.Artists))
		for _, a := range t.Artists {
			if g, ok := resolved[ArtistKey(a)]; ok {
				lists = append(lists, g)
			}
		}
		if len(lists) > 0 {
			t.Genres = track.MergeGenres(lists...)
		}
		if len(t.Genres) > 0 {
			stats.TracksWithGenres++
		}
		out[i] = t
	}

	log.Info().Msgf("enriched genres: tracks=%d artists=%d cached=%d fetched=%d unresolved=%d tracks_with_genres=%d",
		stats.Tracks, stats.Artists, stats.CacheHits, stats.Fetched, stats.Unresolved, stats.TracksWithGenres)

	return out, stats, nil
}

// distinctArtists returns each artist once. Artists without an ID are kept
// when they have a name, so name-based providers can still look them up.
func distinctArtists(tracks []track.Track) []track.Artist {
	seen := make(map[string]bool)
	artists := make([]track.Artist, 0)
	for _, t := range tracks {
		for _, a := range t.Artists {
			if a.ID == "" && strings.TrimSpace(a.Name) == "" {
				continue
			}
			key := ArtistKey(a)
			if seen[key] {
				continue
			}
			seen[key] = true
			artists = append(artists, a)
		}
	}
	return artists
}

func artistKeys(artists []track.Artist) []string {
	keys := make([]string, len(artists))
	for i, a := range artists {
		keys[i] = ArtistKey(a)
	}
	return keys
}
