// Package track provides the Track domain entity.
package track

import (
	"strings"
	"time"
)

// Artist is a credited artist of a track.
type Artist struct {
	ID   string // Spotify Artist ID
	Name string // Artist name
}

// Track represents an exported library track.
// Genres are attached once, after artist lookup.
type Track struct {
	ID          string        // Spotify Track ID
	Name        string        // Track name
	Artists     []Artist      // Credited artists, in credit order
	Album       string        // Album name
	ReleaseDate string        // Album release date as reported by Spotify
	Duration    time.Duration // Track duration
	Explicit    bool          // Explicit content flag
	Genres      []string      // Union of the artists' genres, no duplicates
}

// ArtistNames returns the artist names joined the way they are exported.
func (t *Track) ArtistNames() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return strings.Join(names, ", ")
}

// ArtistIDs returns the artist IDs in credit order.
func (t *Track) ArtistIDs() []string {
	ids := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		if a.ID != "" {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// DurationMs returns the duration in whole milliseconds.
func (t *Track) DurationMs() int64 {
	return t.Duration.Milliseconds()
}

// DurationMinutes returns the duration in fractional minutes.
func (t *Track) DurationMinutes() float64 {
	return float64(t.Duration.Milliseconds()) / 60000
}

// MergeGenres returns the union of the given genre lists in first-seen order.
// Empty names are dropped.
func MergeGenres(lists ...[]string) []string {
	seen := make(map[string]bool)
	merged := make([]string, 0)
	for _, list := range lists {
		for _, g := range list {
			g = strings.TrimSpace(g)
			if g == "" || seen[g] {
				continue
			}
			seen[g] = true
			merged = append(merged, g)
		}
	}
	return merged
}
