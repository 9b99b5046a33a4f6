// Package playlist provides the Playlist domain entity.
package playlist

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/osa030/tracksheet/internal/domain/track"
)

// Playlist represents a Spotify playlist built from exported tracks.
type Playlist struct {
	ID          string        // Spotify Playlist ID
	Name        string        // Playlist name
	Description string        // Playlist description
	URL         string        // Spotify URL
	Tracks      []track.Track // Tracks in the playlist
}

// TrackIDs returns all track IDs in the playlist.
func (p *Playlist) TrackIDs() []string {
	ids := make([]string, len(p.Tracks))
	for i, t := range p.Tracks {
		ids[i] = t.ID
	}
	return ids
}

// TotalDuration returns the total duration of all tracks.
func (p *Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, t := range p.Tracks {
		total += t.Duration
	}
	return total
}

// NameFromFile derives a playlist name from an export file name:
// the directory and extension are stripped and underscores become spaces.
func NameFromFile(name string) string {
	base := filepath.Base(name)
	if ext := filepath.Ext(base); strings.EqualFold(ext, ".csv") {
		base = strings.TrimSuffix(base, ext)
	}
	return strings.ReplaceAll(base, "_", " ")
}
