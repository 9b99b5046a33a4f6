package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/tracksheet/internal/domain/track"
)

// DuplicateTrackFilter drops tracks already accepted earlier in the pass.
// Detects:
// - Exact track ID matches
// - Remasters and edits (normalized track name + same main artist)
// Excludes:
// - Cover songs (same track name but different artist)
type DuplicateTrackFilter struct {
	seen []track.Track
	ids  map[string]bool
}

// NewDuplicateTrackFilter creates a new duplicate track filter.
func NewDuplicateTrackFilter() *DuplicateTrackFilter {
	return &DuplicateTrackFilter{ids: make(map[string]bool)}
}

// Name returns the filter name.
func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track_filter"
}

// Description returns the filter description.
func (f *DuplicateTrackFilter) Description() string {
	return "Drops repeated tracks, including remasters and edits of an accepted track; covers are kept"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateTrackFilter) ValidateConfig(config map[string]any) error {
	// No configuration needed
	return nil
}

// Reset implements Tracker.
func (f *DuplicateTrackFilter) Reset() {
	f.seen = nil
	f.ids = make(map[string]bool)
}

// Accepted implements Tracker.
func (f *DuplicateTrackFilter) Accepted(t track.Track) {
	f.seen = append(f.seen, t)
	f.ids[t.ID] = true
}

// Check checks if the track duplicates an accepted one.
func (f *DuplicateTrackFilter) Check(ctx context.Context, t track.Track) Result {
	if f.ids[t.ID] {
		return Reject("duplicate_track")
	}

	for _, accepted := range f.seen {
		if isRemaster(accepted, t) {
			return Reject("duplicate_track")
		}
	}

	return Accept()
}

// isRemaster checks if two tracks are the same song (remaster/different version).
func isRemaster(track1, track2 track.Track) bool {
	if normalizeTrackName(track1.Name) != normalizeTrackName(track2.Name) {
		return false
	}

	// Same normalized name by a different artist is a cover
	return isSameArtist(track1, track2)
}

var (
	remasterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),              // "(Any Remaster text)"
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),              // "[Any Remaster text]"
	}
	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*\(.*?version\)`),        // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),           // "(Radio Edit)"
		regexp.MustCompile(`\s*-\s*live\b.*$`),         // "- Live at Wembley"
		regexp.MustCompile(`\s*\(live\)`),              // "(Live)"
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),     // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*single\s+version`), // "- Single Version"
	}
	spaces = regexp.MustCompile(`\s+`)
)

// normalizeTrackName removes remaster information and version details.
func normalizeTrackName(name string) string {
	normalized := strings.ToLower(name)

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	normalized = strings.TrimSpace(normalized)
	normalized = spaces.ReplaceAllString(normalized, " ")

	return strings.TrimRight(normalized, " -")
}

// isSameArtist checks if two tracks have the same main artist.
// Artist IDs are compared when both are known, names otherwise.
func isSameArtist(track1, track2 track.Track) bool {
	if len(track1.Artists) == 0 || len(track2.Artists) == 0 {
		return false
	}

	a, b := track1.Artists[0], track2.Artists[0]
	if a.ID != "" && b.ID != "" {
		return a.ID == b.ID
	}
	return strings.EqualFold(a.Name, b.Name)
}

func init() {
	Register("duplicate_track_filter", func() Filter {
		return NewDuplicateTrackFilter()
	})
}
