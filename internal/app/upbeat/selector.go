// Package upbeat selects a duration-bounded "upbeat" sub-playlist from an
// enriched track collection.
//
// Tracks are ranked by a blend of genre energy and genre prevalence, then
// packed greedily under a time budget. Selection is a pure computation: it
// holds no state, performs no I/O and never mutates its input.
package upbeat

import (
	"fmt"
	"math"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tracksheet/internal/domain/track"
)

const (
	energyWeight     = 0.7
	prevalenceWeight = 0.3
)

// ErrInvalidTargetDuration is returned by ValidateTarget for a target that is
// not a finite positive number of minutes.
var ErrInvalidTargetDuration = errors.New("target duration must be a positive number of minutes")

// ValidateTarget rejects target durations Select must never be called with.
func ValidateTarget(minutes float64) error {
	if math.IsNaN(minutes) || math.IsInf(minutes, 0) || minutes <= 0 {
		return errors.Wrapf(ErrInvalidTargetDuration, "got %v", minutes)
	}
	return nil
}

// Scored is a track together with its derived score fields.
type Scored struct {
	Track           track.Track
	DurationMinutes float64
	GenreScore      float64 // energy of the track's most energetic genre
	GenreWeight     float64 // share of the collection in the track's most common genre
	UpbeatScore     float64
}

// Result is the outcome of a selection.
type Result struct {
	Tracks       []track.Track
	TotalMinutes float64
}

// Summary returns the operator report line, e.g. "12 songs, 58.3 minutes".
func (r Result) Summary() string {
	return fmt.Sprintf("%d songs, %.1f minutes", len(r.Tracks), r.TotalMinutes)
}

// ScoreTracks computes the score fields of every track, in input order.
// Genre prevalence is relative to the given collection.
func ScoreTracks(tracks []track.Track) []Scored {
	total := float64(len(tracks))

	// a track counts once per distinct genre
	counts := make(map[string]int)
	for _, t := range tracks {
		seen := make(map[string]bool, len(t.Genres))
		for _, g := range t.Genres {
			if !seen[g] {
				seen[g] = true
				counts[g]++
			}
		}
	}

	scored := make([]Scored, len(tracks))
	for i, t := range tracks {
		weight := DefaultGenreScore
		if len(t.Genres) > 0 {
			weight = 0
			for _, g := range t.Genres {
				if w := float64(counts[g]) / total; w > weight {
					weight = w
				}
			}
		}
		energy := GenreScore(t.Genres)

		scored[i] = Scored{
			Track:           t,
			DurationMinutes: t.DurationMinutes(),
			GenreScore:      energy,
			GenreWeight:     weight,
			UpbeatScore:     energyWeight*energy + prevalenceWeight*weight,
		}
	}
	return scored
}

// Select returns the highest scoring tracks whose total duration fits within
// targetMinutes. Ties keep input order.
//
// The walk appends a track only if it still fits, skips tracks that do not and
// keeps scanning, and stops as soon as the budget is reached. No single append
// ever takes the total past the target. Callers validate the target with
// ValidateTarget first.
func Select(tracks []track.Track, targetMinutes float64) Result {
	result := Result{Tracks: make([]track.Track, 0)}
	if len(tracks) == 0 {
		return result
	}

	scored := ScoreTracks(tracks)
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].UpbeatScore > scored[j].UpbeatScore
	})

	for _, s := range scored {
		if result.TotalMinutes+s.DurationMinutes > targetMinutes {
			continue
		}
		result.Tracks = append(result.Tracks, s.Track)
		result.TotalMinutes += s.DurationMinutes
		if result.TotalMinutes >= targetMinutes {
			break
		}
	}
	return result
}
