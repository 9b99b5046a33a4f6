package upbeat

import (
	"sort"
	"strings"
)

// DefaultGenreScore is the energy score of any genre missing from the table,
// and of a track without genres.
const DefaultGenreScore = 0.5

// genreScores rates how energetic a genre is, from 0 (calm) to 1 (peak-time).
// Keys are lowercase. Lookups are exact; "deep house" is not "house".
var genreScores = map[string]float64{
	// electronic
	"techno":        1.0,
	"hard techno":   1.0,
	"edm":           1.0,
	"drum and bass": 1.0,
	"hardstyle":     1.0,
	"big room":      1.0,
	"electro house": 0.95,
	"trance":        0.95,
	"dubstep":       0.95,
	"house":         0.9,
	"dance":         0.9,
	"dance pop":     0.9,
	"electro":       0.9,
	"tech house":    0.9,
	"deep house":    0.75,
	"electronica":   0.6,
	"downtempo":     0.3,
	"trip hop":      0.3,

	// pop, urban, latin
	"pop":       0.8,
	"k-pop":     0.85,
	"j-pop":     0.8,
	"disco":     0.9,
	"nu disco":  0.9,
	"funk":      0.85,
	"reggaeton": 0.9,
	"latin":     0.8,
	"dancehall": 0.85,
	"hip hop":   0.75,
	"rap":       0.75,
	"trap":      0.8,
	"r&b":       0.55,
	"soul":      0.5,

	// guitar music
	"punk":              0.85,
	"pop punk":          0.85,
	"metal":             0.8,
	"rock":              0.7,
	"hard rock":         0.8,
	"alternative":       0.65,
	"indie":             0.6,
	"indie pop":         0.65,
	"country":           0.5,
	"reggae":            0.5,
	"blues":             0.35,
	"folk":              0.3,
	"singer-songwriter": 0.25,

	// calm
	"jazz":       0.35,
	"acoustic":   0.25,
	"lo-fi":      0.2,
	"chill":      0.2,
	"soundtrack": 0.2,
	"ambient":    0.1,
	"classical":  0.1,
	"new age":    0.1,
	"sleep":      0.05,
}

// LookupGenre returns the energy score of a single genre, ignoring case and
// surrounding whitespace.
func LookupGenre(name string) float64 {
	if score, ok := genreScores[strings.ToLower(strings.TrimSpace(name))]; ok {
		return score
	}
	return DefaultGenreScore
}

// GenreScore returns the score of the most energetic genre in the list, or
// DefaultGenreScore for an empty list.
func GenreScore(genres []string) float64 {
	if len(genres) == 0 {
		return DefaultGenreScore
	}
	best := 0.0
	for _, g := range genres {
		if s := LookupGenre(g); s > best {
			best = s
		}
	}
	return best
}

// GenreEntry is one row of the score table.
type GenreEntry struct {
	Genre string
	Score float64
}

// Table returns a copy of the score table, highest score first and
// alphabetical within equal scores.
func Table() []GenreEntry {
	entries := make([]GenreEntry, 0, len(genreScores))
	for g, s := range genreScores {
		entries = append(entries, GenreEntry{Genre: g, Score: s})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Genre < entries[j].Genre
	})
	return entries
}
