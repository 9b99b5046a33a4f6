// Package csvfile reads and writes track exports as CSV.
package csvfile

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tracksheet/internal/domain/playlist"
	"github.com/osa030/tracksheet/internal/domain/track"
)

const (
	listSeparator = ", "
	idSeparator   = ";"
)

// ErrNoTrackIDs is returned when a file holds no usable track ids.
var ErrNoTrackIDs = errors.New("no track ids found")

// Row is one exported track. Field order is column order.
type Row struct {
	ID          string `csv:"id"`
	Name        string `csv:"name"`
	Artist      string `csv:"artist"`
	ArtistIDs   string `csv:"artist_ids"`
	ArtistNames string `csv:"artist_names"`
	Album       string `csv:"album"`
	ReleaseDate string `csv:"release_date"`
	DurationMs  string `csv:"duration_ms"`
	Explicit    string `csv:"explicit"`
	Genres      string `csv:"genres"`
}

// Header returns the CSV header derived from the csv tags of Row.
func Header() []string {
	t := reflect.TypeOf(Row{})
	headers := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		headers = append(headers, t.Field(i).Tag.Get("csv"))
	}
	return headers
}

// ToRow converts a track into its CSV representation.
func ToRow(t track.Track) Row {
	return Row{
		ID:          t.ID,
		Name:        t.Name,
		Artist:      t.ArtistNames(),
		ArtistIDs:   strings.Join(t.ArtistIDs(), idSeparator),
		ArtistNames: joinArtistNames(t.Artists),
		Album:       t.Album,
		ReleaseDate: t.ReleaseDate,
		DurationMs:  strconv.FormatInt(t.DurationMs(), 10),
		Explicit:    strconv.FormatBool(t.Explicit),
		Genres:      strings.Join(t.Genres, listSeparator),
	}
}

func (r Row) values() []string {
	v := reflect.ValueOf(r)
	out := make([]string, v.NumField())
	for i := range out {
		out[i] = v.Field(i).String()
	}
	return out
}

// WriteTracks writes tracks to path, creating its parent directory.
func WriteTracks(path string, tracks []track.Track) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create directory %s", dir)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer file.Close()

	if err := Write(file, tracks); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return file.Close()
}

// Write writes the header and one row per track to w.
func Write(w io.Writer, tracks []track.Track) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(Header()); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	for _, t := range tracks {
		if err := writer.Write(ToRow(t).values()); err != nil {
			return errors.Wrapf(err, "failed to write track %s", t.ID)
		}
	}

	writer.Flush()
	return writer.Error()
}

// ReadTracks reads tracks from the CSV file at path.
func ReadTracks(path string) ([]track.Track, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()

	tracks, err := Read(file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return tracks, nil
}

// Read parses tracks from r. Columns are matched by header name, so only the
// id column is required; rows without an id are skipped.
func Read(r io.Reader) ([]track.Track, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("empty file")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read header")
	}

	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	if _, ok := columns["id"]; !ok {
		return nil, errors.New("missing id column")
	}

	tracks := make([]track.Track, 0)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}

		get := func(name string) string {
			if i, ok := columns[name]; ok && i < len(record) {
				return strings.TrimSpace(record[i])
			}
			return ""
		}

		id := get("id")
		if id == "" {
			continue
		}

		t := track.Track{
			ID:          id,
			Name:        get("name"),
			Artists:     parseArtists(get("artist"), get("artist_names"), get("artist_ids")),
			Album:       get("album"),
			ReleaseDate: get("release_date"),
			Genres:      track.MergeGenres(strings.Split(get("genres"), ",")),
		}

		if v := get("duration_ms"); v != "" {
			ms, err := strconv.ParseInt(v, 10, 64)
			if err != nil || ms < 0 {
				return nil, errors.Newf("line %d: invalid duration_ms %q", line, v)
			}
			t.Duration = time.Duration(ms) * time.Millisecond
		}
		if v := get("explicit"); v != "" {
			explicit, err := strconv.ParseBool(v)
			if err != nil {
				return nil, errors.Newf("line %d: invalid explicit %q", line, v)
			}
			t.Explicit = explicit
		}

		tracks = append(tracks, t)
	}

	return tracks, nil
}

// ReadPlaylist reads the export at path as a playlist named after the file.
// A file without any track id is an error.
func ReadPlaylist(path string) (*playlist.Playlist, error) {
	tracks, err := ReadTracks(path)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, errors.Wrapf(ErrNoTrackIDs, "%s", path)
	}

	return &playlist.Playlist{
		Name:   playlist.NameFromFile(path),
		Tracks: tracks,
	}, nil
}

// joinArtistNames joins every credited name with the id separator, keeping
// the position of each artist.
func joinArtistNames(artists []track.Artist) string {
	names := make([]string, len(artists))
	for i, a := range artists {
		names[i] = a.Name
	}
	return strings.Join(names, idSeparator)
}

// parseArtists pairs artist names with ids. The artist_names column is used
// when it lines up with the ids; otherwise the display column is split, and
// only when the counts line up, since a name may itself contain ", ".
func parseArtists(display, names, ids string) []track.Artist {
	var idList []string
	if ids != "" {
		for _, id := range strings.Split(ids, idSeparator) {
			if id = strings.TrimSpace(id); id != "" {
				idList = append(idList, id)
			}
		}
	}

	var nameList []string
	if names != "" {
		for _, name := range strings.Split(names, idSeparator) {
			nameList = append(nameList, strings.TrimSpace(name))
		}
	}

	if len(idList) == 0 {
		var artists []track.Artist
		for _, name := range nameList {
			if name != "" {
				artists = append(artists, track.Artist{Name: name})
			}
		}
		if len(artists) == 0 && display != "" {
			return []track.Artist{{Name: display}}
		}
		return artists
	}

	if len(nameList) != len(idList) {
		nameList = strings.Split(display, listSeparator)
	}
	artists := make([]track.Artist, len(idList))
	for i, id := range idList {
		artists[i].ID = id
		if len(nameList) == len(idList) {
			artists[i].Name = strings.TrimSpace(nameList[i])
		} else if i == 0 {
			artists[i].Name = display
		}
	}
	return artists
}
