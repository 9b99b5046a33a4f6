package csvfile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tracksheet/internal/domain/track"
)

func sampleTracks() []track.Track {
	return []track.Track{
		{
			ID:   "t1",
			Name: "One More Time",
			Artists: []track.Artist{
				{ID: "a1", Name: "Daft Punk"},
			},
			Album:       "Discovery",
			ReleaseDate: "2001-03-12",
			Duration:    320357 * time.Millisecond,
			Genres:      []string{"french house", "electro"},
		},
		{
			ID:   "t2",
			Name: "Collab, Part 2",
			Artists: []track.Artist{
				{ID: "a2", Name: "Tyler, The Creator"},
				{ID: "a3", Name: "Kali Uchis"},
			},
			Album:       "Flower Boy",
			ReleaseDate: "2017",
			Duration:    3 * time.Minute,
			Explicit:    true,
			Genres:      []string{},
		},
	}
}

func TestHeader(t *testing.T) {
	assert.Equal(t, []string{
		"id", "name", "artist", "artist_ids", "artist_names", "album", "release_date", "duration_ms", "explicit", "genres",
	}, Header())
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleTracks()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,name,artist,artist_ids,artist_names,album,release_date,duration_ms,explicit,genres", lines[0])
	assert.Equal(t, `t1,One More Time,Daft Punk,a1,Daft Punk,Discovery,2001-03-12,320357,false,"french house, electro"`, lines[1])
	assert.Equal(t, `t2,"Collab, Part 2","Tyler, The Creator, Kali Uchis",a2;a3,"Tyler, The Creator;Kali Uchis",Flower Boy,2017,180000,true,`, lines[2])
}

func TestWriteReadTracks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "library.csv")
	require.NoError(t, WriteTracks(path, sampleTracks()))

	got, err := ReadTracks(path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, sampleTracks()[0], got[0])
	assert.Equal(t, sampleTracks()[1].Artists, got[1].Artists)
	assert.True(t, got[1].Explicit)
	assert.Equal(t, 3*time.Minute, got[1].Duration)
	assert.Empty(t, got[1].Genres)
}

func TestWriteReadWrite_Stable(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "own export", input: ""},
		{
			name:  "display column only",
			input: "id,artist,artist_ids\nt2,\"Tyler, The Creator, Kali Uchis\",a2;a3\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracks := sampleTracks()[1:]
			if tt.input != "" {
				var err error
				tracks, err = Read(strings.NewReader(tt.input))
				require.NoError(t, err)
			}

			var first bytes.Buffer
			require.NoError(t, Write(&first, tracks))
			reread, err := Read(bytes.NewReader(first.Bytes()))
			require.NoError(t, err)

			var second bytes.Buffer
			require.NoError(t, Write(&second, reread))
			assert.Equal(t, first.String(), second.String())
			assert.NotContains(t, second.String(), "Kali Uchis, ")
		})
	}
}

func TestRead_MinimalColumns(t *testing.T) {
	input := "\ufeffname,ID\nSong A,t1\nNo id,\n,t2\n"

	got, err := Read(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].ID)
	assert.Equal(t, "Song A", got[0].Name)
	assert.Equal(t, time.Duration(0), got[0].Duration)
	assert.Nil(t, got[0].Artists)
	assert.Equal(t, "t2", got[1].ID)
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		errMsg string
	}{
		{name: "empty", input: "", errMsg: "empty file"},
		{name: "no id column", input: "name,artist\nA,B\n", errMsg: "missing id column"},
		{name: "bad duration", input: "id,duration_ms\nt1,abc\n", errMsg: "line 2"},
		{name: "negative duration", input: "id,duration_ms\nt1,-5\n", errMsg: "duration_ms"},
		{name: "bad explicit", input: "id,explicit\nt1,maybe\n", errMsg: "explicit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestReadPlaylist(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "road_trip.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name,duration_ms\nt1,A,60000\n,B,1000\nt3,C,30000\n"), 0o600))
	pl, err := ReadPlaylist(path)
	require.NoError(t, err)
	assert.Equal(t, "road trip", pl.Name)
	assert.Equal(t, []string{"t1", "t3"}, pl.TrackIDs())
	assert.Equal(t, 90*time.Second, pl.TotalDuration())

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, []byte("id,name\n,A\n"), 0o600))
	_, err = ReadPlaylist(empty)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoTrackIDs))

	_, err = ReadPlaylist(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}

func TestParseArtists(t *testing.T) {
	tests := []struct {
		name    string
		display string
		names   string
		ids     string
		want    []track.Artist
	}{
		{name: "empty", want: nil},
		{name: "display only", display: "Solo", want: []track.Artist{{Name: "Solo"}}},
		{
			name:    "names without ids",
			display: "A, B",
			names:   "A;B",
			want:    []track.Artist{{Name: "A"}, {Name: "B"}},
		},
		{
			name:    "display split when counts match",
			display: "A, B",
			ids:     "a;b",
			want:    []track.Artist{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}},
		},
		{
			name:    "names column wins",
			display: "Tyler, The Creator, Kali Uchis",
			names:   "Tyler, The Creator;Kali Uchis",
			ids:     "a2;a3",
			want:    []track.Artist{{ID: "a2", Name: "Tyler, The Creator"}, {ID: "a3", Name: "Kali Uchis"}},
		},
		{
			name:    "ambiguous display stays on first artist",
			display: "Tyler, The Creator, Kali Uchis",
			ids:     "a2;a3",
			want:    []track.Artist{{ID: "a2", Name: "Tyler, The Creator, Kali Uchis"}, {ID: "a3"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseArtists(tt.display, tt.names, tt.ids))
		})
	}
}
