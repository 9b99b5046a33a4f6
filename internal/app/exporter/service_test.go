package exporter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tracksheet/internal/app/filter"
	"github.com/osa030/tracksheet/internal/app/genre"
	"github.com/osa030/tracksheet/internal/app/upbeat"
	"github.com/osa030/tracksheet/internal/domain/track"
	"github.com/osa030/tracksheet/internal/infra/config"
	"github.com/osa030/tracksheet/internal/infra/csvfile"
)

type fakeSpotify struct {
	saved     []track.Track
	playlists map[string][]track.Track
	fetchErr  error

	created     []string
	public      []bool
	description string
	added       []string
	batches     [][2]int
}

func (f *fakeSpotify) GetPlaylistTracks(_ context.Context, playlist string) ([]track.Track, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.playlists[playlist], nil
}

func (f *fakeSpotify) GetSavedTracks(_ context.Context) ([]track.Track, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.saved, nil
}

func (f *fakeSpotify) CreatePlaylist(_ context.Context, name, description string, public bool) (string, error) {
	f.created = append(f.created, name)
	f.public = append(f.public, public)
	f.description = description
	return "pl1", nil
}

func (f *fakeSpotify) AddTracksToPlaylist(_ context.Context, _ string, ids []string, batchSize int, onBatch func(from, to int)) error {
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		f.added = append(f.added, ids[start:end]...)
		f.batches = append(f.batches, [2]int{start + 1, end})
		onBatch(start+1, end)
	}
	return nil
}

func (f *fakeSpotify) GetPlaylistURL(id string) string {
	return "https://open.spotify.com/playlist/" + id
}

// fakeEnricher assigns genres by main artist ID.
type fakeEnricher struct {
	genres map[string][]string
	calls  int
}

func (f *fakeEnricher) Enrich(_ context.Context, tracks []track.Track) ([]track.Track, genre.Stats, error) {
	f.calls++
	out := make([]track.Track, len(tracks))
	for i, t := range tracks {
		if len(t.Artists) > 0 {
			t.Genres = f.genres[t.Artists[0].ID]
		}
		out[i] = t
	}
	return out, genre.Stats{Tracks: len(tracks)}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Export.Dir = t.TempDir()
	cfg.Export.FileName = "library.csv"
	cfg.Upbeat.FileSuffix = "_upbeat"
	cfg.Import.BatchSize = 2
	cfg.Import.Description = "imported"
	return cfg
}

func libraryTracks() []track.Track {
	return []track.Track{
		{ID: "t1", Name: "Night Drive", Artists: []track.Artist{{ID: "techno", Name: "DJ"}}, Duration: 3 * time.Minute},
		{ID: "t2", Name: "Nocturne", Artists: []track.Artist{{ID: "classical", Name: "Pianist"}}, Duration: 3 * time.Minute},
	}
}

func newEnricher() *fakeEnricher {
	return &fakeEnricher{genres: map[string][]string{
		"techno":    {"techno"},
		"classical": {"classical"},
	}}
}

func TestService_Export(t *testing.T) {
	cfg := testConfig(t)
	sp := &fakeSpotify{saved: libraryTracks()}
	svc := NewService(cfg, sp, newEnricher(), nil)

	res, err := svc.Export(context.Background(), Request{Upbeat: true, TargetMinutes: 3})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, filepath.Join(cfg.Export.Dir, "library.csv"), res.Path)
	assert.Equal(t, 2, res.Tracks)
	require.NoError(t, res.UpbeatErr)
	require.NotNil(t, res.Upbeat)

	exported, err := csvfile.ReadTracks(res.Path)
	require.NoError(t, err)
	require.Len(t, exported, 2)
	assert.Equal(t, []string{"techno"}, exported[0].Genres)
	assert.Equal(t, []string{"classical"}, exported[1].Genres)

	assert.Equal(t, filepath.Join(cfg.Export.Dir, "library_upbeat.csv"), res.Upbeat.Path)
	assert.Equal(t, "1 songs, 3.0 minutes", res.Upbeat.Result.Summary())

	selected, err := csvfile.ReadTracks(res.Upbeat.Path)
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "t1", selected[0].ID)
}

func TestService_ExportPlaylistWithoutUpbeat(t *testing.T) {
	cfg := testConfig(t)
	sp := &fakeSpotify{playlists: map[string][]track.Track{"pl": libraryTracks()}}
	svc := NewService(cfg, sp, nil, nil)

	out := filepath.Join(t.TempDir(), "nested", "mix.csv")
	res, err := svc.Export(context.Background(), Request{Playlist: "pl", Output: out})
	require.NoError(t, err)
	assert.Equal(t, out, res.Path)
	assert.Nil(t, res.Upbeat)

	_, err = os.Stat(filepath.Join(filepath.Dir(out), "mix_upbeat.csv"))
	assert.True(t, os.IsNotExist(err))
}

func TestService_ExportUpbeatFailureKeepsExport(t *testing.T) {
	cfg := testConfig(t)
	svc := NewService(cfg, &fakeSpotify{saved: libraryTracks()}, newEnricher(), nil)

	res, err := svc.Export(context.Background(), Request{Upbeat: true, TargetMinutes: 0})
	require.NoError(t, err)
	assert.True(t, errors.Is(res.UpbeatErr, upbeat.ErrInvalidTargetDuration))
	assert.Nil(t, res.Upbeat)

	_, err = os.Stat(res.Path)
	assert.NoError(t, err)
}

func TestService_ExportErrors(t *testing.T) {
	cfg := testConfig(t)

	_, err := NewService(cfg, &fakeSpotify{fetchErr: errors.New("401")}, nil, nil).
		Export(context.Background(), Request{})
	assert.Error(t, err)

	_, err = NewService(cfg, &fakeSpotify{}, nil, nil).
		Export(context.Background(), Request{})
	assert.True(t, errors.Is(err, ErrNoTracks))
}

func TestService_Upbeat(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(cfg.Export.Dir, "library.csv")

	tracks := libraryTracks()
	tracks[0].Genres = []string{"techno"}
	tracks[1].Genres = []string{"classical"}
	tracks = append(tracks, track.Track{ID: "t3", Name: "Banger", Explicit: true, Genres: []string{"hardstyle"}, Duration: 3 * time.Minute})
	require.NoError(t, csvfile.WriteTracks(path, tracks))

	chain := filter.NewChain()
	chain.Add(&filter.ExplicitFilter{})
	enricher := newEnricher()
	svc := NewService(cfg, &fakeSpotify{}, enricher, chain)

	sel, err := svc.Upbeat(context.Background(), path, 6, false)
	require.NoError(t, err)
	assert.Equal(t, 0, enricher.calls)
	require.Len(t, sel.Result.Tracks, 2)
	assert.Equal(t, "t1", sel.Result.Tracks[0].ID)
	assert.Equal(t, "t2", sel.Result.Tracks[1].ID)
	assert.Equal(t, "2 songs, 6.0 minutes", sel.Result.Summary())

	_, err = svc.Upbeat(context.Background(), path, 6, true)
	require.NoError(t, err)
	assert.Equal(t, 1, enricher.calls)

	_, err = svc.Upbeat(context.Background(), path, -1, false)
	assert.True(t, errors.Is(err, upbeat.ErrInvalidTargetDuration))

	_, err = svc.Upbeat(context.Background(), filepath.Join(cfg.Export.Dir, "missing.csv"), 6, false)
	assert.Error(t, err)
}

func TestService_Import(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.Export.Dir, "road_trip_2024.csv"),
		[]byte("id,name,duration_ms\nt1,A,60000\nt2,B,60000\n,C,60000\nt4,D,90000\n"),
		0o600,
	))

	sp := &fakeSpotify{}
	svc := NewService(cfg, sp, nil, nil)

	res, err := svc.Import(context.Background(), "road_trip_2024")
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "road trip 2024", res.Playlist.Name)
	assert.Equal(t, "pl1", res.Playlist.ID)
	assert.Equal(t, "imported", res.Playlist.Description)
	assert.Equal(t, "https://open.spotify.com/playlist/pl1", res.Playlist.URL)
	assert.Len(t, res.Playlist.Tracks, 3)
	assert.Equal(t, 3*time.Minute+30*time.Second, res.Playlist.TotalDuration())
	assert.Equal(t, []string{"road trip 2024"}, sp.created)
	assert.Equal(t, []bool{true}, sp.public)
	assert.Equal(t, "imported", sp.description)
	assert.Equal(t, []string{"t1", "t2", "t4"}, sp.added)
	assert.Equal(t, [][2]int{{1, 2}, {3, 3}}, sp.batches)

	// a trailing extension is accepted
	cfg.Import.Private = true
	_, err = svc.Import(context.Background(), "road_trip_2024.csv")
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, sp.public)
}

func TestService_ImportErrors(t *testing.T) {
	cfg := testConfig(t)
	svc := NewService(cfg, &fakeSpotify{}, nil, nil)

	_, err := svc.Import(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrExportNotFound))

	_, err = svc.Import(context.Background(), "  ")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(cfg.Export.Dir, "empty.csv"), []byte("id\n\n"), 0o600))
	_, err = svc.Import(context.Background(), "empty")
	assert.True(t, errors.Is(err, csvfile.ErrNoTrackIDs))
}

func TestUpbeatPath(t *testing.T) {
	tests := []struct {
		path, suffix, want string
	}{
		{"exports/spotify_playlist_export.csv", "_upbeat", "exports/spotify_playlist_export_upbeat.csv"},
		{"mix", "_upbeat", "mix_upbeat.csv"},
		{"a.b/list.CSV", "_fast", "a.b/list_fast.CSV"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, UpbeatPath(tt.path, tt.suffix))
	}
}
