package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tracksheet/internal/app/upbeat"
)

const minimalYAML = `
spotify:
  client_id: test-client-id
  client_secret: test-client-secret
  refresh_token: test-refresh-token
`

func clearSpotifyEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SPOTIFY_CLIENT_ID", "")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "")
	t.Setenv("SPOTIFY_REFRESH_TOKEN", "")
	t.Setenv("LASTFM_API_KEY", "")
}

func TestParse_Defaults(t *testing.T) {
	clearSpotifyEnv(t)

	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "US", cfg.Spotify.Market)
	assert.Equal(t, "exports", cfg.Export.Dir)
	assert.Equal(t, "spotify_playlist_export.csv", cfg.Export.FileName)
	assert.Equal(t, 100, cfg.Export.PlaylistPageSize)
	assert.Equal(t, 50, cfg.Export.SavedPageSize)
	assert.Equal(t, 60.0, cfg.Upbeat.Target())
	assert.Equal(t, "_upbeat", cfg.Upbeat.FileSuffix)
	assert.False(t, cfg.Import.Private)
	assert.Equal(t, 100, cfg.Import.BatchSize)
	assert.Equal(t, "genres.db", cfg.CacheFile())
	assert.Equal(t, 720*time.Hour, cfg.CacheTTL())
	assert.Equal(t, 50, cfg.Genres.BatchSize)
	require.Len(t, cfg.Genres.Providers, 1)
	assert.Equal(t, "spotify", cfg.Genres.Providers[0].Type)

	assert.Equal(t, filepath.Join("exports", "spotify_playlist_export.csv"), cfg.ExportPath())
	assert.Equal(t, filepath.Join("exports", "road_trip.csv"), cfg.ImportPath("road_trip"))
	assert.False(t, cfg.IsFilterEnabled("explicit_filter"))
}

func TestParse_ExplicitValues(t *testing.T) {
	clearSpotifyEnv(t)

	cfg, err := Parse([]byte(minimalYAML + `
  market: JP
export:
  dir: out
upbeat:
  target_minutes: 45.5
  file_suffix: _fast
import:
  private: true
  batch_size: 20
filters:
  explicit_filter:
    enabled: true
`))
	require.NoError(t, err)

	assert.Equal(t, "JP", cfg.Spotify.Market)
	assert.Equal(t, "out", cfg.Export.Dir)
	assert.Equal(t, 45.5, cfg.Upbeat.Target())
	assert.Equal(t, "_fast", cfg.Upbeat.FileSuffix)
	assert.True(t, cfg.Import.Private)
	assert.Equal(t, 20, cfg.Import.BatchSize)
	assert.True(t, cfg.IsFilterEnabled("explicit_filter"))
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{
			name: "missing client id",
			yaml: `
spotify:
  client_secret: s
  refresh_token: r
`,
			errMsg: "ClientID",
		},
		{
			name: "missing refresh token",
			yaml: `
spotify:
  client_id: c
  client_secret: s
`,
			errMsg: "RefreshToken",
		},
		{
			name:   "page size too large",
			yaml:   minimalYAML + "export:\n  playlist_page_size: 500\n",
			errMsg: "PlaylistPageSize",
		},
		{
			name:   "import batch too large",
			yaml:   minimalYAML + "import:\n  batch_size: 101\n",
			errMsg: "BatchSize",
		},
		{
			name:   "unknown provider",
			yaml:   minimalYAML + "genres:\n  providers:\n    - type: musicbrainz\n",
			errMsg: "Type",
		},
		{
			name:   "invalid market",
			yaml:   minimalYAML + "  market: USA\n",
			errMsg: "Market",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearSpotifyEnv(t)
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParse_RejectsNonPositiveTarget(t *testing.T) {
	for _, v := range []string{"0", "-5", ".nan", ".inf"} {
		t.Run(v, func(t *testing.T) {
			clearSpotifyEnv(t)
			_, err := Parse([]byte(minimalYAML + "upbeat:\n  target_minutes: " + v + "\n"))
			require.Error(t, err)
			assert.True(t, errors.Is(err, upbeat.ErrInvalidTargetDuration))
		})
	}
}

func TestParse_CachePath(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "absent", yaml: minimalYAML, want: "genres.db"},
		{name: "explicit empty disables", yaml: minimalYAML + "genres:\n  cache_path: \"\"\n", want: ""},
		{name: "custom", yaml: minimalYAML + "genres:\n  cache_path: /tmp/g.db\n", want: "/tmp/g.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearSpotifyEnv(t)
			cfg, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.CacheFile())
		})
	}
}

func TestParse_EnvOverride(t *testing.T) {
	clearSpotifyEnv(t)
	t.Setenv("SPOTIFY_CLIENT_ID", "env-id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "env-secret")
	t.Setenv("SPOTIFY_REFRESH_TOKEN", "env-token")
	t.Setenv("LASTFM_API_KEY", "env-lastfm")

	cfg, err := Parse([]byte(`
genres:
  providers:
    - type: spotify
    - type: lastfm
      settings:
        tag_count: 3
`))
	require.NoError(t, err)

	assert.Equal(t, "env-id", cfg.Spotify.ClientID)
	assert.Equal(t, "env-secret", cfg.Spotify.ClientSecret)
	assert.Equal(t, "env-token", cfg.Spotify.RefreshToken)

	require.Len(t, cfg.Genres.Providers, 2)
	assert.Nil(t, cfg.Genres.Providers[0].Settings)
	assert.Equal(t, "env-lastfm", cfg.Genres.Providers[1].Settings["api_key"])
	assert.Equal(t, 3, cfg.Genres.Providers[1].Settings["tag_count"])
}

func TestLoadCredentials(t *testing.T) {
	clearSpotifyEnv(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("spotify:\n  client_id: file-id\n  client_secret: file-secret\n"), 0o600))
	creds, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, "file-id", creds.ClientID)
	assert.Equal(t, "file-secret", creds.ClientSecret)
	assert.Empty(t, creds.RefreshToken)

	missing := filepath.Join(dir, "missing.yaml")
	_, err = LoadCredentials(missing)
	assert.Error(t, err)

	t.Setenv("SPOTIFY_CLIENT_ID", "env-id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "env-secret")
	creds, err = LoadCredentials(missing)
	require.NoError(t, err)
	assert.Equal(t, "env-id", creds.ClientID)
}

func TestLoad(t *testing.T) {
	clearSpotifyEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test-client-id", cfg.Spotify.ClientID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("spotify: ["), 0o600))
	_, err = Load(bad)
	assert.Error(t, err)
}
