// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/osa030/tracksheet/internal/app/upbeat"
)

// Config represents the application configuration.
type Config struct {
	Spotify SpotifyConfig           `yaml:"spotify"`
	Export  ExportConfig            `yaml:"export"`
	Upbeat  UpbeatConfig            `yaml:"upbeat"`
	Import  ImportConfig            `yaml:"import"`
	Genres  GenresConfig            `yaml:"genres"`
	Filters map[string]FilterConfig `yaml:"filters"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required"`
	ClientSecret string `yaml:"client_secret" validate:"required"`
	RefreshToken string `yaml:"refresh_token" validate:"required"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"US"`
}

// ExportConfig represents export file and paging configuration.
type ExportConfig struct {
	Dir              string `yaml:"dir" default:"exports"`
	FileName         string `yaml:"file_name" default:"spotify_playlist_export.csv"`
	PlaylistPageSize int    `yaml:"playlist_page_size" default:"100" validate:"gte=1,lte=100"`
	SavedPageSize    int    `yaml:"saved_page_size" default:"50" validate:"gte=1,lte=50"`
}

// DefaultTargetMinutes is used when upbeat.target_minutes is absent.
const DefaultTargetMinutes = 60

// UpbeatConfig represents upbeat sub-playlist configuration.
// TargetMinutes is a pointer so an explicit 0 is rejected instead of defaulted.
type UpbeatConfig struct {
	TargetMinutes *float64 `yaml:"target_minutes"`
	FileSuffix    string   `yaml:"file_suffix" default:"_upbeat"`
}

// Target returns the configured target duration in minutes.
func (u UpbeatConfig) Target() float64 {
	if u.TargetMinutes == nil {
		return DefaultTargetMinutes
	}
	return *u.TargetMinutes
}

// ImportConfig represents playlist import configuration.
type ImportConfig struct {
	Private     bool   `yaml:"private"`
	BatchSize   int    `yaml:"batch_size" default:"100" validate:"gte=1,lte=100"`
	Description string `yaml:"description"`
}

// DefaultCachePath is used when genres.cache_path is absent.
const DefaultCachePath = "genres.db"

// GenresConfig represents genre enrichment configuration.
// CachePath is a pointer so an explicit empty path disables the cache.
type GenresConfig struct {
	CachePath     *string          `yaml:"cache_path"`
	CacheTTLHours int              `yaml:"cache_ttl_hours" default:"720" validate:"gte=0"`
	BatchSize     int              `yaml:"batch_size" default:"50" validate:"gte=1,lte=50"`
	Providers     []ProviderConfig `yaml:"providers" validate:"dive"`
}

// ProviderConfig represents a single genre provider configuration.
type ProviderConfig struct {
	Type     string         `yaml:"type" validate:"required,oneof=spotify lastfm"`
	Settings map[string]any `yaml:"settings"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse builds a configuration from YAML content.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if cfg.Upbeat.TargetMinutes == nil {
		target := float64(DefaultTargetMinutes)
		cfg.Upbeat.TargetMinutes = &target
	}
	if cfg.Genres.CachePath == nil {
		path := DefaultCachePath
		cfg.Genres.CachePath = &path
	}
	if len(cfg.Genres.Providers) == 0 {
		cfg.Genres.Providers = []ProviderConfig{{Type: "spotify"}}
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// LoadCredentials reads only the Spotify client credentials, for obtaining a
// refresh token before a complete configuration exists. A missing file is not
// an error; environment variables take precedence as in Load.
func LoadCredentials(path string) (*SpotifyConfig, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	case !os.IsNotExist(err):
		return nil, errors.Wrap(err, "failed to read config file")
	}
	cfg.overrideFromEnv()

	validate := validator.New()
	if err := validate.Var(cfg.Spotify.ClientID, "required"); err != nil {
		return nil, errors.Wrap(err, "spotify client_id is required")
	}
	if err := validate.Var(cfg.Spotify.ClientSecret, "required"); err != nil {
		return nil, errors.Wrap(err, "spotify client_secret is required")
	}
	return &cfg.Spotify, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		for i := range c.Genres.Providers {
			if c.Genres.Providers[i].Type == "lastfm" {
				if c.Genres.Providers[i].Settings == nil {
					c.Genres.Providers[i].Settings = make(map[string]any)
				}
				c.Genres.Providers[i].Settings["api_key"] = v
			}
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if err := upbeat.ValidateTarget(c.Upbeat.Target()); err != nil {
		return errors.Wrap(err, "invalid upbeat.target_minutes")
	}

	return nil
}

// ExportPath returns the default export file path.
func (c *Config) ExportPath() string {
	return filepath.Join(c.Export.Dir, c.Export.FileName)
}

// ImportPath returns the path of the named export, without extension.
func (c *Config) ImportPath(name string) string {
	return filepath.Join(c.Export.Dir, name+".csv")
}

// CacheFile returns the genre cache path; empty means no cache.
func (c *Config) CacheFile() string {
	if c.Genres.CachePath == nil {
		return DefaultCachePath
	}
	return *c.Genres.CachePath
}

// CacheTTL returns the genre cache time-to-live.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Genres.CacheTTLHours) * time.Hour
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}
