package genre

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/osa030/tracksheet/internal/domain/track"
	"github.com/osa030/tracksheet/internal/infra/lastfm"
)

// LastFmClient defines the interface for Last.fm operations.
type LastFmClient interface {
	GetArtistTopTags(ctx context.Context, artistName string, limit int) ([]lastfm.Tag, error)
}

type LastFmProviderConfig struct {
	APIKey      string `yaml:"api_key" mapstructure:"api_key" validate:"required"`
	TagCount    int    `yaml:"tag_count" mapstructure:"tag_count" default:"5" validate:"gte=1,lte=50"`
	MinCount    int    `yaml:"min_count" mapstructure:"min_count" default:"10" validate:"gte=0,lte=100"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency" default:"4" validate:"gte=1,lte=16"`
}

// LastFmProvider resolves genres from the top tags of each artist on Last.fm.
// Artists are looked up by name; tags below MinCount are ignored.
type LastFmProvider struct {
	lastfm LastFmClient
	config *LastFmProviderConfig
}

// NewLastFmProvider creates a new LastFmProvider from raw provider settings.
func NewLastFmProvider(settings map[string]any) (*LastFmProvider, error) {
	if len(settings) == 0 {
		return nil, errors.New("settings are required")
	}

	var config LastFmProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	client, err := lastfm.New(lastfm.Config{APIKey: config.APIKey})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}

	return &LastFmProvider{lastfm: client, config: &config}, nil
}

// ArtistGenres implements Provider.
func (p *LastFmProvider) ArtistGenres(ctx context.Context, artists []track.Artist) (map[string][]string, error) {
	result := make(map[string][]string, len(artists))
	var mu sync.Mutex
	var failed int
	var firstErr error

	var g errgroup.Group
	g.SetLimit(p.config.Concurrency)

	for _, a := range artists {
		if strings.TrimSpace(a.Name) == "" {
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			tags, err := p.lastfm.GetArtistTopTags(ctx, a.Name, p.config.TagCount)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				zlog.Debug().Msgf("last.fm tag lookup failed: artist=%s error=%v", a.Name, err)
				failed++
				if firstErr == nil {
					firstErr = err
				}
				return nil
			}
			result[ArtistKey(a)] = p.tagsToGenres(tags)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "last.fm lookup interrupted")
	}
	if len(result) == 0 && firstErr != nil {
		return nil, errors.Wrapf(firstErr, "all %d last.fm lookups failed", failed)
	}
	if failed > 0 {
		zlog.Warn().Msgf("last.fm lookups failed for %d artists", failed)
	}

	return result, nil
}

func (p *LastFmProvider) tagsToGenres(tags []lastfm.Tag) []string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		if t.Count < p.config.MinCount {
			continue
		}
		names = append(names, strings.ToLower(t.Name))
	}
	return track.MergeGenres(names)
}

// Name returns the provider name.
func (p *LastFmProvider) Name() string {
	return "lastfm"
}
