// Package exporter runs the export, upbeat and import operations.
package exporter

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/osa030/tracksheet/internal/app/genre"
	"github.com/osa030/tracksheet/internal/app/upbeat"
	"github.com/osa030/tracksheet/internal/domain/playlist"
	"github.com/osa030/tracksheet/internal/domain/track"
	"github.com/osa030/tracksheet/internal/infra/config"
	"github.com/osa030/tracksheet/internal/infra/csvfile"
	"github.com/osa030/tracksheet/internal/infra/logger"
)

var (
	// ErrExportNotFound is returned by Import when the named export does not
	// exist in the export directory.
	ErrExportNotFound = errors.New("export file not found")

	// ErrNoTracks is returned by Export when the source has no tracks.
	ErrNoTracks = errors.New("no tracks to export")
)

// SpotifyClient defines the Spotify operations used by the service.
type SpotifyClient interface {
	GetPlaylistTracks(ctx context.Context, playlist string) ([]track.Track, error)
	GetSavedTracks(ctx context.Context) ([]track.Track, error)
	CreatePlaylist(ctx context.Context, name, description string, public bool) (string, error)
	AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string, batchSize int, onBatch func(from, to int)) error
	GetPlaylistURL(playlistID string) string
}

// Enricher attaches genres to tracks.
type Enricher interface {
	Enrich(ctx context.Context, tracks []track.Track) ([]track.Track, genre.Stats, error)
}

// CandidateFilter narrows the tracks considered for the upbeat selection.
type CandidateFilter interface {
	Apply(ctx context.Context, tracks []track.Track) []track.Track
}

// Service runs exports, upbeat selections and imports.
type Service struct {
	config   *config.Config
	spotify  SpotifyClient
	enricher Enricher
	filters  CandidateFilter
}

// NewService creates a new service. enricher and filters may be nil.
func NewService(cfg *config.Config, spotifyClient SpotifyClient, enricher Enricher, filters CandidateFilter) *Service {
	return &Service{
		config:   cfg,
		spotify:  spotifyClient,
		enricher: enricher,
		filters:  filters,
	}
}

// Request describes one export.
type Request struct {
	Playlist      string // URL, URI or ID; Liked Songs when empty
	Output        string // export path; config default when empty
	Upbeat        bool
	TargetMinutes float64
}

// Selection is a written upbeat sub-playlist.
type Selection struct {
	Path   string
	Result upbeat.Result
}

// ExportResult reports a finished export.
type ExportResult struct {
	RunID     string
	Path      string
	Tracks    int
	Genres    genre.Stats
	Upbeat    *Selection
	UpbeatErr error // set when the upbeat step failed; the export itself succeeded
}

// Export fetches the requested tracks, enriches them with genres and writes
// them to CSV. When requested it also writes the upbeat selection next to the
// export.
func (s *Service) Export(ctx context.Context, req Request) (*ExportResult, error) {
	ctx, runID := logger.WithRun(ctx, "export")
	log := zerolog.Ctx(ctx)
	result := &ExportResult{RunID: runID}

	tracks, err := s.fetch(ctx, req.Playlist)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, ErrNoTracks
	}
	log.Info().Msgf("fetched %d tracks", len(tracks))

	tracks, result.Genres, err = s.enrich(ctx, tracks)
	if err != nil {
		return nil, err
	}

	result.Path = req.Output
	if result.Path == "" {
		result.Path = s.config.ExportPath()
	}
	if err := csvfile.WriteTracks(result.Path, tracks); err != nil {
		return nil, errors.Wrap(err, "failed to write export")
	}
	result.Tracks = len(tracks)
	log.Info().Msgf("exported %d tracks to %s", len(tracks), result.Path)

	if req.Upbeat {
		sel, err := s.selectAndWrite(ctx, tracks, result.Path, req.TargetMinutes)
		if err != nil {
			log.Error().Msgf("upbeat selection failed: %v", err)
			result.UpbeatErr = err
		} else {
			result.Upbeat = sel
		}
	}

	return result, nil
}

// Upbeat runs the upbeat selection over an existing export. Genres are looked
// up again only when enrich is set.
func (s *Service) Upbeat(ctx context.Context, csvPath string, targetMinutes float64, enrich bool) (*Selection, error) {
	if err := upbeat.ValidateTarget(targetMinutes); err != nil {
		return nil, err
	}
	ctx, _ = logger.WithRun(ctx, "upbeat")

	tracks, err := csvfile.ReadTracks(csvPath)
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Msgf("read %d tracks from %s", len(tracks), csvPath)

	if enrich {
		tracks, _, err = s.enrich(ctx, tracks)
		if err != nil {
			return nil, err
		}
	}

	return s.selectAndWrite(ctx, tracks, csvPath, targetMinutes)
}

// ImportResult reports a created playlist.
type ImportResult struct {
	RunID    string
	Playlist *playlist.Playlist
}

// Import creates a playlist from the export called name in the export
// directory. Underscores in name become spaces in the playlist name.
func (s *Service) Import(ctx context.Context, name string) (*ImportResult, error) {
	ctx, runID := logger.WithRun(ctx, "import")
	log := zerolog.Ctx(ctx)

	name = strings.TrimSpace(name)
	if ext := filepath.Ext(name); strings.EqualFold(ext, ".csv") {
		name = strings.TrimSuffix(name, ext)
	}
	if name == "" {
		return nil, errors.New("playlist name is required")
	}

	path := s.config.ImportPath(name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrExportNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "failed to stat %s", path)
	}

	pl, err := csvfile.ReadPlaylist(path)
	if err != nil {
		return nil, err
	}
	pl.Description = s.config.Import.Description
	ids := pl.TrackIDs()

	pl.ID, err = s.spotify.CreatePlaylist(ctx, pl.Name, pl.Description, !s.config.Import.Private)
	if err != nil {
		return nil, err
	}
	pl.URL = s.spotify.GetPlaylistURL(pl.ID)
	log.Info().Msgf("created playlist %q: %s", pl.Name, pl.URL)

	err = s.spotify.AddTracksToPlaylist(ctx, pl.ID, ids, s.config.Import.BatchSize, func(from, to int) {
		log.Info().Msgf("added tracks %d-%d of %d", from, to, len(ids))
	})
	if err != nil {
		return nil, err
	}
	log.Info().Msgf("imported %d tracks, %.1f minutes", len(ids), pl.TotalDuration().Minutes())

	return &ImportResult{RunID: runID, Playlist: pl}, nil
}

func (s *Service) fetch(ctx context.Context, source string) ([]track.Track, error) {
	if source == "" {
		zerolog.Ctx(ctx).Info().Msg("fetching saved tracks")
		tracks, err := s.spotify.GetSavedTracks(ctx)
		return tracks, errors.Wrap(err, "failed to fetch saved tracks")
	}

	zerolog.Ctx(ctx).Info().Msgf("fetching playlist %s", source)
	tracks, err := s.spotify.GetPlaylistTracks(ctx, source)
	return tracks, errors.Wrap(err, "failed to fetch playlist tracks")
}

func (s *Service) enrich(ctx context.Context, tracks []track.Track) ([]track.Track, genre.Stats, error) {
	if s.enricher == nil {
		return tracks, genre.Stats{Tracks: len(tracks)}, nil
	}
	enriched, stats, err := s.enricher.Enrich(ctx, tracks)
	if err != nil {
		return nil, stats, errors.Wrap(err, "failed to enrich genres")
	}
	return enriched, stats, nil
}

func (s *Service) selectAndWrite(ctx context.Context, tracks []track.Track, exportPath string, targetMinutes float64) (*Selection, error) {
	if err := upbeat.ValidateTarget(targetMinutes); err != nil {
		return nil, err
	}

	candidates := tracks
	if s.filters != nil {
		candidates = s.filters.Apply(ctx, tracks)
	}

	sel := &Selection{
		Path:   UpbeatPath(exportPath, s.config.Upbeat.FileSuffix),
		Result: upbeat.Select(candidates, targetMinutes),
	}
	if err := csvfile.WriteTracks(sel.Path, sel.Result.Tracks); err != nil {
		return nil, errors.Wrap(err, "failed to write upbeat selection")
	}

	zerolog.Ctx(ctx).Info().Msgf("upbeat playlist: %s -> %s", sel.Result.Summary(), sel.Path)
	return sel, nil
}

// UpbeatPath returns the path of the upbeat file written next to an export:
// the suffix goes between the base name and the extension.
func UpbeatPath(exportPath, suffix string) string {
	ext := filepath.Ext(exportPath)
	if ext == "" {
		ext = ".csv"
	}
	return strings.TrimSuffix(exportPath, filepath.Ext(exportPath)) + suffix + ext
}
