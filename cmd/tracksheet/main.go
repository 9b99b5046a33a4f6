// Package main provides the tracksheet CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/charmbracelet/huh/spinner"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tracksheet/internal/app/exporter"
	"github.com/osa030/tracksheet/internal/app/filter"
	"github.com/osa030/tracksheet/internal/app/genre"
	"github.com/osa030/tracksheet/internal/app/upbeat"
	"github.com/osa030/tracksheet/internal/infra/config"
	"github.com/osa030/tracksheet/internal/infra/logger"
	"github.com/osa030/tracksheet/internal/infra/spotify"
	"github.com/osa030/tracksheet/internal/infra/sqlite"
)

var (
	exportMinutesSet bool
	upbeatMinutesSet bool
)

var (
	app        = kingpin.New("tracksheet", "Export Spotify playlists to CSV and build upbeat sub-playlists")
	configPath = app.Flag("config", "Path to config file").Default("config/tracksheet.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stderr)").String()
	progress   = app.Flag("progress", "Show a spinner while working").Bool()

	// export command
	exportCmd      = app.Command("export", "Export a playlist (or Liked Songs) to CSV").Default()
	exportPlaylist = exportCmd.Arg("playlist", "Playlist URL, URI or ID (Liked Songs when omitted)").String()
	exportUpbeat   = exportCmd.Flag("upbeat", "Also write the upbeat sub-playlist").Default("true").Bool()
	exportMinutes  = exportCmd.Flag("minutes", "Upbeat target duration in minutes (default: config)").IsSetByUser(&exportMinutesSet).Float64()
	exportOutput   = exportCmd.Flag("output", "Export file path (default: config)").Short('o').String()

	// upbeat command
	upbeatCmd     = app.Command("upbeat", "Build the upbeat sub-playlist from an existing export")
	upbeatCSV     = upbeatCmd.Arg("csv", "Export file").Required().ExistingFile()
	upbeatMinutes = upbeatCmd.Flag("minutes", "Target duration in minutes (default: config)").IsSetByUser(&upbeatMinutesSet).Float64()
	upbeatEnrich  = upbeatCmd.Flag("enrich", "Look up artist genres again").Bool()

	// import command
	importCmd  = app.Command("import", "Create a playlist from an export")
	importName = importCmd.Arg("name", "Export name in the export directory, without .csv").Required().String()

	// genres command
	genresCmd = app.Command("genres", "Print the genre score table and exit")

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	switch command {
	case genresCmd.FullCommand():
		printGenres()
		return
	case listFiltersCmd.FullCommand():
		printFilters()
		return
	}

	loggerConfig := logger.Config{Level: "info", File: *logfile}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *progress && *logfile == "" {
		// keep the spinner line readable
		loggerConfig.Level = "warn"
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	err = run(command)
	if err != nil {
		zlog.Error().Msgf("%s failed: %+v", command, err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	_ = closer.Close()
	if err != nil {
		os.Exit(1)
	}
}

// run executes the selected command. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(command string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zlog.Debug().Msgf("loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	// Validate flags before touching the network
	var target float64
	switch command {
	case exportCmd.FullCommand():
		if *exportUpbeat {
			if target, err = resolveTarget(cfg, *exportMinutes, exportMinutesSet); err != nil {
				return err
			}
		}
	case upbeatCmd.FullCommand():
		if target, err = resolveTarget(cfg, *upbeatMinutes, upbeatMinutesSet); err != nil {
			return err
		}
	}

	needsSpotify := command != upbeatCmd.FullCommand() || *upbeatEnrich
	var spotifyClient *spotify.Client
	if needsSpotify {
		spotifyClient, err = spotify.New(ctx, spotify.Config{
			ClientID:         cfg.Spotify.ClientID,
			ClientSecret:     cfg.Spotify.ClientSecret,
			RefreshToken:     cfg.Spotify.RefreshToken,
			Market:           cfg.Spotify.Market,
			PlaylistPageSize: cfg.Export.PlaylistPageSize,
			SavedPageSize:    cfg.Export.SavedPageSize,
		})
		if err != nil {
			return errors.Wrap(err, "failed to create Spotify client")
		}
	}

	var enricher exporter.Enricher
	if spotifyClient != nil && command != importCmd.FullCommand() {
		e, cleanup, err := newEnricher(cfg, spotifyClient)
		if err != nil {
			return err
		}
		defer cleanup()
		enricher = e
	}

	filters, err := filter.NewChainFromConfig(cfg)
	if err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	// a nil *spotify.Client must not become a non-nil interface
	var client exporter.SpotifyClient
	if spotifyClient != nil {
		client = spotifyClient
	}
	svc := exporter.NewService(cfg, client, enricher, filters)

	switch command {
	case exportCmd.FullCommand():
		var res *exporter.ExportResult
		err := withProgress(ctx, "Exporting...", func(ctx context.Context) error {
			var err error
			res, err = svc.Export(ctx, exporter.Request{
				Playlist:      *exportPlaylist,
				Output:        *exportOutput,
				Upbeat:        *exportUpbeat,
				TargetMinutes: target,
			})
			return err
		})
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d tracks to %s\n", res.Tracks, res.Path)
		if res.Upbeat != nil {
			fmt.Printf("Upbeat playlist: %s -> %s\n", res.Upbeat.Result.Summary(), res.Upbeat.Path)
		}
		if res.UpbeatErr != nil {
			fmt.Printf("Upbeat playlist skipped: %v\n", res.UpbeatErr)
		}

	case upbeatCmd.FullCommand():
		var sel *exporter.Selection
		err := withProgress(ctx, "Selecting...", func(ctx context.Context) error {
			var err error
			sel, err = svc.Upbeat(ctx, *upbeatCSV, target, *upbeatEnrich)
			return err
		})
		if err != nil {
			return err
		}
		fmt.Printf("Upbeat playlist: %s -> %s\n", sel.Result.Summary(), sel.Path)

	case importCmd.FullCommand():
		var res *exporter.ImportResult
		err := withProgress(ctx, "Importing...", func(ctx context.Context) error {
			var err error
			res, err = svc.Import(ctx, *importName)
			return err
		})
		if err != nil {
			return err
		}
		pl := res.Playlist
		fmt.Printf("Created playlist %q with %d tracks (%.1f minutes): %s\n",
			pl.Name, len(pl.Tracks), pl.TotalDuration().Minutes(), pl.URL)
	}

	return nil
}

// resolveTarget returns the upbeat target in minutes: the --minutes value when
// the flag was given, the configured target otherwise.
func resolveTarget(cfg *config.Config, minutes float64, set bool) (float64, error) {
	target := cfg.Upbeat.Target()
	if set {
		target = minutes
	}
	if err := upbeat.ValidateTarget(target); err != nil {
		return 0, errors.Wrap(err, "invalid --minutes")
	}
	return target, nil
}

// newEnricher builds the genre enricher, backed by the sqlite cache when one
// is configured.
func newEnricher(cfg *config.Config, spotifyClient *spotify.Client) (*genre.Enricher, func(), error) {
	chain, err := genre.NewChainFromConfig(cfg, spotifyClient)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create genre providers")
	}

	if cfg.CacheFile() == "" {
		return genre.NewEnricher(chain, nil), func() {}, nil
	}

	cache, err := sqlite.NewGenreCache(cfg.CacheFile(), cfg.CacheTTL())
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open genre cache")
	}
	if n, err := cache.Purge(context.Background()); err != nil {
		zlog.Warn().Msgf("failed to purge genre cache: %v", err)
	} else if n > 0 {
		zlog.Debug().Msgf("purged %d expired genre cache entries", n)
	}

	cleanup := func() {
		if err := cache.Close(); err != nil {
			zlog.Warn().Msgf("failed to close genre cache: %v", err)
		}
	}
	return genre.NewEnricher(chain, cache), cleanup, nil
}

// withProgress runs fn, behind a spinner when --progress is set.
func withProgress(ctx context.Context, title string, fn func(ctx context.Context) error) error {
	if !*progress {
		return fn(ctx)
	}
	return spinner.New().
		Title(title).
		Context(ctx).
		ActionWithErr(fn).
		Run()
}

// printGenres prints the genre score table.
func printGenres() {
	fmt.Println("Genre Scores:")
	for _, e := range upbeat.Table() {
		fmt.Printf("  %-24s %.2f\n", e.Genre, e.Score)
	}
	fmt.Printf("  %-24s %.2f\n", "(other)", upbeat.DefaultGenreScore)
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	for _, name := range filter.Names() {
		f := filter.GetRegistered()[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}
