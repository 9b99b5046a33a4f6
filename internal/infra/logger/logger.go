// Package logger provides structured logging using zerolog.
package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Config represents logger configuration.
type Config struct {
	Level   string    // "debug", "info", "warn", "error"
	File    string    // JSON log file; console output when empty
	Writer  io.Writer // console destination, defaults to stderr
	NoColor bool
}

// Init initializes the global zerolog logger with the given configuration.
// The returned closer releases the log file, if any.
func Init(cfg Config) (io.Closer, error) {
	level := parseLevel(cfg.Level)

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "time"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"
	zerolog.CallerMarshalFunc = shortCaller

	logger, closer, err := build(cfg, level)
	if err != nil {
		return nil, err
	}

	zerolog.DefaultContextLogger = &logger
	zlog.Logger = logger

	return closer, nil
}

func build(cfg Config, level zerolog.Level) (zerolog.Logger, io.Closer, error) {
	if cfg.File != "" {
		if dir := filepath.Dir(cfg.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return zerolog.Logger{}, nil, errors.Wrap(err, "failed to create log directory")
			}
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Logger{}, nil, errors.Wrap(err, "failed to open log file")
		}
		ctx := zerolog.New(f).With().Timestamp()
		if level == zerolog.DebugLevel {
			ctx = ctx.Caller()
		}
		return ctx.Logger(), f, nil
	}

	out := cfg.Writer
	if out == nil {
		out = os.Stderr
	}
	console := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    cfg.NoColor,
		TimeFormat: time.TimeOnly,
	}
	ctx := zerolog.New(console).With().Timestamp()
	if level == zerolog.DebugLevel {
		// caller only at DEBUG
		console.PartsOrder = []string{"time", "level", "message", "caller"}
		console.FormatCaller = func(i interface{}) string {
			return "(" + i.(string) + ")"
		}
		ctx = zerolog.New(console).With().Timestamp().Caller()
	}
	return ctx.Logger(), io.NopCloser(nil), nil
}

// WithRun returns a context carrying a logger tagged with a fresh run_id,
// along with that id.
func WithRun(ctx context.Context, operation string) (context.Context, string) {
	runID := uuid.NewString()
	l := zerolog.Ctx(ctx).With().
		Str("run_id", runID).
		Str("op", operation).
		Logger()
	return l.WithContext(ctx), runID
}

// shortCaller trims the caller path to its last directory and file.
func shortCaller(pc uintptr, file string, line int) string {
	parts := strings.Split(file, string(filepath.Separator))
	if len(parts) > 1 {
		return filepath.Join(parts[len(parts)-2:]...) + ":" + strconv.Itoa(line)
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

// parseLevel parses the log level string.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
