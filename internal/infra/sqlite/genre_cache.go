// Package sqlite provides a SQLite-backed cache of artist genres, so repeated
// exports of the same library skip artist lookups.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
	zlog "github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS artist_genres (
	artist_id  TEXT PRIMARY KEY,
	genres     TEXT NOT NULL,
	source     TEXT NOT NULL,
	fetched_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artist_genres_fetched_at ON artist_genres (fetched_at);
`

// GenreCache stores the genres resolved for each artist.
// An artist cached with no genres is a valid, cached answer.
type GenreCache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewGenreCache opens (or creates) the cache at path. Entries older than ttl
// are treated as missing; a zero ttl keeps entries forever.
func NewGenreCache(path string, ttl time.Duration) (*GenreCache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite db")
	}
	// ":memory:" databases are per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping sqlite db")
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migration failed")
	}

	return &GenreCache{db: db, ttl: ttl, now: time.Now}, nil
}

// Close closes the underlying database.
func (c *GenreCache) Close() error {
	return c.db.Close()
}

// Get returns the cached, unexpired genres of the given artists.
// Artists without a usable entry are absent from the result.
func (c *GenreCache) Get(ctx context.Context, artistIDs []string) (map[string][]string, error) {
	result := make(map[string][]string, len(artistIDs))
	if len(artistIDs) == 0 {
		return result, nil
	}

	stmt, err := c.db.PrepareContext(ctx, "SELECT genres, fetched_at FROM artist_genres WHERE artist_id = ?")
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare cache lookup")
	}
	defer stmt.Close()

	cutoff := c.cutoff()
	for _, id := range artistIDs {
		if _, done := result[id]; done {
			continue
		}

		var raw string
		var fetchedAt int64
		if err := stmt.QueryRowContext(ctx, id).Scan(&raw, &fetchedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, errors.Wrapf(err, "failed to load genres for artist %s", id)
		}
		if fetchedAt < cutoff {
			continue
		}

		genres := make([]string, 0)
		if err := json.Unmarshal([]byte(raw), &genres); err != nil {
			zlog.Warn().Msgf("ignoring corrupt genre cache entry: artist=%s error=%v", id, err)
			continue
		}
		result[id] = genres
	}

	return result, nil
}

// Put stores the genres of each artist, replacing older entries.
func (c *GenreCache) Put(ctx context.Context, genres map[string][]string, source string) error {
	if len(genres) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO artist_genres (artist_id, genres, source, fetched_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(artist_id) DO UPDATE SET
			genres = excluded.genres,
			source = excluded.source,
			fetched_at = excluded.fetched_at
	`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare cache upsert")
	}
	defer stmt.Close()

	now := c.now().Unix()
	for id, list := range genres {
		if list == nil {
			list = []string{}
		}
		raw, err := json.Marshal(list)
		if err != nil {
			return errors.Wrapf(err, "failed to encode genres for artist %s", id)
		}
		if _, err := stmt.ExecContext(ctx, id, string(raw), source, now); err != nil {
			return errors.Wrapf(err, "failed to store genres for artist %s", id)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit genre cache")
	}
	return nil
}

// Purge deletes expired entries and returns how many were removed.
func (c *GenreCache) Purge(ctx context.Context) (int64, error) {
	if c.ttl <= 0 {
		return 0, nil
	}
	res, err := c.db.ExecContext(ctx, "DELETE FROM artist_genres WHERE fetched_at < ?", c.cutoff())
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge genre cache")
	}
	return res.RowsAffected()
}

func (c *GenreCache) cutoff() int64 {
	if c.ttl <= 0 {
		return 0
	}
	return c.now().Add(-c.ttl).Unix()
}
