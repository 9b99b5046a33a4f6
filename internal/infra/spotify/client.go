// Package spotify provides a client for the Spotify API.
package spotify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/tracksheet/internal/domain/track"
)

const (
	maxPlaylistPageSize = 100
	maxSavedPageSize    = 50
	maxArtistBatch      = 50
	maxPlaylistBatch    = 100
)

// Scopes are the OAuth scopes needed to export a library and import playlists.
var Scopes = []string{
	spotifyauth.ScopeUserLibraryRead,
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistReadCollaborative,
	spotifyauth.ScopePlaylistModifyPublic,
	spotifyauth.ScopePlaylistModifyPrivate,
}

// Client is a Spotify API client.
type Client struct {
	client           *spotify.Client
	market           string
	playlistPageSize int
	savedPageSize    int
	maxRetries       int
	retryDelay       time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID         string
	ClientSecret     string
	RefreshToken     string
	Market           string
	PlaylistPageSize int
	SavedPageSize    int
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(Scopes...),
	)

	// the refresh token is exchanged on first use
	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}

	return newClient(newAPI(auth.Client(ctx, token)), cfg), nil
}

// newAPI creates the underlying API client. Rate-limited (429) requests are
// retried by the library after the Retry-After delay the server sends.
func newAPI(httpClient *http.Client, opts ...spotify.ClientOption) *spotify.Client {
	return spotify.New(httpClient, append([]spotify.ClientOption{spotify.WithRetry(true)}, opts...)...)
}

func newClient(api *spotify.Client, cfg Config) *Client {
	return &Client{
		client:           api,
		market:           cfg.Market,
		playlistPageSize: clampPageSize(cfg.PlaylistPageSize, maxPlaylistPageSize),
		savedPageSize:    clampPageSize(cfg.SavedPageSize, maxSavedPageSize),
		maxRetries:       3,
		retryDelay:       time.Second,
	}
}

func clampPageSize(size, max int) int {
	if size <= 0 || size > max {
		return max
	}
	return size
}

// GetPlaylistTracks retrieves all tracks from a playlist.
// The playlist may be given as an ID, URL or URI.
func (c *Client) GetPlaylistTracks(ctx context.Context, playlist string) ([]track.Track, error) {
	playlistID := extractPlaylistID(playlist)
	if playlistID == "" {
		return nil, errors.New("invalid playlist URL")
	}

	tracks := make([]track.Track, 0)
	offset := 0
	limit := c.playlistPageSize

	for {
		opts := []spotify.RequestOption{spotify.Limit(limit), spotify.Offset(offset)}
		if c.market != "" {
			opts = append(opts, spotify.Market(c.market))
		}

		var page *spotify.PlaylistItemPage
		err := c.retry(ctx, func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID), opts...)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get playlist items")
		}

		for _, item := range page.Items {
			// episodes and local files have no track ID
			if item.IsLocal || item.Track.Track == nil || item.Track.Track.ID == "" {
				continue
			}
			tracks = append(tracks, convertTrack(item.Track.Track))
		}

		zlog.Debug().Msgf("fetched playlist page: playlist=%s offset=%d items=%d total=%d",
			playlistID, offset, len(page.Items), page.Total)

		if len(page.Items) < limit {
			break
		}
		offset += limit
	}

	return tracks, nil
}

// GetSavedTracks retrieves all tracks in the current user's Liked Songs.
func (c *Client) GetSavedTracks(ctx context.Context) ([]track.Track, error) {
	tracks := make([]track.Track, 0)
	offset := 0
	limit := c.savedPageSize

	for {
		opts := []spotify.RequestOption{spotify.Limit(limit), spotify.Offset(offset)}
		if c.market != "" {
			opts = append(opts, spotify.Market(c.market))
		}

		var page *spotify.SavedTrackPage
		err := c.retry(ctx, func() error {
			p, err := c.client.CurrentUsersTracks(ctx, opts...)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get saved tracks")
		}

		for i := range page.Tracks {
			if page.Tracks[i].ID == "" {
				continue
			}
			tracks = append(tracks, convertTrack(&page.Tracks[i].FullTrack))
		}

		zlog.Debug().Msgf("fetched saved tracks page: offset=%d items=%d total=%d",
			offset, len(page.Tracks), page.Total)

		if len(page.Tracks) < limit {
			break
		}
		offset += limit
	}

	return tracks, nil
}

// GetArtistGenres retrieves the genres of the given artists, 50 artists per
// request. Artists Spotify does not return are absent from the result.
func (c *Client) GetArtistGenres(ctx context.Context, artistIDs []string) (map[string][]string, error) {
	genres := make(map[string][]string, len(artistIDs))

	for _, batch := range chunk(dedupe(artistIDs), maxArtistBatch) {
		ids := make([]spotify.ID, len(batch))
		for i, id := range batch {
			ids[i] = spotify.ID(id)
		}

		var artists []*spotify.FullArtist
		err := c.retry(ctx, func() error {
			a, err := c.client.GetArtists(ctx, ids...)
			if err != nil {
				return err
			}
			artists = a
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get artists")
		}

		for _, a := range artists {
			// unknown IDs come back as null entries
			if a == nil || a.ID == "" {
				continue
			}
			genres[string(a.ID)] = append([]string{}, a.Genres...)
		}
	}

	return genres, nil
}

// CreatePlaylist creates a new playlist owned by the current user and returns its ID.
func (c *Client) CreatePlaylist(ctx context.Context, name, description string, public bool) (string, error) {
	var user *spotify.PrivateUser
	err := c.retry(ctx, func() error {
		u, err := c.client.CurrentUser(ctx)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to get current user")
	}

	var playlist *spotify.FullPlaylist
	err = c.retry(ctx, func() error {
		p, err := c.client.CreatePlaylistForUser(ctx, user.ID, name, description, public, false)
		if err != nil {
			return err
		}
		playlist = p
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to create playlist")
	}

	return string(playlist.ID), nil
}

// AddTracksToPlaylist adds tracks to a playlist in batches of at most
// batchSize (capped at 100). trackIDs can be Spotify IDs, URLs, or URIs.
// onBatch, if set, is called after each batch with the 1-based range added.
func (c *Client) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string, batchSize int, onBatch func(from, to int)) error {
	batchSize = clampPageSize(batchSize, maxPlaylistBatch)

	added := 0
	for _, batch := range chunk(trackIDs, batchSize) {
		ids := make([]spotify.ID, len(batch))
		for i, id := range batch {
			ids[i] = spotify.ID(extractTrackID(id))
		}

		err := c.retry(ctx, func() error {
			_, err := c.client.AddTracksToPlaylist(ctx, spotify.ID(playlistID), ids...)
			return err
		})
		if err != nil {
			return errors.Wrapf(err, "failed to add tracks %d to %d to playlist", added+1, added+len(batch))
		}

		if onBatch != nil {
			onBatch(added+1, added+len(batch))
		}
		added += len(batch)
	}

	return nil
}

// GetPlaylistURL returns the Spotify URL for a playlist.
func (c *Client) GetPlaylistURL(playlistID string) string {
	return fmt.Sprintf("https://open.spotify.com/playlist/%s", playlistID)
}

// convertTrack converts a Spotify FullTrack to domain Track.
func convertTrack(t *spotify.FullTrack) track.Track {
	artists := make([]track.Artist, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = track.Artist{ID: string(a.ID), Name: a.Name}
	}

	return track.Track{
		ID:          string(t.ID),
		Name:        t.Name,
		Artists:     artists,
		Album:       t.Album.Name,
		ReleaseDate: t.Album.ReleaseDate,
		Duration:    time.Duration(t.Duration) * time.Millisecond,
		Explicit:    t.Explicit,
	}
}

// retry retries an operation with exponential backoff.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			zlog.Warn().Msgf("spotify request failed, retrying (attempt %d/%d): %v", i+1, c.maxRetries, err)
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "retry canceled")
			case <-time.After(c.retryDelay << i):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == 429 || apiErr.Status >= 500
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// chunk splits ids into consecutive batches of at most size elements.
func chunk(ids []string, size int) [][]string {
	var batches [][]string
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[i:end])
	}
	return batches
}

// dedupe drops empty and repeated ids, keeping first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// extractPlaylistID extracts the playlist ID from a Spotify playlist URL or URI.
func extractPlaylistID(input string) string {
	return extractID(input, "playlist")
}

// extractTrackID extracts the track ID from a Spotify track URL or URI.
func extractTrackID(input string) string {
	return extractID(input, "track")
}

func extractID(input, kind string) string {
	input = strings.TrimSpace(input)
	// Handle Spotify URI format: spotify:<kind>:ID
	if prefix := "spotify:" + kind + ":"; strings.HasPrefix(input, prefix) {
		return strings.TrimPrefix(input, prefix)
	}

	// Handle URL format: https://open.spotify.com/<kind>/ID or https://open.spotify.com/intl-XX/<kind>/ID
	sep := "/" + kind + "/"
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, sep) {
		parts := strings.Split(input, sep)
		// Remove query parameters and trailing slashes
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	// Assume it's already an ID
	return input
}
