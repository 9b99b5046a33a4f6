// Package lastfm provides a client for the Last.fm API.
package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Client is a Last.fm API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	// artist tags keyed by lowercase artist name
	artistTagCache map[string][]Tag
	cacheMu        sync.RWMutex
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey  string
	Timeout time.Duration
}

// Tag represents a Last.fm tag.
type Tag struct {
	Name  string
	Count int // Tag weight, 0-100 relative to the top tag
}

// GetTopTagsResponse represents the response from artist.getTopTags API.
type GetTopTagsResponse struct {
	TopTags struct {
		Tag []struct {
			Name  string `json:"name"`
			Count int    `json:"count"`
		} `json:"tag"`
	} `json:"toptags"`
}

// LastFMError represents an error response from Last.fm API.
type LastFMError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		apiKey:         cfg.APIKey,
		baseURL:        "https://ws.audioscrobbler.com/2.0/",
		httpClient:     &http.Client{Timeout: timeout},
		artistTagCache: make(map[string][]Tag),
	}, nil
}

// GetArtistTopTags retrieves the top tags of an artist, most used first.
// Reference: https://www.last.fm/api/show/artist.getTopTags
func (c *Client) GetArtistTopTags(ctx context.Context, artistName string, limit int) ([]Tag, error) {
	if strings.TrimSpace(artistName) == "" {
		return nil, errors.New("artist name is required")
	}

	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	cacheKey := strings.ToLower(strings.TrimSpace(artistName))
	c.cacheMu.RLock()
	if tags, ok := c.artistTagCache[cacheKey]; ok {
		c.cacheMu.RUnlock()
		zlog.Debug().Msgf("using cached tags for artist: %s", artistName)
		return truncate(tags, limit), nil
	}
	c.cacheMu.RUnlock()

	params := url.Values{}
	params.Set("method", "artist.getTopTags")
	params.Set("api_key", c.apiKey)
	params.Set("artist", artistName)
	params.Set("format", "json")
	params.Set("autocorrect", "1")

	body, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}

	var response GetTopTagsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrap(err, "failed to parse response")
	}

	tags := make([]Tag, 0, len(response.TopTags.Tag))
	for _, t := range response.TopTags.Tag {
		tags = append(tags, Tag{
			Name:  t.Name,
			Count: t.Count,
		})
	}

	// cache the full list; limit is applied on the way out
	c.cacheMu.Lock()
	c.artistTagCache[cacheKey] = tags
	c.cacheMu.Unlock()
	zlog.Debug().Msgf("cached tags for artist: %s (count: %d)", artistName, len(tags))

	return truncate(tags, limit), nil
}

// get performs a GET request and returns the body of a successful response.
func (c *Client) get(ctx context.Context, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	// Last.fm reports most failures in the body, sometimes with a 200
	var apiError LastFMError
	if err := json.Unmarshal(body, &apiError); err == nil && apiError.Error != 0 {
		return nil, errors.Errorf("last.fm API error %d: %s", apiError.Error, apiError.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("last.fm API status %d", resp.StatusCode)
	}

	return body, nil
}

func truncate(tags []Tag, limit int) []Tag {
	if len(tags) > limit {
		tags = tags[:limit]
	}
	out := make([]Tag, len(tags))
	copy(out, tags)
	return out
}

// String implements fmt.Stringer for log output.
func (t Tag) String() string {
	return fmt.Sprintf("%s(%d)", t.Name, t.Count)
}
