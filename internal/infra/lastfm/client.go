// Package lastfm provides a client for the Last.fm API.
package lastfm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/domain/player"
)

const defaultCacheTTL = 30 * time.Minute

// similarCacheEntry represents a cached similar-tracks result.
type similarCacheEntry struct {
	tracks    []SimilarTrack
	expiresAt time.Time
}

// Client is a Last.fm API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	cacheTTL   time.Duration

	// Cache for similar tracks keyed by artist and track
	similarCache map[string]similarCacheEntry
	cacheMu      sync.RWMutex

	now func() time.Time
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey   string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// SimilarTrack represents a similar track from Last.fm.
type SimilarTrack struct {
	Name   string
	Artist string
	Match  float64 // Similarity score 0..1
}

// SearchResult represents one match of track.search.
type SearchResult struct {
	Name      string
	Artist    string
	Listeners int
}

// GetSimilarResponse represents the response from track.getSimilar API.
type GetSimilarResponse struct {
	SimilarTracks struct {
		Track []struct {
			Name   string          `json:"name"`
			Match  json.RawMessage `json:"match"`
			Artist struct {
				Name string `json:"name"`
			} `json:"artist"`
		} `json:"track"`
	} `json:"similartracks"`
}

// SearchResponse represents the response from track.search API.
type SearchResponse struct {
	Results struct {
		TrackMatches struct {
			Track []struct {
				Name      string `json:"name"`
				Artist    string `json:"artist"`
				Listeners string `json:"listeners"`
			} `json:"track"`
		} `json:"trackmatches"`
	} `json:"results"`
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
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}

	return &Client{
		apiKey:       cfg.APIKey,
		baseURL:      "https://ws.audioscrobbler.com/2.0/",
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		cacheTTL:     cfg.CacheTTL,
		similarCache: make(map[string]similarCacheEntry),
		now:          time.Now,
	}, nil
}

// GetSimilarTracks retrieves similar tracks from Last.fm based on track name and artist.
// Reference: https://www.last.fm/api/show/track.getSimilar
func (c *Client) GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]SimilarTrack, error) {
	if trackName == "" || artistName == "" {
		return nil, errors.New("track name and artist name are required")
	}
	limit = clampLimit(limit)

	key := strings.ToLower(artistName + "\x00" + trackName)
	c.cacheMu.RLock()
	entry, ok := c.similarCache[key]
	c.cacheMu.RUnlock()
	if ok && c.now().Before(entry.expiresAt) && len(entry.tracks) >= limit {
		zlog.Debug().Msgf("lastfm: similar cache hit artist=%s track=%s", artistName, trackName)
		return entry.tracks[:limit], nil
	}

	params := url.Values{}
	params.Set("method", "track.getSimilar")
	params.Set("artist", artistName)
	params.Set("track", trackName)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("autocorrect", "1")

	var response GetSimilarResponse
	if err := c.call(ctx, params, &response); err != nil {
		return nil, err
	}

	similarTracks := make([]SimilarTrack, 0, len(response.SimilarTracks.Track))
	for _, t := range response.SimilarTracks.Track {
		similarTracks = append(similarTracks, SimilarTrack{
			Name:   t.Name,
			Artist: t.Artist.Name,
			Match:  parseMatch(t.Match),
		})
	}

	c.cacheMu.Lock()
	c.similarCache[key] = similarCacheEntry{tracks: similarTracks, expiresAt: c.now().Add(c.cacheTTL)}
	c.cacheMu.Unlock()

	return similarTracks, nil
}

// SearchTracks searches tracks by title.
// Reference: https://www.last.fm/api/show/track.search
func (c *Client) SearchTracks(ctx context.Context, trackName string, limit int) ([]SearchResult, error) {
	if trackName == "" {
		return nil, errors.New("track name is required")
	}

	params := url.Values{}
	params.Set("method", "track.search")
	params.Set("track", trackName)
	params.Set("limit", strconv.Itoa(clampLimit(limit)))

	var response SearchResponse
	if err := c.call(ctx, params, &response); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(response.Results.TrackMatches.Track))
	for _, t := range response.Results.TrackMatches.Track {
		listeners, _ := strconv.Atoi(t.Listeners)
		results = append(results, SearchResult{
			Name:      t.Name,
			Artist:    t.Artist,
			Listeners: listeners,
		})
	}
	return results, nil
}

// call performs a GET request and decodes the JSON body into out.
// Network failures and 5xx responses wrap player.ErrTransient.
func (c *Client) call(ctx context.Context, params url.Values, out any) error {
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "failed to send request"), player.ErrTransient)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "failed to read response body"), player.ErrTransient)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return errors.Mark(errors.Newf("last.fm returned status %d", resp.StatusCode), player.ErrTransient)
	}

	// Check for Last.fm API errors
	var apiError LastFMError
	if err := json.Unmarshal(body, &apiError); err == nil && apiError.Error != 0 {
		return errors.Errorf("last.fm API error %d: %s", apiError.Error, apiError.Message)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// parseMatch accepts the match score as either a JSON number or a string.
func parseMatch(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, _ = strconv.ParseFloat(s, 64)
	}
	return f
}
