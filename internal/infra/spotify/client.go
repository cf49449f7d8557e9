// Package spotify provides a client for the Spotify Web API used to resolve shared links.
package spotify

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// Kind is the type of Spotify resource a link points at.
type Kind string

const (
	KindTrack    Kind = "track"
	KindPlaylist Kind = "playlist"
	KindAlbum    Kind = "album"
)

// Metadata describes a Spotify track well enough to find it elsewhere.
type Metadata struct {
	ID       string
	Title    string
	Artists  []string
	Album    string
	Duration time.Duration
}

// Query returns a search query for the track: "artist title".
func (m Metadata) Query() string {
	if len(m.Artists) == 0 {
		return m.Title
	}
	return m.Artists[0] + " " + m.Title
}

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	maxTracks  int
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Market       string
	MaxTracks    int // Upper bound on tracks read from one playlist or album
}

// New creates a new Spotify client authenticated with the client credentials flow.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	credentials := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}

	// Token source refreshes on expiry
	httpClient := credentials.Client(ctx)
	return newClient(spotify.New(httpClient), cfg), nil
}

func newClient(client *spotify.Client, cfg Config) *Client {
	market := cfg.Market
	if market == "" {
		market = "JP"
	}
	maxTracks := cfg.MaxTracks
	if maxTracks <= 0 {
		maxTracks = 100
	}
	return &Client{
		client:     client,
		market:     market,
		maxTracks:  maxTracks,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// Resolve returns the tracks a Spotify link points at.
func (c *Client) Resolve(ctx context.Context, link string) ([]Metadata, error) {
	kind, id, ok := ParseLink(link)
	if !ok {
		return nil, errors.Newf("not a spotify link: %s", link)
	}

	switch kind {
	case KindTrack:
		t, err := c.GetTrack(ctx, id)
		if err != nil {
			return nil, err
		}
		return []Metadata{t}, nil
	case KindPlaylist:
		return c.GetPlaylistTracks(ctx, id)
	default:
		return c.GetAlbumTracks(ctx, id)
	}
}

// GetTrack retrieves track information by ID.
func (c *Client) GetTrack(ctx context.Context, trackID string) (Metadata, error) {
	var result *spotify.FullTrack
	err := c.retry(func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(trackID), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return Metadata{}, errors.Wrap(err, "failed to get track")
	}
	return convertTrack(result.SimpleTrack, result.Album.Name), nil
}

// GetPlaylistTracks retrieves up to the configured maximum tracks of a playlist.
func (c *Client) GetPlaylistTracks(ctx context.Context, playlistID string) ([]Metadata, error) {
	var tracks []Metadata
	offset := 0
	limit := min(100, c.maxTracks)

	for len(tracks) < c.maxTracks {
		var page *spotify.PlaylistItemPage
		err := c.retry(func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
				spotify.Limit(limit),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
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
			// Episodes have no track
			if item.Track.Track != nil && item.Track.Track.ID != "" {
				tracks = append(tracks, convertTrack(item.Track.Track.SimpleTrack, item.Track.Track.Album.Name))
			}
		}

		if len(page.Items) < limit {
			break
		}
		offset += limit
	}

	if len(tracks) > c.maxTracks {
		tracks = tracks[:c.maxTracks]
	}
	return tracks, nil
}

// GetAlbumTracks retrieves up to the configured maximum tracks of an album.
func (c *Client) GetAlbumTracks(ctx context.Context, albumID string) ([]Metadata, error) {
	var album *spotify.FullAlbum
	err := c.retry(func() error {
		a, err := c.client.GetAlbum(ctx, spotify.ID(albumID), spotify.Market(c.market))
		if err != nil {
			return err
		}
		album = a
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get album")
	}

	tracks := make([]Metadata, 0, len(album.Tracks.Tracks))
	for _, t := range album.Tracks.Tracks {
		if len(tracks) >= c.maxTracks {
			break
		}
		tracks = append(tracks, convertTrack(t, album.Name))
	}
	return tracks, nil
}

func convertTrack(t spotify.SimpleTrack, album string) Metadata {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}
	return Metadata{
		ID:       string(t.ID),
		Title:    t.Name,
		Artists:  artists,
		Album:    album,
		Duration: time.Duration(t.Duration) * time.Millisecond,
	}
}

// retry retries an operation with linear backoff.
func (c *Client) retry(fn func() error) error {
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
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
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

// ParseLink extracts the resource kind and ID from a Spotify URL or URI.
func ParseLink(input string) (Kind, string, bool) {
	input = strings.TrimSpace(input)

	// Spotify URI format: spotify:track:ID
	if rest, ok := strings.CutPrefix(input, "spotify:"); ok {
		kind, id, found := strings.Cut(rest, ":")
		if !found || id == "" {
			return "", "", false
		}
		return checkKind(Kind(kind), id)
	}

	// URL format: https://open.spotify.com/track/ID or https://open.spotify.com/intl-XX/track/ID
	if !strings.Contains(input, "open.spotify.com/") {
		return "", "", false
	}
	for _, kind := range []Kind{KindTrack, KindPlaylist, KindAlbum} {
		parts := strings.Split(input, "/"+string(kind)+"/")
		if len(parts) < 2 {
			continue
		}
		// Remove query parameters and trailing slashes
		id := strings.Split(parts[len(parts)-1], "?")[0]
		id = strings.TrimRight(id, "/")
		return checkKind(kind, id)
	}
	return "", "", false
}

func checkKind(kind Kind, id string) (Kind, string, bool) {
	switch kind {
	case KindTrack, KindPlaylist, KindAlbum:
		if id == "" {
			return "", "", false
		}
		return kind, id, true
	default:
		return "", "", false
	}
}
