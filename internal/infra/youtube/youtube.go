// Package youtube wraps the YouTube and YouTube Music search libraries.
package youtube

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/domain/player"
)

// Video is a YouTube search hit.
type Video struct {
	ID       string
	Title    string
	Channel  string
	Duration time.Duration // Zero for live streams
}

// URL returns the watch URL of the video.
func (v Video) URL() string {
	return "https://www.youtube.com/watch?v=" + v.ID
}

// Searcher searches YouTube videos without going through the audio backend.
type Searcher struct {
	search func(ctx context.Context, query string) ([]Video, error)
}

// NewSearcher creates a searcher. A nil httpClient uses the library default.
func NewSearcher(httpClient *http.Client) *Searcher {
	client := ytsearch.NewClient(httpClient)
	return &Searcher{
		search: func(ctx context.Context, query string) ([]Video, error) {
			res, err := client.Search(ctx, query)
			if err != nil {
				return nil, err
			}
			videos := make([]Video, 0, len(res.Results))
			for _, r := range res.Results {
				videos = append(videos, Video{
					ID:       r.VideoID,
					Title:    r.Title,
					Channel:  r.Channel,
					Duration: parseDuration(r.Duration),
				})
			}
			return videos, nil
		},
	}
}

// Search returns up to limit videos matching query.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]Video, error) {
	videos, err := s.search(ctx, query)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "youtube search failed"), player.ErrTransient)
	}

	out := make([]Video, 0, min(limit, len(videos)))
	for _, v := range videos {
		if v.ID == "" {
			continue
		}
		out = append(out, v)
		if len(out) >= limit {
			break
		}
	}
	zlog.Debug().Msgf("youtube: search query=%q results=%d", query, len(out))
	return out, nil
}

// MusicTrack is a YouTube Music search hit.
type MusicTrack struct {
	VideoID string
	Title   string
	Artists []string
}

// Artist returns the first credited artist, or "".
func (t MusicTrack) Artist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// MusicSearcher searches YouTube Music tracks.
type MusicSearcher struct {
	search func(query string) ([]MusicTrack, error)
}

// NewMusicSearcher creates a YouTube Music searcher.
func NewMusicSearcher() *MusicSearcher {
	return &MusicSearcher{
		search: func(query string) ([]MusicTrack, error) {
			res, err := ytmusic.TrackSearch(query).Next()
			if err != nil {
				return nil, err
			}
			tracks := make([]MusicTrack, 0, len(res.Tracks))
			for _, t := range res.Tracks {
				artists := make([]string, 0, len(t.Artists))
				for _, a := range t.Artists {
					artists = append(artists, a.Name)
				}
				tracks = append(tracks, MusicTrack{VideoID: t.VideoID, Title: t.Title, Artists: artists})
			}
			return tracks, nil
		},
	}
}

type musicResult struct {
	tracks []MusicTrack
	err    error
}

// SearchTracks returns up to limit tracks matching query.
// The library call does not take a context, so it runs in its own goroutine and is abandoned when ctx ends.
func (m *MusicSearcher) SearchTracks(ctx context.Context, query string, limit int) ([]MusicTrack, error) {
	done := make(chan musicResult, 1)
	go func() {
		tracks, err := m.search(query)
		done <- musicResult{tracks: tracks, err: err}
	}()

	var res musicResult
	select {
	case res = <-done:
	case <-ctx.Done():
		return nil, errors.Mark(errors.Wrap(ctx.Err(), "youtube music search"), player.ErrTransient)
	}
	if res.err != nil {
		return nil, errors.Mark(errors.Wrap(res.err, "youtube music search failed"), player.ErrTransient)
	}

	out := make([]MusicTrack, 0, min(limit, len(res.tracks)))
	for _, t := range res.tracks {
		if t.VideoID == "" {
			continue
		}
		out = append(out, t)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// parseDuration parses "3:20" or "1:05:20". Anything else is zero.
func parseDuration(s string) time.Duration {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	var total int
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second
}
