package lavalink

import (
	"encoding/json"
	"time"

	"github.com/osa030/guildbox/internal/domain/track"
)

// Track is a Lavalink v4 track object.
type Track struct {
	Encoded string    `json:"encoded"`
	Info    TrackInfo `json:"info"`
}

// TrackInfo is the metadata of a Lavalink track.
type TrackInfo struct {
	Identifier string `json:"identifier"`
	IsSeekable bool   `json:"isSeekable"`
	Author     string `json:"author"`
	Length     int64  `json:"length"` // Milliseconds
	IsStream   bool   `json:"isStream"`
	Position   int64  `json:"position"`
	Title      string `json:"title"`
	URI        string `json:"uri"`
	ArtworkURL string `json:"artworkUrl"`
	ISRC       string `json:"isrc"`
	SourceName string `json:"sourceName"`
}

// ToDomain converts the track to the domain representation. The encoded handle becomes the ID.
func (t Track) ToDomain() track.Track {
	out := track.Track{
		ID:         t.Encoded,
		Title:      t.Info.Title,
		Author:     t.Info.Author,
		URI:        t.Info.URI,
		ArtworkURL: t.Info.ArtworkURL,
		SourceName: t.Info.SourceName,
		IsStream:   t.Info.IsStream,
	}
	if !t.Info.IsStream {
		out.Duration = time.Duration(t.Info.Length) * time.Millisecond
	}
	return out
}

// LoadType is the kind of result returned by the loadtracks endpoint.
type LoadType string

const (
	LoadTypeTrack    LoadType = "track"
	LoadTypePlaylist LoadType = "playlist"
	LoadTypeSearch   LoadType = "search"
	LoadTypeEmpty    LoadType = "empty"
	LoadTypeError    LoadType = "error"
)

// LoadResult is the decoded result of a loadtracks call.
type LoadResult struct {
	Type         LoadType
	Tracks       []track.Track
	PlaylistName string
}

type loadResponse struct {
	LoadType LoadType        `json:"loadType"`
	Data     json.RawMessage `json:"data"`
}

type playlistData struct {
	Info struct {
		Name          string `json:"name"`
		SelectedTrack int    `json:"selectedTrack"`
	} `json:"info"`
	Tracks []Track `json:"tracks"`
}

type exceptionData struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause"`
}

// playerUpdate is the body of PATCH /v4/sessions/{sessionId}/players/{guildId}.
type playerUpdate struct {
	Track    *updateTrack  `json:"track,omitempty"`
	Position *int64        `json:"position,omitempty"`
	Paused   *bool         `json:"paused,omitempty"`
	Volume   *int          `json:"volume,omitempty"`
	Filters  *Filters      `json:"filters,omitempty"`
	Voice    *voicePayload `json:"voice,omitempty"`
}

// updateTrack with a nil Encoded stops the player.
type updateTrack struct {
	Encoded *string `json:"encoded"`
}

type voicePayload struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
	ChannelID string `json:"channelId,omitempty"`
}

type sessionUpdate struct {
	Resuming bool `json:"resuming"`
	Timeout  int  `json:"timeout"` // Seconds
}

type apiError struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// message is any payload received on the websocket.
type message struct {
	Op string `json:"op"`

	// ready
	Resumed   bool   `json:"resumed"`
	SessionID string `json:"sessionId"`

	// playerUpdate and event
	GuildID string `json:"guildId"`

	// playerUpdate
	State struct {
		Time      int64 `json:"time"`
		Position  int64 `json:"position"`
		Connected bool  `json:"connected"`
		Ping      int   `json:"ping"`
	} `json:"state"`

	// event
	Type      string         `json:"type"`
	Track     *Track         `json:"track"`
	Reason    string         `json:"reason"`
	Exception *exceptionData `json:"exception"`
	Threshold int64          `json:"thresholdMs"`
	Code      int            `json:"code"`
}

func ptr[T any](v T) *T {
	return &v
}
