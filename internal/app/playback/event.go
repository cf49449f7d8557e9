package playback

import (
	"time"

	"github.com/osa030/guildbox/internal/domain/player"
	"github.com/osa030/guildbox/internal/domain/track"
)

// EventType represents an audio backend event type.
type EventType int

const (
	EventTrackStarted    EventType = iota // Backend started a track
	EventTrackEnded                       // Backend ended a track
	EventPositionUpdated                  // Backend reported the playback position
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackEnded:
		return "track_ended"
	case EventPositionUpdated:
		return "position_updated"
	default:
		return "unknown"
	}
}

// Event represents an audio backend event for one guild.
type Event struct {
	Type     EventType
	Track    track.Track      // Started or ended track
	Reason   player.EndReason // EventTrackEnded only
	Position time.Duration    // EventPositionUpdated only
	At       time.Time        // When the position was sampled
}
