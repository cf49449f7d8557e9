// Package player provides per-guild player settings, end reasons, and playback snapshots.
package player

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
)

// RepeatMode governs what happens when the current track finishes.
type RepeatMode int

const (
	RepeatNone  RepeatMode = iota // Advance, stop at the end of the queue
	RepeatTrack                   // Replay the current entry
	RepeatQueue                   // Advance, wrap to the first entry
)

// String returns the string representation of the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatNone:
		return "none"
	case RepeatTrack:
		return "track"
	case RepeatQueue:
		return "queue"
	default:
		return "unknown"
	}
}

// ParseRepeatMode parses a repeat mode name.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "off", "":
		return RepeatNone, nil
	case "track", "song", "one":
		return RepeatTrack, nil
	case "queue", "all":
		return RepeatQueue, nil
	default:
		return RepeatNone, errors.Newf("unknown repeat mode: %s", s)
	}
}

// Default values applied when a guild's settings are first accessed.
const (
	DefaultVolume               = 100
	DefaultVoteSkipThresholdPct = 50
	MaxVolume                   = 100
)

// Settings holds durable per-guild player configuration.
type Settings struct {
	GuildID              snowflake.ID
	VoiceTextChannelID   *snowflake.ID
	DJRoleID             *snowflake.ID
	Volume               int
	RepeatMode           RepeatMode
	AutoplayCount        int
	VoteSkipEnabled      bool
	VoteSkipThresholdPct int
}

// DefaultSettings returns the settings a guild starts with.
func DefaultSettings(guildID snowflake.ID) Settings {
	return Settings{
		GuildID:              guildID,
		Volume:               DefaultVolume,
		RepeatMode:           RepeatNone,
		VoteSkipThresholdPct: DefaultVoteSkipThresholdPct,
	}
}

// ValidVolume reports whether v is an accepted volume.
func ValidVolume(v int) bool {
	return v >= 0 && v <= MaxVolume
}
