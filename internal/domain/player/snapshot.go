package player

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
)

// ErrNoSnapshot is returned by snapshot stores for a guild without a snapshot.
var ErrNoSnapshot = errors.New("no snapshot")

// StalenessThreshold is the maximum snapshot age accepted for recovery.
const StalenessThreshold = 15 * time.Minute

// Snapshot is the durable record of a guild's live playback state.
type Snapshot struct {
	GuildID        snowflake.ID  `json:"guild_id"`
	VoiceChannelID snowflake.ID  `json:"voice_channel_id"`
	Position       time.Duration `json:"position"`
	IsPlaying      bool          `json:"is_playing"`
	IsPaused       bool          `json:"is_paused"`
	Volume         int           `json:"volume"`
	RepeatMode     RepeatMode    `json:"repeat_mode"`
	AutoplayCount  int           `json:"autoplay_count"`
	LastUpdateTime time.Time     `json:"last_update_time"`
}

// IsStale reports whether the snapshot is older than threshold at now.
func (s Snapshot) IsStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(s.LastUpdateTime) > threshold
}

// Equal reports whether two snapshots match, ignoring LastUpdateTime.
func (s Snapshot) Equal(o Snapshot) bool {
	s.LastUpdateTime = time.Time{}
	o.LastUpdateTime = time.Time{}
	return s == o
}
