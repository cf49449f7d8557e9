package playback

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/osa030/guildbox/internal/app/notification"
	"github.com/osa030/guildbox/internal/domain/player"
	"github.com/osa030/guildbox/internal/domain/track"
)

// AudioBackend drives a guild's audio player.
// Play returns an error wrapping player.ErrLoadFailed when the track is refused outright.
type AudioBackend interface {
	Join(ctx context.Context, guildID, channelID snowflake.ID) error
	Leave(ctx context.Context, guildID snowflake.ID) error
	Play(ctx context.Context, guildID snowflake.ID, t track.Track) error
	Pause(ctx context.Context, guildID snowflake.ID) error
	Resume(ctx context.Context, guildID snowflake.ID) error
	Seek(ctx context.Context, guildID snowflake.ID, position time.Duration) error
	SetVolume(ctx context.Context, guildID snowflake.ID, volume int) error
	SetEffects(ctx context.Context, guildID snowflake.ID, effects []string) error
	Stop(ctx context.Context, guildID snowflake.ID) error
}

// QueueStore persists a guild's queue and current pointer.
type QueueStore interface {
	Queue(ctx context.Context, guildID snowflake.ID) ([]track.QueueEntry, error)
	Append(ctx context.Context, guildID snowflake.ID, tracks []track.Track, requesterID snowflake.ID) ([]track.QueueEntry, error)
	Remove(ctx context.Context, guildID snowflake.ID, index int) error
	ClearQueue(ctx context.Context, guildID snowflake.ID) error
	Current(ctx context.Context, guildID snowflake.ID) (*track.QueueEntry, error)
	SetCurrent(ctx context.Context, guildID snowflake.ID, index int) error
	ClearCurrent(ctx context.Context, guildID snowflake.ID) error
}

// SettingsStore persists per-guild settings.
type SettingsStore interface {
	Settings(ctx context.Context, guildID snowflake.ID) (player.Settings, error)
	SaveSettings(ctx context.Context, settings player.Settings) error
}

// Notifier posts messages to text channels.
type Notifier interface {
	Send(ctx context.Context, channelID snowflake.ID, msg notification.Message) error
}

// Refiller finds tracks related to seed that are not already queued.
type Refiller interface {
	Refill(ctx context.Context, seed track.Track, queued []track.QueueEntry, count int) ([]track.Track, error)
}

// Metrics records playback activity.
type Metrics interface {
	TrackEnded(reason string)
	AutoplayAppended(n int)
}

// Deps holds the collaborators of a Controller.
// Notifier, Refiller and Metrics are optional.
type Deps struct {
	Backend  AudioBackend
	Queue    QueueStore
	Settings SettingsStore
	Notifier Notifier
	Refiller Refiller
	Metrics  Metrics
}

type noopMetrics struct{}

func (noopMetrics) TrackEnded(string)    {}
func (noopMetrics) AutoplayAppended(int) {}
