package playback

import (
	"context"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/domain/player"
	"github.com/osa030/guildbox/internal/domain/track"
)

// Info is a point-in-time view of a guild's playback.
type Info struct {
	GuildID        snowflake.ID
	VoiceChannelID snowflake.ID
	State          State
	Current        *track.QueueEntry
	Position       time.Duration
	QueuePosition  int // 1-based, 0 when nothing is current
	QueueLength    int
	Effects        []string
	Settings       player.Settings
}

// Join connects the guild's player to a voice channel.
func (c *Controller) Join(ctx context.Context, channelID snowflake.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed() {
		return ErrClosed
	}
	if err := c.backend.Join(ctx, c.guildID, channelID); err != nil {
		return errors.Wrapf(err, "failed to join voice channel %s", channelID)
	}
	c.voiceChannelID = channelID
	return nil
}

// Leave stops playback and disconnects from voice. The queue is kept.
func (c *Controller) Leave(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		if err := c.clearCurrentLocked(ctx); err != nil {
			return err
		}
	}
	if err := c.backend.Leave(ctx, c.guildID); err != nil {
		return errors.Wrap(err, "failed to leave voice channel")
	}
	c.voiceChannelID = 0
	c.state = StateIdle
	return nil
}

// BindTextChannel sets the channel that receives now-playing messages when
// no voice text channel is configured.
func (c *Controller) BindTextChannel(channelID snowflake.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.textChannelID = channelID
}

// Enqueue appends tracks to the queue and starts the first of them when idle.
// Without a voice channel the tracks stay queued and ErrNotConnected is returned.
func (c *Controller) Enqueue(ctx context.Context, tracks []track.Track, requesterID snowflake.ID) ([]track.QueueEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed() {
		return nil, ErrClosed
	}
	if len(tracks) == 0 {
		return nil, nil
	}

	added, err := c.queue.Append(ctx, c.guildID, tracks, requesterID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to append tracks")
	}

	zlog.Info().Msgf("playback: enqueued guild=%s count=%d requester=%s", c.guildID, len(added), requesterID)

	if c.current == nil && c.state == StateIdle && len(added) > 0 {
		if c.voiceChannelID == 0 {
			return added, ErrNotConnected
		}
		if err := c.playLocked(ctx, added[0]); err != nil {
			return added, err
		}
	}
	return added, nil
}

// Play starts a specific queued entry.
func (c *Controller) Play(ctx context.Context, entry track.QueueEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed() {
		return ErrClosed
	}

	queue, err := c.queue.Queue(ctx, c.guildID)
	if err != nil {
		return errors.Wrap(err, "failed to load queue")
	}
	queued, ok := track.Find(queue, entry.Index)
	if !ok {
		return errors.Wrapf(ErrEntryNotQueued, "index %d", entry.Index)
	}
	return c.playLocked(ctx, queued)
}

// Skip moves to the next entry, wrapping around in queue repeat mode.
// With nothing left to play, playback stops.
func (c *Controller) Skip(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return ErrNoTrack
	}

	queue, err := c.queue.Queue(ctx, c.guildID)
	if err != nil {
		return errors.Wrap(err, "failed to load queue")
	}
	settings, err := c.settings.Settings(ctx, c.guildID)
	if err != nil {
		return errors.Wrap(err, "failed to load settings")
	}

	next, ok := track.After(queue, c.current.Index)
	if !ok && settings.RepeatMode == player.RepeatQueue && len(queue) > 0 {
		next, ok = queue[0], true
	}
	if !ok {
		return c.stopLocked(ctx)
	}
	return c.playLocked(ctx, next)
}

// Stop halts playback and clears the current pointer. The queue is kept.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stopLocked(ctx)
}

// Pause pauses the current track.
func (c *Controller) Pause(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return ErrNoTrack
	}
	if c.state != StatePlaying {
		return ErrNotPlaying
	}
	if err := c.backend.Pause(ctx, c.guildID); err != nil {
		return errors.Wrap(err, "failed to pause")
	}
	c.position = c.positionLocked()
	c.positionAt = c.now()
	c.state = StatePaused
	return nil
}

// Resume resumes a paused track.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return ErrNoTrack
	}
	if c.state != StatePaused {
		return ErrNotPaused
	}
	if err := c.backend.Resume(ctx, c.guildID); err != nil {
		return errors.Wrap(err, "failed to resume")
	}
	c.positionAt = c.now()
	c.state = StatePlaying
	return nil
}

// Seek moves the current track to position.
func (c *Controller) Seek(ctx context.Context, position time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return ErrNoTrack
	}
	if position < 0 {
		position = 0
	}
	if d := c.current.Track.Duration; d > 0 && position > d {
		position = d
	}
	if err := c.backend.Seek(ctx, c.guildID, position); err != nil {
		return errors.Wrap(err, "failed to seek")
	}
	c.position = position
	c.positionAt = c.now()
	return nil
}

// SetVolume persists the volume and applies it to an active player.
func (c *Controller) SetVolume(ctx context.Context, volume int) error {
	if !player.ValidVolume(volume) {
		return ErrInvalidVolume
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.updateSettingsLocked(ctx, func(s *player.Settings) { s.Volume = volume }); err != nil {
		return err
	}
	if c.current == nil {
		return nil
	}
	if err := c.backend.SetVolume(ctx, c.guildID, volume); err != nil {
		return errors.Wrap(err, "failed to apply volume")
	}
	return nil
}

// SetRepeatMode persists the repeat mode.
func (c *Controller) SetRepeatMode(ctx context.Context, mode player.RepeatMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.updateSettingsLocked(ctx, func(s *player.Settings) { s.RepeatMode = mode })
}

// SetAutoplay persists the number of tracks to append when the queue runs out. Zero disables autoplay.
func (c *Controller) SetAutoplay(ctx context.Context, count int) error {
	if count < 0 {
		return ErrInvalidAutoplay
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.updateSettingsLocked(ctx, func(s *player.Settings) { s.AutoplayCount = count })
}

// SetDJRole sets or clears the DJ role.
func (c *Controller) SetDJRole(ctx context.Context, roleID *snowflake.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.updateSettingsLocked(ctx, func(s *player.Settings) { s.DJRoleID = roleID })
}

// SetTextChannel sets or clears the channel used for now-playing messages.
func (c *Controller) SetTextChannel(ctx context.Context, channelID *snowflake.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.updateSettingsLocked(ctx, func(s *player.Settings) { s.VoiceTextChannelID = channelID })
}

// SetVoteSkip configures vote skipping.
func (c *Controller) SetVoteSkip(ctx context.Context, enabled bool, thresholdPct int) error {
	if thresholdPct < 1 || thresholdPct > 100 {
		return ErrInvalidVoteSkip
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.updateSettingsLocked(ctx, func(s *player.Settings) {
		s.VoteSkipEnabled = enabled
		s.VoteSkipThresholdPct = thresholdPct
	})
}

// RestoreSettings applies saved volume, repeat mode and autoplay count in one step.
// The volume is pushed to the backend even without a current track.
func (c *Controller) RestoreSettings(ctx context.Context, volume int, mode player.RepeatMode, autoplayCount int) error {
	if !player.ValidVolume(volume) {
		return ErrInvalidVolume
	}
	if autoplayCount < 0 {
		return ErrInvalidAutoplay
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.updateSettingsLocked(ctx, func(s *player.Settings) {
		s.Volume = volume
		s.RepeatMode = mode
		s.AutoplayCount = autoplayCount
	})
	if err != nil {
		return err
	}
	if err := c.backend.SetVolume(ctx, c.guildID, volume); err != nil {
		return errors.Wrap(err, "failed to apply volume")
	}
	return nil
}

// SetEffects replaces the active audio effects. An empty list clears them.
func (c *Controller) SetEffects(ctx context.Context, effects []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.backend.SetEffects(ctx, c.guildID, effects); err != nil {
		return errors.Wrap(err, "failed to apply effects")
	}
	c.effects = slices.Clone(effects)
	return nil
}

// Remove deletes a queued entry that is not currently playing.
func (c *Controller) Remove(ctx context.Context, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && c.current.Index == index {
		return ErrEntryPlaying
	}

	queue, err := c.queue.Queue(ctx, c.guildID)
	if err != nil {
		return errors.Wrap(err, "failed to load queue")
	}
	if _, ok := track.Find(queue, index); !ok {
		return errors.Wrapf(ErrEntryNotQueued, "index %d", index)
	}
	if err := c.queue.Remove(ctx, c.guildID, index); err != nil {
		return errors.Wrapf(err, "failed to remove entry %d", index)
	}
	return nil
}

// ClearQueue stops playback and removes every entry.
func (c *Controller) ClearQueue(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		if err := c.stopLocked(ctx); err != nil {
			return err
		}
	}
	if err := c.queue.ClearQueue(ctx, c.guildID); err != nil {
		return errors.Wrap(err, "failed to clear queue")
	}
	c.exhaustedIndex = 0
	return nil
}

// Queue returns the guild's queue ordered by index.
func (c *Controller) Queue(ctx context.Context) ([]track.QueueEntry, error) {
	return c.queue.Queue(ctx, c.guildID)
}

// NowPlaying returns the current playback view.
func (c *Controller) NowPlaying(ctx context.Context) (Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	queue, err := c.queue.Queue(ctx, c.guildID)
	if err != nil {
		return Info{}, errors.Wrap(err, "failed to load queue")
	}
	settings, err := c.settings.Settings(ctx, c.guildID)
	if err != nil {
		return Info{}, errors.Wrap(err, "failed to load settings")
	}

	info := Info{
		GuildID:        c.guildID,
		VoiceChannelID: c.voiceChannelID,
		State:          c.state,
		Position:       c.positionLocked(),
		QueueLength:    len(queue),
		Effects:        slices.Clone(c.effects),
		Settings:       settings,
	}
	if c.current != nil {
		entry := *c.current
		info.Current = &entry
		info.QueuePosition = track.Position(queue, entry.Index)
	}
	return info, nil
}

// State returns the playback state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Current returns a copy of the current entry, or nil when nothing is current.
func (c *Controller) Current() *track.QueueEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return nil
	}
	entry := *c.current
	return &entry
}

// Snapshot captures the resumable state of an active player.
// It reports false when nothing is playing or paused. LastUpdateTime is left for the caller.
func (c *Controller) Snapshot(ctx context.Context) (player.Snapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Active() || c.current == nil || c.voiceChannelID == 0 {
		return player.Snapshot{}, false, nil
	}

	settings, err := c.settings.Settings(ctx, c.guildID)
	if err != nil {
		return player.Snapshot{}, false, errors.Wrap(err, "failed to load settings")
	}

	return player.Snapshot{
		GuildID:        c.guildID,
		VoiceChannelID: c.voiceChannelID,
		Position:       c.positionLocked(),
		IsPlaying:      c.state == StatePlaying,
		IsPaused:       c.state == StatePaused,
		Volume:         settings.Volume,
		RepeatMode:     settings.RepeatMode,
		AutoplayCount:  settings.AutoplayCount,
	}, true, nil
}

func (c *Controller) updateSettingsLocked(ctx context.Context, fn func(*player.Settings)) error {
	settings, err := c.settings.Settings(ctx, c.guildID)
	if err != nil {
		return errors.Wrap(err, "failed to load settings")
	}
	fn(&settings)
	if err := c.settings.SaveSettings(ctx, settings); err != nil {
		return errors.Wrap(err, "failed to save settings")
	}
	return nil
}
