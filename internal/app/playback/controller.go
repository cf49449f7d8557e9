package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/notification"
	"github.com/osa030/guildbox/internal/domain/player"
	"github.com/osa030/guildbox/internal/domain/track"
)

// Errors
var (
	ErrNoTrack         = errors.New("no track playing")
	ErrNotPlaying      = errors.New("not playing")
	ErrNotPaused       = errors.New("not paused")
	ErrInvalidVolume   = errors.New("volume must be between 0 and 100")
	ErrInvalidAutoplay = errors.New("autoplay count must not be negative")
	ErrInvalidVoteSkip = errors.New("vote-skip threshold must be between 1 and 100")
	ErrEntryNotQueued  = errors.New("entry is not in the queue")
	ErrEntryPlaying    = errors.New("entry is currently playing")
	ErrNotConnected    = errors.New("not connected to a voice channel")
	ErrClosed          = errors.New("controller closed")
)

// Config holds controller configuration.
type Config struct {
	AutoplayTimeout time.Duration // Upper bound for one autoplay refill
	InboxSize       int           // Buffered backend events before track events block
}

const (
	defaultAutoplayTimeout = 30 * time.Second
	defaultInboxSize       = 64
)

// Controller manages playback for one guild.
// Every command and backend event is applied under mu, so a guild never observes
// two interleaved state changes.
type Controller struct {
	mu sync.Mutex

	guildID snowflake.ID

	// Collaborators
	backend  AudioBackend
	queue    QueueStore
	settings SettingsStore
	notifier Notifier
	refiller Refiller
	metrics  Metrics

	// Connection
	voiceChannelID snowflake.ID
	textChannelID  snowflake.ID

	// Current track state
	current    *track.QueueEntry
	state      State
	position   time.Duration // Position at positionAt
	positionAt time.Time
	effects    []string

	// Autoplay
	refilling      bool
	exhaustedIndex int // Index of the entry that ended with nothing left to play

	config Config
	now    func() time.Time

	// Backend events
	inbox chan Event

	// Lifecycle
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewController creates a controller for guildID and starts its event loop.
func NewController(guildID snowflake.ID, deps Deps, config Config) *Controller {
	if config.AutoplayTimeout <= 0 {
		config.AutoplayTimeout = defaultAutoplayTimeout
	}
	if config.InboxSize <= 0 {
		config.InboxSize = defaultInboxSize
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		guildID:  guildID,
		backend:  deps.Backend,
		queue:    deps.Queue,
		settings: deps.Settings,
		notifier: deps.Notifier,
		refiller: deps.Refiller,
		metrics:  metrics,
		state:    StateIdle,
		config:   config,
		now:      time.Now,
		inbox:    make(chan Event, config.InboxSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	c.wg.Add(1)
	go c.eventLoop()
	return c
}

// GuildID returns the guild this controller serves.
func (c *Controller) GuildID() snowflake.ID {
	return c.guildID
}

// Dispatch queues a backend event for this guild.
// Position updates are dropped when the inbox is full; track events wait for room.
func (c *Controller) Dispatch(ev Event) {
	if ev.Type == EventPositionUpdated {
		select {
		case c.inbox <- ev:
		case <-c.ctx.Done():
		default:
			zlog.Debug().Msgf("playback: dropped position update guild=%s", c.guildID)
		}
		return
	}

	select {
	case c.inbox <- ev:
	case <-c.ctx.Done():
	}
}

func (c *Controller) eventLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.inbox:
			c.handleEvent(ev)
		}
	}
}

func (c *Controller) handleEvent(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("playback: panic while handling %s guild=%s: %v", ev.Type, c.guildID, r)
		}
	}()

	var err error
	switch ev.Type {
	case EventTrackStarted:
		c.OnTrackStarted(c.ctx, ev.Track)
	case EventTrackEnded:
		err = c.OnTrackEnded(c.ctx, ev.Track, ev.Reason)
	case EventPositionUpdated:
		c.OnPositionUpdated(ev.Position, ev.At)
	}
	if err != nil {
		zlog.Error().Err(err).Msgf("playback: failed to handle %s guild=%s", ev.Type, c.guildID)
	}
}

// OnTrackEnded applies the track-end transition for the current entry.
// Events for any other track are stale and ignored.
func (c *Controller) OnTrackEnded(ctx context.Context, ended track.Track, reason player.EndReason) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.TrackEnded(reason.String())

	if c.current == nil || c.current.Track.ID != ended.ID {
		zlog.Debug().Msgf("playback: ignored stale track end guild=%s title=%q reason=%s", c.guildID, ended.Title, reason)
		return nil
	}

	zlog.Info().Msgf("playback: track ended guild=%s index=%d reason=%s", c.guildID, c.current.Index, reason)

	err := c.endLocked(ctx, TrackEnd{Entry: *c.current, Reason: reason})
	if err != nil && (reason == player.EndFinished || reason == player.EndLoadFailed) {
		// The backend has nothing playing any more.
		if clearErr := c.clearCurrentLocked(ctx); clearErr != nil {
			zlog.Error().Err(clearErr).Msgf("playback: failed to clear current guild=%s", c.guildID)
			c.current = nil
			c.state = StateIdle
		}
	}
	return err
}

// OnTrackStarted marks the current entry as playing, announces it and starts
// an autoplay refill when the last queued entry begins.
func (c *Controller) OnTrackStarted(ctx context.Context, started track.Track) {
	msg, channelID, refill, ok := c.trackStarted(ctx, started)
	if !ok {
		return
	}

	if refill != nil {
		c.wg.Add(1)
		go c.refill(*refill)
	}

	if c.notifier != nil && channelID != 0 {
		// Send logs its own failures.
		_ = c.notifier.Send(ctx, channelID, msg)
	}
}

type refillRequest struct {
	seed  track.QueueEntry
	count int
}

func (c *Controller) trackStarted(ctx context.Context, started track.Track) (notification.Message, snowflake.ID, *refillRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || c.current.Track.ID != started.ID {
		zlog.Debug().Msgf("playback: ignored stale track start guild=%s title=%q", c.guildID, started.Title)
		return notification.Message{}, 0, nil, false
	}

	// playLocked already zeroed the position; a seek issued since then stands.
	if c.state != StatePaused {
		c.state = StatePlaying
	}

	queue, err := c.queue.Queue(ctx, c.guildID)
	if err != nil {
		zlog.Error().Err(err).Msgf("playback: failed to load queue guild=%s", c.guildID)
		return notification.Message{}, 0, nil, false
	}
	settings, err := c.settings.Settings(ctx, c.guildID)
	if err != nil {
		zlog.Error().Err(err).Msgf("playback: failed to load settings guild=%s", c.guildID)
		return notification.Message{}, 0, nil, false
	}

	entry := *c.current
	msg := notification.NowPlaying(notification.NowPlayingInfo{
		Entry:         entry,
		QueuePosition: track.Position(queue, entry.Index),
		QueueLength:   len(queue),
		Effects:       append([]string(nil), c.effects...),
		RepeatMode:    settings.RepeatMode,
		Volume:        settings.Volume,
		Paused:        c.state == StatePaused,
	})

	channelID := c.textChannelID
	if settings.VoiceTextChannelID != nil {
		channelID = *settings.VoiceTextChannelID
	}

	var refill *refillRequest
	isLast := len(queue) > 0 && queue[len(queue)-1].Index == entry.Index
	if isLast && settings.AutoplayCount > 0 && c.refiller != nil && !c.refilling {
		c.refilling = true
		refill = &refillRequest{seed: entry, count: settings.AutoplayCount}
	}

	return msg, channelID, refill, true
}

// OnPositionUpdated records the position reported by the backend.
func (c *Controller) OnPositionUpdated(position time.Duration, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return
	}
	if at.IsZero() {
		at = c.now()
	}
	c.position = position
	c.positionAt = at
}

// Close stops the event loop and waits for in-flight refills.
// The backend player is left untouched.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
	})
	c.wg.Wait()
}

func (c *Controller) closed() bool {
	return c.ctx.Err() != nil
}

// endLocked runs the transition for ev and applies its effects.
func (c *Controller) endLocked(ctx context.Context, ev TrackEnd) error {
	queue, err := c.queue.Queue(ctx, c.guildID)
	if err != nil {
		return errors.Wrap(err, "failed to load queue")
	}
	settings, err := c.settings.Settings(ctx, c.guildID)
	if err != nil {
		return errors.Wrap(err, "failed to load settings")
	}

	next, effects := Transition(Status{
		State:   c.state,
		Mode:    settings.RepeatMode,
		Queue:   queue,
		Current: c.current,
	}, ev)

	if len(effects) == 0 {
		c.state = next.State
		return nil
	}
	if next.Current == nil && ev.Reason == player.EndFinished {
		c.exhaustedIndex = ev.Entry.Index
	}
	return c.applyLocked(ctx, effects)
}

func (c *Controller) applyLocked(ctx context.Context, effects []Effect) error {
	for _, e := range effects {
		switch e.Type {
		case EffectRemove:
			if err := c.queue.Remove(ctx, c.guildID, e.Entry.Index); err != nil {
				return errors.Wrapf(err, "failed to remove entry %d", e.Entry.Index)
			}
		case EffectClearCurrent:
			if err := c.clearCurrentLocked(ctx); err != nil {
				return err
			}
		case EffectPlay:
			if err := c.playLocked(ctx, e.Entry); err != nil {
				return err
			}
		}
	}
	return nil
}

// playLocked starts entry on the backend and moves the current pointer to it.
// A refused track is handled as a load failure, which removes it and moves on.
func (c *Controller) playLocked(ctx context.Context, entry track.QueueEntry) error {
	err := c.backend.Play(ctx, c.guildID, entry.Track)
	if errors.Is(err, player.ErrLoadFailed) {
		zlog.Warn().Err(err).Msgf("playback: track refused guild=%s index=%d title=%q", c.guildID, entry.Index, entry.Track.Title)
		c.metrics.TrackEnded(player.EndLoadFailed.String())
		c.current = &entry
		return c.endLocked(ctx, TrackEnd{Entry: entry, Reason: player.EndLoadFailed})
	}
	if err != nil {
		return errors.Wrapf(err, "failed to play entry %d", entry.Index)
	}

	if err := c.queue.SetCurrent(ctx, c.guildID, entry.Index); err != nil {
		return errors.Wrapf(err, "failed to set current entry %d", entry.Index)
	}

	c.current = &entry
	c.state = StatePlaying
	c.position = 0
	c.positionAt = c.now()
	c.exhaustedIndex = 0

	zlog.Info().Msgf("playback: playing guild=%s index=%d title=%q", c.guildID, entry.Index, entry.Track.Title)
	return nil
}

func (c *Controller) clearCurrentLocked(ctx context.Context) error {
	if err := c.queue.ClearCurrent(ctx, c.guildID); err != nil {
		return errors.Wrap(err, "failed to clear current entry")
	}
	c.current = nil
	c.state = StateIdle
	c.position = 0
	return nil
}

func (c *Controller) stopLocked(ctx context.Context) error {
	if err := c.backend.Stop(ctx, c.guildID); err != nil {
		return errors.Wrap(err, "failed to stop backend")
	}
	return c.clearCurrentLocked(ctx)
}

// positionLocked extrapolates the playback position from the last sample.
func (c *Controller) positionLocked() time.Duration {
	if c.current == nil {
		return 0
	}
	pos := c.position
	if c.state == StatePlaying && !c.positionAt.IsZero() {
		pos += c.now().Sub(c.positionAt)
	}
	if d := c.current.Track.Duration; d > 0 && pos > d {
		pos = d
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}
