// Package recovery restores guild playback from snapshots after a restart.
package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/osa030/guildbox/internal/app/notification"
	"github.com/osa030/guildbox/internal/domain/player"
	"github.com/osa030/guildbox/internal/domain/track"
)

var (
	ErrStaleSnapshot   = errors.New("snapshot is stale")
	ErrMissingResource = errors.New("resource no longer exists")
)

// Outcome is the result of recovering one guild.
type Outcome string

const (
	OutcomeRecovered Outcome = "recovered"
	OutcomeAbsent    Outcome = "absent"  // No snapshot
	OutcomeStale     Outcome = "stale"   // Snapshot older than the staleness threshold
	OutcomeMissing   Outcome = "missing" // Voice channel, queue or current entry gone
	OutcomeFailed    Outcome = "failed"
	OutcomeKept      Outcome = "kept" // Cancelled; snapshot left for a later run
)

// SnapshotStore lists, reads and deletes snapshots.
type SnapshotStore interface {
	List(ctx context.Context) ([]snowflake.ID, error)
	Get(ctx context.Context, guildID snowflake.ID) (*player.Snapshot, error)
	Delete(ctx context.Context, guildID snowflake.ID) error
}

// QueueStore reads a guild's queue and current pointer.
type QueueStore interface {
	Queue(ctx context.Context, guildID snowflake.ID) ([]track.QueueEntry, error)
	Current(ctx context.Context, guildID snowflake.ID) (*track.QueueEntry, error)
}

// SettingsStore reads per-guild settings.
type SettingsStore interface {
	Settings(ctx context.Context, guildID snowflake.ID) (player.Settings, error)
}

// Roster answers questions about the live guild state.
type Roster interface {
	VoiceChannelExists(guildID, channelID snowflake.ID) bool
	CanPost(guildID, channelID snowflake.ID) bool
	PostableChannels(guildID snowflake.ID) []snowflake.ID
	DefaultChannel(guildID snowflake.ID) (snowflake.ID, bool)
}

// Player is the part of a playback controller recovery drives.
type Player interface {
	Join(ctx context.Context, channelID snowflake.ID) error
	BindTextChannel(channelID snowflake.ID)
	RestoreSettings(ctx context.Context, volume int, mode player.RepeatMode, autoplayCount int) error
	Play(ctx context.Context, entry track.QueueEntry) error
	Seek(ctx context.Context, position time.Duration) error
	Pause(ctx context.Context) error
	Current() *track.QueueEntry
}

// AcquireFunc returns the guild's player, creating it if absent.
type AcquireFunc func(guildID snowflake.ID) (Player, error)

// Notifier posts messages to text channels.
type Notifier interface {
	Send(ctx context.Context, channelID snowflake.ID, msg notification.Message) error
}

// Metrics records recovery outcomes.
type Metrics interface {
	GuildRecovered(outcome string)
}

// Deps holds the collaborators of a Coordinator. Notifier and Metrics are optional.
type Deps struct {
	Snapshots SnapshotStore
	Queue     QueueStore
	Settings  SettingsStore
	Roster    Roster
	Acquire   AcquireFunc
	Notifier  Notifier
	Metrics   Metrics
}

// Config holds recovery configuration.
type Config struct {
	Staleness   time.Duration // Snapshots older than this are discarded
	Concurrency int           // Guilds recovered at once
	JoinRate    float64       // Voice joins per second
	JoinBurst   int
}

const (
	DefaultConcurrency = 5
	defaultJoinRate    = 2
	defaultJoinBurst   = 5
)

// Report summarizes one recovery run.
type Report struct {
	Recovered int
	Skipped   int // Absent, stale or missing
	Failed    int
	Kept      int
	Outcomes  map[snowflake.ID]Outcome
}

// Coordinator restores playback for every guild with a usable snapshot.
type Coordinator struct {
	deps    Deps
	config  Config
	limiter *rate.Limiter
	now     func() time.Time
}

// NewCoordinator creates a recovery coordinator.
func NewCoordinator(deps Deps, config Config) *Coordinator {
	if config.Staleness <= 0 {
		config.Staleness = player.StalenessThreshold
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	if config.JoinRate <= 0 {
		config.JoinRate = defaultJoinRate
	}
	if config.JoinBurst <= 0 {
		config.JoinBurst = defaultJoinBurst
	}
	return &Coordinator{
		deps:    deps,
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.JoinRate), config.JoinBurst),
		now:     time.Now,
	}
}

// Run recovers every guild that has a snapshot and returns once all of them have finished.
// A failure in one guild never affects the others; only listing the snapshots can fail the run.
func (c *Coordinator) Run(ctx context.Context) (Report, error) {
	runID := uuid.New().String()

	ids, err := c.deps.Snapshots.List(ctx)
	if err != nil {
		return Report{}, errors.Wrap(err, "failed to list snapshots")
	}

	zlog.Info().Msgf("recovery: starting run=%s guilds=%d concurrency=%d", runID, len(ids), c.config.Concurrency)

	var (
		mu       sync.Mutex
		outcomes = make(map[snowflake.ID]Outcome, len(ids))
	)

	var g errgroup.Group
	g.SetLimit(c.config.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			outcome := c.recoverIsolated(ctx, runID, id)

			mu.Lock()
			outcomes[id] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Outcomes: outcomes}
	for _, o := range outcomes {
		switch o {
		case OutcomeRecovered:
			report.Recovered++
		case OutcomeFailed:
			report.Failed++
		case OutcomeKept:
			report.Kept++
		default:
			report.Skipped++
		}
	}

	zlog.Info().Msgf("recovery: finished run=%s recovered=%d skipped=%d failed=%d kept=%d",
		runID, report.Recovered, report.Skipped, report.Failed, report.Kept)
	return report, nil
}

// recoverIsolated runs one guild's recovery and converts a panic into a failure.
// The snapshot is deleted afterwards unless it was absent or the run was cancelled before finishing.
func (c *Coordinator) recoverIsolated(ctx context.Context, runID string, guildID snowflake.ID) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("recovery: panic run=%s guild=%s: %v", runID, guildID, r)
			outcome = OutcomeFailed
		}
		if ctx.Err() != nil && outcome == OutcomeFailed {
			outcome = OutcomeKept
		}
		if outcome != OutcomeAbsent && outcome != OutcomeKept {
			c.deleteSnapshot(ctx, runID, guildID)
		}
		if c.deps.Metrics != nil {
			c.deps.Metrics.GuildRecovered(string(outcome))
		}
	}()

	err := c.recoverGuild(ctx, runID, guildID)
	switch {
	case err == nil:
		zlog.Info().Msgf("recovery: resumed run=%s guild=%s", runID, guildID)
		return OutcomeRecovered
	case errors.Is(err, errAbsent):
		return OutcomeAbsent
	case errors.Is(err, ErrStaleSnapshot):
		zlog.Info().Msgf("recovery: discarded stale snapshot run=%s guild=%s", runID, guildID)
		return OutcomeStale
	case errors.Is(err, ErrMissingResource):
		zlog.Info().Err(err).Msgf("recovery: skipped run=%s guild=%s", runID, guildID)
		return OutcomeMissing
	default:
		zlog.Error().Err(err).Msgf("recovery: failed run=%s guild=%s", runID, guildID)
		return OutcomeFailed
	}
}

var errAbsent = errors.New("no snapshot")

func (c *Coordinator) recoverGuild(ctx context.Context, runID string, guildID snowflake.ID) error {
	snap, err := c.deps.Snapshots.Get(ctx, guildID)
	if errors.Is(err, player.ErrNoSnapshot) || (err == nil && snap == nil) {
		return errAbsent
	}
	if err != nil {
		return errors.Wrap(err, "failed to load snapshot")
	}

	if snap.IsStale(c.now(), c.config.Staleness) {
		return errors.Wrapf(ErrStaleSnapshot, "last update %s", snap.LastUpdateTime.Format(time.RFC3339))
	}

	if !c.deps.Roster.VoiceChannelExists(guildID, snap.VoiceChannelID) {
		return errors.Wrapf(ErrMissingResource, "voice channel %s", snap.VoiceChannelID)
	}

	queue, err := c.deps.Queue.Queue(ctx, guildID)
	if err != nil {
		return errors.Wrap(err, "failed to load queue")
	}
	if len(queue) == 0 {
		return errors.Wrap(ErrMissingResource, "queue is empty")
	}
	current, err := c.deps.Queue.Current(ctx, guildID)
	if err != nil {
		return errors.Wrap(err, "failed to load current entry")
	}
	if current == nil {
		return errors.Wrap(ErrMissingResource, "no current entry")
	}

	settings, err := c.deps.Settings.Settings(ctx, guildID)
	if err != nil {
		return errors.Wrap(err, "failed to load settings")
	}
	textChannelID, hasText := c.notificationChannel(guildID, settings)

	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "join rate limit")
	}

	p, err := c.deps.Acquire(guildID)
	if err != nil {
		return errors.Wrap(err, "failed to acquire player")
	}
	if err := p.Join(ctx, snap.VoiceChannelID); err != nil {
		return errors.Wrap(err, "failed to join voice channel")
	}
	if hasText {
		p.BindTextChannel(textChannelID)
	}
	if err := p.RestoreSettings(ctx, snap.Volume, snap.RepeatMode, snap.AutoplayCount); err != nil {
		return errors.Wrap(err, "failed to restore settings")
	}
	if err := p.Play(ctx, *current); err != nil {
		return errors.Wrap(err, "failed to resume track")
	}

	// A refused entry is skipped by the player; the saved position belongs to it alone.
	started := p.Current()
	if started == nil {
		return errors.Wrapf(ErrMissingResource, "entry %d could not be loaded", current.Index)
	}
	position := snap.Position
	if started.Index != current.Index {
		zlog.Warn().Msgf("recovery: saved entry refused run=%s guild=%s index=%d started=%d",
			runID, guildID, current.Index, started.Index)
		position = 0
	}
	if position > 0 {
		if err := p.Seek(ctx, position); err != nil {
			return errors.Wrap(err, "failed to seek")
		}
	}
	if snap.IsPaused {
		if err := p.Pause(ctx); err != nil {
			return errors.Wrap(err, "failed to pause")
		}
	}

	zlog.Debug().Msgf("recovery: playback restored run=%s guild=%s index=%d position=%s",
		runID, guildID, started.Index, position)

	if hasText && c.deps.Notifier != nil {
		msg := notification.Resumed(*started, position, snap.IsPaused)
		if err := c.deps.Notifier.Send(ctx, textChannelID, msg); err != nil {
			zlog.Warn().Err(err).Msgf("recovery: resume notification failed run=%s guild=%s", runID, guildID)
		}
	}
	return nil
}

// notificationChannel picks the configured text channel if postable, else any
// postable channel, else the guild default channel.
func (c *Coordinator) notificationChannel(guildID snowflake.ID, settings player.Settings) (snowflake.ID, bool) {
	if id := settings.VoiceTextChannelID; id != nil && c.deps.Roster.CanPost(guildID, *id) {
		return *id, true
	}
	if ids := c.deps.Roster.PostableChannels(guildID); len(ids) > 0 {
		return ids[0], true
	}
	return c.deps.Roster.DefaultChannel(guildID)
}

func (c *Coordinator) deleteSnapshot(ctx context.Context, runID string, guildID snowflake.ID) {
	// The run context may be done after a panic; deletion still has to happen.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := c.deps.Snapshots.Delete(ctx, guildID); err != nil {
		zlog.Warn().Err(err).Msgf("recovery: failed to delete snapshot run=%s guild=%s", runID, guildID)
	}
}
