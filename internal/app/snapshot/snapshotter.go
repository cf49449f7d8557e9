// Package snapshot persists a guild's resumable playback state on a fixed interval.
package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/domain/player"
)

// DefaultInterval is the snapshot period.
const DefaultInterval = time.Second

// Source produces the current snapshot of a player.
// ok is false when the player is neither playing nor paused.
type Source interface {
	Snapshot(ctx context.Context) (snap player.Snapshot, ok bool, err error)
}

// Store persists snapshots.
type Store interface {
	Save(ctx context.Context, snap player.Snapshot) error
}

// Metrics records snapshot writes.
type Metrics interface {
	SnapshotWritten(ok bool)
}

// Config holds snapshotter configuration.
type Config struct {
	Interval     time.Duration
	WriteTimeout time.Duration
}

// Snapshotter writes one guild's snapshot every interval while the player is active.
type Snapshotter struct {
	guildID snowflake.ID
	source  Source
	store   Store
	metrics Metrics
	config  Config
	now     func() time.Time

	writeMu    sync.Mutex
	lastUpdate time.Time

	stopCh    chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

// New creates a snapshotter. Call Start to begin ticking.
func New(guildID snowflake.ID, source Source, store Store, config Config, metrics Metrics) *Snapshotter {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = config.Interval
	}
	return &Snapshotter{
		guildID: guildID,
		source:  source,
		store:   store,
		metrics: metrics,
		config:  config,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the ticker. Calling it more than once has no effect.
func (s *Snapshotter) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.loop()
	})
}

func (s *Snapshotter) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick never lets a failure escape; the next tick simply tries again.
func (s *Snapshotter) tick() {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("snapshot: panic guild=%s: %v", s.guildID, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.WriteTimeout)
	defer cancel()

	if err := s.write(ctx); err != nil {
		zlog.Warn().Err(err).Msgf("snapshot: tick failed guild=%s", s.guildID)
	}
}

// ForceUpdate writes a snapshot immediately, outside the regular schedule.
// It writes nothing when the player is idle.
func (s *Snapshotter) ForceUpdate(ctx context.Context) error {
	return s.write(ctx)
}

func (s *Snapshotter) write(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap, ok, err := s.source.Snapshot(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to capture snapshot")
	}
	if !ok {
		return nil
	}

	now := s.now()
	if now.Before(s.lastUpdate) {
		now = s.lastUpdate
	}
	snap.LastUpdateTime = now

	err = s.store.Save(ctx, snap)
	if s.metrics != nil {
		s.metrics.SnapshotWritten(err == nil)
	}
	if err != nil {
		return errors.Wrap(err, "failed to save snapshot")
	}
	s.lastUpdate = now
	return nil
}

// LastUpdate returns the time of the last successful write.
func (s *Snapshotter) LastUpdate() time.Time {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.lastUpdate
}

// Close stops the ticker and waits for an in-flight tick. It is safe to call more than once.
func (s *Snapshotter) Close() {
	s.closeOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}
