// Package session provides the session manager that owns one playback session per guild.
package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/playback"
	"github.com/osa030/guildbox/internal/app/snapshot"
	"github.com/osa030/guildbox/internal/domain/player"
	"github.com/osa030/guildbox/internal/domain/track"
)

var (
	ErrSessionNotFound = errors.New("no session for guild")
	ErrManagerClosed   = errors.New("session manager closed")
)

// SnapshotStore persists and discards snapshots.
type SnapshotStore interface {
	snapshot.Store
	Delete(ctx context.Context, guildID snowflake.ID) error
}

// Metrics records session activity.
type Metrics interface {
	playback.Metrics
	snapshot.Metrics
	PlayerCreated()
	PlayerRemoved()
}

// Config holds per-session configuration.
type Config struct {
	Playback playback.Config
	Snapshot snapshot.Config
}

// Session is one guild's controller and the snapshotter that tracks it.
type Session struct {
	Controller  *playback.Controller
	snapshotter *snapshot.Snapshotter
}

// Manager creates, looks up and tears down guild sessions.
type Manager struct {
	mu sync.RWMutex

	sessions map[snowflake.ID]*Session
	closed   bool

	// Shared by every session
	deps      playback.Deps
	snapshots SnapshotStore
	metrics   Metrics
	config    Config
}

// NewManager creates a new session manager.
// deps.Metrics is replaced by metrics so every session reports to the same collector.
func NewManager(deps playback.Deps, snapshots SnapshotStore, metrics Metrics, config Config) *Manager {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	deps.Metrics = metrics
	return &Manager{
		sessions:  make(map[snowflake.ID]*Session),
		deps:      deps,
		snapshots: snapshots,
		metrics:   metrics,
		config:    config,
	}
}

// GetOrCreate returns the guild's controller, creating the session on first use.
func (m *Manager) GetOrCreate(guildID snowflake.ID) (*playback.Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if s, ok := m.sessions[guildID]; ok {
		return s.Controller, nil
	}

	ctrl := playback.NewController(guildID, m.deps, m.config.Playback)
	snap := snapshot.New(guildID, ctrl, m.snapshots, m.config.Snapshot, m.metrics)
	snap.Start()

	m.sessions[guildID] = &Session{Controller: ctrl, snapshotter: snap}
	m.metrics.PlayerCreated()

	zlog.Info().Msgf("session: created guild=%s", guildID)
	return ctrl, nil
}

// Get returns the guild's controller if a session exists.
func (m *Manager) Get(guildID snowflake.ID) (*playback.Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[guildID]
	if !ok {
		return nil, false
	}
	return s.Controller, true
}

// Guilds returns the guilds with a live session, sorted.
func (m *Manager) Guilds() []snowflake.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]snowflake.ID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Remove ends a guild's session on request: the player leaves voice and the
// snapshot is discarded so the guild is not resumed after a restart.
func (m *Manager) Remove(ctx context.Context, guildID snowflake.ID) error {
	m.mu.Lock()
	s, ok := m.sessions[guildID]
	if ok {
		delete(m.sessions, guildID)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	s.snapshotter.Close()
	err := s.Controller.Leave(ctx)
	s.Controller.Close()
	m.metrics.PlayerRemoved()

	if derr := m.snapshots.Delete(ctx, guildID); derr != nil {
		err = errors.CombineErrors(err, errors.Wrap(derr, "failed to delete snapshot"))
	}

	zlog.Info().Msgf("session: removed guild=%s", guildID)
	return err
}

// ForceUpdateAll writes a fresh snapshot for every session.
// Failures are logged per guild and do not stop the others.
func (m *Manager) ForceUpdateAll(ctx context.Context) error {
	m.mu.RLock()
	sessions := make(map[snowflake.ID]*Session, len(m.sessions))
	for id, s := range m.sessions {
		sessions[id] = s
	}
	m.mu.RUnlock()

	var failed int
	for id, s := range sessions {
		if err := s.snapshotter.ForceUpdate(ctx); err != nil {
			failed++
			zlog.Error().Err(err).Msgf("session: force snapshot failed guild=%s", id)
		}
	}
	if failed > 0 {
		return errors.Newf("force snapshot failed for %d of %d guilds", failed, len(sessions))
	}
	return nil
}

// Close stops every session. The backend players and snapshots are left in place
// so a later process can resume them.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[snowflake.ID]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.snapshotter.Close()
	}
	for _, s := range sessions {
		s.Controller.Close()
	}
}

// OnTrackStart routes a backend track-start event to the guild's controller.
func (m *Manager) OnTrackStart(guildID snowflake.ID, t track.Track) {
	m.dispatch(guildID, playback.Event{Type: playback.EventTrackStarted, Track: t})
}

// OnTrackEnd routes a backend track-end event to the guild's controller.
func (m *Manager) OnTrackEnd(guildID snowflake.ID, t track.Track, reason player.EndReason) {
	m.dispatch(guildID, playback.Event{Type: playback.EventTrackEnded, Track: t, Reason: reason})
}

// OnPlayerUpdate routes a backend position report to the guild's controller.
func (m *Manager) OnPlayerUpdate(guildID snowflake.ID, position time.Duration, at time.Time) {
	m.dispatch(guildID, playback.Event{Type: playback.EventPositionUpdated, Position: position, At: at})
}

func (m *Manager) dispatch(guildID snowflake.ID, ev playback.Event) {
	ctrl, ok := m.Get(guildID)
	if !ok {
		zlog.Debug().Msgf("session: dropped %s for unknown guild=%s", ev.Type, guildID)
		return
	}
	ctrl.Dispatch(ev)
}

type noopMetrics struct{}

func (noopMetrics) TrackEnded(string)    {}
func (noopMetrics) AutoplayAppended(int) {}
func (noopMetrics) SnapshotWritten(bool) {}
func (noopMetrics) PlayerCreated()       {}
func (noopMetrics) PlayerRemoved()       {}
