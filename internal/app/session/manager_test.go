package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/guildbox/internal/app/playback"
	"github.com/osa030/guildbox/internal/app/snapshot"
	"github.com/osa030/guildbox/internal/domain/player"
	"github.com/osa030/guildbox/internal/domain/track"
	"github.com/osa030/guildbox/internal/infra/store"
)

type mockBackend struct {
	mu     sync.Mutex
	played []string
	left   []snowflake.ID
}

func (m *mockBackend) Join(ctx context.Context, guildID, channelID snowflake.ID) error { return nil }
func (m *mockBackend) Pause(ctx context.Context, guildID snowflake.ID) error           { return nil }
func (m *mockBackend) Resume(ctx context.Context, guildID snowflake.ID) error          { return nil }
func (m *mockBackend) Stop(ctx context.Context, guildID snowflake.ID) error            { return nil }

func (m *mockBackend) Seek(ctx context.Context, guildID snowflake.ID, position time.Duration) error {
	return nil
}

func (m *mockBackend) SetVolume(ctx context.Context, guildID snowflake.ID, volume int) error {
	return nil
}

func (m *mockBackend) SetEffects(ctx context.Context, guildID snowflake.ID, effects []string) error {
	return nil
}

func (m *mockBackend) Leave(ctx context.Context, guildID snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.left = append(m.left, guildID)
	return nil
}

func (m *mockBackend) Play(ctx context.Context, guildID snowflake.ID, t track.Track) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.played = append(m.played, t.ID)
	return nil
}

func (m *mockBackend) playedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.played)
}

type countingMetrics struct {
	mu      sync.Mutex
	created int
	removed int
}

func (c *countingMetrics) TrackEnded(string)    {}
func (c *countingMetrics) AutoplayAppended(int) {}
func (c *countingMetrics) SnapshotWritten(bool) {}

func (c *countingMetrics) PlayerCreated() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created++
}

func (c *countingMetrics) PlayerRemoved() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed++
}

func newManager(t *testing.T) (*Manager, *mockBackend, *store.MemoryStore, *countingMetrics) {
	t.Helper()

	backend := &mockBackend{}
	mem := store.NewMemory()
	metrics := &countingMetrics{}
	m := NewManager(playback.Deps{
		Backend:  backend,
		Queue:    mem,
		Settings: mem,
	}, mem, metrics, Config{
		// Long interval so only explicit updates write snapshots.
		Snapshot: snapshot.Config{Interval: time.Hour},
	})
	t.Cleanup(m.Close)
	return m, backend, mem, metrics
}

func TestManager_GetOrCreate(t *testing.T) {
	m, _, _, metrics := newManager(t)

	first, err := m.GetOrCreate(1)
	require.NoError(t, err)
	again, err := m.GetOrCreate(1)
	require.NoError(t, err)
	assert.Same(t, first, again)

	_, err = m.GetOrCreate(2)
	require.NoError(t, err)

	assert.Equal(t, []snowflake.ID{1, 2}, m.Guilds())
	assert.Equal(t, 2, metrics.created)

	_, ok := m.Get(3)
	assert.False(t, ok)
}

func TestManager_ForceUpdateAll(t *testing.T) {
	ctx := context.Background()
	m, _, mem, _ := newManager(t)

	active, err := m.GetOrCreate(1)
	require.NoError(t, err)
	require.NoError(t, active.Join(ctx, 10))
	_, err = active.Enqueue(ctx, []track.Track{{ID: "A", Title: "A"}}, 5)
	require.NoError(t, err)

	_, err = m.GetOrCreate(2) // idle
	require.NoError(t, err)

	require.NoError(t, m.ForceUpdateAll(ctx))

	ids, err := mem.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{1}, ids)

	snap, err := mem.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(10), snap.VoiceChannelID)
	assert.True(t, snap.IsPlaying)
	assert.False(t, snap.LastUpdateTime.IsZero())
}

func TestManager_Remove(t *testing.T) {
	ctx := context.Background()
	m, backend, mem, metrics := newManager(t)

	_, err := m.GetOrCreate(1)
	require.NoError(t, err)
	require.NoError(t, mem.Save(ctx, player.Snapshot{GuildID: 1}))

	require.NoError(t, m.Remove(ctx, 1))

	_, ok := m.Get(1)
	assert.False(t, ok)
	assert.Equal(t, []snowflake.ID{1}, backend.left)
	assert.Equal(t, 1, metrics.removed)

	_, err = mem.Get(ctx, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, m.Remove(ctx, 1), ErrSessionNotFound)
}

func TestManager_RoutesBackendEvents(t *testing.T) {
	ctx := context.Background()
	m, backend, _, _ := newManager(t)

	ctrl, err := m.GetOrCreate(1)
	require.NoError(t, err)
	require.NoError(t, ctrl.Join(ctx, 10))
	added, err := ctrl.Enqueue(ctx, []track.Track{{ID: "A", Title: "A"}, {ID: "B", Title: "B"}}, 5)
	require.NoError(t, err)

	// Unknown guilds are ignored.
	m.OnTrackEnd(99, added[0].Track, player.EndFinished)

	m.OnPlayerUpdate(1, 10*time.Second, time.Now())
	m.OnTrackEnd(1, added[0].Track, player.EndFinished)

	assert.Eventually(t, func() bool { return backend.playedCount() == 2 }, time.Second, 10*time.Millisecond)
}

func TestManager_CloseRejectsNewSessions(t *testing.T) {
	m, _, _, _ := newManager(t)

	_, err := m.GetOrCreate(1)
	require.NoError(t, err)

	m.Close()
	_, err = m.GetOrCreate(2)
	assert.ErrorIs(t, err, ErrManagerClosed)
	assert.Empty(t, m.Guilds())
}
