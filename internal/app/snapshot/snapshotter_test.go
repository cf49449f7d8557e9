package snapshot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/guildbox/internal/domain/player"
)

type mockSource struct {
	mu     sync.Mutex
	snap   player.Snapshot
	active bool
	err    error
}

func (m *mockSource) Snapshot(ctx context.Context) (player.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, m.active, m.err
}

type mockStore struct {
	mu    sync.Mutex
	saved []player.Snapshot
	fails int // Number of upcoming saves that fail
}

func (m *mockStore) Save(ctx context.Context, snap player.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fails > 0 {
		m.fails--
		return errors.New("disk full")
	}
	m.saved = append(m.saved, snap)
	return nil
}

func (m *mockStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

type mockMetrics struct {
	mu     sync.Mutex
	ok     int
	failed int
}

func (m *mockMetrics) SnapshotWritten(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.ok++
	} else {
		m.failed++
	}
}

func activeSource() *mockSource {
	return &mockSource{
		active: true,
		snap: player.Snapshot{
			GuildID:        1,
			VoiceChannelID: 2,
			Position:       42 * time.Second,
			IsPlaying:      true,
			Volume:         80,
			RepeatMode:     player.RepeatQueue,
			AutoplayCount:  3,
		},
	}
}

func TestForceUpdate_Idempotent(t *testing.T) {
	source := activeSource()
	store := &mockStore{}
	s := New(1, source, store, Config{}, nil)

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	require.NoError(t, s.ForceUpdate(context.Background()))
	require.NoError(t, s.ForceUpdate(context.Background()))

	require.Len(t, store.saved, 2)
	first, second := store.saved[0], store.saved[1]
	assert.True(t, first.Equal(second))
	assert.True(t, second.LastUpdateTime.After(first.LastUpdateTime))
}

func TestForceUpdate_LastUpdateNeverDecreases(t *testing.T) {
	store := &mockStore{}
	s := New(1, activeSource(), store, Config{}, nil)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(-time.Minute), base.Add(time.Second)}
	i := 0
	s.now = func() time.Time {
		v := times[i]
		i++
		return v
	}

	for range times {
		require.NoError(t, s.ForceUpdate(context.Background()))
	}

	require.Len(t, store.saved, 3)
	assert.Equal(t, base, store.saved[0].LastUpdateTime)
	assert.Equal(t, base, store.saved[1].LastUpdateTime)
	assert.Equal(t, base.Add(time.Second), store.saved[2].LastUpdateTime)
	assert.Equal(t, base.Add(time.Second), s.LastUpdate())
}

func TestForceUpdate_IdleWritesNothing(t *testing.T) {
	store := &mockStore{}
	s := New(1, &mockSource{}, store, Config{}, nil)

	require.NoError(t, s.ForceUpdate(context.Background()))
	assert.Empty(t, store.saved)
}

func TestForceUpdate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		source *mockSource
		store  *mockStore
	}{
		{name: "source error", source: &mockSource{err: errors.New("settings unavailable")}, store: &mockStore{}},
		{name: "store error", source: activeSource(), store: &mockStore{fails: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(1, tt.source, tt.store, Config{}, nil)
			assert.Error(t, s.ForceUpdate(context.Background()))
			assert.True(t, s.LastUpdate().IsZero())
		})
	}
}

func TestSnapshotter_TicksAndSurvivesFailures(t *testing.T) {
	store := &mockStore{fails: 2}
	metrics := &mockMetrics{}
	s := New(1, activeSource(), store, Config{Interval: 10 * time.Millisecond}, metrics)
	s.Start()
	s.Start()
	defer s.Close()

	assert.Eventually(t, func() bool {
		metrics.mu.Lock()
		defer metrics.mu.Unlock()
		return metrics.ok >= 2
	}, time.Second, 5*time.Millisecond)

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, 2, metrics.failed)
}

func TestSnapshotter_CloseStopsTicking(t *testing.T) {
	store := &mockStore{}
	s := New(1, activeSource(), store, Config{Interval: 5 * time.Millisecond}, nil)
	s.Start()

	assert.Eventually(t, func() bool { return store.count() > 0 }, time.Second, 5*time.Millisecond)
	s.Close()
	s.Close()

	n := store.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, store.count())
}
