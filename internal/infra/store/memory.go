package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"

	"github.com/osa030/guildbox/internal/domain/player"
	"github.com/osa030/guildbox/internal/domain/track"
)

type memoryQueue struct {
	entries []track.QueueEntry
	current *int
	next    int
}

// MemoryStore is an in-process implementation of the settings, queue, and snapshot stores.
type MemoryStore struct {
	mu        sync.RWMutex
	settings  map[snowflake.ID]player.Settings
	queues    map[snowflake.ID]*memoryQueue
	snapshots map[snowflake.ID]player.Snapshot
	now       func() time.Time
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		settings:  make(map[snowflake.ID]player.Settings),
		queues:    make(map[snowflake.ID]*memoryQueue),
		snapshots: make(map[snowflake.ID]player.Snapshot),
		now:       time.Now,
	}
}

// Settings returns the guild's settings, creating defaults on first access.
func (m *MemoryStore) Settings(ctx context.Context, guildID snowflake.ID) (player.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.settings[guildID]
	if !ok {
		s = player.DefaultSettings(guildID)
		m.settings[guildID] = s
	}
	return s, nil
}

// SaveSettings writes the guild's settings.
func (m *MemoryStore) SaveSettings(ctx context.Context, settings player.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[settings.GuildID] = settings
	return nil
}

func (m *MemoryStore) queueLocked(guildID snowflake.ID) *memoryQueue {
	q, ok := m.queues[guildID]
	if !ok {
		q = &memoryQueue{next: 1}
		m.queues[guildID] = q
	}
	return q
}

// Queue returns a copy of the guild's queue ordered by index.
func (m *MemoryStore) Queue(ctx context.Context, guildID snowflake.ID) ([]track.QueueEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.queues[guildID]
	if !ok || len(q.entries) == 0 {
		return nil, nil
	}
	out := make([]track.QueueEntry, len(q.entries))
	copy(out, q.entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// Append adds tracks to the end of the guild's queue, allocating new indices.
func (m *MemoryStore) Append(ctx context.Context, guildID snowflake.ID, tracks []track.Track, requesterID snowflake.ID) ([]track.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queueLocked(guildID)
	now := m.now()
	added := make([]track.QueueEntry, 0, len(tracks))
	for _, t := range tracks {
		e := track.QueueEntry{Index: q.next, Track: t, RequesterID: requesterID, AddedAt: now}
		q.next++
		q.entries = append(q.entries, e)
		added = append(added, e)
	}
	return added, nil
}

// Remove deletes the entry with the given index, clearing the pointer if it referenced it.
func (m *MemoryStore) Remove(ctx context.Context, guildID snowflake.ID, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queueLocked(guildID)
	q.entries = track.Without(q.entries, index)
	if q.current != nil && *q.current == index {
		q.current = nil
	}
	return nil
}

// ClearQueue removes every entry and the current pointer.
func (m *MemoryStore) ClearQueue(ctx context.Context, guildID snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queueLocked(guildID)
	q.entries = nil
	q.current = nil
	return nil
}

// Current returns the entry referenced by the current pointer, or nil.
func (m *MemoryStore) Current(ctx context.Context, guildID snowflake.ID) (*track.QueueEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.queues[guildID]
	if !ok || q.current == nil {
		return nil, nil
	}
	e, ok := track.Find(q.entries, *q.current)
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// SetCurrent points the current pointer at an existing entry.
func (m *MemoryStore) SetCurrent(ctx context.Context, guildID snowflake.ID, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queueLocked(guildID)
	if _, ok := track.Find(q.entries, index); !ok {
		return errors.Wrapf(ErrNotFound, "queue entry %d", index)
	}
	q.current = &index
	return nil
}

// ClearCurrent removes the current pointer.
func (m *MemoryStore) ClearCurrent(ctx context.Context, guildID snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueLocked(guildID).current = nil
	return nil
}

// Get returns the guild's snapshot or ErrNotFound.
func (m *MemoryStore) Get(ctx context.Context, guildID snowflake.ID) (*player.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.snapshots[guildID]
	if !ok {
		return nil, errNoSnapshot
	}
	return &s, nil
}

// Save overwrites the guild's snapshot.
func (m *MemoryStore) Save(ctx context.Context, snap player.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.GuildID] = snap
	return nil
}

// Delete removes the guild's snapshot.
func (m *MemoryStore) Delete(ctx context.Context, guildID snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, guildID)
	return nil
}

// List returns the ids of every guild with a stored snapshot.
func (m *MemoryStore) List(ctx context.Context) ([]snowflake.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]snowflake.ID, 0, len(m.snapshots))
	for id := range m.snapshots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
