package store

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v3"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/domain/player"
)

const snapshotPrefix = "snapshot/"

// SnapshotConfig holds snapshot store configuration.
type SnapshotConfig struct {
	Dir        string        // Data directory (ignored when InMemory)
	InMemory   bool          // Keep everything in memory (tests)
	TTL        time.Duration // Expiry for each snapshot write (0 = none)
	GCInterval time.Duration // Value log GC interval (0 = disabled)
}

// SnapshotStore keeps one playback snapshot per guild in Badger.
type SnapshotStore struct {
	db  *badger.DB
	ttl time.Duration

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// OpenSnapshots opens the Badger snapshot store.
func OpenSnapshots(cfg SnapshotConfig) (*SnapshotStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, errors.New("snapshot store: dir is required")
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts.Logger = badgerLogger{}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open snapshot store")
	}

	s := &SnapshotStore{
		db:     db,
		ttl:    cfg.TTL,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		go s.gcLoop(cfg.GCInterval)
	} else {
		close(s.doneCh)
	}

	return s, nil
}

// Get returns the guild's snapshot or ErrNotFound.
func (s *SnapshotStore) Get(ctx context.Context, guildID snowflake.ID) (*player.Snapshot, error) {
	var snap player.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(guildID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(value, &snap)
	})
	if errors.Is(err, ErrNotFound) {
		return nil, errNoSnapshot
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read snapshot for guild %s", guildID)
	}
	return &snap, nil
}

// Save overwrites the guild's snapshot.
func (s *SnapshotStore) Save(ctx context.Context, snap player.Snapshot) error {
	value, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "failed to encode snapshot")
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(snapshotKey(snap.GuildID), value)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to write snapshot for guild %s", snap.GuildID)
	}
	return nil
}

// Delete removes the guild's snapshot. Deleting an absent snapshot is not an error.
func (s *SnapshotStore) Delete(ctx context.Context, guildID snowflake.ID) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(snapshotKey(guildID))
	})
	if err != nil {
		return errors.Wrapf(err, "failed to delete snapshot for guild %s", guildID)
	}
	return nil
}

// List returns the ids of every guild with a stored snapshot.
func (s *SnapshotStore) List(ctx context.Context) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(snapshotPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw := strings.TrimPrefix(string(it.Item().Key()), snapshotPrefix)
			id, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				zlog.Warn().Msgf("store: skipping malformed snapshot key=%s", raw)
				continue
			}
			ids = append(ids, snowflake.ID(id))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list snapshots")
	}
	return ids, nil
}

// Close stops background GC and closes the database.
func (s *SnapshotStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
		err = s.db.Close()
	})
	return err
}

func (s *SnapshotStore) gcLoop(interval time.Duration) {
	defer close(s.doneCh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when there is nothing to collect.
			for s.db.RunValueLogGC(0.5) == nil {
			}
		}
	}
}

func snapshotKey(guildID snowflake.ID) []byte {
	return []byte(snapshotPrefix + guildID.String())
}

// badgerLogger routes Badger's logs through zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	zlog.Error().Msgf("badger: "+strings.TrimSpace(format), args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	zlog.Warn().Msgf("badger: "+strings.TrimSpace(format), args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	zlog.Debug().Msgf("badger: "+strings.TrimSpace(format), args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	zlog.Trace().Msgf("badger: "+strings.TrimSpace(format), args...)
}
