// Package store provides the settings, queue, and snapshot stores.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/osa030/guildbox/internal/domain/player"
	"github.com/osa030/guildbox/internal/domain/track"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("not found")

// errNoSnapshot also matches player.ErrNoSnapshot.
var errNoSnapshot = errors.Mark(ErrNotFound, player.ErrNoSnapshot)

const schema = `
CREATE TABLE IF NOT EXISTS player_settings (
	guild_id                INTEGER PRIMARY KEY,
	voice_text_channel_id   INTEGER,
	dj_role_id              INTEGER,
	volume                  INTEGER NOT NULL,
	repeat_mode             INTEGER NOT NULL,
	autoplay_count          INTEGER NOT NULL,
	vote_skip_enabled       INTEGER NOT NULL,
	vote_skip_threshold_pct INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS queue_state (
	guild_id      INTEGER PRIMARY KEY,
	current_index INTEGER,
	next_index    INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS queue_entries (
	guild_id     INTEGER NOT NULL,
	idx          INTEGER NOT NULL,
	track        TEXT NOT NULL,
	requester_id INTEGER NOT NULL,
	added_at     INTEGER NOT NULL,
	PRIMARY KEY (guild_id, idx)
);
`

// SQLiteStore persists guild settings and queues in SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (and creates if needed) the database at path.
// Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create database directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite database")
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to set pragma %q", pragma)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Settings returns the guild's settings, creating defaults on first access.
func (s *SQLiteStore) Settings(ctx context.Context, guildID snowflake.ID) (player.Settings, error) {
	def := player.DefaultSettings(guildID)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO player_settings
			(guild_id, volume, repeat_mode, autoplay_count, vote_skip_enabled, vote_skip_threshold_pct)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id) DO NOTHING`,
		int64(guildID), def.Volume, int(def.RepeatMode), def.AutoplayCount, def.VoteSkipEnabled, def.VoteSkipThresholdPct)
	if err != nil {
		return player.Settings{}, errors.Wrap(err, "failed to initialize settings")
	}

	var (
		textChannel, djRole sql.NullInt64
		repeatMode          int
		settings            = player.Settings{GuildID: guildID}
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT voice_text_channel_id, dj_role_id, volume, repeat_mode, autoplay_count,
		       vote_skip_enabled, vote_skip_threshold_pct
		FROM player_settings WHERE guild_id = ?`, int64(guildID)).
		Scan(&textChannel, &djRole, &settings.Volume, &repeatMode, &settings.AutoplayCount,
			&settings.VoteSkipEnabled, &settings.VoteSkipThresholdPct)
	if err != nil {
		return player.Settings{}, errors.Wrap(err, "failed to read settings")
	}

	settings.RepeatMode = player.RepeatMode(repeatMode)
	settings.VoiceTextChannelID = nullID(textChannel)
	settings.DJRoleID = nullID(djRole)
	return settings, nil
}

// SaveSettings writes the guild's settings.
func (s *SQLiteStore) SaveSettings(ctx context.Context, settings player.Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO player_settings
			(guild_id, voice_text_channel_id, dj_role_id, volume, repeat_mode, autoplay_count,
			 vote_skip_enabled, vote_skip_threshold_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			voice_text_channel_id = excluded.voice_text_channel_id,
			dj_role_id = excluded.dj_role_id,
			volume = excluded.volume,
			repeat_mode = excluded.repeat_mode,
			autoplay_count = excluded.autoplay_count,
			vote_skip_enabled = excluded.vote_skip_enabled,
			vote_skip_threshold_pct = excluded.vote_skip_threshold_pct`,
		int64(settings.GuildID), idValue(settings.VoiceTextChannelID), idValue(settings.DJRoleID),
		settings.Volume, int(settings.RepeatMode), settings.AutoplayCount,
		settings.VoteSkipEnabled, settings.VoteSkipThresholdPct)
	if err != nil {
		return errors.Wrap(err, "failed to save settings")
	}
	return nil
}

// Queue returns the guild's queue ordered by index.
func (s *SQLiteStore) Queue(ctx context.Context, guildID snowflake.ID) ([]track.QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, track, requester_id, added_at
		FROM queue_entries WHERE guild_id = ?
		ORDER BY idx`, int64(guildID))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query queue")
	}
	defer rows.Close()

	var entries []track.QueueEntry
	for rows.Next() {
		var (
			e         track.QueueEntry
			data      string
			requester int64
			addedAt   int64
		)
		if err := rows.Scan(&e.Index, &data, &requester, &addedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan queue entry")
		}
		if err := json.Unmarshal([]byte(data), &e.Track); err != nil {
			return nil, errors.Wrapf(err, "failed to decode queue entry %d", e.Index)
		}
		e.RequesterID = snowflake.ID(requester)
		e.AddedAt = time.UnixMilli(addedAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate queue")
	}
	return entries, nil
}

// Append adds tracks to the end of the guild's queue, allocating new indices.
func (s *SQLiteStore) Append(ctx context.Context, guildID snowflake.ID, tracks []track.Track, requesterID snowflake.ID) ([]track.QueueEntry, error) {
	if len(tracks) == 0 {
		return nil, nil
	}

	var added []track.QueueEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO queue_state (guild_id) VALUES (?)
			ON CONFLICT(guild_id) DO NOTHING`, int64(guildID)); err != nil {
			return errors.Wrap(err, "failed to initialize queue state")
		}

		var next int
		if err := tx.QueryRowContext(ctx, `SELECT next_index FROM queue_state WHERE guild_id = ?`,
			int64(guildID)).Scan(&next); err != nil {
			return errors.Wrap(err, "failed to read next index")
		}

		now := s.now()
		for _, t := range tracks {
			data, err := json.Marshal(t)
			if err != nil {
				return errors.Wrap(err, "failed to encode track")
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO queue_entries (guild_id, idx, track, requester_id, added_at)
				VALUES (?, ?, ?, ?, ?)`,
				int64(guildID), next, string(data), int64(requesterID), now.UnixMilli()); err != nil {
				return errors.Wrap(err, "failed to insert queue entry")
			}
			added = append(added, track.QueueEntry{
				Index:       next,
				Track:       t,
				RequesterID: requesterID,
				AddedAt:     time.UnixMilli(now.UnixMilli()),
			})
			next++
		}

		if _, err := tx.ExecContext(ctx, `UPDATE queue_state SET next_index = ? WHERE guild_id = ?`,
			next, int64(guildID)); err != nil {
			return errors.Wrap(err, "failed to advance next index")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// Remove deletes the entry with the given index. The current pointer is cleared if it referenced it.
func (s *SQLiteStore) Remove(ctx context.Context, guildID snowflake.ID, index int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM queue_entries WHERE guild_id = ? AND idx = ?`,
			int64(guildID), index); err != nil {
			return errors.Wrap(err, "failed to remove queue entry")
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE queue_state SET current_index = NULL
			WHERE guild_id = ? AND current_index = ?`, int64(guildID), index); err != nil {
			return errors.Wrap(err, "failed to clear current pointer")
		}
		return nil
	})
}

// ClearQueue removes every entry and the current pointer. Index allocation is not reset.
func (s *SQLiteStore) ClearQueue(ctx context.Context, guildID snowflake.ID) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM queue_entries WHERE guild_id = ?`, int64(guildID)); err != nil {
			return errors.Wrap(err, "failed to clear queue")
		}
		if _, err := tx.ExecContext(ctx, `UPDATE queue_state SET current_index = NULL WHERE guild_id = ?`,
			int64(guildID)); err != nil {
			return errors.Wrap(err, "failed to clear current pointer")
		}
		return nil
	})
}

// Current returns the entry referenced by the current pointer, or nil if absent.
func (s *SQLiteStore) Current(ctx context.Context, guildID snowflake.ID) (*track.QueueEntry, error) {
	var index sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT current_index FROM queue_state WHERE guild_id = ?`,
		int64(guildID)).Scan(&index)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !index.Valid) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read current pointer")
	}

	var (
		e         = track.QueueEntry{Index: int(index.Int64)}
		data      string
		requester int64
		addedAt   int64
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT track, requester_id, added_at FROM queue_entries
		WHERE guild_id = ? AND idx = ?`, int64(guildID), index.Int64).
		Scan(&data, &requester, &addedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read current entry")
	}
	if err := json.Unmarshal([]byte(data), &e.Track); err != nil {
		return nil, errors.Wrap(err, "failed to decode current entry")
	}
	e.RequesterID = snowflake.ID(requester)
	e.AddedAt = time.UnixMilli(addedAt)
	return &e, nil
}

// SetCurrent points the current pointer at an existing entry.
func (s *SQLiteStore) SetCurrent(ctx context.Context, guildID snowflake.ID, index int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM queue_entries WHERE guild_id = ? AND idx = ?`,
			int64(guildID), index).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(ErrNotFound, "queue entry %d", index)
		}
		if err != nil {
			return errors.Wrap(err, "failed to check queue entry")
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO queue_state (guild_id, current_index) VALUES (?, ?)
			ON CONFLICT(guild_id) DO UPDATE SET current_index = excluded.current_index`,
			int64(guildID), index); err != nil {
			return errors.Wrap(err, "failed to set current pointer")
		}
		return nil
	})
}

// ClearCurrent removes the current pointer.
func (s *SQLiteStore) ClearCurrent(ctx context.Context, guildID snowflake.ID) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE queue_state SET current_index = NULL WHERE guild_id = ?`,
		int64(guildID)); err != nil {
		return errors.Wrap(err, "failed to clear current pointer")
	}
	return nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

func nullID(v sql.NullInt64) *snowflake.ID {
	if !v.Valid {
		return nil
	}
	id := snowflake.ID(v.Int64)
	return &id
}

func idValue(id *snowflake.ID) any {
	if id == nil {
		return nil
	}
	return int64(*id)
}
