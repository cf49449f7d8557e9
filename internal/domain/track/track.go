// Package track provides the Track and QueueEntry domain entities.
package track

import (
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Track represents a playable track as resolved by the audio backend.
type Track struct {
	ID         string        // Backend-encoded track handle
	Title      string        // Display title
	Author     string        // Reported author (channel or artist)
	Duration   time.Duration // Track length (zero for streams)
	URI        string        // Source URL
	ArtworkURL string        // Thumbnail URL
	SourceName string        // e.g. "youtube", "soundcloud"
	IsStream   bool          // Live stream flag
}

// QueueEntry represents one positioned track in a guild's queue.
// Entries are immutable once created; Index is unique and never reused within a guild.
type QueueEntry struct {
	Index       int
	Track       Track
	RequesterID snowflake.ID // Zero for autoplay entries
	AddedAt     time.Time
}

// IsAutoplay reports whether the entry was appended by autoplay.
func (e QueueEntry) IsAutoplay() bool {
	return e.RequesterID == 0
}

// SameTitle reports whether two titles match case-insensitively after trimming.
func SameTitle(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Find returns the entry with the given index.
func Find(entries []QueueEntry, index int) (QueueEntry, bool) {
	for _, e := range entries {
		if e.Index == index {
			return e, true
		}
	}
	return QueueEntry{}, false
}

// Position returns the 1-based position of the entry with the given index, or 0 if absent.
func Position(entries []QueueEntry, index int) int {
	for i, e := range entries {
		if e.Index == index {
			return i + 1
		}
	}
	return 0
}

// After returns the first entry whose index is greater than index.
// Entries must be ordered by index.
func After(entries []QueueEntry, index int) (QueueEntry, bool) {
	for _, e := range entries {
		if e.Index > index {
			return e, true
		}
	}
	return QueueEntry{}, false
}

// Without returns a copy of entries with the given index removed.
func Without(entries []QueueEntry, index int) []QueueEntry {
	out := make([]QueueEntry, 0, len(entries))
	for _, e := range entries {
		if e.Index != index {
			out = append(out, e)
		}
	}
	return out
}

// Titles returns the track titles of all entries.
func Titles(entries []QueueEntry) []string {
	titles := make([]string, 0, len(entries))
	for _, e := range entries {
		titles = append(titles, e.Track.Title)
	}
	return titles
}
