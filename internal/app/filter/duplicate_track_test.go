package filter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/guildbox/internal/domain/track"
)

func queueOf(tracks ...track.Track) []track.QueueEntry {
	out := make([]track.QueueEntry, 0, len(tracks))
	for i, t := range tracks {
		out = append(out, track.QueueEntry{Index: i + 1, Track: t, RequesterID: 1, AddedAt: time.Now()})
	}
	return out
}

func TestDuplicateTitleFilter_ExactIDMatch(t *testing.T) {
	queued := queueOf(track.Track{ID: "track123", Title: "Bohemian Rhapsody", Author: "Queen"})

	f := NewDuplicateTitleFilter()
	result := f.Check(context.Background(), track.Track{
		ID:     "track123",
		Title:  "Something Else Entirely",
		Author: "Queen",
	}, queued)

	assert.False(t, result.Accepted)
	assert.Equal(t, CodeDuplicateTitle, result.Code)
}

func TestDuplicateTitleFilter_Check(t *testing.T) {
	tests := []struct {
		name         string
		queued       track.Track
		candidate    track.Track
		shouldReject bool
		description  string
	}{
		{
			name:         "Same title different case",
			queued:       track.Track{ID: "a", Title: "Hotel California", Author: "Eagles"},
			candidate:    track.Track{ID: "b", Title: "  hotel california ", Author: "Someone Else"},
			shouldReject: true,
			description:  "Should reject case-insensitive title match regardless of author",
		},
		{
			name:         "Standard remaster pattern",
			queued:       track.Track{ID: "a", Title: "Bohemian Rhapsody", Author: "Queen"},
			candidate:    track.Track{ID: "b", Title: "Bohemian Rhapsody - 2011 Remaster", Author: "Queen"},
			shouldReject: true,
			description:  "Should detect '- 2011 Remaster' as duplicate",
		},
		{
			name:         "Remastered in parentheses",
			queued:       track.Track{ID: "a", Title: "Yesterday", Author: "The Beatles"},
			candidate:    track.Track{ID: "b", Title: "Yesterday (Remastered 2023)", Author: "The Beatles"},
			shouldReject: true,
			description:  "Should detect '(Remastered 2023)' as duplicate",
		},
		{
			name:         "Official video from a topic channel",
			queued:       track.Track{ID: "a", Title: "Bohemian Rhapsody", Author: "Queen - Topic"},
			candidate:    track.Track{ID: "b", Title: "Bohemian Rhapsody (Official Video)", Author: "QueenVEVO"},
			shouldReject: true,
			description:  "Should match authors after stripping channel decorations",
		},
		{
			name:         "Cover song - different author",
			queued:       track.Track{ID: "a", Title: "Yesterday", Author: "The Beatles"},
			candidate:    track.Track{ID: "b", Title: "Yesterday - Live", Author: "Paul McCartney"},
			shouldReject: false,
			description:  "Should allow cover by different author",
		},
		{
			name:         "Different songs - similar names",
			queued:       track.Track{ID: "a", Title: "Love", Author: "John Lennon"},
			candidate:    track.Track{ID: "b", Title: "Love Song", Author: "John Lennon"},
			shouldReject: false,
			description:  "Should allow different songs",
		},
		{
			name:         "Radio Edit version",
			queued:       track.Track{ID: "a", Title: "Stairway to Heaven", Author: "Led Zeppelin"},
			candidate:    track.Track{ID: "b", Title: "Stairway to Heaven (Radio Edit)", Author: "Led Zeppelin"},
			shouldReject: true,
			description:  "Should detect radio edit as duplicate",
		},
		{
			name:         "Remix version - should be allowed",
			queued:       track.Track{ID: "a", Title: "Le Freak", Author: "CHIC"},
			candidate:    track.Track{ID: "b", Title: "Le Freak (Oliver Heldens Remix)", Author: "CHIC"},
			shouldReject: false,
			description:  "Should allow remix version",
		},
		{
			name:         "Unknown author",
			queued:       track.Track{ID: "a", Title: "Imagine", Author: ""},
			candidate:    track.Track{ID: "b", Title: "Imagine - Live", Author: ""},
			shouldReject: false,
			description:  "Should not treat versions as duplicates without an author",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewDuplicateTitleFilter()
			result := f.Check(context.Background(), tt.candidate, queueOf(tt.queued))

			if tt.shouldReject {
				assert.False(t, result.Accepted, tt.description)
				assert.Equal(t, CodeDuplicateTitle, result.Code)
			} else {
				assert.True(t, result.Accepted, tt.description)
			}
		})
	}
}

func TestDuplicateTitleFilter_EmptyQueue(t *testing.T) {
	f := NewDuplicateTitleFilter()

	result := f.Check(context.Background(), track.Track{ID: "x", Title: "Any Song", Author: "Any"}, nil)

	assert.True(t, result.Accepted, "Should accept any track when queue is empty")
}

func TestNormalizeTrackName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Bohemian Rhapsody", "bohemian rhapsody"},
		{"Bohemian Rhapsody - 2011 Remaster", "bohemian rhapsody"},
		{"Yesterday (Remastered 2023)", "yesterday"},
		{"Hotel California [Remastered]", "hotel california"},
		{"Stairway to Heaven (Radio Edit)", "stairway to heaven"},
		{"Imagine - Live", "imagine"},
		{"Let It Be (Single Version)", "let it be"},
		{"Hey Jude - Remastered Version", "hey jude"},
		{"Africa (Official Music Video)", "africa"},
		{"Come Together (2019 Mix)", "come together (2019 mix)"},
		{"   Extra   Spaces   ", "extra spaces"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := normalizeTrackName(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestIsSameAuthor(t *testing.T) {
	tests := []struct {
		name     string
		a        string
		b        string
		expected bool
	}{
		{name: "Same author", a: "Queen", b: "Queen", expected: true},
		{name: "Case insensitive", a: "Queen", b: "queen", expected: true},
		{name: "Topic channel", a: "Queen - Topic", b: "Queen", expected: true},
		{name: "VEVO channel", a: "TotoVEVO", b: "Toto", expected: true},
		{name: "Different authors", a: "The Beatles", b: "Paul McCartney", expected: false},
		{name: "Empty author", a: "", b: "Queen", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isSameAuthor(track.Track{Author: tt.a}, track.Track{Author: tt.b})
			assert.Equal(t, tt.expected, result)
		})
	}
}
