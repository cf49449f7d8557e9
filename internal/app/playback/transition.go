package playback

import (
	"github.com/osa030/guildbox/internal/domain/player"
	"github.com/osa030/guildbox/internal/domain/track"
)

// EffectType identifies a side effect produced by a transition.
type EffectType int

const (
	EffectPlay         EffectType = iota // Play Entry and point the current pointer at it
	EffectRemove                         // Remove Entry from the queue
	EffectClearCurrent                   // Clear the current pointer
)

// String returns the string representation of the effect type.
func (e EffectType) String() string {
	switch e {
	case EffectPlay:
		return "play"
	case EffectRemove:
		return "remove"
	case EffectClearCurrent:
		return "clear_current"
	default:
		return "unknown"
	}
}

// Effect is a side effect the controller applies after a transition.
type Effect struct {
	Type  EffectType
	Entry track.QueueEntry
}

// Status is the part of a controller's state the track-end transition reads and writes.
type Status struct {
	State   State
	Mode    player.RepeatMode
	Queue   []track.QueueEntry // Ordered by index
	Current *track.QueueEntry
}

// TrackEnd is a track-end event for a queue entry.
type TrackEnd struct {
	Entry  track.QueueEntry
	Reason player.EndReason
}

// Transition computes the next status and side effects for a track-end event.
// It performs no I/O.
func Transition(s Status, ev TrackEnd) (Status, []Effect) {
	switch ev.Reason {
	case player.EndReplaced, player.EndCleanup:
		return s, nil

	case player.EndStopped:
		next := s
		next.State = StateIdle
		return next, nil

	case player.EndLoadFailed:
		next := s
		next.Queue = track.Without(s.Queue, ev.Entry.Index)
		effects := []Effect{{Type: EffectRemove, Entry: ev.Entry}}
		if e, ok := track.After(next.Queue, ev.Entry.Index); ok {
			return playing(next, e), append(effects, Effect{Type: EffectPlay, Entry: e})
		}
		return stopped(next), append(effects, Effect{Type: EffectClearCurrent})

	case player.EndFinished:
		if s.Mode == player.RepeatTrack {
			return playing(s, ev.Entry), []Effect{{Type: EffectPlay, Entry: ev.Entry}}
		}
		if e, ok := track.After(s.Queue, ev.Entry.Index); ok {
			return playing(s, e), []Effect{{Type: EffectPlay, Entry: e}}
		}
		if s.Mode == player.RepeatQueue && len(s.Queue) > 0 {
			first := s.Queue[0]
			return playing(s, first), []Effect{{Type: EffectPlay, Entry: first}}
		}
		return stopped(s), []Effect{{Type: EffectClearCurrent}}
	}

	return s, nil
}

func playing(s Status, e track.QueueEntry) Status {
	s.State = StatePlaying
	s.Current = &e
	return s
}

func stopped(s Status) Status {
	s.State = StateIdle
	s.Current = nil
	return s
}
