// Package playback provides the per-guild playback controller and its track-end state machine.
package playback

// State represents the playback state.
type State int

const (
	StateIdle    State = iota // No track playing (queue exhausted or stopped)
	StatePlaying              // Track is playing
	StatePaused               // Track is paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Active reports whether a track is playing or paused.
func (s State) Active() bool {
	return s == StatePlaying || s == StatePaused
}
