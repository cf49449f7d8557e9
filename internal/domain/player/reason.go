package player

import "github.com/cockroachdb/errors"

// EndReason is the reason the audio backend reports for a track ending.
type EndReason int

const (
	EndFinished   EndReason = iota // Track played to completion
	EndLoadFailed                  // Track could not be loaded or failed mid-stream
	EndStopped                     // Playback was stopped explicitly
	EndReplaced                    // Another track replaced it
	EndCleanup                     // Player was cleaned up
)

// String returns the string representation of the end reason.
func (r EndReason) String() string {
	switch r {
	case EndFinished:
		return "finished"
	case EndLoadFailed:
		return "loadFailed"
	case EndStopped:
		return "stopped"
	case EndReplaced:
		return "replaced"
	case EndCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// ParseEndReason maps a backend reason string to an EndReason.
// Unknown reasons map to EndCleanup so they never trigger an advance.
func ParseEndReason(s string) EndReason {
	switch s {
	case "finished":
		return EndFinished
	case "loadFailed":
		return EndLoadFailed
	case "stopped":
		return EndStopped
	case "replaced":
		return EndReplaced
	default:
		return EndCleanup
	}
}

// ErrLoadFailed is returned by an audio backend that refuses a track outright.
var ErrLoadFailed = errors.New("track load failed")

// ErrTransient marks failures of an external service that may succeed on retry.
var ErrTransient = errors.New("service unavailable")
