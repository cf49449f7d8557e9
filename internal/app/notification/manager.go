// Package notification renders playback notifications and posts them best-effort.
package notification

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"
)

// ErrNoChannel is returned when a notification has no destination channel.
var ErrNoChannel = errors.New("no notification channel")

// Poster delivers a rendered message to a text channel.
type Poster interface {
	Post(ctx context.Context, channelID snowflake.ID, msg Message) error
}

// Manager posts notifications with a bounded wait.
type Manager struct {
	poster  Poster
	timeout time.Duration
}

// NewManager creates a new notification manager.
func NewManager(poster Poster, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{
		poster:  poster,
		timeout: timeout,
	}
}

// Send posts msg to channelID, giving up after the manager's timeout.
// Failures are logged and returned; callers treat them as non-fatal.
func (m *Manager) Send(ctx context.Context, channelID snowflake.ID, msg Message) error {
	if channelID == 0 {
		return ErrNoChannel
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.poster.Post(ctx, channelID, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			zlog.Warn().Err(err).Msgf("notification: post failed channel=%s title=%q", channelID, msg.Title)
			return errors.Wrap(err, "failed to post notification")
		}
		return nil
	case <-ctx.Done():
		zlog.Warn().Msgf("notification: post timed out channel=%s title=%q", channelID, msg.Title)
		return errors.Wrap(ctx.Err(), "notification timed out")
	}
}
