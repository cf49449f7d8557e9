package playback

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/domain/track"
)

// refill runs one autoplay refill outside the controller lock.
// Every failure is logged and ends the refill without touching playback.
func (c *Controller) refill(req refillRequest) {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("autoplay: panic during refill guild=%s: %v", c.guildID, r)
		}
		c.mu.Lock()
		c.refilling = false
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(c.ctx, c.config.AutoplayTimeout)
	defer cancel()

	queued, err := c.queue.Queue(ctx, c.guildID)
	if err != nil {
		zlog.Warn().Err(err).Msgf("autoplay: failed to load queue guild=%s", c.guildID)
		return
	}

	tracks, err := c.refiller.Refill(ctx, req.seed.Track, queued, req.count)
	if err != nil {
		zlog.Warn().Err(err).Msgf("autoplay: refill failed guild=%s seed=%q", c.guildID, req.seed.Track.Title)
		return
	}
	if len(tracks) == 0 {
		zlog.Info().Msgf("autoplay: no candidates guild=%s seed=%q", c.guildID, req.seed.Track.Title)
		return
	}

	c.appendAutoplay(ctx, req.seed, tracks)
}

func (c *Controller) appendAutoplay(ctx context.Context, seed track.QueueEntry, tracks []track.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	// The queue may have changed while the refill ran.
	queued, err := c.queue.Queue(ctx, c.guildID)
	if err != nil {
		zlog.Warn().Err(err).Msgf("autoplay: failed to reload queue guild=%s", c.guildID)
		return
	}
	fresh := make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		if containsTitle(queued, fresh, t.Title) {
			continue
		}
		fresh = append(fresh, t)
	}
	if len(fresh) == 0 {
		return
	}

	added, err := c.queue.Append(ctx, c.guildID, fresh, 0)
	if err != nil {
		zlog.Warn().Err(err).Msgf("autoplay: failed to append guild=%s", c.guildID)
		return
	}
	c.metrics.AutoplayAppended(len(added))
	zlog.Info().Msgf("autoplay: appended guild=%s count=%d seed=%q", c.guildID, len(added), seed.Track.Title)

	// The seed finished before the refill landed; carry on with the new entries.
	if c.current == nil && c.state == StateIdle && c.exhaustedIndex == seed.Index && len(added) > 0 {
		if err := c.playLocked(ctx, added[0]); err != nil {
			zlog.Warn().Err(err).Msgf("autoplay: failed to start appended track guild=%s", c.guildID)
		}
	}
}

func containsTitle(queued []track.QueueEntry, pending []track.Track, title string) bool {
	for _, e := range queued {
		if track.SameTitle(e.Track.Title, title) {
			return true
		}
	}
	for _, t := range pending {
		if track.SameTitle(t.Title, title) {
			return true
		}
	}
	return false
}
