// Package connect provides Connect RPC service implementations.
package connect

import (
	"context"
	"fmt"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"

	"github.com/osa030/guildbox/internal/app/playback"
	"github.com/osa030/guildbox/internal/app/search"
	"github.com/osa030/guildbox/internal/app/session"
	"github.com/osa030/guildbox/internal/domain/player"
	"github.com/osa030/guildbox/internal/domain/track"
	"github.com/osa030/guildbox/internal/infra/lavalink"
)

// Players looks up and creates guild controllers.
type Players interface {
	Get(guildID snowflake.ID) (*playback.Controller, bool)
	GetOrCreate(guildID snowflake.ID) (*playback.Controller, error)
	Remove(ctx context.Context, guildID snowflake.ID) error
}

// Loader resolves enqueue queries into tracks.
type Loader interface {
	Load(ctx context.Context, query string) (search.Result, error)
}

// PlayerService implements the PlayerService RPC.
type PlayerService struct {
	players Players
	loader  Loader
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(players Players, loader Loader) *PlayerService {
	return &PlayerService{players: players, loader: loader}
}

// NowPlaying returns the guild's playback state.
func (s *PlayerService) NowPlaying(ctx context.Context, req *connect.Request[GuildRequest]) (*connect.Response[NowPlayingResponse], error) {
	ctrl, err := s.controller(req.Msg.GuildID)
	if err != nil {
		return nil, err
	}
	info, err := ctrl.NowPlaying(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &NowPlayingResponse{
		State:          info.State.String(),
		VoiceChannelID: info.VoiceChannelID,
		PositionMs:     info.Position.Milliseconds(),
		QueuePosition:  info.QueuePosition,
		QueueLength:    info.QueueLength,
		Volume:         info.Settings.Volume,
		RepeatMode:     info.Settings.RepeatMode.String(),
		AutoplayCount:  info.Settings.AutoplayCount,
		Effects:        info.Effects,
	}
	if info.Current != nil {
		t := toTrackInfo(*info.Current)
		resp.Current = &t
	}
	return connect.NewResponse(resp), nil
}

// Queue returns the guild's queue.
func (s *PlayerService) Queue(ctx context.Context, req *connect.Request[GuildRequest]) (*connect.Response[QueueResponse], error) {
	ctrl, err := s.controller(req.Msg.GuildID)
	if err != nil {
		return nil, err
	}
	entries, err := ctrl.Queue(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	info, err := ctrl.NowPlaying(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &QueueResponse{Entries: make([]TrackInfo, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, toTrackInfo(e))
	}
	if info.Current != nil {
		idx := info.Current.Index
		resp.CurrentIndex = &idx
	}
	return connect.NewResponse(resp), nil
}

// Enqueue resolves the query and appends the tracks, joining voice first when needed.
func (s *PlayerService) Enqueue(ctx context.Context, req *connect.Request[EnqueueRequest]) (*connect.Response[EnqueueResponse], error) {
	msg := req.Msg
	if msg.Query == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("query is required"))
	}

	ctrl, ok := s.players.Get(msg.GuildID)
	if !ok {
		if msg.VoiceChannelID == 0 {
			return nil, connect.NewError(connect.CodeFailedPrecondition, errors.New("voice_channel_id is required to start a player"))
		}
		var err error
		if ctrl, err = s.players.GetOrCreate(msg.GuildID); err != nil {
			return nil, toConnectError(err)
		}
	}
	if msg.VoiceChannelID != 0 {
		if err := ctrl.Join(ctx, msg.VoiceChannelID); err != nil {
			return nil, toConnectError(err)
		}
	}
	if msg.TextChannelID != 0 {
		ctrl.BindTextChannel(msg.TextChannelID)
	}

	res, err := s.loader.Load(ctx, msg.Query)
	if err != nil {
		return nil, toConnectError(err)
	}
	added, err := ctrl.Enqueue(ctx, res.Tracks, msg.RequesterID)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &EnqueueResponse{PlaylistName: res.PlaylistName, Added: make([]TrackInfo, 0, len(added))}
	for _, e := range added {
		resp.Added = append(resp.Added, toTrackInfo(e))
	}
	return connect.NewResponse(resp), nil
}

// Skip advances to the next entry.
func (s *PlayerService) Skip(ctx context.Context, req *connect.Request[GuildRequest]) (*connect.Response[Ack], error) {
	return s.command(ctx, req.Msg.GuildID, "Track skipped", (*playback.Controller).Skip)
}

// Stop stops playback and keeps the queue.
func (s *PlayerService) Stop(ctx context.Context, req *connect.Request[GuildRequest]) (*connect.Response[Ack], error) {
	return s.command(ctx, req.Msg.GuildID, "Playback stopped", (*playback.Controller).Stop)
}

// Pause pauses playback.
func (s *PlayerService) Pause(ctx context.Context, req *connect.Request[GuildRequest]) (*connect.Response[Ack], error) {
	return s.command(ctx, req.Msg.GuildID, "Playback paused", (*playback.Controller).Pause)
}

// Resume resumes playback.
func (s *PlayerService) Resume(ctx context.Context, req *connect.Request[GuildRequest]) (*connect.Response[Ack], error) {
	return s.command(ctx, req.Msg.GuildID, "Playback resumed", (*playback.Controller).Resume)
}

// Disconnect leaves voice and ends the guild's session.
func (s *PlayerService) Disconnect(ctx context.Context, req *connect.Request[GuildRequest]) (*connect.Response[Ack], error) {
	if err := s.players.Remove(ctx, req.Msg.GuildID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Ack{Message: "Disconnected"}), nil
}

// SetVolume sets the playback volume.
func (s *PlayerService) SetVolume(ctx context.Context, req *connect.Request[SetVolumeRequest]) (*connect.Response[Ack], error) {
	return s.command(ctx, req.Msg.GuildID, fmt.Sprintf("Volume set to %d", req.Msg.Volume),
		func(c *playback.Controller, ctx context.Context) error { return c.SetVolume(ctx, req.Msg.Volume) })
}

// SetRepeatMode sets the repeat mode.
func (s *PlayerService) SetRepeatMode(ctx context.Context, req *connect.Request[SetRepeatModeRequest]) (*connect.Response[Ack], error) {
	mode, err := player.ParseRepeatMode(req.Msg.Mode)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return s.command(ctx, req.Msg.GuildID, "Repeat mode set to "+mode.String(),
		func(c *playback.Controller, ctx context.Context) error { return c.SetRepeatMode(ctx, mode) })
}

// SetAutoplay sets how many tracks autoplay appends.
func (s *PlayerService) SetAutoplay(ctx context.Context, req *connect.Request[SetAutoplayRequest]) (*connect.Response[Ack], error) {
	return s.command(ctx, req.Msg.GuildID, fmt.Sprintf("Autoplay set to %d", req.Msg.Count),
		func(c *playback.Controller, ctx context.Context) error { return c.SetAutoplay(ctx, req.Msg.Count) })
}

// SetDJRole sets or clears the DJ role.
func (s *PlayerService) SetDJRole(ctx context.Context, req *connect.Request[SetDJRoleRequest]) (*connect.Response[Ack], error) {
	msg := "DJ role cleared"
	if req.Msg.RoleID != nil {
		msg = "DJ role set to " + req.Msg.RoleID.String()
	}
	return s.command(ctx, req.Msg.GuildID, msg,
		func(c *playback.Controller, ctx context.Context) error { return c.SetDJRole(ctx, req.Msg.RoleID) })
}

// SetEffects replaces the active audio effects.
func (s *PlayerService) SetEffects(ctx context.Context, req *connect.Request[SetEffectsRequest]) (*connect.Response[Ack], error) {
	return s.command(ctx, req.Msg.GuildID, "Effects updated",
		func(c *playback.Controller, ctx context.Context) error { return c.SetEffects(ctx, req.Msg.Effects) })
}

func (s *PlayerService) controller(guildID snowflake.ID) (*playback.Controller, error) {
	ctrl, ok := s.players.Get(guildID)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, errors.Newf("no player for guild %s", guildID))
	}
	return ctrl, nil
}

func (s *PlayerService) command(ctx context.Context, guildID snowflake.ID, done string,
	fn func(*playback.Controller, context.Context) error) (*connect.Response[Ack], error) {
	ctrl, err := s.controller(guildID)
	if err != nil {
		return nil, err
	}
	if err := fn(ctrl, ctx); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Ack{Message: done}), nil
}

func toTrackInfo(e track.QueueEntry) TrackInfo {
	return TrackInfo{
		Index:       e.Index,
		Title:       e.Track.Title,
		Author:      e.Track.Author,
		URI:         e.Track.URI,
		DurationMs:  e.Track.Duration.Milliseconds(),
		IsStream:    e.Track.IsStream,
		RequesterID: e.RequesterID,
		Autoplay:    e.IsAutoplay(),
	}
}

// toConnectError maps domain errors to RPC status codes.
func toConnectError(err error) error {
	code := connect.CodeInternal
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, search.ErrNoMatches):
		code = connect.CodeNotFound
	case errors.Is(err, playback.ErrInvalidVolume),
		errors.Is(err, playback.ErrInvalidAutoplay),
		errors.Is(err, playback.ErrInvalidVoteSkip),
		errors.Is(err, lavalink.ErrUnknownEffect):
		code = connect.CodeInvalidArgument
	case errors.Is(err, playback.ErrNoTrack),
		errors.Is(err, playback.ErrNotPlaying),
		errors.Is(err, playback.ErrNotPaused),
		errors.Is(err, playback.ErrNotConnected),
		errors.Is(err, playback.ErrEntryNotQueued),
		errors.Is(err, playback.ErrEntryPlaying):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, player.ErrTransient),
		errors.Is(err, playback.ErrClosed),
		errors.Is(err, session.ErrManagerClosed):
		code = connect.CodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	}
	return connect.NewError(code, err)
}
