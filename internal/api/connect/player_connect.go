package connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// PlayerServiceName is the fully-qualified name of the PlayerService service.
const PlayerServiceName = "guildbox.v1.PlayerService"

// Procedure paths of PlayerService.
const (
	PlayerServiceNowPlayingProcedure    = "/" + PlayerServiceName + "/NowPlaying"
	PlayerServiceQueueProcedure         = "/" + PlayerServiceName + "/Queue"
	PlayerServiceEnqueueProcedure       = "/" + PlayerServiceName + "/Enqueue"
	PlayerServiceSkipProcedure          = "/" + PlayerServiceName + "/Skip"
	PlayerServiceStopProcedure          = "/" + PlayerServiceName + "/Stop"
	PlayerServicePauseProcedure         = "/" + PlayerServiceName + "/Pause"
	PlayerServiceResumeProcedure        = "/" + PlayerServiceName + "/Resume"
	PlayerServiceDisconnectProcedure    = "/" + PlayerServiceName + "/Disconnect"
	PlayerServiceSetVolumeProcedure     = "/" + PlayerServiceName + "/SetVolume"
	PlayerServiceSetRepeatModeProcedure = "/" + PlayerServiceName + "/SetRepeatMode"
	PlayerServiceSetAutoplayProcedure   = "/" + PlayerServiceName + "/SetAutoplay"
	PlayerServiceSetDJRoleProcedure     = "/" + PlayerServiceName + "/SetDJRole"
	PlayerServiceSetEffectsProcedure    = "/" + PlayerServiceName + "/SetEffects"
)

// PlayerServiceHandler is implemented by PlayerService.
type PlayerServiceHandler interface {
	NowPlaying(context.Context, *connect.Request[GuildRequest]) (*connect.Response[NowPlayingResponse], error)
	Queue(context.Context, *connect.Request[GuildRequest]) (*connect.Response[QueueResponse], error)
	Enqueue(context.Context, *connect.Request[EnqueueRequest]) (*connect.Response[EnqueueResponse], error)
	Skip(context.Context, *connect.Request[GuildRequest]) (*connect.Response[Ack], error)
	Stop(context.Context, *connect.Request[GuildRequest]) (*connect.Response[Ack], error)
	Pause(context.Context, *connect.Request[GuildRequest]) (*connect.Response[Ack], error)
	Resume(context.Context, *connect.Request[GuildRequest]) (*connect.Response[Ack], error)
	Disconnect(context.Context, *connect.Request[GuildRequest]) (*connect.Response[Ack], error)
	SetVolume(context.Context, *connect.Request[SetVolumeRequest]) (*connect.Response[Ack], error)
	SetRepeatMode(context.Context, *connect.Request[SetRepeatModeRequest]) (*connect.Response[Ack], error)
	SetAutoplay(context.Context, *connect.Request[SetAutoplayRequest]) (*connect.Response[Ack], error)
	SetDJRole(context.Context, *connect.Request[SetDJRoleRequest]) (*connect.Response[Ack], error)
	SetEffects(context.Context, *connect.Request[SetEffectsRequest]) (*connect.Response[Ack], error)
}

// Ensure PlayerService implements the interface.
var _ PlayerServiceHandler = (*PlayerService)(nil)

// NewPlayerServiceHandler builds an HTTP handler for the service and returns the path to mount it on.
func NewPlayerServiceHandler(svc PlayerServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(PlayerServiceNowPlayingProcedure, connect.NewUnaryHandler(PlayerServiceNowPlayingProcedure, svc.NowPlaying, opts...))
	mux.Handle(PlayerServiceQueueProcedure, connect.NewUnaryHandler(PlayerServiceQueueProcedure, svc.Queue, opts...))
	mux.Handle(PlayerServiceEnqueueProcedure, connect.NewUnaryHandler(PlayerServiceEnqueueProcedure, svc.Enqueue, opts...))
	mux.Handle(PlayerServiceSkipProcedure, connect.NewUnaryHandler(PlayerServiceSkipProcedure, svc.Skip, opts...))
	mux.Handle(PlayerServiceStopProcedure, connect.NewUnaryHandler(PlayerServiceStopProcedure, svc.Stop, opts...))
	mux.Handle(PlayerServicePauseProcedure, connect.NewUnaryHandler(PlayerServicePauseProcedure, svc.Pause, opts...))
	mux.Handle(PlayerServiceResumeProcedure, connect.NewUnaryHandler(PlayerServiceResumeProcedure, svc.Resume, opts...))
	mux.Handle(PlayerServiceDisconnectProcedure, connect.NewUnaryHandler(PlayerServiceDisconnectProcedure, svc.Disconnect, opts...))
	mux.Handle(PlayerServiceSetVolumeProcedure, connect.NewUnaryHandler(PlayerServiceSetVolumeProcedure, svc.SetVolume, opts...))
	mux.Handle(PlayerServiceSetRepeatModeProcedure, connect.NewUnaryHandler(PlayerServiceSetRepeatModeProcedure, svc.SetRepeatMode, opts...))
	mux.Handle(PlayerServiceSetAutoplayProcedure, connect.NewUnaryHandler(PlayerServiceSetAutoplayProcedure, svc.SetAutoplay, opts...))
	mux.Handle(PlayerServiceSetDJRoleProcedure, connect.NewUnaryHandler(PlayerServiceSetDJRoleProcedure, svc.SetDJRole, opts...))
	mux.Handle(PlayerServiceSetEffectsProcedure, connect.NewUnaryHandler(PlayerServiceSetEffectsProcedure, svc.SetEffects, opts...))
	return "/" + PlayerServiceName + "/", mux
}

// PlayerServiceClient calls a remote PlayerService.
type PlayerServiceClient struct {
	nowPlaying    *connect.Client[GuildRequest, NowPlayingResponse]
	queue         *connect.Client[GuildRequest, QueueResponse]
	enqueue       *connect.Client[EnqueueRequest, EnqueueResponse]
	skip          *connect.Client[GuildRequest, Ack]
	stop          *connect.Client[GuildRequest, Ack]
	pause         *connect.Client[GuildRequest, Ack]
	resume        *connect.Client[GuildRequest, Ack]
	disconnect    *connect.Client[GuildRequest, Ack]
	setVolume     *connect.Client[SetVolumeRequest, Ack]
	setRepeatMode *connect.Client[SetRepeatModeRequest, Ack]
	setAutoplay   *connect.Client[SetAutoplayRequest, Ack]
	setDJRole     *connect.Client[SetDJRoleRequest, Ack]
	setEffects    *connect.Client[SetEffectsRequest, Ack]
}

// NewPlayerServiceClient creates a client for the service at baseURL.
func NewPlayerServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *PlayerServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &PlayerServiceClient{
		nowPlaying:    connect.NewClient[GuildRequest, NowPlayingResponse](httpClient, baseURL+PlayerServiceNowPlayingProcedure, opts...),
		queue:         connect.NewClient[GuildRequest, QueueResponse](httpClient, baseURL+PlayerServiceQueueProcedure, opts...),
		enqueue:       connect.NewClient[EnqueueRequest, EnqueueResponse](httpClient, baseURL+PlayerServiceEnqueueProcedure, opts...),
		skip:          connect.NewClient[GuildRequest, Ack](httpClient, baseURL+PlayerServiceSkipProcedure, opts...),
		stop:          connect.NewClient[GuildRequest, Ack](httpClient, baseURL+PlayerServiceStopProcedure, opts...),
		pause:         connect.NewClient[GuildRequest, Ack](httpClient, baseURL+PlayerServicePauseProcedure, opts...),
		resume:        connect.NewClient[GuildRequest, Ack](httpClient, baseURL+PlayerServiceResumeProcedure, opts...),
		disconnect:    connect.NewClient[GuildRequest, Ack](httpClient, baseURL+PlayerServiceDisconnectProcedure, opts...),
		setVolume:     connect.NewClient[SetVolumeRequest, Ack](httpClient, baseURL+PlayerServiceSetVolumeProcedure, opts...),
		setRepeatMode: connect.NewClient[SetRepeatModeRequest, Ack](httpClient, baseURL+PlayerServiceSetRepeatModeProcedure, opts...),
		setAutoplay:   connect.NewClient[SetAutoplayRequest, Ack](httpClient, baseURL+PlayerServiceSetAutoplayProcedure, opts...),
		setDJRole:     connect.NewClient[SetDJRoleRequest, Ack](httpClient, baseURL+PlayerServiceSetDJRoleProcedure, opts...),
		setEffects:    connect.NewClient[SetEffectsRequest, Ack](httpClient, baseURL+PlayerServiceSetEffectsProcedure, opts...),
	}
}

func (c *PlayerServiceClient) NowPlaying(ctx context.Context, req *connect.Request[GuildRequest]) (*connect.Response[NowPlayingResponse], error) {
	return c.nowPlaying.CallUnary(ctx, req)
}

func (c *PlayerServiceClient) Queue(ctx context.Context, req *connect.Request[GuildRequest]) (*connect.Response[QueueResponse], error) {
	return c.queue.CallUnary(ctx, req)
}

func (c *PlayerServiceClient) Enqueue(ctx context.Context, req *connect.Request[EnqueueRequest]) (*connect.Response[EnqueueResponse], error) {
	return c.enqueue.CallUnary(ctx, req)
}

func (c *PlayerServiceClient) Skip(ctx context.Context, req *connect.Request[GuildRequest]) (*connect.Response[Ack], error) {
	return c.skip.CallUnary(ctx, req)
}

func (c *PlayerServiceClient) Stop(ctx context.Context, req *connect.Request[GuildRequest]) (*connect.Response[Ack], error) {
	return c.stop.CallUnary(ctx, req)
}

func (c *PlayerServiceClient) Pause(ctx context.Context, req *connect.Request[GuildRequest]) (*connect.Response[Ack], error) {
	return c.pause.CallUnary(ctx, req)
}

func (c *PlayerServiceClient) Resume(ctx context.Context, req *connect.Request[GuildRequest]) (*connect.Response[Ack], error) {
	return c.resume.CallUnary(ctx, req)
}

func (c *PlayerServiceClient) Disconnect(ctx context.Context, req *connect.Request[GuildRequest]) (*connect.Response[Ack], error) {
	return c.disconnect.CallUnary(ctx, req)
}

func (c *PlayerServiceClient) SetVolume(ctx context.Context, req *connect.Request[SetVolumeRequest]) (*connect.Response[Ack], error) {
	return c.setVolume.CallUnary(ctx, req)
}

func (c *PlayerServiceClient) SetRepeatMode(ctx context.Context, req *connect.Request[SetRepeatModeRequest]) (*connect.Response[Ack], error) {
	return c.setRepeatMode.CallUnary(ctx, req)
}

func (c *PlayerServiceClient) SetAutoplay(ctx context.Context, req *connect.Request[SetAutoplayRequest]) (*connect.Response[Ack], error) {
	return c.setAutoplay.CallUnary(ctx, req)
}

func (c *PlayerServiceClient) SetDJRole(ctx context.Context, req *connect.Request[SetDJRoleRequest]) (*connect.Response[Ack], error) {
	return c.setDJRole.CallUnary(ctx, req)
}

func (c *PlayerServiceClient) SetEffects(ctx context.Context, req *connect.Request[SetEffectsRequest]) (*connect.Response[Ack], error) {
	return c.setEffects.CallUnary(ctx, req)
}
