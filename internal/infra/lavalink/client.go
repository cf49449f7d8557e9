// Package lavalink provides a Lavalink v4 client used as the audio backend.
package lavalink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/osa030/guildbox/internal/domain/player"
	"github.com/osa030/guildbox/internal/domain/track"
)

var (
	ErrNotConnected = errors.New("lavalink session not established")
	ErrVoiceTimeout = errors.New("timed out waiting for voice connection")
)

// StatusError is returned for non-2xx REST responses.
type StatusError struct {
	Op      string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("lavalink %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("lavalink %s: status %d: %s", e.Op, e.Status, e.Message)
}

// EventListener receives player events from the websocket.
type EventListener interface {
	OnTrackStart(guildID snowflake.ID, t track.Track)
	OnTrackEnd(guildID snowflake.ID, t track.Track, reason player.EndReason)
	OnPlayerUpdate(guildID snowflake.ID, position time.Duration, at time.Time)
}

// VoiceGateway asks the chat gateway to move the bot's voice state. A nil channel leaves voice.
type VoiceGateway interface {
	UpdateVoiceState(ctx context.Context, guildID snowflake.ID, channelID *snowflake.ID) error
}

// Metrics records backend requests.
type Metrics interface {
	BackendRequest(op string, ok bool)
}

// Config represents Lavalink connection configuration.
type Config struct {
	Host           string
	Port           int
	Password       string
	Secure         bool
	UserID         snowflake.ID
	ClientName     string
	RESTRate       float64       // Requests per second
	RESTBurst      int           //
	ResumeTimeout  time.Duration // How long the node keeps players after the socket drops
	ReconnectDelay time.Duration
	VoiceTimeout   time.Duration
}

// voiceState tracks the two halves of a voice connection reported by the gateway.
type voiceState struct {
	channelID snowflake.ID
	sessionID string
	token     string
	endpoint  string
	sent      bool
	ready     chan struct{}
}

// Client is a Lavalink v4 client.
type Client struct {
	config     Config
	restBase   string
	wsURL      string
	httpClient *http.Client
	limiter    *rate.Limiter
	gateway    VoiceGateway
	metrics    Metrics

	mu        sync.RWMutex
	sessionID string
	conn      *websocket.Conn
	listener  EventListener
	voice     map[snowflake.ID]*voiceState

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new Lavalink client. gateway and metrics may be nil.
func New(config Config, gateway VoiceGateway, metrics Metrics) *Client {
	if config.ClientName == "" {
		config.ClientName = "guildbox/1.0"
	}
	if config.RESTRate <= 0 {
		config.RESTRate = 20
	}
	if config.RESTBurst <= 0 {
		config.RESTBurst = 10
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = 5 * time.Second
	}
	if config.VoiceTimeout <= 0 {
		config.VoiceTimeout = 10 * time.Second
	}

	httpScheme, wsScheme := "http", "ws"
	if config.Secure {
		httpScheme, wsScheme = "https", "wss"
	}
	host := config.Host + ":" + strconv.Itoa(config.Port)

	return &Client{
		config:     config,
		restBase:   httpScheme + "://" + host,
		wsURL:      wsScheme + "://" + host + "/v4/websocket",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(config.RESTRate), config.RESTBurst),
		gateway:    gateway,
		metrics:    metrics,
		voice:      make(map[snowflake.ID]*voiceState),
		stop:       make(chan struct{}),
	}
}

// SetListener sets the receiver of player events. Call before Connect.
func (c *Client) SetListener(l EventListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = l
}

// SetGateway sets the voice gateway and the bot user the node plays for. Call before Connect.
func (c *Client) SetGateway(g VoiceGateway, userID snowflake.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gateway = g
	c.config.UserID = userID
}

// LoadTracks resolves an identifier (URL or "ytsearch:" query) into tracks.
func (c *Client) LoadTracks(ctx context.Context, identifier string) (LoadResult, error) {
	var resp loadResponse
	path := "/v4/loadtracks?identifier=" + url.QueryEscape(identifier)
	if err := c.do(ctx, "loadtracks", http.MethodGet, path, nil, &resp); err != nil {
		return LoadResult{}, err
	}

	result := LoadResult{Type: resp.LoadType}
	switch resp.LoadType {
	case LoadTypeTrack:
		var t Track
		if err := json.Unmarshal(resp.Data, &t); err != nil {
			return LoadResult{}, errors.Wrap(err, "failed to decode track")
		}
		result.Tracks = []track.Track{t.ToDomain()}
	case LoadTypeSearch:
		var ts []Track
		if err := json.Unmarshal(resp.Data, &ts); err != nil {
			return LoadResult{}, errors.Wrap(err, "failed to decode search result")
		}
		result.Tracks = toDomain(ts)
	case LoadTypePlaylist:
		var pl playlistData
		if err := json.Unmarshal(resp.Data, &pl); err != nil {
			return LoadResult{}, errors.Wrap(err, "failed to decode playlist")
		}
		result.PlaylistName = pl.Info.Name
		result.Tracks = toDomain(pl.Tracks)
	case LoadTypeEmpty:
	case LoadTypeError:
		var ex exceptionData
		_ = json.Unmarshal(resp.Data, &ex)
		err := errors.Newf("load failed: %s (%s)", ex.Message, ex.Severity)
		if ex.Severity == "fault" {
			return LoadResult{}, errors.Mark(err, player.ErrTransient)
		}
		return LoadResult{}, err
	default:
		return LoadResult{}, errors.Newf("unexpected load type %q", resp.LoadType)
	}
	return result, nil
}

// Join connects the bot to a voice channel and waits until the node has the voice credentials.
func (c *Client) Join(ctx context.Context, guildID, channelID snowflake.ID) error {
	c.mu.Lock()
	vs, ok := c.voice[guildID]
	if ok && vs.channelID == channelID && vs.sent {
		c.mu.Unlock()
		return nil
	}
	vs = &voiceState{channelID: channelID, ready: make(chan struct{})}
	c.voice[guildID] = vs
	gateway := c.gateway
	c.mu.Unlock()

	if gateway == nil {
		return errors.New("no voice gateway configured")
	}
	if err := gateway.UpdateVoiceState(ctx, guildID, &channelID); err != nil {
		return errors.Wrap(err, "failed to update voice state")
	}

	timer := time.NewTimer(c.config.VoiceTimeout)
	defer timer.Stop()
	select {
	case <-vs.ready:
		zlog.Debug().Msgf("lavalink: voice ready guild=%s channel=%s", guildID, channelID)
		return nil
	case <-timer.C:
		return errors.Wrapf(ErrVoiceTimeout, "guild %s", guildID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Leave destroys the guild's player and disconnects from voice.
func (c *Client) Leave(ctx context.Context, guildID snowflake.ID) error {
	c.mu.Lock()
	delete(c.voice, guildID)
	gateway := c.gateway
	c.mu.Unlock()

	var err error
	if derr := c.destroyPlayer(ctx, guildID); derr != nil {
		err = derr
	}
	if gateway != nil {
		if gerr := gateway.UpdateVoiceState(ctx, guildID, nil); gerr != nil {
			err = errors.CombineErrors(err, errors.Wrap(gerr, "failed to leave voice"))
		}
	}
	return err
}

// Play starts t on the guild's player, replacing whatever is playing.
// A track the node refuses yields an error marked player.ErrLoadFailed.
func (c *Client) Play(ctx context.Context, guildID snowflake.ID, t track.Track) error {
	encoded := t.ID
	err := c.updatePlayer(ctx, "play", guildID, playerUpdate{
		Track:  &updateTrack{Encoded: &encoded},
		Paused: ptr(false),
	})
	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusBadRequest {
		return errors.Mark(err, player.ErrLoadFailed)
	}
	return err
}

// Pause pauses the guild's player.
func (c *Client) Pause(ctx context.Context, guildID snowflake.ID) error {
	return c.updatePlayer(ctx, "pause", guildID, playerUpdate{Paused: ptr(true)})
}

// Resume resumes the guild's player.
func (c *Client) Resume(ctx context.Context, guildID snowflake.ID) error {
	return c.updatePlayer(ctx, "resume", guildID, playerUpdate{Paused: ptr(false)})
}

// Seek moves the guild's player to position.
func (c *Client) Seek(ctx context.Context, guildID snowflake.ID, position time.Duration) error {
	return c.updatePlayer(ctx, "seek", guildID, playerUpdate{Position: ptr(position.Milliseconds())})
}

// SetVolume sets the guild's player volume in percent.
func (c *Client) SetVolume(ctx context.Context, guildID snowflake.ID, volume int) error {
	return c.updatePlayer(ctx, "volume", guildID, playerUpdate{Volume: ptr(volume)})
}

// SetEffects replaces the guild's filters with the named presets. No names clears them.
func (c *Client) SetEffects(ctx context.Context, guildID snowflake.ID, effects []string) error {
	filters, err := BuildFilters(effects)
	if err != nil {
		return err
	}
	return c.updatePlayer(ctx, "filters", guildID, playerUpdate{Filters: &filters})
}

// Stop stops the current track without destroying the player.
func (c *Client) Stop(ctx context.Context, guildID snowflake.ID) error {
	return c.updatePlayer(ctx, "stop", guildID, playerUpdate{Track: &updateTrack{}})
}

// OnVoiceStateUpdate records the bot's voice session for a guild. A nil channel means it left.
func (c *Client) OnVoiceStateUpdate(guildID snowflake.ID, channelID *snowflake.ID, sessionID string) {
	c.mu.Lock()
	vs, ok := c.voice[guildID]
	if channelID == nil {
		delete(c.voice, guildID)
		c.mu.Unlock()
		if ok {
			zlog.Info().Msgf("lavalink: bot left voice guild=%s", guildID)
		}
		return
	}
	if !ok {
		vs = &voiceState{ready: make(chan struct{})}
		c.voice[guildID] = vs
	}
	vs.channelID = *channelID
	vs.sessionID = sessionID
	c.mu.Unlock()

	c.sendVoice(guildID)
}

// OnVoiceServerUpdate records the voice server a guild connection uses.
func (c *Client) OnVoiceServerUpdate(guildID snowflake.ID, token, endpoint string) {
	c.mu.Lock()
	vs, ok := c.voice[guildID]
	if !ok {
		vs = &voiceState{ready: make(chan struct{})}
		c.voice[guildID] = vs
	}
	vs.token = token
	vs.endpoint = endpoint
	c.mu.Unlock()

	c.sendVoice(guildID)
}

// sendVoice forwards the voice credentials once both halves are known.
func (c *Client) sendVoice(guildID snowflake.ID) {
	c.mu.Lock()
	vs, ok := c.voice[guildID]
	if !ok || vs.sessionID == "" || vs.token == "" || vs.endpoint == "" {
		c.mu.Unlock()
		return
	}
	payload := voicePayload{
		Token:     vs.token,
		Endpoint:  vs.endpoint,
		SessionID: vs.sessionID,
		ChannelID: vs.channelID.String(),
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.config.VoiceTimeout)
	defer cancel()
	if err := c.updatePlayer(ctx, "voice", guildID, playerUpdate{Voice: &payload}); err != nil {
		zlog.Error().Err(err).Msgf("lavalink: failed to send voice update guild=%s", guildID)
		return
	}

	c.mu.Lock()
	if cur, ok := c.voice[guildID]; ok && cur == vs && !vs.sent {
		vs.sent = true
		close(vs.ready)
	}
	c.mu.Unlock()
}

func (c *Client) updatePlayer(ctx context.Context, op string, guildID snowflake.ID, body playerUpdate) error {
	sessionID, err := c.session()
	if err != nil {
		return err
	}
	path := "/v4/sessions/" + sessionID + "/players/" + guildID.String()
	return c.do(ctx, op, http.MethodPatch, path, body, nil)
}

func (c *Client) destroyPlayer(ctx context.Context, guildID snowflake.ID) error {
	sessionID, err := c.session()
	if err != nil {
		return err
	}
	path := "/v4/sessions/" + sessionID + "/players/" + guildID.String()
	err = c.do(ctx, "destroy", http.MethodDelete, path, nil, nil)
	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusNotFound {
		return nil
	}
	return err
}

// session returns the id of the websocket session player calls are scoped to.
func (c *Client) session() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sessionID == "" {
		return "", errors.Mark(ErrNotConnected, player.ErrTransient)
	}
	return c.sessionID, nil
}

// do performs one rate-limited REST call. Network failures and 5xx responses are marked transient.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limit")
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "failed to encode %s request", op)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.restBase+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Authorization", c.config.Password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(op, false)
		return errors.Mark(errors.Wrapf(err, "lavalink %s", op), player.ErrTransient)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		c.record(op, false)
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		err := &StatusError{Op: op, Status: resp.StatusCode, Message: apiErr.Message}
		if resp.StatusCode >= http.StatusInternalServerError {
			return errors.Mark(err, player.ErrTransient)
		}
		return err
	}
	c.record(op, true)

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "failed to decode %s response", op)
	}
	return nil
}

func (c *Client) record(op string, ok bool) {
	if c.metrics != nil {
		c.metrics.BackendRequest(op, ok)
	}
}

func toDomain(ts []Track) []track.Track {
	out := make([]track.Track, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ToDomain())
	}
	return out
}
