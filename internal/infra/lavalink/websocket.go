package lavalink

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/domain/player"
)

const handshakeTimeout = 10 * time.Second

// Connect opens the websocket and waits for the node's ready message.
// The connection is then maintained in the background, resuming the session after drops, until Close.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.open(ctx)
	if err != nil {
		return err
	}

	c.wg.Add(1)
	go c.run(conn)
	return nil
}

// Close stops the websocket loop. Players on the node are left to the resume timeout.
func (c *Client) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.mu.Unlock()
	})
	c.wg.Wait()
}

// open dials the node and completes the ready handshake.
func (c *Client) open(ctx context.Context) (*websocket.Conn, error) {
	c.mu.RLock()
	previous := c.sessionID
	c.mu.RUnlock()

	header := http.Header{}
	header.Set("Authorization", c.config.Password)
	header.Set("User-Id", c.config.UserID.String())
	header.Set("Client-Name", c.config.ClientName)
	if previous != "" {
		header.Set("Session-Id", previous)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, header)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to dial lavalink"), player.ErrTransient)
	}

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var msg message
	if err := conn.ReadJSON(&msg); err != nil {
		_ = conn.Close()
		return nil, errors.Mark(errors.Wrap(err, "failed to read ready message"), player.ErrTransient)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if msg.Op != "ready" || msg.SessionID == "" {
		_ = conn.Close()
		return nil, errors.Newf("unexpected first message op=%q", msg.Op)
	}

	c.mu.Lock()
	select {
	case <-c.stop:
		c.mu.Unlock()
		_ = conn.Close()
		return nil, errors.New("lavalink client closed")
	default:
	}
	c.sessionID = msg.SessionID
	c.conn = conn
	c.mu.Unlock()

	if previous != "" && !msg.Resumed {
		zlog.Warn().Msgf("lavalink: session %s was not resumed, players on the node were lost", previous)
	}
	zlog.Info().Msgf("lavalink: connected session=%s resumed=%t", msg.SessionID, msg.Resumed)

	if c.config.ResumeTimeout > 0 {
		body := sessionUpdate{Resuming: true, Timeout: int(c.config.ResumeTimeout.Seconds())}
		if err := c.do(ctx, "session", http.MethodPatch, "/v4/sessions/"+msg.SessionID, body, nil); err != nil {
			zlog.Warn().Err(err).Msg("lavalink: failed to enable session resuming")
		}
	}
	return conn, nil
}

// run reads messages until the connection drops, then reconnects until Close.
func (c *Client) run(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		err := c.readMessages(conn)
		_ = conn.Close()

		select {
		case <-c.stop:
			return
		default:
		}
		zlog.Warn().Err(err).Msg("lavalink: websocket closed, reconnecting")

		conn = c.reconnect()
		if conn == nil {
			return
		}
	}
}

func (c *Client) reconnect() *websocket.Conn {
	for attempt := 1; ; attempt++ {
		select {
		case <-c.stop:
			return nil
		case <-time.After(c.config.ReconnectDelay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
		conn, err := c.open(ctx)
		cancel()
		if err == nil {
			return conn
		}
		zlog.Error().Err(err).Msgf("lavalink: reconnect attempt=%d failed", attempt)
	}
}

func (c *Client) readMessages(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			zlog.Warn().Err(err).Msg("lavalink: dropped malformed message")
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg message) {
	switch msg.Op {
	case "playerUpdate":
		c.handlePlayerUpdate(msg)
	case "event":
		c.handleEvent(msg)
	case "stats", "ready":
	default:
		zlog.Debug().Msgf("lavalink: ignored op=%s", msg.Op)
	}
}

func (c *Client) handlePlayerUpdate(msg message) {
	guildID, listener, ok := c.target(msg)
	if !ok {
		return
	}
	listener.OnPlayerUpdate(guildID, time.Duration(msg.State.Position)*time.Millisecond, time.UnixMilli(msg.State.Time))
}

func (c *Client) handleEvent(msg message) {
	guildID, listener, ok := c.target(msg)
	if !ok {
		return
	}

	switch msg.Type {
	case "TrackStartEvent":
		if msg.Track == nil {
			return
		}
		listener.OnTrackStart(guildID, msg.Track.ToDomain())
	case "TrackEndEvent":
		if msg.Track == nil {
			return
		}
		listener.OnTrackEnd(guildID, msg.Track.ToDomain(), player.ParseEndReason(msg.Reason))
	case "TrackExceptionEvent":
		if msg.Exception != nil {
			zlog.Warn().Msgf("lavalink: track exception guild=%s severity=%s: %s",
				guildID, msg.Exception.Severity, msg.Exception.Message)
		}
	case "TrackStuckEvent":
		zlog.Warn().Msgf("lavalink: track stuck guild=%s threshold=%dms", guildID, msg.Threshold)
	case "WebSocketClosedEvent":
		zlog.Warn().Msgf("lavalink: voice socket closed guild=%s code=%d reason=%s", guildID, msg.Code, msg.Reason)
	default:
		zlog.Debug().Msgf("lavalink: ignored event type=%s guild=%s", msg.Type, guildID)
	}
}

func (c *Client) target(msg message) (snowflake.ID, EventListener, bool) {
	guildID, err := snowflake.Parse(msg.GuildID)
	if err != nil {
		zlog.Warn().Msgf("lavalink: invalid guild id %q in %s", msg.GuildID, msg.Op)
		return 0, nil, false
	}
	c.mu.RLock()
	listener := c.listener
	c.mu.RUnlock()
	return guildID, listener, listener != nil
}
