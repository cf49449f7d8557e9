// Package discord adapts the disgo gateway client to the playback engine.
package discord

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"
)

// VoiceForwarder receives the bot's own voice credentials.
type VoiceForwarder interface {
	OnVoiceStateUpdate(guildID snowflake.ID, channelID *snowflake.ID, sessionID string)
	OnVoiceServerUpdate(guildID snowflake.ID, token, endpoint string)
}

// Handlers are the callbacks the gateway client drives. Every field is optional.
type Handlers struct {
	Voice VoiceForwarder
	// Ready runs once, after the first shard has received all of its guilds.
	Ready func(ctx context.Context)
}

// Client wraps a disgo client.
type Client struct {
	client   *bot.Client
	handlers Handlers
	ctx      context.Context

	readyOnce sync.Once
}

// New creates a gateway client. ctx is passed to the Ready handler.
func New(ctx context.Context, token string, handlers Handlers) (*Client, error) {
	c := &Client{handlers: handlers, ctx: ctx}

	client, err := disgo.New(token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMembers,
				gateway.IntentGuildVoiceStates,
			),
		),
		bot.WithCacheConfigOpts(
			cache.WithCaches(cache.FlagGuilds, cache.FlagMembers, cache.FlagRoles, cache.FlagChannels, cache.FlagVoiceStates),
		),
		bot.WithEventListenerFunc(c.onVoiceStateUpdate),
		bot.WithEventListenerFunc(c.onVoiceServerUpdate),
		bot.WithEventListenerFunc(c.onGuildsReady),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create discord client")
	}
	c.client = client
	return c, nil
}

// Open connects to the gateway.
func (c *Client) Open(ctx context.Context) error {
	if err := c.client.OpenGateway(ctx); err != nil {
		return errors.Wrap(err, "failed to open gateway")
	}
	return nil
}

// Close disconnects from the gateway.
func (c *Client) Close(ctx context.Context) {
	c.client.Close(ctx)
}

// UserID returns the bot's user id.
func (c *Client) UserID() snowflake.ID {
	return c.client.ID()
}

// UpdateVoiceState joins channelID, or leaves voice when channelID is nil.
func (c *Client) UpdateVoiceState(ctx context.Context, guildID snowflake.ID, channelID *snowflake.ID) error {
	if err := c.client.UpdateVoiceState(ctx, guildID, channelID, false, true); err != nil {
		return errors.Wrapf(err, "failed to update voice state guild=%s", guildID)
	}
	return nil
}

// Roster returns a roster backed by the client's caches.
func (c *Client) Roster() *Roster {
	return NewRoster(c.client.Caches, c.client.ID)
}

// Poster returns a poster that sends messages through the REST client.
func (c *Client) Poster() *Poster {
	return NewPoster(c.client.Rest)
}

func (c *Client) onVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	if c.handlers.Voice == nil || event.VoiceState.UserID != event.Client().ID() {
		return
	}
	zlog.Debug().Msgf("discord: voice state guild=%s channel=%v", event.VoiceState.GuildID, event.VoiceState.ChannelID)
	c.handlers.Voice.OnVoiceStateUpdate(event.VoiceState.GuildID, event.VoiceState.ChannelID, event.VoiceState.SessionID)
}

func (c *Client) onVoiceServerUpdate(event *events.VoiceServerUpdate) {
	if c.handlers.Voice == nil {
		return
	}
	if event.Endpoint == nil {
		// The voice server is being reallocated; another update follows.
		return
	}
	c.handlers.Voice.OnVoiceServerUpdate(event.GuildID, event.Token, *event.Endpoint)
}

func (c *Client) onGuildsReady(event *events.GuildsReady) {
	if c.handlers.Ready == nil {
		return
	}
	c.readyOnce.Do(func() {
		zlog.Info().Msgf("discord: guilds ready shard=%d", event.ShardID())
		go func() {
			defer func() {
				if r := recover(); r != nil {
					zlog.Error().Msgf("discord: panic in ready handler: %v", r)
				}
			}()
			c.handlers.Ready(c.ctx)
		}()
	})
}
