package discord

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"

	"github.com/osa030/guildbox/internal/app/notification"
)

const embedColor = 0x1db954

// MessageCreator sends channel messages.
type MessageCreator interface {
	CreateMessage(channelID snowflake.ID, messageCreate discord.MessageCreate, opts ...rest.RequestOpt) (*discord.Message, error)
}

// Poster posts notifications as embeds.
type Poster struct {
	rest MessageCreator
}

// NewPoster creates a poster.
func NewPoster(rest MessageCreator) *Poster {
	return &Poster{rest: rest}
}

// Post sends msg to the channel.
func (p *Poster) Post(ctx context.Context, channelID snowflake.ID, msg notification.Message) error {
	if _, err := p.rest.CreateMessage(channelID, toMessageCreate(msg), rest.WithCtx(ctx)); err != nil {
		return errors.Wrapf(err, "failed to post to channel %s", channelID)
	}
	return nil
}

func toMessageCreate(msg notification.Message) discord.MessageCreate {
	embed := discord.Embed{
		Title:       msg.Title,
		Description: msg.Description,
		URL:         msg.URL,
		Color:       embedColor,
	}
	if msg.ThumbnailURL != "" {
		embed.Thumbnail = &discord.EmbedResource{URL: msg.ThumbnailURL}
	}
	if msg.Footer != "" {
		embed.Footer = &discord.EmbedFooter{Text: msg.Footer}
	}
	for _, f := range msg.Fields {
		embed.Fields = append(embed.Fields, discord.EmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: &f.Inline,
		})
	}
	return discord.MessageCreate{Embeds: []discord.Embed{embed}}
}
