package discord

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/guildbox/internal/app/notification"
)

func TestEffectivePermissions(t *testing.T) {
	const (
		guildID  = snowflake.ID(1)
		botID    = snowflake.ID(100)
		djRoleID = snowflake.ID(7)
	)
	guild := discord.Guild{ID: guildID, OwnerID: 999}
	member := discord.Member{User: discord.User{ID: botID}, RoleIDs: []snowflake.ID{djRoleID}}
	base := discord.PermissionViewChannel | discord.PermissionSendMessages | discord.PermissionEmbedLinks

	tests := []struct {
		name       string
		guild      discord.Guild
		everyone   discord.Permissions
		roles      map[snowflake.ID]discord.Permissions
		overwrites []discord.PermissionOverwrite
		wantPost   bool
	}{
		{
			name:     "everyone role grants posting",
			guild:    guild,
			everyone: base,
			wantPost: true,
		},
		{
			name:     "member role grants posting",
			guild:    guild,
			roles:    map[snowflake.ID]discord.Permissions{djRoleID: base},
			wantPost: true,
		},
		{
			name:     "everyone overwrite denies send",
			guild:    guild,
			everyone: base,
			overwrites: []discord.PermissionOverwrite{
				discord.RolePermissionOverwrite{RoleID: guildID, Deny: discord.PermissionSendMessages},
			},
			wantPost: false,
		},
		{
			name:     "role overwrite restores send",
			guild:    guild,
			everyone: base,
			overwrites: []discord.PermissionOverwrite{
				discord.RolePermissionOverwrite{RoleID: guildID, Deny: discord.PermissionSendMessages},
				discord.RolePermissionOverwrite{RoleID: djRoleID, Allow: discord.PermissionSendMessages},
			},
			wantPost: true,
		},
		{
			name:     "member overwrite wins",
			guild:    guild,
			everyone: base,
			overwrites: []discord.PermissionOverwrite{
				discord.RolePermissionOverwrite{RoleID: djRoleID, Allow: discord.PermissionSendMessages},
				discord.MemberPermissionOverwrite{UserID: botID, Deny: discord.PermissionViewChannel},
			},
			wantPost: false,
		},
		{
			name:     "administrator ignores overwrites",
			guild:    guild,
			roles:    map[snowflake.ID]discord.Permissions{djRoleID: discord.PermissionAdministrator},
			overwrites: []discord.PermissionOverwrite{
				discord.MemberPermissionOverwrite{UserID: botID, Deny: discord.PermissionViewChannel},
			},
			wantPost: true,
		},
		{
			name:     "owner has everything",
			guild:    discord.Guild{ID: guildID, OwnerID: botID},
			wantPost: true,
		},
		{
			name:     "no permissions",
			guild:    guild,
			wantPost: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perms := effectivePermissions(tt.guild, member, tt.everyone, tt.roles, tt.overwrites)
			assert.Equal(t, tt.wantPost, perms.Has(postPermissions))
		})
	}
}

func TestChannelTypes(t *testing.T) {
	assert.True(t, isVoice(discord.ChannelTypeGuildVoice))
	assert.True(t, isVoice(discord.ChannelTypeGuildStageVoice))
	assert.False(t, isVoice(discord.ChannelTypeGuildText))
	assert.True(t, isText(discord.ChannelTypeGuildText))
	assert.True(t, isText(discord.ChannelTypeGuildNews))
	assert.False(t, isText(discord.ChannelTypeGuildVoice))
}

type fakeRest struct {
	channelID snowflake.ID
	message   discord.MessageCreate
	err       error
}

func (f *fakeRest) CreateMessage(channelID snowflake.ID, messageCreate discord.MessageCreate, opts ...rest.RequestOpt) (*discord.Message, error) {
	f.channelID = channelID
	f.message = messageCreate
	if f.err != nil {
		return nil, f.err
	}
	return &discord.Message{ChannelID: channelID}, nil
}

func TestPoster_Post(t *testing.T) {
	fake := &fakeRest{}
	p := NewPoster(fake)

	msg := notification.Message{
		Title:        "Now Playing",
		Description:  "One More Time",
		URL:          "https://youtu.be/x",
		ThumbnailURL: "https://img/x.jpg",
		Footer:       "Requested by someone",
		Fields: []notification.Field{
			{Name: "Queue", Value: "1/3", Inline: true},
			{Name: "Effects", Value: "nightcore"},
		},
	}
	require.NoError(t, p.Post(context.Background(), 42, msg))

	assert.Equal(t, snowflake.ID(42), fake.channelID)
	require.Len(t, fake.message.Embeds, 1)
	embed := fake.message.Embeds[0]
	assert.Equal(t, "Now Playing", embed.Title)
	assert.Equal(t, "https://img/x.jpg", embed.Thumbnail.URL)
	assert.Equal(t, "Requested by someone", embed.Footer.Text)
	require.Len(t, embed.Fields, 2)
	assert.True(t, *embed.Fields[0].Inline)
	assert.False(t, *embed.Fields[1].Inline)
}

func TestPoster_PostError(t *testing.T) {
	p := NewPoster(&fakeRest{err: errors.New("missing access")})

	err := p.Post(context.Background(), 42, notification.Message{Title: "x"})
	assert.ErrorContains(t, err, "missing access")
}

func TestPoster_OmitsEmptyParts(t *testing.T) {
	mc := toMessageCreate(notification.Message{Title: "Resumed"})

	embed := mc.Embeds[0]
	assert.Nil(t, embed.Thumbnail)
	assert.Nil(t, embed.Footer)
	assert.Empty(t, embed.Fields)
}
