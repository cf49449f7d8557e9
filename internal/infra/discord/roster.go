package discord

import (
	"cmp"
	"iter"
	"slices"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
)

// Permissions the bot needs to post a notification.
const postPermissions = discord.PermissionViewChannel | discord.PermissionSendMessages | discord.PermissionEmbedLinks

// GuildCache is the part of the disgo cache the roster reads.
type GuildCache interface {
	Guild(guildID snowflake.ID) (discord.Guild, bool)
	Channel(channelID snowflake.ID) (discord.GuildChannel, bool)
	Channels() iter.Seq[discord.GuildChannel]
	Role(guildID, roleID snowflake.ID) (discord.Role, bool)
	Member(guildID, userID snowflake.ID) (discord.Member, bool)
}

// Roster answers guild questions from the gateway cache.
type Roster struct {
	cache  GuildCache
	selfID func() snowflake.ID
}

// NewRoster creates a roster over cache. selfID returns the bot's user id.
func NewRoster(cache GuildCache, selfID func() snowflake.ID) *Roster {
	return &Roster{cache: cache, selfID: selfID}
}

// VoiceChannelExists reports whether channelID is a voice or stage channel of the guild.
func (r *Roster) VoiceChannelExists(guildID, channelID snowflake.ID) bool {
	ch, ok := r.cache.Channel(channelID)
	if !ok || ch.GuildID() != guildID {
		return false
	}
	return isVoice(ch.Type())
}

// CanPost reports whether the bot can post embeds in the text channel.
func (r *Roster) CanPost(guildID, channelID snowflake.ID) bool {
	ch, ok := r.cache.Channel(channelID)
	if !ok || ch.GuildID() != guildID || !isText(ch.Type()) {
		return false
	}
	return r.permissions(ch).Has(postPermissions)
}

// PostableChannels returns the guild's text channels the bot can post in, in display order.
func (r *Roster) PostableChannels(guildID snowflake.ID) []snowflake.ID {
	var channels []discord.GuildChannel
	for ch := range r.cache.Channels() {
		if ch.GuildID() != guildID || !isText(ch.Type()) {
			continue
		}
		if r.permissions(ch).Has(postPermissions) {
			channels = append(channels, ch)
		}
	}
	slices.SortFunc(channels, func(a, b discord.GuildChannel) int {
		if c := cmp.Compare(a.Position(), b.Position()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID(), b.ID())
	})

	ids := make([]snowflake.ID, 0, len(channels))
	for _, ch := range channels {
		ids = append(ids, ch.ID())
	}
	return ids
}

// DefaultChannel returns the guild's system channel, if any.
func (r *Roster) DefaultChannel(guildID snowflake.ID) (snowflake.ID, bool) {
	guild, ok := r.cache.Guild(guildID)
	if !ok || guild.SystemChannelID == nil {
		return 0, false
	}
	return *guild.SystemChannelID, true
}

func (r *Roster) permissions(ch discord.GuildChannel) discord.Permissions {
	guild, ok := r.cache.Guild(ch.GuildID())
	if !ok {
		return 0
	}
	member, ok := r.cache.Member(guild.ID, r.selfID())
	if !ok {
		return 0
	}

	var everyone discord.Permissions
	if role, ok := r.cache.Role(guild.ID, guild.ID); ok {
		everyone = role.Permissions
	}
	roles := make(map[snowflake.ID]discord.Permissions, len(member.RoleIDs))
	for _, id := range member.RoleIDs {
		if role, ok := r.cache.Role(guild.ID, id); ok {
			roles[id] = role.Permissions
		}
	}
	return effectivePermissions(guild, member, everyone, roles, ch.PermissionOverwrites())
}

// effectivePermissions applies role permissions and then the channel overwrites
// for @everyone, the member's roles and the member, in that order.
func effectivePermissions(guild discord.Guild, member discord.Member, everyone discord.Permissions,
	roles map[snowflake.ID]discord.Permissions, overwrites []discord.PermissionOverwrite) discord.Permissions {
	if guild.OwnerID == member.User.ID {
		return discord.PermissionsAll
	}

	perms := everyone
	for _, id := range member.RoleIDs {
		perms |= roles[id]
	}
	if perms.Has(discord.PermissionAdministrator) {
		return discord.PermissionsAll
	}

	for _, o := range overwrites {
		if ro, ok := o.(discord.RolePermissionOverwrite); ok && ro.ID() == guild.ID {
			perms &^= ro.Deny
			perms |= ro.Allow
			break
		}
	}

	var allow, deny discord.Permissions
	for _, o := range overwrites {
		ro, ok := o.(discord.RolePermissionOverwrite)
		if !ok || ro.ID() == guild.ID || !slices.Contains(member.RoleIDs, ro.ID()) {
			continue
		}
		allow |= ro.Allow
		deny |= ro.Deny
	}
	perms &^= deny
	perms |= allow

	for _, o := range overwrites {
		if mo, ok := o.(discord.MemberPermissionOverwrite); ok && mo.ID() == member.User.ID {
			perms &^= mo.Deny
			perms |= mo.Allow
			break
		}
	}
	return perms
}

func isVoice(t discord.ChannelType) bool {
	return t == discord.ChannelTypeGuildVoice || t == discord.ChannelTypeGuildStageVoice
}

func isText(t discord.ChannelType) bool {
	return t == discord.ChannelTypeGuildText || t == discord.ChannelTypeGuildNews
}
