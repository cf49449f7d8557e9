package connect

import (
	"github.com/disgoorg/snowflake/v2"
)

// GuildRequest addresses a guild without further arguments.
type GuildRequest struct {
	GuildID snowflake.ID `json:"guild_id"`
}

// Ack is returned by commands that have no result.
type Ack struct {
	Message string `json:"message"`
}

type TrackInfo struct {
	Index       int          `json:"index"`
	Title       string       `json:"title"`
	Author      string       `json:"author"`
	URI         string       `json:"uri"`
	DurationMs  int64        `json:"duration_ms"`
	IsStream    bool         `json:"is_stream"`
	RequesterID snowflake.ID `json:"requester_id,omitempty"`
	Autoplay    bool         `json:"autoplay"`
}

type NowPlayingResponse struct {
	State          string       `json:"state"`
	VoiceChannelID snowflake.ID `json:"voice_channel_id,omitempty"`
	Current        *TrackInfo   `json:"current,omitempty"`
	PositionMs     int64        `json:"position_ms"`
	QueuePosition  int          `json:"queue_position"`
	QueueLength    int          `json:"queue_length"`
	Volume         int          `json:"volume"`
	RepeatMode     string       `json:"repeat_mode"`
	AutoplayCount  int          `json:"autoplay_count"`
	Effects        []string     `json:"effects"`
}

type QueueResponse struct {
	Entries      []TrackInfo `json:"entries"`
	CurrentIndex *int        `json:"current_index,omitempty"`
}

type EnqueueRequest struct {
	GuildID        snowflake.ID `json:"guild_id"`
	VoiceChannelID snowflake.ID `json:"voice_channel_id,omitempty"`
	TextChannelID  snowflake.ID `json:"text_channel_id,omitempty"`
	RequesterID    snowflake.ID `json:"requester_id"`
	Query          string       `json:"query"`
}

type EnqueueResponse struct {
	Added        []TrackInfo `json:"added"`
	PlaylistName string      `json:"playlist_name,omitempty"`
}

type SetVolumeRequest struct {
	GuildID snowflake.ID `json:"guild_id"`
	Volume  int          `json:"volume"`
}

type SetRepeatModeRequest struct {
	GuildID snowflake.ID `json:"guild_id"`
	Mode    string       `json:"mode"`
}

type SetAutoplayRequest struct {
	GuildID snowflake.ID `json:"guild_id"`
	Count   int          `json:"count"`
}

type SetDJRoleRequest struct {
	GuildID snowflake.ID  `json:"guild_id"`
	RoleID  *snowflake.ID `json:"role_id,omitempty"` // Nil clears the role
}

type SetEffectsRequest struct {
	GuildID snowflake.ID `json:"guild_id"`
	Effects []string     `json:"effects"`
}
