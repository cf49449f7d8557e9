package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/osa030/guildbox/internal/domain/player"
	"github.com/osa030/guildbox/internal/domain/track"
)

const progressWidth = 20

// Message is a rendered notification, independent of the chat platform.
type Message struct {
	Title        string
	Description  string
	URL          string
	ThumbnailURL string
	Fields       []Field
	Footer       string
}

// Field is a labelled value inside a message.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// NowPlayingInfo carries what a now-playing message shows.
type NowPlayingInfo struct {
	Entry         track.QueueEntry
	Position      time.Duration
	QueuePosition int // 1-based
	QueueLength   int
	Effects       []string
	RepeatMode    player.RepeatMode
	Volume        int
	Paused        bool
}

// NowPlaying renders the now-playing message.
func NowPlaying(info NowPlayingInfo) Message {
	t := info.Entry.Track

	title := "Now playing"
	if info.Paused {
		title = "Paused"
	}

	fields := []Field{
		{Name: "Progress", Value: Progress(info.Position, t.Duration, t.IsStream)},
		{Name: "Queue", Value: fmt.Sprintf("Track %d of %d", info.QueuePosition, info.QueueLength), Inline: true},
		{Name: "Repeat", Value: info.RepeatMode.String(), Inline: true},
		{Name: "Volume", Value: fmt.Sprintf("%d%%", info.Volume), Inline: true},
	}
	if len(info.Effects) > 0 {
		fields = append(fields, Field{Name: "Effects", Value: strings.Join(info.Effects, ", ")})
	}

	footer := ""
	if info.Entry.IsAutoplay() {
		footer = "Added by autoplay"
	} else {
		footer = fmt.Sprintf("Requested by <@%s>", info.Entry.RequesterID)
	}

	return Message{
		Title:        title,
		Description:  describe(t),
		URL:          t.URI,
		ThumbnailURL: t.ArtworkURL,
		Fields:       fields,
		Footer:       footer,
	}
}

// Resumed renders the message posted after playback is restored on startup.
func Resumed(entry track.QueueEntry, position time.Duration, paused bool) Message {
	state := "Playback resumed"
	if paused {
		state = "Playback restored (paused)"
	}
	return Message{
		Title:        state,
		Description:  describe(entry.Track),
		URL:          entry.Track.URI,
		ThumbnailURL: entry.Track.ArtworkURL,
		Fields: []Field{
			{Name: "Position", Value: Progress(position, entry.Track.Duration, entry.Track.IsStream)},
		},
		Footer: "Restored after a restart",
	}
}

// Progress renders a text progress bar with elapsed and total time.
func Progress(position, duration time.Duration, stream bool) string {
	if stream || duration <= 0 {
		return "LIVE " + FormatDuration(position)
	}
	if position < 0 {
		position = 0
	}
	if position > duration {
		position = duration
	}

	filled := int(float64(progressWidth) * float64(position) / float64(duration))
	if filled >= progressWidth {
		filled = progressWidth - 1
	}
	bar := strings.Repeat("▬", filled) + "🔘" + strings.Repeat("▬", progressWidth-filled-1)
	return fmt.Sprintf("%s %s / %s", bar, FormatDuration(position), FormatDuration(duration))
}

// FormatDuration formats d as m:ss or h:mm:ss.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d%time.Hour) / int(time.Minute)
	s := int(d%time.Minute) / int(time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func describe(t track.Track) string {
	if t.Author == "" {
		return t.Title
	}
	return fmt.Sprintf("%s\nby %s", t.Title, t.Author)
}
