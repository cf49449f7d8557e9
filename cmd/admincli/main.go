// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/guildbox/internal/api/connect"
	"github.com/osa030/guildbox/internal/app/notification"
)

var (
	app    = kingpin.New("guildbox-admincli", "guildbox admin client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").Envar("GUILDBOX_SERVER").String()
	guild  = app.Flag("guild", "Guild ID").Short('g').Envar("GUILDBOX_GUILD").Required().Uint64()

	// status command
	statusCmd = app.Command("status", "Show what is playing").Alias("np")

	// queue command
	queueCmd = app.Command("queue", "List the queue")

	// play command
	playCmd       = app.Command("play", "Enqueue a URL or search query")
	playQuery     = playCmd.Arg("query", "URL or search text").Required().String()
	playVoice     = playCmd.Flag("voice", "Voice channel to join").Uint64()
	playText      = playCmd.Flag("text", "Channel for now-playing messages").Uint64()
	playRequester = playCmd.Flag("requester", "Requesting user ID").Uint64()

	// playback commands
	skipCmd       = app.Command("skip", "Skip the current track")
	stopCmd       = app.Command("stop", "Stop playback and clear the queue")
	pauseCmd      = app.Command("pause", "Pause playback")
	resumeCmd     = app.Command("resume", "Resume playback")
	disconnectCmd = app.Command("disconnect", "Leave the voice channel").Alias("leave")

	// settings commands
	volumeCmd   = app.Command("volume", "Set the volume")
	volumeValue = volumeCmd.Arg("volume", "Volume (0-100)").Required().Int()

	repeatCmd  = app.Command("repeat", "Set the repeat mode")
	repeatMode = repeatCmd.Arg("mode", "none, track or queue").Required().Enum("none", "track", "queue")

	autoplayCmd   = app.Command("autoplay", "Set how many tracks autoplay appends (0 disables)")
	autoplayCount = autoplayCmd.Arg("count", "Track count").Required().Int()

	djCmd   = app.Command("dj-role", "Set or clear the DJ role")
	djRole  = djCmd.Arg("role-id", "Role ID").Uint64()
	djClear = djCmd.Flag("clear", "Clear the DJ role").Bool()

	effectsCmd   = app.Command("effects", "Set the audio effects (none clears them)")
	effectsNames = effectsCmd.Arg("names", "Effect names").Strings()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewPlayerServiceClient(http.DefaultClient, *server)
	guildID := snowflake.ID(*guild)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch command {
	case statusCmd.FullCommand():
		status(ctx, client, guildID)
	case queueCmd.FullCommand():
		queue(ctx, client, guildID)
	case playCmd.FullCommand():
		play(ctx, client, &apiconnect.EnqueueRequest{
			GuildID:        guildID,
			VoiceChannelID: snowflake.ID(*playVoice),
			TextChannelID:  snowflake.ID(*playText),
			RequesterID:    snowflake.ID(*playRequester),
			Query:          *playQuery,
		})
	case skipCmd.FullCommand():
		ack(client.Skip(ctx, guildRequest(guildID)))
	case stopCmd.FullCommand():
		ack(client.Stop(ctx, guildRequest(guildID)))
	case pauseCmd.FullCommand():
		ack(client.Pause(ctx, guildRequest(guildID)))
	case resumeCmd.FullCommand():
		ack(client.Resume(ctx, guildRequest(guildID)))
	case disconnectCmd.FullCommand():
		ack(client.Disconnect(ctx, guildRequest(guildID)))
	case volumeCmd.FullCommand():
		ack(client.SetVolume(ctx, connect.NewRequest(&apiconnect.SetVolumeRequest{GuildID: guildID, Volume: *volumeValue})))
	case repeatCmd.FullCommand():
		ack(client.SetRepeatMode(ctx, connect.NewRequest(&apiconnect.SetRepeatModeRequest{GuildID: guildID, Mode: *repeatMode})))
	case autoplayCmd.FullCommand():
		ack(client.SetAutoplay(ctx, connect.NewRequest(&apiconnect.SetAutoplayRequest{GuildID: guildID, Count: *autoplayCount})))
	case djCmd.FullCommand():
		setDJRole(ctx, client, guildID)
	case effectsCmd.FullCommand():
		effects := *effectsNames
		if len(effects) == 1 && effects[0] == "none" {
			effects = nil
		}
		ack(client.SetEffects(ctx, connect.NewRequest(&apiconnect.SetEffectsRequest{GuildID: guildID, Effects: effects})))
	}
}

func guildRequest(guildID snowflake.ID) *connect.Request[apiconnect.GuildRequest] {
	return connect.NewRequest(&apiconnect.GuildRequest{GuildID: guildID})
}

// fail prints err and exits.
func fail(err error) {
	if code := connect.CodeOf(err); code != connect.CodeUnknown {
		fmt.Printf("Error (%s): %v\n", code, err)
	} else {
		fmt.Printf("Error: %v\n", err)
	}
	os.Exit(1)
}

func ack(resp *connect.Response[apiconnect.Ack], err error) {
	if err != nil {
		fail(err)
	}
	fmt.Println(resp.Msg.Message)
}

func status(ctx context.Context, client *apiconnect.PlayerServiceClient, guildID snowflake.ID) {
	resp, err := client.NowPlaying(ctx, guildRequest(guildID))
	if err != nil {
		fail(err)
	}

	s := resp.Msg
	fmt.Println("\n=== PLAYER STATUS ===")
	fmt.Printf("State: %s\n", s.State)
	if s.VoiceChannelID != 0 {
		fmt.Printf("Voice Channel: %s\n", s.VoiceChannelID)
	}
	fmt.Printf("Volume: %d\n", s.Volume)
	fmt.Printf("Repeat: %s\n", s.RepeatMode)
	fmt.Printf("Autoplay: %d\n", s.AutoplayCount)
	if len(s.Effects) > 0 {
		fmt.Printf("Effects: %v\n", s.Effects)
	}

	if s.Current != nil {
		fmt.Printf("\nCurrently Playing (%d/%d):\n", s.QueuePosition+1, s.QueueLength)
		fmt.Printf("  Title: %s\n", s.Current.Title)
		fmt.Printf("  Author: %s\n", s.Current.Author)
		fmt.Printf("  URL: %s\n", s.Current.URI)
		if s.Current.IsStream {
			fmt.Printf("  Position: %s (live)\n", formatMs(s.PositionMs))
		} else {
			fmt.Printf("  Position: %s / %s\n", formatMs(s.PositionMs), formatMs(s.Current.DurationMs))
		}
		if s.Current.Autoplay {
			fmt.Println("  Added by autoplay")
		} else if s.Current.RequesterID != 0 {
			fmt.Printf("  Requested by: %s\n", s.Current.RequesterID)
		}
	} else {
		fmt.Println("\nNo track currently playing")
	}
	fmt.Println()
}

func queue(ctx context.Context, client *apiconnect.PlayerServiceClient, guildID snowflake.ID) {
	resp, err := client.Queue(ctx, guildRequest(guildID))
	if err != nil {
		fail(err)
	}

	if len(resp.Msg.Entries) == 0 {
		fmt.Println("Queue is empty")
		return
	}
	for _, e := range resp.Msg.Entries {
		marker := "  "
		if resp.Msg.CurrentIndex != nil && *resp.Msg.CurrentIndex == e.Index {
			marker = "> "
		}
		fmt.Printf("%s%3d. %s - %s [%s]\n", marker, e.Index+1, e.Author, e.Title, formatMs(e.DurationMs))
	}
}

func play(ctx context.Context, client *apiconnect.PlayerServiceClient, req *apiconnect.EnqueueRequest) {
	resp, err := client.Enqueue(ctx, connect.NewRequest(req))
	if err != nil {
		fail(err)
	}

	if resp.Msg.PlaylistName != "" {
		fmt.Printf("Added %d tracks from %s\n", len(resp.Msg.Added), resp.Msg.PlaylistName)
		return
	}
	for _, t := range resp.Msg.Added {
		fmt.Printf("Added: %s - %s\n", t.Author, t.Title)
	}
}

func setDJRole(ctx context.Context, client *apiconnect.PlayerServiceClient, guildID snowflake.ID) {
	req := &apiconnect.SetDJRoleRequest{GuildID: guildID}
	if !*djClear {
		if *djRole == 0 {
			fmt.Println("Error: role-id is required unless --clear is given")
			os.Exit(1)
		}
		role := snowflake.ID(*djRole)
		req.RoleID = &role
	}
	ack(client.SetDJRole(ctx, connect.NewRequest(req)))
}

func formatMs(ms int64) string {
	return notification.FormatDuration(time.Duration(ms) * time.Millisecond)
}
