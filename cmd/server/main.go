// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/guildbox/internal/api/connect"
	"github.com/osa030/guildbox/internal/app/autoplay"
	"github.com/osa030/guildbox/internal/app/filter"
	"github.com/osa030/guildbox/internal/app/notification"
	"github.com/osa030/guildbox/internal/app/playback"
	"github.com/osa030/guildbox/internal/app/recovery"
	"github.com/osa030/guildbox/internal/app/search"
	"github.com/osa030/guildbox/internal/app/session"
	"github.com/osa030/guildbox/internal/app/snapshot"
	"github.com/osa030/guildbox/internal/infra/config"
	"github.com/osa030/guildbox/internal/infra/discord"
	"github.com/osa030/guildbox/internal/infra/lavalink"
	"github.com/osa030/guildbox/internal/infra/logger"
	"github.com/osa030/guildbox/internal/infra/metrics"
	"github.com/osa030/guildbox/internal/infra/spotify"
	"github.com/osa030/guildbox/internal/infra/store"
	"github.com/osa030/guildbox/internal/infra/youtube"
)

var (
	app        = kingpin.New("guildbox-server", "guildbox music bot")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	logJSON    = app.Flag("log-json", "Write JSON logs to stdout").Bool()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available autoplay filters and audio effects, then exit")
)

func init() {
	app.Command("start", "Start the bot (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
		JSON:   *logJSON,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	// Run server (defer ensures stores are closed)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// queueStore is the durable queue and settings storage.
type queueStore interface {
	playback.QueueStore
	playback.SettingsStore
	Close() error
}

// snapshotStore is the durable snapshot storage.
type snapshotStore interface {
	session.SnapshotStore
	recovery.SnapshotStore
	Close() error
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue, snapshots, err := openStores(cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := snapshots.Close(); err != nil {
			zlog.Error().Msgf("Failed to close snapshot store: %v", err)
		}
		if err := queue.Close(); err != nil {
			zlog.Error().Msgf("Failed to close queue store: %v", err)
		}
	}()

	collector := metrics.New()

	// The gateway and listener are attached once the chat client and sessions exist.
	lava := lavalink.New(lavalink.Config{
		Host:           cfg.Lavalink.Host,
		Port:           cfg.Lavalink.Port,
		Password:       cfg.Lavalink.Password,
		Secure:         cfg.Lavalink.Secure,
		RESTRate:       cfg.Lavalink.RESTRate,
		RESTBurst:      cfg.Lavalink.RESTBurst,
		ResumeTimeout:  cfg.Lavalink.ResumeTimeout,
		ReconnectDelay: cfg.Lavalink.ReconnectDelay,
		VoiceTimeout:   cfg.Lavalink.VoiceTimeout,
	}, nil, collector)

	searchDeps := search.Deps{Loader: lava}
	if cfg.Spotify.Enabled() {
		spotifyClient, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Market:       cfg.Spotify.Market,
			MaxTracks:    cfg.Spotify.MaxTracks,
		})
		if err != nil {
			return errors.Wrap(err, "failed to create Spotify client")
		}
		searchDeps.Spotify = spotifyClient
	} else {
		zlog.Info().Msg("Spotify credentials not configured, Spotify links are disabled")
	}
	if !cfg.YouTube.DisableSearchFallback {
		searchDeps.Fallback = youtube.NewSearcher(nil)
	}
	searcher := search.New(searchDeps)

	filters, err := filter.NewChainFromConfig(cfg.Filters)
	if err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	var refiller playback.Refiller
	recommenders, err := autoplay.NewChainFromConfig(cfg.Autoplay)
	switch {
	case errors.Is(err, autoplay.ErrNoRecommenders):
		zlog.Warn().Msg("No autoplay providers configured, autoplay is disabled")
	case err != nil:
		return errors.Wrap(err, "invalid autoplay config")
	default:
		refiller = autoplay.NewRefiller(recommenders, searcher, filters, cfg.Autoplay.CandidateLimit)
	}

	// Ready fires after Open, by which time sessions is set.
	var (
		chat     *discord.Client
		sessions *session.Manager
		notifier *notification.Manager
	)
	chat, err = discord.New(ctx, cfg.Discord.Token, discord.Handlers{
		Voice: lava,
		Ready: func(ctx context.Context) {
			recoverGuilds(ctx, cfg.Recovery, chat, sessions, queue, snapshots, notifier, collector)
		},
	})
	if err != nil {
		return err
	}
	lava.SetGateway(chat, chat.UserID())

	notifier = notification.NewManager(chat.Poster(), cfg.Playback.NotifyTimeout)
	sessions = session.NewManager(playback.Deps{
		Backend:  lava,
		Queue:    queue,
		Settings: queue,
		Notifier: notifier,
		Refiller: refiller,
	}, snapshots, collector, session.Config{
		Playback: playback.Config{
			AutoplayTimeout: cfg.Playback.AutoplayTimeout,
			InboxSize:       cfg.Playback.InboxSize,
		},
		Snapshot: snapshot.Config{
			Interval: cfg.Playback.SnapshotInterval,
		},
	})
	lava.SetListener(sessions)

	// The node session must exist before recovery starts issuing voice joins.
	if err := lava.Connect(ctx); err != nil {
		return errors.Wrap(err, "failed to connect to lavalink")
	}
	if err := chat.Open(ctx); err != nil {
		lava.Close()
		return err
	}

	mux := http.NewServeMux()
	playerPath, playerHandler := apiconnect.NewPlayerServiceHandler(
		apiconnect.NewPlayerService(sessions, searcher),
		connect.WithInterceptors(apiconnect.NewLoggingInterceptor()),
	)
	mux.Handle(playerPath, playerHandler)
	if !cfg.Server.DisableMetrics {
		mux.Handle("/metrics", collector.Handler())
	}

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		zlog.Info().Msgf("Received shutdown signal: %s", sig)
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
	}

	// Graceful shutdown
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Persist the latest positions before sessions stop, so the next start resumes from here.
	if err := sessions.ForceUpdateAll(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to write final snapshots: %v", err)
	}
	sessions.Close()
	lava.Close()
	chat.Close(shutdownCtx)

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return runErr
}

// openStores opens the queue and snapshot stores for the configured driver.
func openStores(cfg config.StorageConfig) (queueStore, snapshotStore, error) {
	if cfg.Driver == "memory" {
		zlog.Warn().Msg("Using in-memory storage, queues and snapshots are lost on exit")
		mem := store.NewMemory()
		return mem, mem, nil
	}

	queue, err := store.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	snapshots, err := store.OpenSnapshots(store.SnapshotConfig{
		Dir:        cfg.BadgerDir,
		TTL:        cfg.SnapshotTTL,
		GCInterval: 10 * time.Minute,
	})
	if err != nil {
		queue.Close()
		return nil, nil, err
	}
	zlog.Info().Msgf("Opened storage: sqlite=%s snapshots=%s", cfg.SQLitePath, cfg.BadgerDir)
	return queue, snapshots, nil
}

// recoverGuilds resumes playback for guilds that were playing before the last shutdown.
func recoverGuilds(ctx context.Context, cfg config.RecoveryConfig, chat *discord.Client, sessions *session.Manager,
	queue queueStore, snapshots snapshotStore, notifier *notification.Manager, collector *metrics.Metrics) {
	coordinator := recovery.NewCoordinator(recovery.Deps{
		Snapshots: snapshots,
		Queue:     queue,
		Settings:  queue,
		Roster:    chat.Roster(),
		Acquire: func(guildID snowflake.ID) (recovery.Player, error) {
			ctrl, err := sessions.GetOrCreate(guildID)
			if err != nil {
				return nil, err
			}
			return ctrl, nil
		},
		Notifier: notifier,
		Metrics:  collector,
	}, recovery.Config{
		Staleness:   cfg.Staleness,
		Concurrency: cfg.Concurrency,
		JoinRate:    cfg.JoinRate,
		JoinBurst:   cfg.JoinBurst,
	})

	report, err := coordinator.Run(ctx)
	if err != nil {
		zlog.Error().Msgf("Recovery failed: %v", err)
		return
	}
	zlog.Info().Msgf("Recovery finished: recovered=%d skipped=%d failed=%d kept=%d",
		report.Recovered, report.Skipped, report.Failed, report.Kept)
}

// printFilters prints available filters and effects.
func printFilters() {
	fmt.Println("Available Filters:")
	for _, name := range filter.Names() {
		f, _ := filter.Lookup(name)
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}

	fmt.Println("Available Effects:")
	for _, name := range lavalink.EffectNames() {
		fmt.Printf("  %s\n", name)
	}
}
