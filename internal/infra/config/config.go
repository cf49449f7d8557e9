// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Discord  DiscordConfig           `yaml:"discord"`
	Lavalink LavalinkConfig          `yaml:"lavalink"`
	Storage  StorageConfig           `yaml:"storage"`
	Playback PlaybackConfig          `yaml:"playback"`
	Recovery RecoveryConfig          `yaml:"recovery"`
	Autoplay AutoplayConfig          `yaml:"autoplay"`
	Filters  map[string]FilterConfig `yaml:"filters"`
	Spotify  SpotifyConfig           `yaml:"spotify"`
	YouTube  YouTubeConfig           `yaml:"youtube"`
}

// ServerConfig represents the admin RPC server configuration.
type ServerConfig struct {
	Addr           string `yaml:"addr" default:"127.0.0.1:8080"`
	DisableMetrics bool   `yaml:"disable_metrics"`
}

// DiscordConfig represents the chat gateway configuration.
type DiscordConfig struct {
	Token string `yaml:"token" validate:"required"`
}

// LavalinkConfig represents the audio node configuration.
type LavalinkConfig struct {
	Host           string        `yaml:"host" default:"localhost" validate:"required"`
	Port           int           `yaml:"port" default:"2333" validate:"gte=1,lte=65535"`
	Password       string        `yaml:"password" validate:"required"`
	Secure         bool          `yaml:"secure"`
	RESTRate       float64       `yaml:"rest_rate" default:"20" validate:"gt=0"`
	RESTBurst      int           `yaml:"rest_burst" default:"10" validate:"gte=1"`
	ResumeTimeout  time.Duration `yaml:"resume_timeout" default:"60s"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	VoiceTimeout   time.Duration `yaml:"voice_timeout" default:"10s"`
}

// StorageConfig represents the persistence configuration.
type StorageConfig struct {
	Driver      string        `yaml:"driver" default:"sqlite" validate:"oneof=sqlite memory"`
	SQLitePath  string        `yaml:"sqlite_path" default:"data/guildbox.db"`
	BadgerDir   string        `yaml:"badger_dir" default:"data/snapshots"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl" default:"1h"`
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	SnapshotInterval time.Duration `yaml:"snapshot_interval" default:"1s" validate:"gt=0"`
	AutoplayTimeout  time.Duration `yaml:"autoplay_timeout" default:"30s"`
	NotifyTimeout    time.Duration `yaml:"notify_timeout" default:"5s"`
	InboxSize        int           `yaml:"inbox_size" default:"64" validate:"gte=1"`
}

// RecoveryConfig represents startup recovery configuration.
type RecoveryConfig struct {
	Staleness   time.Duration `yaml:"staleness" default:"15m" validate:"gt=0"`
	Concurrency int           `yaml:"concurrency" default:"5" validate:"gte=1"`
	JoinRate    float64       `yaml:"join_rate" default:"2" validate:"gt=0"`
	JoinBurst   int           `yaml:"join_burst" default:"5" validate:"gte=1"`
}

// AutoplayConfig represents autoplay recommendation configuration.
type AutoplayConfig struct {
	CandidateLimit int              `yaml:"candidate_limit" default:"20" validate:"gte=1"`
	Providers      []ProviderConfig `yaml:"providers" validate:"dive"`
}

// ProviderConfig represents a single recommendation provider configuration.
type ProviderConfig struct {
	Type        string         `yaml:"type" validate:"required"`
	DisplayName string         `yaml:"display_name" validate:"required"`
	Settings    map[string]any `yaml:"settings"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// SpotifyConfig represents Spotify API configuration. Spotify links are
// disabled when the credentials are empty.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required_with=ClientSecret"`
	ClientSecret string `yaml:"client_secret" validate:"required_with=ClientID"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
	MaxTracks    int    `yaml:"max_tracks" default:"100" validate:"gte=1"`
}

// Enabled reports whether Spotify credentials are configured.
func (c SpotifyConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// YouTubeConfig represents the direct YouTube search fallback configuration.
type YouTubeConfig struct {
	DisableSearchFallback bool `yaml:"disable_search_fallback"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses YAML configuration and applies overrides and defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("LAVALINK_PASSWORD"); v != "" {
		c.Lavalink.Password = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		for i := range c.Autoplay.Providers {
			if c.Autoplay.Providers[i].Type == "lastfm" {
				if c.Autoplay.Providers[i].Settings == nil {
					c.Autoplay.Providers[i].Settings = make(map[string]any)
				}
				c.Autoplay.Providers[i].Settings["api_key"] = v
				break
			}
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Storage.Driver == "sqlite" && c.Storage.SQLitePath == "" {
		return errors.New("storage.sqlite_path is required for the sqlite driver")
	}
	if c.Playback.AutoplayTimeout < 0 || c.Playback.NotifyTimeout < 0 {
		return errors.New("playback timeouts must not be negative")
	}
	return nil
}
