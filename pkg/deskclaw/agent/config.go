package agent

import (
	"github.com/jholhewres/deskclaw/pkg/deskclaw/channels/discord"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/channels/telegram"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/classifier"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/collector"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/diskscan"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/gateway"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/providers"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/scheduler"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/store"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/tasks"
)

// Config holds the whole DeskClaw configuration.
type Config struct {
	// Name is the assistant name used in greetings.
	Name string `yaml:"name"`

	Logging LoggingConfig `yaml:"logging"`

	// Classifier configures the optional remote intent classifier.
	Classifier classifier.Config `yaml:"classifier"`

	// Collector configures category collection and file search.
	Collector collector.Config `yaml:"collector"`

	// DiskScan configures safety-checked browsing. Hot-reloadable.
	DiskScan diskscan.Config `yaml:"diskscan"`

	// Tasks sizes the background worker pool.
	Tasks tasks.Config `yaml:"tasks"`

	// System configures the process, browser and file providers.
	System providers.Config `yaml:"system"`

	// Database configures the transcript and audit store. An empty path
	// disables persistence.
	Database store.Config `yaml:"database"`

	Gateway   gateway.Config   `yaml:"gateway"`
	Channels  ChannelsConfig   `yaml:"channels"`
	Scheduler scheduler.Config `yaml:"scheduler"`

	// Fallback configures the local conversational replies.
	Fallback FallbackConfig `yaml:"fallback"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the log format ("json", "text").
	Format string `yaml:"format"`
}

// ChannelsConfig configures the messaging relays. A channel is started
// when its token is set.
type ChannelsConfig struct {
	Discord  discord.Config  `yaml:"discord"`
	Telegram telegram.Config `yaml:"telegram"`
}

// FallbackConfig controls what unrecognized messages get back.
type FallbackConfig struct {
	// Enabled turns on the greeting and help replies. When off, anything
	// unrecognized gets the "didn't recognize" hint.
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:       "DeskClaw",
		Logging:    LoggingConfig{Level: "info", Format: "text"},
		Classifier: classifier.DefaultConfig(),
		Collector:  collector.DefaultConfig(),
		DiskScan:   diskscan.DefaultConfig(),
		Tasks:      tasks.DefaultConfig(),
		System:     providers.DefaultConfig(),
		Database:   store.DefaultConfig(),
		Gateway:    gateway.DefaultConfig(),
		Channels: ChannelsConfig{
			Discord:  discord.DefaultConfig(),
			Telegram: telegram.DefaultConfig(),
		},
		Scheduler: scheduler.DefaultConfig(),
		Fallback:  FallbackConfig{Enabled: true},
	}
}
