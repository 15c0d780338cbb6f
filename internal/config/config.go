// Package config provides configuration loading and defaults for the
// whatudoing daemon.
//
// Configuration is loaded from a TOML file in the daemon's data directory.
// The package handles Slack connection settings, follow-up behavior, the
// bot's message texts, report delivery, and roster filtering with sensible
// defaults. Secrets (the Slack token) are read from the environment only
// and never written to disk.
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/caarlos0/env/v11"
	"github.com/soundrex/whatudoing/internal/atomicfile"
	"github.com/soundrex/whatudoing/internal/migrate"
	"github.com/soundrex/whatudoing/internal/paths"
)

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version used for migrations.
	Version int `toml:"version"`
	// Slack holds Slack connection settings.
	Slack SlackConfig `toml:"slack"`
	// Followup holds follow-up timer behavior.
	Followup FollowupConfig `toml:"followup"`
	// Messages holds the bot's message texts.
	Messages MessagesConfig `toml:"messages"`
	// Report holds end-of-day report delivery settings.
	Report ReportConfig `toml:"report"`
	// Roster holds roster filtering settings.
	Roster RosterConfig `toml:"roster"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// SlackConfig holds Slack connection settings.
type SlackConfig struct {
	// Token is the Slack API token. Environment only (WHATUDOING_SLACK_TOKEN);
	// it is deliberately excluded from the TOML schema so it cannot end up in
	// a world-readable config file.
	Token string `toml:"-" env:"WHATUDOING_SLACK_TOKEN"`
	// BotID is the Slack user ID of the bot itself, used to filter the bot's
	// own messages out of the event stream.
	BotID string `toml:"bot_id" env:"WHATUDOING_BOT_ID"`
	// LiveChannel is the channel that mirrors every worklog line
	// (e.g. "#live_work_updates"). Empty disables mirroring.
	LiveChannel string `toml:"live_channel"`
	// APIBaseURL overrides the Slack Web API base URL. Used by tests;
	// empty means the public API.
	APIBaseURL string `toml:"api_base_url,omitempty"`
	// ReconnectSeconds is the fixed delay between RTM reconnect attempts.
	ReconnectSeconds int `toml:"reconnect_seconds"`
}

// FollowupConfig holds follow-up timer behavior.
type FollowupConfig struct {
	// IntervalMinutes is how long an active user may go without an update
	// before the bot asks for one.
	IntervalMinutes int `toml:"interval_minutes"`
}

// MessagesConfig holds the bot's message texts. The {status} placeholder in
// InvalidStatus is replaced with the user's current status name.
type MessagesConfig struct {
	// Morning is sent on login.
	Morning string `toml:"morning"`
	// Followup is the nag sent when the follow-up timer fires.
	Followup string `toml:"followup"`
	// Update acknowledges a work update.
	Update string `toml:"update"`
	// Pause acknowledges a pause.
	Pause string `toml:"pause"`
	// Resume acknowledges a resume.
	Resume string `toml:"resume"`
	// Logout is sent on logout.
	Logout string `toml:"logout"`
	// Help is the static help text.
	Help string `toml:"help"`
	// InvalidInput rejects an unrecognized command.
	InvalidInput string `toml:"invalid_input"`
	// NoArguments rejects trailing text on a command that takes none.
	NoArguments string `toml:"no_arguments"`
	// InvalidStatus rejects a command that is not legal in the user's
	// current status. Supports the {status} placeholder.
	InvalidStatus string `toml:"invalid_status"`
}

// ReportConfig holds end-of-day report delivery settings.
type ReportConfig struct {
	// Recipients is the list of user IDs that receive everyone's daily
	// report in addition to the user themselves.
	Recipients []string `toml:"recipients"`
}

// RosterConfig holds roster filtering settings.
type RosterConfig struct {
	// IgnoreUsers is a list of doublestar glob patterns matched against
	// display names. Matching roster members (e.g. "*bot*") never get a
	// session.
	IgnoreUsers []string `toml:"ignore_users"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with sensible defaults.
// The message texts are the bot's original voice; teams typically
// restyle them per deployment.
func DefaultConfig() *Config {
	return &Config{
		Version: migrate.Config.CurrentVersion,
		Slack: SlackConfig{
			LiveChannel:      "#live_work_updates",
			ReconnectSeconds: 1,
		},
		Followup: FollowupConfig{
			IntervalMinutes: 60,
		},
		Messages: MessagesConfig{
			Morning:       "Good morning. Let's start creating awesome sound experiences. Have a great day!",
			Followup:      "Hey, just checking up. Can you let me know what have you been doing?",
			Update:        "Thanks for the update!",
			Pause:         "All right, time for a break. Do remember to inform me when you return!",
			Resume:        "Hello again!",
			Logout:        "Bye bye!",
			Help:          defaultHelpText,
			InvalidInput:  "Not sure what you mean. Type help to get possible commands",
			NoArguments:   "Sorry, this command does not accept arguments :/",
			InvalidStatus: "Can't do this while you're {status}!",
		},
		Report: ReportConfig{
			Recipients: []string{},
		},
		Roster: RosterConfig{
			IgnoreUsers: []string{},
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// defaultHelpText is the built-in help message listing every command.
const defaultHelpText = "I'm _what_u_doing_, a bot to help you log your hourly tasks." +
	" Here are the commands that I understand for now:\n\n" +
	"*login* - Type this when you start your work day\n\n" +
	"*pause* - Want to take a break?" +
	" Type pause to ensure that the bot doesn't keep pestering you.\n\n" +
	"*resume* - Type this when you again start working after a pause." +
	" You should do this immediately after your break is over.\n\n" +
	"*update* - This is the main command. Whenever you want to share an update," +
	" write `update xyz`, where xyz is the work you did since the last update.\n\n" +
	"*logout* - Done for the day? Just type logout to tell the bot!\n\n" +
	"*get_work_time* - Type this if you want to know how long you've already worked" +
	" for the day.\n\n" +
	"For any queries or suggestions, reach out to what_u_doing_bot@soundrex.com ASAP."

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing or zero.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil {
		return 1
	}
	if v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads and parses the configuration file at dataDir/config.toml and
// applies environment overrides. If the file doesn't exist, returns
// DefaultConfig (with environment overrides applied).
func Load(dataDir string) (*Config, error) {
	path := paths.DataDir{Root: dataDir}.Config()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			if envErr := applyEnv(cfg); envErr != nil {
				return nil, envErr
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	version := PeekVersion(data)

	// Apply migrations if needed
	shouldMigrate := version != migrate.Config.CurrentVersion
	if shouldMigrate {
		// Write backup before migration
		if backupErr := os.WriteFile(path+".bak", data, 0o644); backupErr != nil {
			slog.Warn("failed to write config backup", "error", backupErr)
		}
		var migrateErr error
		data, _, migrateErr = migrate.Config.Run(data, version)
		if migrateErr != nil {
			return nil, fmt.Errorf("migrate config: %w", migrateErr)
		}
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Version = migrate.Config.CurrentVersion

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// Re-save after migration
	if shouldMigrate {
		if err := cfg.Save(path); err != nil {
			slog.Warn("failed to save migrated config", "error", err)
		}
	}

	return cfg, nil
}

// applyEnv overlays environment variables onto cfg using the env struct tags.
func applyEnv(cfg *Config) error {
	if err := env.Parse(&cfg.Slack); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// Save writes the config to disk as TOML using atomic file write.
// The Slack token is excluded from the schema and never written.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o644)
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Followup.IntervalMinutes <= 0 {
		return fmt.Errorf("invalid followup.interval_minutes %d: must be positive", c.Followup.IntervalMinutes)
	}
	if c.Slack.ReconnectSeconds <= 0 {
		return fmt.Errorf("invalid slack.reconnect_seconds %d: must be positive", c.Slack.ReconnectSeconds)
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("invalid log.max_size_mb %d: must be positive", c.Log.MaxSizeMB)
	}
	for _, pattern := range c.Roster.IgnoreUsers {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid roster.ignore_users pattern %q", pattern)
		}
	}
	return nil
}

// ///////////////////////////////////////////////
// Derived Values
// ///////////////////////////////////////////////

// FollowupInterval returns the follow-up interval as a duration.
func (c *Config) FollowupInterval() time.Duration {
	return time.Duration(c.Followup.IntervalMinutes) * time.Minute
}

// ReconnectDelay returns the RTM reconnect delay as a duration.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Slack.ReconnectSeconds) * time.Second
}

// IgnoredUser reports whether a roster member's display name matches any
// of the configured ignore patterns.
func (c *Config) IgnoredUser(displayName string) bool {
	for _, pattern := range c.Roster.IgnoreUsers {
		matched, err := doublestar.Match(pattern, displayName)
		if err != nil {
			slog.Warn("invalid ignore pattern", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
