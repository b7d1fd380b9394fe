// Package config loads application configuration from file, environment,
// and defaults using viper.
//
// Configuration is read from $XDG_CONFIG_HOME/outku/config.yaml (or
// ~/.config/outku/config.yaml), with every key overridable through
// OUTKU_-prefixed environment variables (e.g. OUTKU_SYNC_PAGE_CAP).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the materialized application configuration.
type Config struct {
	// DataDir holds the local store database and the outbox spool.
	DataDir string `mapstructure:"data_dir"`

	// LogFile, when set, routes daemon logs through a rotating file writer.
	LogFile string `mapstructure:"log_file"`

	Auth      AuthConfig      `mapstructure:"auth"`
	Calendar  CalendarConfig  `mapstructure:"calendar"`
	Tasks     TasksConfig     `mapstructure:"tasks"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Profile   ProfileConfig   `mapstructure:"profile"`
	Companion CompanionConfig `mapstructure:"companion"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// AuthConfig configures the OAuth token provider.
type AuthConfig struct {
	TokenURL     string `mapstructure:"token_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`

	// ExpiryBuffer is how close to expiry a cached access token may be
	// before a refresh is forced.
	ExpiryBuffer time.Duration `mapstructure:"expiry_buffer"`
}

// CalendarConfig configures the calendar gateway.
type CalendarConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	MaxResults int    `mapstructure:"max_results"`
}

// TasksConfig configures the tasks gateway.
type TasksConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	MaxResults int    `mapstructure:"max_results"`
}

// SyncConfig configures aggregation and the background daemon.
type SyncConfig struct {
	// PageCap bounds any pagination loop, guarding against servers that
	// never return a terminal page token.
	PageCap int `mapstructure:"page_cap"`

	// Schedule is a cron expression for the daemon's periodic refresh.
	Schedule string `mapstructure:"schedule"`

	// OutboxMaxRetries is how many flush attempts an outbox entry gets
	// before it is dropped.
	OutboxMaxRetries int `mapstructure:"outbox_max_retries"`

	// WindowPastDays and WindowFutureDays bound the full event fetch
	// around now.
	WindowPastDays   int `mapstructure:"window_past_days"`
	WindowFutureDays int `mapstructure:"window_future_days"`
}

// ProfileConfig configures the remote profile store.
type ProfileConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	UserID  string `mapstructure:"user_id"`
}

// CompanionConfig configures companion text generation.
type CompanionConfig struct {
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	Model           string `mapstructure:"model"`

	// TemplateFile points at the TOML fallback phrase templates.
	TemplateFile string `mapstructure:"template_file"`
}

// DashboardConfig configures the status websocket server.
type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

// Dir returns the directory the config file lives in.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return filepath.Join(base, "outku"), nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("data_dir", filepath.Join(configDir, "data"))
	v.SetDefault("log_file", "")

	v.SetDefault("auth.token_url", "https://oauth2.googleapis.com/token")
	v.SetDefault("auth.expiry_buffer", 5*time.Minute)

	v.SetDefault("calendar.base_url", "https://www.googleapis.com/calendar/v3")
	v.SetDefault("calendar.max_results", 100)

	v.SetDefault("tasks.base_url", "https://tasks.googleapis.com/tasks/v1")
	v.SetDefault("tasks.max_results", 100)

	v.SetDefault("sync.page_cap", 50)
	v.SetDefault("sync.schedule", "@every 5m")
	v.SetDefault("sync.outbox_max_retries", 5)
	v.SetDefault("sync.window_past_days", 7)
	v.SetDefault("sync.window_future_days", 30)

	v.SetDefault("profile.user_id", "me")

	v.SetDefault("companion.model", "claude-haiku-4-5")
	v.SetDefault("companion.template_file", filepath.Join(configDir, "companion.toml"))

	v.SetDefault("dashboard.port", 8787)
}

// Load reads configuration from disk and environment.
//
// A missing config file is not an error; defaults plus environment variables
// are enough for read-only use. An unparseable file is an error.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(dir)
}

// LoadFrom reads configuration rooted at the given directory. Split out from
// Load so tests can point at a temp directory.
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix("OUTKU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, dir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Sync.PageCap <= 0 {
		return nil, fmt.Errorf("sync.page_cap must be positive (got %d)", cfg.Sync.PageCap)
	}
	if cfg.Auth.ExpiryBuffer < 0 {
		return nil, fmt.Errorf("auth.expiry_buffer must not be negative")
	}

	return &cfg, nil
}
