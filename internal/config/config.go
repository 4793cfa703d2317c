// Package config loads and validates the Tandem configuration via viper.
// Configuration comes from a YAML config file, environment variables with
// the TANDEM_ prefix, and built-in defaults, in ascending precedence.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete Tandem session-layer configuration
type Config struct {
	Session     SessionConfig     `mapstructure:"session"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// SessionConfig controls live session behavior
type SessionConfig struct {
	// MaxSessions is the hard ceiling on concurrently live sessions (default: 10)
	MaxSessions int `mapstructure:"max_sessions"`
	// DefaultProvider is the LLM provider recorded in new session configs
	DefaultProvider string `mapstructure:"default_provider"`
	// DefaultModel is the model recorded in new session configs
	DefaultModel string `mapstructure:"default_model"`
	// RestartBudget is how many group restarts are allowed per rolling minute
	// before a session is torn down (default: 3)
	RestartBudget int `mapstructure:"restart_budget"`
	// QueryTimeoutMs bounds waits on state/coordinator queries (default: 5000)
	QueryTimeoutMs int `mapstructure:"query_timeout_ms"`
}

// PersistenceConfig controls how closed sessions are stored on disk
type PersistenceConfig struct {
	// SessionsDir is where persisted session records live.
	// Empty means the default under the user data directory.
	SessionsDir string `mapstructure:"sessions_dir"`
	// MaxRecordBytes rejects persisted files larger than this before reading
	// them fully (default: 10 MiB)
	MaxRecordBytes int64 `mapstructure:"max_record_bytes"`
	// SigningKeyFile holds the HMAC key used to sign records.
	// Empty means the default under the config directory; the key is
	// generated on first use.
	SigningKeyFile string `mapstructure:"signing_key_file"`
	// CleanupMaxAgeDays is the default age threshold for `tandem cleanup` (default: 30)
	CleanupMaxAgeDays int `mapstructure:"cleanup_max_age_days"`
}

// RateLimitConfig controls throttling of recovery-sensitive operations
type RateLimitConfig struct {
	// DefaultLimit is the attempt limit for operations without explicit configuration (default: 5)
	DefaultLimit int `mapstructure:"default_limit"`
	// DefaultWindowSecs is the sliding window for operations without explicit configuration (default: 60)
	DefaultWindowSecs int `mapstructure:"default_window_secs"`
	// Operations holds per-operation overrides keyed by operation name
	Operations map[string]OperationLimit `mapstructure:"operations"`
}

// OperationLimit is a per-operation rate limit override
type OperationLimit struct {
	Limit      int `mapstructure:"limit"`
	WindowSecs int `mapstructure:"window_secs"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// File is the log file path; empty logs to stderr
	File string `mapstructure:"file"`
}

// QueryTimeout returns the state/coordinator query timeout as a time.Duration
func (c *SessionConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutMs) * time.Millisecond
}

// CleanupMaxAge returns the cleanup age threshold as a time.Duration
func (c *PersistenceConfig) CleanupMaxAge() time.Duration {
	return time.Duration(c.CleanupMaxAgeDays) * 24 * time.Hour
}

// DefaultWindow returns the default rate-limit window as a time.Duration
func (c *RateLimitConfig) DefaultWindow() time.Duration {
	return time.Duration(c.DefaultWindowSecs) * time.Second
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			MaxSessions:     10,
			DefaultProvider: "anthropic",
			DefaultModel:    "claude-3-5-sonnet",
			RestartBudget:   3,
			QueryTimeoutMs:  5000,
		},
		Persistence: PersistenceConfig{
			SessionsDir:       "", // Empty means use DefaultSessionsDir()
			MaxRecordBytes:    10 << 20,
			SigningKeyFile:    "", // Empty means use default under ConfigDir()
			CleanupMaxAgeDays: 30,
		},
		RateLimit: RateLimitConfig{
			DefaultLimit:      5,
			DefaultWindowSecs: 60,
			Operations: map[string]OperationLimit{
				"resume": {Limit: 5, WindowSecs: 60},
			},
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
			File:    "",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("session.max_sessions", defaults.Session.MaxSessions)
	viper.SetDefault("session.default_provider", defaults.Session.DefaultProvider)
	viper.SetDefault("session.default_model", defaults.Session.DefaultModel)
	viper.SetDefault("session.restart_budget", defaults.Session.RestartBudget)
	viper.SetDefault("session.query_timeout_ms", defaults.Session.QueryTimeoutMs)

	viper.SetDefault("persistence.sessions_dir", defaults.Persistence.SessionsDir)
	viper.SetDefault("persistence.max_record_bytes", defaults.Persistence.MaxRecordBytes)
	viper.SetDefault("persistence.signing_key_file", defaults.Persistence.SigningKeyFile)
	viper.SetDefault("persistence.cleanup_max_age_days", defaults.Persistence.CleanupMaxAgeDays)

	viper.SetDefault("ratelimit.default_limit", defaults.RateLimit.DefaultLimit)
	viper.SetDefault("ratelimit.default_window_secs", defaults.RateLimit.DefaultWindowSecs)
	viper.SetDefault("ratelimit.operations", defaults.RateLimit.Operations)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.file", defaults.Logging.File)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tandem")
	}
	// Fall back to ~/.config/tandem
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tandem"
	}
	return filepath.Join(home, ".config", "tandem")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultSessionsDir returns the default directory for persisted session records
func DefaultSessionsDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "tandem", "sessions")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".tandem", "sessions")
	}
	return filepath.Join(home, ".local", "share", "tandem", "sessions")
}

// ResolveSessionsDir returns the configured sessions directory, falling back
// to the default when unset. Paths starting with ~ expand to the home directory.
func (c *PersistenceConfig) ResolveSessionsDir() string {
	if c.SessionsDir == "" {
		return DefaultSessionsDir()
	}
	return expandHome(c.SessionsDir)
}

// ResolveSigningKeyFile returns the configured signing key path, falling back
// to signing.key under the config directory when unset.
func (c *PersistenceConfig) ResolveSigningKeyFile() string {
	if c.SigningKeyFile == "" {
		return filepath.Join(ConfigDir(), "signing.key")
	}
	return expandHome(c.SigningKeyFile)
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return path
	}
	if len(path) > 1 && path[0] == '~' && path[1] == filepath.Separator {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
