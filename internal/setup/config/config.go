package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrInvalidSyncConfig     = errors.New("invalid sync configuration")
)

// RepositoryVersion is the repository version tag for config file references.
const RepositoryVersion = "v1.0.0"

// CurrentVersion is the current version of the config file.
const CurrentVersion = 1

// Config represents the entire application configuration.
type Config struct {
	// Version of the config file.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	Redis      Redis      `koanf:"redis"`
	Discord    Discord    `koanf:"discord"`
	Sync       Sync       `koanf:"sync"`
	Retry      Retry      `koanf:"retry"`
	Telemetry  Telemetry  `koanf:"telemetry"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log sessions to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Maximum lines per log file.
	MaxLogLines int `koanf:"max_log_lines"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Discord contains bot credentials and the global log destination.
type Discord struct {
	// Bot token.
	Token string `koanf:"token"`
	// Channel receiving every enforcement event regardless of guild.
	GlobalLogChannel uint64 `koanf:"global_log_channel"`
}

// Sync controls the membership reconciliation loop.
type Sync struct {
	// Seconds between two full reconciliation passes.
	ResyncIntervalSeconds int `koanf:"resync_interval_seconds"`
	// Retries for a single guild list, member page or ban call.
	FetchRetryLimit uint64 `koanf:"fetch_retry_limit"`
	// Timeout applied to every single remote call attempt.
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
	// Guilds enumerated concurrently during a pass.
	GuildConcurrency int `koanf:"guild_concurrency"`
	// Blacklisted users enforced concurrently during the post-pass sweep.
	SweepConcurrency int `koanf:"sweep_concurrency"`
	// Base delay between two member page requests.
	PageInterval time.Duration `koanf:"page_interval"`
	// Random jitter applied on top of the page delay.
	PageJitter time.Duration `koanf:"page_jitter"`
}

// ResyncInterval returns the reconciliation period as a duration.
func (s Sync) ResyncInterval() time.Duration {
	return time.Duration(s.ResyncIntervalSeconds) * time.Second
}

// Retry contains backoff configuration for remote calls.
type Retry struct {
	// Initial retry delay in milliseconds.
	Delay int `koanf:"delay"`
	// Maximum retry delay in milliseconds.
	MaxDelay int `koanf:"max_delay"`
}

// Telemetry contains trace export configuration.
type Telemetry struct {
	// Uptrace DSN. Tracing stays local when empty.
	UptraceDSN string `koanf:"uptrace_dsn"`
	// Deployment environment attached to exported spans.
	Environment string `koanf:"environment"`
}

// Default returns a configuration populated with the built-in defaults.
// Values loaded from a config file override these.
func Default() *Config {
	return &Config{
		Debug: Debug{
			LogLevel:      "info",
			MaxLogsToKeep: 10,
			MaxLogLines:   100000,
		},
		PostgreSQL: PostgreSQL{
			Host:         "localhost",
			Port:         5432,
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			MaxLifetime:  30,
			MaxIdleTime:  5,
		},
		Redis: Redis{
			Host: "localhost",
			Port: 6379,
		},
		Sync: Sync{
			ResyncIntervalSeconds: 900,
			FetchRetryLimit:       5,
			FetchTimeout:          30 * time.Second,
			GuildConcurrency:      4,
			SweepConcurrency:      4,
			PageInterval:          time.Second,
			PageJitter:            200 * time.Millisecond,
		},
		Retry: Retry{
			Delay:    500,
			MaxDelay: 10000,
		},
		Telemetry: Telemetry{
			Environment: "production",
		},
	}
}

// LoadConfig loads the configuration from the first config.toml found in the search paths.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	configPaths := []string{
		".guardian",
		homeDir + "/.guardian/config",
		"/etc/guardian/config",
		"/app/config",
		"config",
		".",
	}

	for _, path := range configPaths {
		configPath := path + "/config.toml"
		if _, err := os.Stat(configPath); err != nil {
			continue
		}

		cfg, err := LoadFile(configPath)
		if err != nil {
			return nil, "", err
		}

		return cfg, path, nil
	}

	return nil, "", fmt.Errorf("%w: config.toml", ErrConfigFileNotFound)
}

// LoadFile loads and validates a single TOML config file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := checkConfigVersion(cfg.Version, CurrentVersion); err != nil {
		return nil, err
	}

	if err := cfg.Sync.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (s Sync) validate() error {
	switch {
	case s.ResyncIntervalSeconds <= 0:
		return fmt.Errorf("%w: resync_interval_seconds must be positive", ErrInvalidSyncConfig)
	case s.FetchTimeout <= 0:
		return fmt.Errorf("%w: fetch_timeout must be positive", ErrInvalidSyncConfig)
	case s.GuildConcurrency <= 0 || s.SweepConcurrency <= 0:
		return fmt.Errorf("%w: concurrency must be positive", ErrInvalidSyncConfig)
	}

	return nil
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: config.toml", ErrConfigVersionMissing)
	}

	if current != expected {
		return fmt.Errorf(
			"%w: config.toml (got: %d, expected: %d)\n"+
				"Please update your config file from: https://github.com/robalyx/guardian/tree/%s/config/config.toml",
			ErrConfigVersionMismatch,
			current,
			expected,
			RepositoryVersion,
		)
	}

	return nil
}
