package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
//
// Every leaf can also be overridden through a TASTING_* environment variable, see [ApplyEnv].
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Ordering OrderingConfig `toml:"ordering"`
	Sync     SyncConfig     `toml:"sync"`
	Log      LogConfig      `toml:"log"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" env:"TASTING_DB_PATH"`
	MaxOpenConns int    `toml:"max_open_conns" env:"TASTING_DB_MAX_OPEN_CONNS"`
	MaxIdleConns int    `toml:"max_idle_conns" env:"TASTING_DB_MAX_IDLE_CONNS"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host           string        `toml:"host" env:"TASTING_SERVER_HOST"`
	Port           int           `toml:"port" env:"TASTING_SERVER_PORT"`
	AllowedOrigins []string      `toml:"allowed_origins" env:"TASTING_ALLOWED_ORIGINS" envSeparator:","`
	ReadTimeout    time.Duration `toml:"read_timeout" env:"TASTING_SERVER_READ_TIMEOUT"`
	WriteTimeout   time.Duration `toml:"write_timeout" env:"TASTING_SERVER_WRITE_TIMEOUT"`
	CacheSequences bool          `toml:"cache_sequences" env:"TASTING_CACHE_SEQUENCES"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// OrderingConfig tunes the position allocator.
type OrderingConfig struct {
	Gap      float64 `toml:"gap" env:"TASTING_ORDERING_GAP"`
	Baseline float64 `toml:"baseline" env:"TASTING_ORDERING_BASELINE"`
	Integral bool    `toml:"integral" env:"TASTING_ORDERING_INTEGRAL"`
}

// SyncConfig contains settings for the participant-side response queue.
type SyncConfig struct {
	APIURL      string        `toml:"api_url" env:"TASTING_API_URL"`
	QueuePath   string        `toml:"queue_path" env:"TASTING_QUEUE_PATH"`
	Interval    time.Duration `toml:"interval" env:"TASTING_SYNC_INTERVAL"`
	Timeout     time.Duration `toml:"timeout" env:"TASTING_SYNC_TIMEOUT"`
	MaxTries    uint          `toml:"max_tries" env:"TASTING_SYNC_MAX_TRIES"`
	MaxAttempts int           `toml:"max_attempts" env:"TASTING_SYNC_MAX_ATTEMPTS"`
	RateLimit   float64       `toml:"rate_limit" env:"TASTING_SYNC_RATE_LIMIT"`
}

// LogConfig controls logger verbosity.
type LogConfig struct {
	Level string `toml:"level" env:"TASTING_LOG_LEVEL"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults; environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyEnv overrides config values from TASTING_* environment variables.
func ApplyEnv(config *Config) error {
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("%w: parse env: %v", ErrInvalidConfig, err)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
