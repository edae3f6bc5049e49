package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// StreamConfig holds settings for the push connection.
type StreamConfig struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string `mapstructure:"url" yaml:"url"`

	// IdleTimeoutSec is how long without user activity before the
	// connection is suspended.
	IdleTimeoutSec int `mapstructure:"idle_timeout_sec" yaml:"idle_timeout_sec"`

	// ReconnectBaseMS is the base delay for exponential backoff.
	ReconnectBaseMS int `mapstructure:"reconnect_base_ms" yaml:"reconnect_base_ms"`

	// MaxReconnectAttempts caps automatic retries after an unexpected close.
	MaxReconnectAttempts int `mapstructure:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
}

// APIConfig holds settings for the REST capability surface.
type APIConfig struct {
	// BaseURL is the root URL of the caseflow API.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// PageSize is the number of notifications fetched per page.
	PageSize int `mapstructure:"page_size" yaml:"page_size"`
}

// CacheConfig holds settings for the local notification mirror.
type CacheConfig struct {
	// Path is the sqlite file location; empty disables the cache.
	Path string `mapstructure:"path" yaml:"path"`
}

// Config is the top-level client configuration.
type Config struct {
	API    APIConfig    `mapstructure:"api" yaml:"api"`
	Stream StreamConfig `mapstructure:"stream" yaml:"stream"`
	Cache  CacheConfig  `mapstructure:"cache" yaml:"cache"`
}

// DefaultConfigPath returns the default configuration file location,
// ~/.config/caseflow/notify.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "notify.yaml")
	}
	return filepath.Join(home, ".config", "caseflow", "notify.yaml")
}

// defaultConfig returns the built-in defaults.
func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:  "https://app.caseflow.example.com/api",
			PageSize: 20,
		},
		Stream: StreamConfig{
			URL:                  "wss://app.caseflow.example.com/ws/notifications",
			IdleTimeoutSec:       300,
			ReconnectBaseMS:      1000,
			MaxReconnectAttempts: 10,
		},
		Cache: CacheConfig{},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A missing file yields the default configuration, not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("api.base_url", "https://app.caseflow.example.com/api")
	v.SetDefault("api.page_size", 20)
	v.SetDefault("stream.url", "wss://app.caseflow.example.com/ws/notifications")
	v.SetDefault("stream.idle_timeout_sec", 300)
	v.SetDefault("stream.reconnect_base_ms", 1000)
	v.SetDefault("stream.max_reconnect_attempts", 10)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the configuration to a YAML file at path, creating
// parent directories if needed.
func SaveConfig(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("stream", cfg.Stream)
	v.Set("cache", cfg.Cache)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
