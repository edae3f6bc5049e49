package model

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.API.PageSize != 20 {
		t.Errorf("page size = %d, want 20", cfg.API.PageSize)
	}
	if cfg.Stream.IdleTimeoutSec != 300 {
		t.Errorf("idle timeout = %d, want 300", cfg.Stream.IdleTimeoutSec)
	}
	if cfg.Stream.ReconnectBaseMS != 1000 {
		t.Errorf("reconnect base = %d, want 1000", cfg.Stream.ReconnectBaseMS)
	}
	if cfg.Stream.MaxReconnectAttempts != 10 {
		t.Errorf("max reconnect attempts = %d, want 10", cfg.Stream.MaxReconnectAttempts)
	}
	if cfg.Cache.Path != "" {
		t.Errorf("cache path = %q, want disabled by default", cfg.Cache.Path)
	}
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notify.yaml")
	content := `api:
  base_url: https://visa.example.org/api
stream:
  idle_timeout_sec: 60
cache:
  path: /tmp/notifications.db
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.API.BaseURL != "https://visa.example.org/api" {
		t.Errorf("base url = %q, want the configured value", cfg.API.BaseURL)
	}
	if cfg.Stream.IdleTimeoutSec != 60 {
		t.Errorf("idle timeout = %d, want 60", cfg.Stream.IdleTimeoutSec)
	}
	if cfg.Cache.Path != "/tmp/notifications.db" {
		t.Errorf("cache path = %q, want the configured value", cfg.Cache.Path)
	}

	// Keys the file omits keep their defaults.
	if cfg.API.PageSize != 20 {
		t.Errorf("page size = %d, want the default 20", cfg.API.PageSize)
	}
	if cfg.Stream.MaxReconnectAttempts != 10 {
		t.Errorf("max reconnect attempts = %d, want the default 10", cfg.Stream.MaxReconnectAttempts)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "notify.yaml")

	cfg := defaultConfig()
	cfg.API.BaseURL = "https://visa.example.org/api"
	cfg.Stream.MaxReconnectAttempts = 4

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.API.BaseURL != cfg.API.BaseURL {
		t.Errorf("base url = %q, want %q", loaded.API.BaseURL, cfg.API.BaseURL)
	}
	if loaded.Stream.MaxReconnectAttempts != 4 {
		t.Errorf("max reconnect attempts = %d, want 4", loaded.Stream.MaxReconnectAttempts)
	}
}
