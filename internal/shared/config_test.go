package shared

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./tasting.db" {
			t.Errorf("expected database path ./tasting.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}

		if config.Server.ReadTimeout != 10*time.Second {
			t.Errorf("expected read timeout 10s, got %v", config.Server.ReadTimeout)
		}

		if config.Ordering.Gap != 1000 {
			t.Errorf("expected ordering gap 1000, got %v", config.Ordering.Gap)
		}

		if !config.Ordering.Integral {
			t.Error("expected integral positions by default")
		}

		if config.Sync.Interval != 15*time.Second {
			t.Errorf("expected sync interval 15s, got %v", config.Sync.Interval)
		}

		if config.Sync.MaxTries != 3 {
			t.Errorf("expected max tries 3, got %d", config.Sync.MaxTries)
		}
	})

	t.Run("Addr", func(t *testing.T) {
		s := ServerConfig{Host: "0.0.0.0", Port: 8080}
		if got := s.Addr(); got != "0.0.0.0:8080" {
			t.Errorf("expected 0.0.0.0:8080, got %s", got)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Database.Path != defaultConfig.Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
path = "/custom/path.db"

[server]
host = "0.0.0.0"
port = 8080

[ordering]
gap = 10.0
integral = false
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 8080 {
			t.Errorf("expected server port 8080, got %d", config.Server.Port)
		}

		if config.Ordering.Gap != 10 || config.Ordering.Integral {
			t.Errorf("expected ordering overrides, got %+v", config.Ordering)
		}

		if config.Ordering.Baseline != 100000 {
			t.Errorf("expected baseline default to survive partial file, got %v", config.Ordering.Baseline)
		}
	})

	t.Run("LoadConfig Invalid TOML", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")
		if err := os.WriteFile(configPath, []byte("[database\npath ="), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfig(configPath); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("ApplyEnv", func(t *testing.T) {
		t.Setenv("TASTING_DB_PATH", "/env/tasting.db")
		t.Setenv("TASTING_SERVER_PORT", "9999")
		t.Setenv("TASTING_SYNC_TIMEOUT", "5s")
		t.Setenv("TASTING_ALLOWED_ORIGINS", "https://a.example,https://b.example")

		config := DefaultConfig()
		if err := ApplyEnv(config); err != nil {
			t.Fatalf("ApplyEnv() error = %v", err)
		}

		if config.Database.Path != "/env/tasting.db" {
			t.Errorf("expected env database path, got %s", config.Database.Path)
		}
		if config.Server.Port != 9999 {
			t.Errorf("expected env port 9999, got %d", config.Server.Port)
		}
		if config.Sync.Timeout != 5*time.Second {
			t.Errorf("expected env sync timeout 5s, got %v", config.Sync.Timeout)
		}
		if len(config.Server.AllowedOrigins) != 2 {
			t.Errorf("expected 2 allowed origins, got %v", config.Server.AllowedOrigins)
		}
		if config.Log.Level != "info" {
			t.Errorf("expected unset env to keep default log level, got %s", config.Log.Level)
		}
	})

	t.Run("ApplyEnv Invalid Value", func(t *testing.T) {
		t.Setenv("TASTING_SERVER_PORT", "not-a-port")

		if err := ApplyEnv(DefaultConfig()); err == nil {
			t.Error("expected error for invalid port")
		}
	})
}
