package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ddos-radar.toml")
	data := `
api_url = "http://api.internal:8000"
settings_url = "http://api.internal:5000"
traffic_interval = "10s"
notifications_interval = "5s"
chat_interval = "0s"
degraded_after = 5
redis_url = "redis://localhost:6379"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	if err := LoadConfig(path, &cfg); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.APIURL != "http://api.internal:8000" || cfg.SettingsURL != "http://api.internal:5000" {
		t.Errorf("Unexpected URLs %q %q", cfg.APIURL, cfg.SettingsURL)
	}
	if cfg.TrafficInterval != 10*time.Second {
		t.Errorf("Expected traffic interval 10s, got %v", cfg.TrafficInterval)
	}
	if cfg.NotificationsInterval != 5*time.Second {
		t.Errorf("Expected notifications interval 5s, got %v", cfg.NotificationsInterval)
	}
	if cfg.BlacklistInterval != 30*time.Second {
		t.Errorf("Expected default blacklist interval, got %v", cfg.BlacklistInterval)
	}
	if cfg.DegradedAfter != 5 {
		t.Errorf("Expected degraded_after 5, got %d", cfg.DegradedAfter)
	}
	if cfg.RedisURL != "redis://localhost:6379" {
		t.Errorf("Unexpected redis URL %q", cfg.RedisURL)
	}
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg := DefaultConfig()
	if err := LoadConfig("", &cfg); err != nil {
		t.Fatalf("Expected no error for empty path, got %v", err)
	}
	if cfg != DefaultConfig() {
		t.Error("Empty path must leave defaults untouched")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	os.WriteFile(path, []byte("api_url = [unterminated"), 0o644)

	cfg := DefaultConfig()
	if err := LoadConfig(path, &cfg); err == nil {
		t.Error("Expected decode error")
	}
}

func TestValidate(t *testing.T) {
	cfg := Config{
		APIURL:          "http://localhost:8000",
		TrafficInterval: -time.Second,
		BackoffInitial:  0,
		BackoffMax:      -1,
		DegradedAfter:   0,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.SettingsURL != cfg.APIURL {
		t.Errorf("Expected settings URL to default to API URL, got %q", cfg.SettingsURL)
	}
	if cfg.TrafficInterval != 0 {
		t.Errorf("Expected negative interval to become manual, got %v", cfg.TrafficInterval)
	}
	if cfg.BackoffInitial != time.Second || cfg.BackoffMax != 10*time.Second {
		t.Errorf("Unexpected backoff %v/%v", cfg.BackoffInitial, cfg.BackoffMax)
	}
	if cfg.DegradedAfter != 3 {
		t.Errorf("Expected degraded_after 3, got %d", cfg.DegradedAfter)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("Expected default timeout, got %v", cfg.RequestTimeout)
	}

	empty := Config{}
	if err := empty.Validate(); err == nil {
		t.Error("Expected error for missing api_url")
	}
}
