package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the application configuration
type Config struct {
	APIURL         string        `toml:"api_url"`
	SettingsURL    string        `toml:"settings_url"` // Defaults to api_url
	ListenAddr     string        `toml:"listen_addr"`
	RequestTimeout time.Duration `toml:"request_timeout"`

	// Poll intervals. Zero means the resource is only fetched on demand.
	TrafficInterval       time.Duration `toml:"traffic_interval"`
	BlacklistInterval     time.Duration `toml:"blacklist_interval"`
	NotificationsInterval time.Duration `toml:"notifications_interval"`
	DashboardInterval     time.Duration `toml:"dashboard_interval"`
	ChartsInterval        time.Duration `toml:"charts_interval"`
	LiveInterval          time.Duration `toml:"live_interval"`
	ChatInterval          time.Duration `toml:"chat_interval"`
	SettingsInterval      time.Duration `toml:"settings_interval"`

	BackoffInitial time.Duration `toml:"backoff_initial"`
	BackoffMax     time.Duration `toml:"backoff_max"`
	DegradedAfter  int           `toml:"degraded_after"`

	RedisURL      string        `toml:"redis_url"`
	CacheTTL      time.Duration `toml:"cache_ttl"`
	DatabaseURL   string        `toml:"database_url"`
	PrintInterval time.Duration `toml:"print_interval"` // 0 disables the terminal tables
	StatsInterval time.Duration `toml:"stats_interval"`
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		APIURL:                "http://localhost:8000",
		ListenAddr:            ":8080",
		RequestTimeout:        10 * time.Second,
		TrafficInterval:       30 * time.Second,
		BlacklistInterval:     30 * time.Second,
		NotificationsInterval: 15 * time.Second,
		DashboardInterval:     30 * time.Second,
		ChartsInterval:        30 * time.Second,
		LiveInterval:          15 * time.Second,
		BackoffInitial:        1 * time.Second,
		BackoffMax:            10 * time.Second,
		DegradedAfter:         3,
		CacheTTL:              24 * time.Hour,
		StatsInterval:         30 * time.Second,
	}
}

func LoadConfig(path string, cfg *Config) error {
	if path != "" {
		_, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("error decoding config file: %w", err)
		}
	}
	return nil
}

// Validate resets values that can not work to their defaults.
// Negative intervals become zero (manual only).
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}
	if c.SettingsURL == "" {
		c.SettingsURL = c.APIURL
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	for _, d := range []*time.Duration{
		&c.TrafficInterval, &c.BlacklistInterval, &c.NotificationsInterval,
		&c.DashboardInterval, &c.ChartsInterval, &c.LiveInterval,
		&c.ChatInterval, &c.SettingsInterval, &c.PrintInterval,
	} {
		if *d < 0 {
			*d = 0
		}
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = def.BackoffInitial
	}
	if c.BackoffMax < c.BackoffInitial {
		c.BackoffMax = def.BackoffMax
		if c.BackoffMax < c.BackoffInitial {
			c.BackoffMax = c.BackoffInitial
		}
	}
	if c.DegradedAfter <= 0 {
		c.DegradedAfter = def.DegradedAfter
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = def.CacheTTL
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = def.StatsInterval
	}
	return nil
}
