// Package config loads codedeck settings from an optional YAML file with
// CODEDECK_-prefixed environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/codedeck/codedeck/internal/stream"
)

type Config struct {
	Gateway GatewayConfig `koanf:"gateway"`
	Stream  StreamConfig  `koanf:"stream"`
	Journal JournalConfig `koanf:"journal"`
}

type GatewayConfig struct {
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`
}

// StreamConfig holds the connection manager's timing knobs in
// milliseconds, plus the live-buffer cap.
type StreamConfig struct {
	BaseDelayMS        int `koanf:"base_delay_ms"`
	MaxDelayMS         int `koanf:"max_delay_ms"`
	WatchdogIntervalMS int `koanf:"watchdog_interval_ms"`
	StaleThresholdMS   int `koanf:"stale_threshold_ms"`
	BufferCap          int `koanf:"buffer_cap"`
}

type JournalConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// ManagerConfig converts the millisecond knobs into a stream.Config.
// Unset values fall back to the manager's defaults.
func (c StreamConfig) ManagerConfig() stream.Config {
	return stream.Config{
		BaseDelay:        time.Duration(c.BaseDelayMS) * time.Millisecond,
		MaxDelay:         time.Duration(c.MaxDelayMS) * time.Millisecond,
		WatchdogInterval: time.Duration(c.WatchdogIntervalMS) * time.Millisecond,
		StaleThreshold:   time.Duration(c.StaleThresholdMS) * time.Millisecond,
	}
}

// Load reads configuration from path (skipped when the file is absent)
// and overlays CODEDECK_-prefixed environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file: %w", err)
			}
		}
	}

	// Double underscore separates nesting levels so single underscores
	// survive in key names (CODEDECK_GATEWAY__BASE_URL → gateway.base_url).
	if err := k.Load(env.Provider("CODEDECK_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "CODEDECK_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	// Default values
	if !k.Exists("gateway.base_url") {
		k.Set("gateway.base_url", "http://localhost:7850")
	}
	if !k.Exists("journal.path") {
		k.Set("journal.path", "./data/codedeck.db")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
