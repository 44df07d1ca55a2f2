package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// HubConfig locates the hub.
type HubConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	RemoteID string `yaml:"remoteId"`
}

// URL is the hub's websocket endpoint.
func (h HubConfig) URL() string {
	q := url.Values{}
	q.Set("domain", "svcs.myharmony.com")
	q.Set("hubId", h.RemoteID)
	return fmt.Sprintf("ws://%s:%d/?%s", h.Host, h.Port, q.Encode())
}

// LoggingConfig selects log level and an optional rotated log file.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// APIConfig configures the daemon's HTTP listener.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the complete hubctl configuration.
type Config struct {
	Hub     HubConfig     `yaml:"hub"`
	Catalog Catalog       `yaml:",inline"`
	Timing  TimingConfig  `yaml:"timing"`
	Logging LoggingConfig `yaml:"logging"`
	API     APIConfig     `yaml:"api"`
}

// Default returns a configuration with no hub address and the baseline
// timing.
func Default() *Config {
	return &Config{
		Hub: HubConfig{Port: 8088},
		Catalog: Catalog{
			Activities:      map[string]Activity{},
			ActivityAliases: DefaultActivityAliases(),
			Devices:         map[string]Device{},
			AudioCommands:   map[string]string{},
		},
		Timing:  *LoadBaseline(),
		Logging: LoggingConfig{Level: "info"},
		API:     APIConfig{Addr: "127.0.0.1:8089"},
	}
}

// Load merges Default, the YAML file at path (skipped when path is empty)
// and HUBCTL_* environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.Catalog.normalize()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg. Keys absent from the file
// keep their current value.
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

// applyEnvOverrides applies HUBCTL_* environment variables. Malformed values
// are rejected rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("HUBCTL_HUB_HOST"); val != "" {
		cfg.Hub.Host = val
	}
	if val := os.Getenv("HUBCTL_HUB_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("HUBCTL_HUB_PORT: %w", err)
		}
		cfg.Hub.Port = port
	}
	if val := os.Getenv("HUBCTL_HUB_REMOTE_ID"); val != "" {
		cfg.Hub.RemoteID = val
	}
	if val := os.Getenv("HUBCTL_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("HUBCTL_LOG_FILE"); val != "" {
		cfg.Logging.File = val
	}
	if val := os.Getenv("HUBCTL_API_ADDR"); val != "" {
		cfg.API.Addr = val
	}

	durations := map[string]*time.Duration{
		"HUBCTL_TIMING_CONNECT_TIMEOUT":    &cfg.Timing.ConnectTimeout,
		"HUBCTL_TIMING_ACTIVITY_TIMEOUT":   &cfg.Timing.ActivityTimeout,
		"HUBCTL_TIMING_PRESS_TIMEOUT":      &cfg.Timing.PressTimeout,
		"HUBCTL_TIMING_PRESS_RELEASE_GAP":  &cfg.Timing.PressReleaseGap,
		"HUBCTL_TIMING_SINGLE_TIMEOUT":     &cfg.Timing.SingleTimeout,
		"HUBCTL_TIMING_STATUS_TIMEOUT":     &cfg.Timing.StatusTimeout,
		"HUBCTL_TIMING_RETRY_BASE_DELAY":   &cfg.Timing.RetryBaseDelay,
		"HUBCTL_TIMING_RETRY_MAX_DELAY":    &cfg.Timing.RetryMaxDelay,
		"HUBCTL_TIMING_DISPATCH_SPACING":   &cfg.Timing.DispatchSpacing,
		"HUBCTL_TIMING_LIVE_POLL_INTERVAL": &cfg.Timing.LivePollInterval,
	}
	for name, field := range durations {
		if val := os.Getenv(name); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*field = d
		}
	}

	if val := os.Getenv("HUBCTL_TIMING_RETRY_MAX_ATTEMPTS"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("HUBCTL_TIMING_RETRY_MAX_ATTEMPTS: %w", err)
		}
		cfg.Timing.RetryMaxAttempts = n
	}
	return nil
}
