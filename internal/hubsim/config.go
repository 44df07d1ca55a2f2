package hubsim

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Emulation modes.
const (
	ModeNormal = "normal" // reply to everything
	ModeSilent = "silent" // accept frames, never reply
	ModeNoise  = "noise"  // reply, and push uncorrelated frames between replies
	ModeDrops  = "drops"  // close the connection after DropAfter requests
)

// Config represents the complete configuration for the hub emulator
type Config struct {
	Listen          string            `yaml:"listen"`
	RemoteID        string            `yaml:"remoteId"`
	Activities      map[string]string `yaml:"activities"` // id -> display name
	InitialActivity string            `yaml:"initialActivity"`
	Mode            string            `yaml:"mode"`
	Timing          TimingConfig      `yaml:"timing"`
	DropAfter       int               `yaml:"dropAfter"`
	RefuseFirst     int               `yaml:"refuseFirst"` // handshakes answered 503 before accepting
	Logging         LoggingConfig     `yaml:"logging"`
}

// TimingConfig holds the emulated hub latencies
type TimingConfig struct {
	ReplyDelay       time.Duration `yaml:"replyDelay"`
	ActivityLatency  time.Duration `yaml:"activityLatency"`
	NoiseInterval    time.Duration `yaml:"noiseInterval"`
	HandshakeTimeout time.Duration `yaml:"handshakeTimeout"`
}

// LoggingConfig selects the emulator's log level and optional log file
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns an emulator with three activities and the hub's
// usual activity switch latency.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8088",
		RemoteID: "1234567",
		Activities: map[string]string{
			"12345678": "Watch TV",
			"87654321": "Listen to Music",
			"23456789": "Watch a Movie",
		},
		InitialActivity: "-1",
		Mode:            ModeNormal,
		Timing: TimingConfig{
			ActivityLatency:  2 * time.Second,
			NoiseInterval:    500 * time.Millisecond,
			HandshakeTimeout: 5 * time.Second,
		},
		DropAfter: 5,
		Logging:   LoggingConfig{Level: "info"},
	}
}

// LoadConfig merges DefaultConfig, the YAML file at path (skipped when
// empty) and HUBSIM_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		// Activities from the file replace the defaults instead of merging.
		defaults := cfg.Activities
		cfg.Activities = nil
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		if cfg.Activities == nil {
			cfg.Activities = defaults
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) error {
	if mode := os.Getenv("HUBSIM_MODE"); mode != "" {
		cfg.Mode = mode
	}
	if listen := os.Getenv("HUBSIM_LISTEN"); listen != "" {
		cfg.Listen = listen
	}
	if v := os.Getenv("HUBSIM_ACTIVITY_LATENCY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("HUBSIM_ACTIVITY_LATENCY: %w", err)
		}
		cfg.Timing.ActivityLatency = d
	}
	if v := os.Getenv("HUBSIM_DROP_AFTER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HUBSIM_DROP_AFTER: %w", err)
		}
		cfg.DropAfter = n
	}
	return nil
}

// Validate checks mode and timing bounds.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeNormal, ModeSilent, ModeNoise, ModeDrops:
	default:
		return fmt.Errorf("invalid mode %s, must be one of: %v", c.Mode,
			[]string{ModeNormal, ModeSilent, ModeNoise, ModeDrops})
	}
	if c.Timing.ReplyDelay < 0 || c.Timing.ActivityLatency < 0 {
		return fmt.Errorf("latencies must be non-negative")
	}
	if c.RefuseFirst < 0 {
		return fmt.Errorf("refuseFirst must be non-negative, got %d", c.RefuseFirst)
	}
	if c.Mode == ModeNoise && c.Timing.NoiseInterval <= 0 {
		return fmt.Errorf("noise mode needs a positive noiseInterval")
	}
	if c.Mode == ModeDrops && c.DropAfter < 1 {
		return fmt.Errorf("drops mode needs dropAfter >= 1, got %d", c.DropAfter)
	}
	if c.InitialActivity != "-1" {
		if _, ok := c.Activities[c.InitialActivity]; !ok {
			return fmt.Errorf("initial activity %s is not configured", c.InitialActivity)
		}
	}
	return nil
}
