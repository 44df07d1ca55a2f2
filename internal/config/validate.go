package config

import (
	"fmt"
	"time"

	"github.com/homehub/hubctl/internal/logging"
)

// Validate checks the whole configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := validateHub(&cfg.Hub); err != nil {
		return fmt.Errorf("hub validation failed: %w", err)
	}
	if err := ValidateCatalog(&cfg.Catalog); err != nil {
		return fmt.Errorf("catalog validation failed: %w", err)
	}
	if err := ValidateTiming(&cfg.Timing); err != nil {
		return fmt.Errorf("timing validation failed: %w", err)
	}
	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}
	return nil
}

func validateHub(hub *HubConfig) error {
	if hub.Port <= 0 || hub.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535, got %d", hub.Port)
	}
	return nil
}

// ValidateCatalog checks that every alias resolves to an identifier.
func ValidateCatalog(c *Catalog) error {
	for alias, a := range c.Activities {
		if a.ID == "" {
			return fmt.Errorf("activity %q has no id", alias)
		}
	}
	for alias, d := range c.Devices {
		if d.ID == "" {
			return fmt.Errorf("device %q has no id", alias)
		}
	}
	for alias, cmd := range c.AudioCommands {
		if cmd == "" {
			return fmt.Errorf("audio command %q is empty", alias)
		}
	}
	if len(c.AudioCommands) > 0 && c.AudioDevice == "" {
		return fmt.Errorf("audio commands configured without audioDevice")
	}
	if c.AudioDevice != "" {
		if _, ok := c.Devices[key(c.AudioDevice)]; !ok {
			return fmt.Errorf("audioDevice %q is not a configured device", c.AudioDevice)
		}
	}
	return nil
}

// ValidateTiming enforces positive deadlines and a sane retry policy.
func ValidateTiming(config *TimingConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := validateDeadlines(config); err != nil {
		return fmt.Errorf("deadline validation failed: %w", err)
	}
	if err := validateRetry(config); err != nil {
		return fmt.Errorf("retry validation failed: %w", err)
	}
	if err := validateDisplay(config); err != nil {
		return fmt.Errorf("display validation failed: %w", err)
	}
	return nil
}

func validateDeadlines(config *TimingConfig) error {
	positive := []struct {
		name string
		d    time.Duration
	}{
		{"connect timeout", config.ConnectTimeout},
		{"write timeout", config.WriteTimeout},
		{"activity timeout", config.ActivityTimeout},
		{"press timeout", config.PressTimeout},
		{"single timeout", config.SingleTimeout},
		{"status timeout", config.StatusTimeout},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", p.name, p.d)
		}
	}
	if config.PressReleaseGap < 0 {
		return fmt.Errorf("press/release gap must be non-negative, got %v", config.PressReleaseGap)
	}
	if config.PingInterval < 0 {
		return fmt.Errorf("ping interval must be non-negative, got %v", config.PingInterval)
	}
	if config.DispatchSpacing < 0 {
		return fmt.Errorf("dispatch spacing must be non-negative, got %v", config.DispatchSpacing)
	}
	return nil
}

func validateRetry(config *TimingConfig) error {
	if config.RetryMaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1, got %d", config.RetryMaxAttempts)
	}
	if config.RetryBaseDelay <= 0 {
		return fmt.Errorf("base delay must be positive, got %v", config.RetryBaseDelay)
	}
	if config.RetryMaxDelay < config.RetryBaseDelay {
		return fmt.Errorf("max delay %v must be >= base delay %v", config.RetryMaxDelay, config.RetryBaseDelay)
	}
	if config.RetryJitter < 0 || config.RetryJitter > 1 {
		return fmt.Errorf("jitter must be in [0, 1], got %v", config.RetryJitter)
	}
	return nil
}

func validateDisplay(config *TimingConfig) error {
	positive := []struct {
		name string
		d    time.Duration
	}{
		{"success display", config.SuccessDisplay},
		{"error display", config.ErrorDisplay},
		{"config error display", config.ConfigErrorDisplay},
		{"recover display", config.RecoverDisplay},
		{"live retry interval", config.LiveRetryInterval},
		{"heartbeat interval", config.HeartbeatInterval},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", p.name, p.d)
		}
	}
	if config.LivePollInterval < 0 {
		return fmt.Errorf("live poll interval must be non-negative, got %v", config.LivePollInterval)
	}
	if config.EventBufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got %d", config.EventBufferSize)
	}
	return nil
}

// Require reports a hub that cannot be dialed.
func (h HubConfig) Require() error {
	if h.Host == "" {
		return fmt.Errorf("hub host is not configured (hub.host or HUBCTL_HUB_HOST)")
	}
	if h.RemoteID == "" {
		return fmt.Errorf("hub remote id is not configured (hub.remoteId or HUBCTL_HUB_REMOTE_ID)")
	}
	return nil
}
