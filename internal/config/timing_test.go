package config

import (
	"testing"
	"time"
)

func TestLoadBaseline(t *testing.T) {
	cfg := LoadBaseline()

	if cfg.ActivityTimeout != 3*time.Second {
		t.Errorf("ActivityTimeout = %v, want 3s", cfg.ActivityTimeout)
	}
	if cfg.PressTimeout != 200*time.Millisecond {
		t.Errorf("PressTimeout = %v, want 200ms", cfg.PressTimeout)
	}
	if cfg.PressReleaseGap != 50*time.Millisecond {
		t.Errorf("PressReleaseGap = %v, want 50ms", cfg.PressReleaseGap)
	}
	if cfg.StatusTimeout != 2*time.Second {
		t.Errorf("StatusTimeout = %v, want 2s", cfg.StatusTimeout)
	}

	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("RetryMaxAttempts = %d, want 3", cfg.RetryMaxAttempts)
	}
	if cfg.RetryBaseDelay != 500*time.Millisecond {
		t.Errorf("RetryBaseDelay = %v, want 500ms", cfg.RetryBaseDelay)
	}
	if cfg.RetryMaxDelay != 5*time.Second {
		t.Errorf("RetryMaxDelay = %v, want 5s", cfg.RetryMaxDelay)
	}

	if cfg.ExclusiveEstimate != 10*time.Second {
		t.Errorf("ExclusiveEstimate = %v, want 10s", cfg.ExclusiveEstimate)
	}
	if cfg.ErrorDisplay != 3*time.Second || cfg.ConfigErrorDisplay != 4*time.Second {
		t.Errorf("error displays = %v/%v, want 3s/4s", cfg.ErrorDisplay, cfg.ConfigErrorDisplay)
	}
	if cfg.LivePollInterval != 10*time.Second {
		t.Errorf("LivePollInterval = %v, want 10s", cfg.LivePollInterval)
	}
}

func TestValidateTiming_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*TimingConfig)
		wantErr bool
	}{
		{
			name:    "valid_config",
			modify:  func(c *TimingConfig) {},
			wantErr: false,
		},
		{
			name:    "zero_activity_timeout",
			modify:  func(c *TimingConfig) { c.ActivityTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "zero_press_timeout",
			modify:  func(c *TimingConfig) { c.PressTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "negative_press_release_gap",
			modify:  func(c *TimingConfig) { c.PressReleaseGap = -time.Millisecond },
			wantErr: true,
		},
		{
			name:    "zero_press_release_gap",
			modify:  func(c *TimingConfig) { c.PressReleaseGap = 0 },
			wantErr: false,
		},
		{
			name:    "zero_attempts",
			modify:  func(c *TimingConfig) { c.RetryMaxAttempts = 0 },
			wantErr: true,
		},
		{
			name:    "max_delay_below_base",
			modify:  func(c *TimingConfig) { c.RetryMaxDelay = 100 * time.Millisecond },
			wantErr: true,
		},
		{
			name:    "jitter_above_one",
			modify:  func(c *TimingConfig) { c.RetryJitter = 1.5 },
			wantErr: true,
		},
		{
			name:    "zero_error_display",
			modify:  func(c *TimingConfig) { c.ErrorDisplay = 0 },
			wantErr: true,
		},
		{
			name:    "polling_disabled",
			modify:  func(c *TimingConfig) { c.LivePollInterval = 0 },
			wantErr: false,
		},
		{
			name:    "zero_event_buffer",
			modify:  func(c *TimingConfig) { c.EventBufferSize = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadBaseline()
			tt.modify(cfg)
			err := ValidateTiming(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTiming() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTimingNil(t *testing.T) {
	if err := ValidateTiming(nil); err == nil {
		t.Error("ValidateTiming(nil) should fail")
	}
}
