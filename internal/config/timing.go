package config

import (
	"time"
)

// TimingConfig holds every deadline, delay and display duration.
type TimingConfig struct {
	// Connection
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	PingInterval   time.Duration `yaml:"pingInterval"`

	// Reply deadlines per hub call
	ActivityTimeout time.Duration `yaml:"activityTimeout"`
	PressTimeout    time.Duration `yaml:"pressTimeout"`
	PressReleaseGap time.Duration `yaml:"pressReleaseGap"`
	SingleTimeout   time.Duration `yaml:"singleTimeout"`
	StatusTimeout   time.Duration `yaml:"statusTimeout"`

	// Retry wrapper
	RetryMaxAttempts int           `yaml:"retryMaxAttempts"`
	RetryBaseDelay   time.Duration `yaml:"retryBaseDelay"`
	RetryMaxDelay    time.Duration `yaml:"retryMaxDelay"`
	RetryJitter      float64       `yaml:"retryJitter"`

	// Scheduling
	DispatchSpacing   time.Duration `yaml:"dispatchSpacing"`
	ExclusiveEstimate time.Duration `yaml:"exclusiveEstimate"`
	SignalEstimate    time.Duration `yaml:"signalEstimate"`
	DeviceEstimate    time.Duration `yaml:"deviceEstimate"`

	// Status display
	SuccessDisplay     time.Duration `yaml:"successDisplay"`
	ErrorDisplay       time.Duration `yaml:"errorDisplay"`
	ConfigErrorDisplay time.Duration `yaml:"configErrorDisplay"`
	RecoverDisplay     time.Duration `yaml:"recoverDisplay"`
	LiveRetryInterval  time.Duration `yaml:"liveRetryInterval"`
	LivePollInterval   time.Duration `yaml:"livePollInterval"`

	// Telemetry stream
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	EventBufferSize   int           `yaml:"eventBufferSize"`
}

// LoadBaseline returns the defaults tuned against a real hub.
func LoadBaseline() *TimingConfig {
	return &TimingConfig{
		ConnectTimeout: 1 * time.Second,
		WriteTimeout:   3 * time.Second,
		PingInterval:   30 * time.Second,

		ActivityTimeout: 3 * time.Second,
		PressTimeout:    200 * time.Millisecond,
		PressReleaseGap: 50 * time.Millisecond,
		SingleTimeout:   1 * time.Second,
		StatusTimeout:   2 * time.Second,

		RetryMaxAttempts: 3,
		RetryBaseDelay:   500 * time.Millisecond,
		RetryMaxDelay:    5 * time.Second,
		RetryJitter:      0.1,

		DispatchSpacing:   50 * time.Millisecond,
		ExclusiveEstimate: 10 * time.Second,
		SignalEstimate:    300 * time.Millisecond,
		DeviceEstimate:    500 * time.Millisecond,

		SuccessDisplay:     1 * time.Second,
		ErrorDisplay:       3 * time.Second,
		ConfigErrorDisplay: 4 * time.Second,
		RecoverDisplay:     1 * time.Second,
		LiveRetryInterval:  1 * time.Second,
		LivePollInterval:   10 * time.Second,

		HeartbeatInterval: 15 * time.Second,
		EventBufferSize:   50,
	}
}
