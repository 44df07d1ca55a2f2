package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/homehub/hubctl/internal/config"
	"github.com/homehub/hubctl/internal/hubclient"
	"github.com/homehub/hubctl/internal/logging"
	"github.com/homehub/hubctl/internal/retry"
	"github.com/homehub/hubctl/internal/transport"
)

// app is the configuration, logger and hub connection every
// subcommand starts from.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	session *transport.Session
	client  *hubclient.Client
}

// newApp loads the configuration and builds a disconnected client.
// keepPolling leaves the periodic live status poll enabled; one-shot
// commands turn it off.
func newApp(flags GlobalFlags, keepPolling bool) (*app, error) {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Hub.Require(); err != nil {
		return nil, err
	}
	if !keepPolling {
		cfg.Timing.LivePollInterval = 0
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.File = cfg.Logging.File
	if flags.LogFile != "" {
		logCfg.File = flags.LogFile
	}
	if flags.Verbose {
		logCfg.Level = "debug"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	t := cfg.Timing
	tcfg := transport.DefaultConfig(cfg.Hub.URL())
	tcfg.HandshakeTimeout = t.ConnectTimeout
	tcfg.WriteTimeout = t.WriteTimeout
	tcfg.PingInterval = t.PingInterval
	tcfg.PongWait = 2 * t.PingInterval
	session := transport.New(tcfg, logger)

	client := hubclient.New(session, hubclient.Options{
		HubID: cfg.Hub.RemoteID,
		Retry: retry.Policy{
			MaxAttempts:    t.RetryMaxAttempts,
			BaseDelay:      t.RetryBaseDelay,
			MaxDelay:       t.RetryMaxDelay,
			JitterFraction: t.RetryJitter,
		},
		Timing: hubclient.Timing{
			ActivityTimeout: t.ActivityTimeout,
			PressTimeout:    t.PressTimeout,
			PressReleaseGap: t.PressReleaseGap,
			SingleTimeout:   t.SingleTimeout,
			StatusTimeout:   t.StatusTimeout,
		},
	}, logger)

	logger.Debug("runtime ready",
		zap.String("hub", cfg.Hub.URL()),
		zap.Int("activities", len(cfg.Catalog.Activities)),
		zap.Int("devices", len(cfg.Catalog.Devices)))

	return &app{cfg: cfg, logger: logger, session: session, client: client}, nil
}

// Close disconnects from the hub and flushes the logger.
func (r *app) Close() {
	if err := r.client.Close(); err != nil {
		r.logger.Debug("close", zap.Error(err))
	}
	_ = r.logger.Sync()
}
