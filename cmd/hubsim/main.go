// Command hubsim emulates a hub's websocket endpoint for testing hubctl
// without hardware.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/homehub/hubctl/internal/hubsim"
	"github.com/homehub/hubctl/internal/logging"
)

type flags struct {
	configPath string
	mode       string
	listen     string
	verbose    bool
}

var opts flags

var rootCmd = &cobra.Command{
	Use:   "hubsim",
	Short: "Hub emulator speaking the websocket engine protocol",
	Long: `hubsim serves the hub's websocket protocol: startactivity, holdAction
and getCurrentActivity, plus state digest notifications.

Modes:
  normal   reply to every request
  silent   accept requests and never reply
  noise    reply, and push uncorrelated frames in between
  drops    close the connection after dropAfter requests`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	rootCmd.Flags().StringVar(&opts.mode, "mode", "", "override the emulation mode")
	rootCmd.Flags().StringVar(&opts.listen, "listen", "", "override the listen address")
	rootCmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "hubsim: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := hubsim.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.mode != "" {
		cfg.Mode = opts.mode
	}
	if opts.listen != "" {
		cfg.Listen = opts.listen
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.File = cfg.Logging.File
	if opts.verbose {
		logCfg.Level = "debug"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	state := hubsim.NewState(cfg)
	defer func() { _ = state.Close() }()
	srv := hubsim.NewServer(cfg, state, logger)

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("hub emulator listening",
			zap.String("addr", cfg.Listen),
			zap.String("mode", cfg.Mode),
			zap.String("remoteId", cfg.RemoteID),
			zap.Strings("activities", state.ActivityIDs()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.DropAll()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	return nil
}
