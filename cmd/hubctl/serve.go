package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/homehub/hubctl/internal/api"
	"github.com/homehub/hubctl/internal/audit"
	"github.com/homehub/hubctl/internal/command"
	"github.com/homehub/hubctl/internal/telemetry"
	"github.com/homehub/hubctl/internal/transport"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the command queue as a daemon with an HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (default from api.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	rt, err := newApp(globalFlags, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	addr := rt.cfg.API.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	hub := telemetry.NewHub(telemetry.Config{
		HeartbeatInterval: rt.cfg.Timing.HeartbeatInterval,
		BufferSize:        rt.cfg.Timing.EventBufferSize,
	}, rt.logger)

	orch := command.NewOrchestrator(rt.client, &rt.cfg.Catalog, &rt.cfg.Timing, command.Options{
		Notifier:     hub,
		Audit:        audit.NewLogger(rt.logger),
		PressRelease: !globalFlags.NoPressRelease,
	}, rt.logger)

	rt.session.OnStateChange(func(s transport.State) { orch.SetConnected(s.Usable()) })
	rt.client.OnNotification(orch.HandleNotification)

	server := api.NewServer(api.Deps{
		Orchestrator: orch,
		Telemetry:    hub,
		Catalog:      &rt.cfg.Catalog,
		Hub:          rt.client,
	}, 30*time.Second, 30*time.Second, 120*time.Second, rt.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return orch.Run(gctx) })

	g.Go(func() error {
		rt.logger.Info("api listening", zap.String("addr", addr))
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api: %w", err)
		}
		return nil
	})

	// Connect eagerly so the first command does not pay for the handshake.
	// A hub that is down is retried by the first exchange.
	g.Go(func() error {
		if err := rt.client.Connect(gctx); err != nil {
			rt.logger.Warn("hub not reachable yet", zap.String("hub", rt.cfg.Hub.URL()), zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		hub.Stop()
		if err := server.Stop(shutdownCtx); err != nil {
			rt.logger.Warn("api shutdown", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	rt.logger.Info("hubctl stopped")
	return err
}
