package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/homehub/hubctl/internal/audit"
	"github.com/homehub/hubctl/internal/command"
	"github.com/homehub/hubctl/internal/hubclient"
)

// GlobalFlags are shared by every subcommand.
type GlobalFlags struct {
	ConfigPath     string
	LogFile        string
	Verbose        bool
	NoPressRelease bool
}

var globalFlags GlobalFlags

var rootCmd = &cobra.Command{
	Use:   "hubctl <command> [action]",
	Short: "Control a home entertainment hub",
	Long: `hubctl sends one command to the hub and waits for its reply.

A command is an activity alias (tv, music, off), an audio alias (vol+, mute)
or a device alias followed by the device command to send:

  hubctl tv
  hubctl vol+
  hubctl samsung PowerOn

Activity and device aliases come from the configuration file.`,
	Args:          cobra.RangeArgs(1, 2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runCommand,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "hubctl: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigPath, "config", "c", defaultConfigPath(), "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogFile, "log-file", "", "also write JSON logs to this rotated file")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.NoPressRelease, "no-press-release", false, "send device commands as a single press")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(serveCmd)
}

// defaultConfigPath is $HUBCTL_CONFIG, else hubctl.yaml when it exists.
func defaultConfigPath() string {
	if p := os.Getenv("HUBCTL_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("hubctl.yaml"); err == nil {
		return "hubctl.yaml"
	}
	return ""
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// runCommand submits one command through the orchestrator and reports how
// the hub answered.
func runCommand(cmd *cobra.Command, args []string) error {
	name := args[0]
	action := ""
	if len(args) == 2 {
		action = args[1]
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	rt, err := newApp(globalFlags, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	orch := command.NewOrchestrator(rt.client, &rt.cfg.Catalog, &rt.cfg.Timing, command.Options{
		Audit:        audit.NewLogger(rt.logger),
		PressRelease: !globalFlags.NoPressRelease,
	}, rt.logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- orch.Run(runCtx) }()
	defer func() {
		cancel()
		<-runDone
	}()

	ticket, err := orch.Submit(audit.WithOrigin(ctx, "cli"), name, action)
	if err != nil {
		return describe(name, err)
	}
	rt.logger.Debug("command admitted", zap.Stringer("command", ticket.Command))

	outcome, err := ticket.Wait(ctx)
	if err != nil {
		return describe(name, err)
	}

	switch outcome {
	case hubclient.OutcomeConfirmed:
		fmt.Fprintf(cmd.OutOrStdout(), "%s: confirmed\n", ticket.Command)
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "%s: sent, no reply from hub\n", ticket.Command)
	}
	return nil
}

// describe turns an orchestrator error into the message shown to the user.
func describe(name string, err error) error {
	switch {
	case errors.Is(err, command.ErrConfiguration):
		return fmt.Errorf("%s is not configured: %w", name, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s interrupted", name)
	}
	switch command.ClassifyFailure(err) {
	case command.FailureNetwork:
		return fmt.Errorf("cannot reach the hub: %w", err)
	case command.FailureTimeout:
		return fmt.Errorf("%s timed out: %w", name, err)
	}
	return fmt.Errorf("%s failed: %w", name, err)
}
