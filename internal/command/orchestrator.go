package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/homehub/hubctl/internal/audit"
	"github.com/homehub/hubctl/internal/config"
	"github.com/homehub/hubctl/internal/hubclient"
)

// Options configures an Orchestrator.
type Options struct {
	Notifier Notifier
	Audit    AuditLogger
	// PressRelease sends device commands as a press followed by a release.
	PressRelease bool
}

// Orchestrator serializes hub commands. All state lives on the goroutine
// running Run; every other method hands work to it through the inbox.
type Orchestrator struct {
	hub          HubPort
	catalog      *config.Catalog
	timing       *config.TimingConfig
	notifier     Notifier
	audit        AuditLogger
	logger       *zap.Logger
	pressRelease bool
	limiter      *rate.Limiter

	inbox   chan func()
	jobs    chan func(context.Context)
	done    chan struct{}
	running atomic.Bool

	// Owned by the loop.
	state      *StateManager
	coord      *Coordinator
	busy       bool
	refreshing bool
	tickets    map[uint64]*Ticket
}

// NewOrchestrator creates an orchestrator for hub. Call Run to start it.
func NewOrchestrator(hub HubPort, catalog *config.Catalog, timing *config.TimingConfig, opts Options, logger *zap.Logger) *Orchestrator {
	if catalog == nil {
		catalog = &config.Catalog{ActivityAliases: config.DefaultActivityAliases()}
	}
	if timing == nil {
		timing = config.LoadBaseline()
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Audit == nil {
		opts.Audit = audit.NewLogger(logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("orchestrator")

	limit := rate.Inf
	if timing.DispatchSpacing > 0 {
		limit = rate.Every(timing.DispatchSpacing)
	}

	o := &Orchestrator{
		hub:          hub,
		catalog:      catalog,
		timing:       timing,
		notifier:     opts.Notifier,
		audit:        opts.Audit,
		logger:       logger,
		pressRelease: opts.PressRelease,
		limiter:      rate.NewLimiter(limit, 1),
		inbox:        make(chan func(), 64),
		jobs:         make(chan func(context.Context), 1),
		done:         make(chan struct{}),
		tickets:      make(map[uint64]*Ticket),
	}

	estimates := Estimates{
		Exclusive: timing.ExclusiveEstimate,
		Signal:    timing.SignalEstimate,
		Device:    timing.DeviceEstimate,
	}
	o.state = NewStateManager(NewClassifier(catalog), estimates, opts.Notifier, logger)
	o.coord = NewCoordinator(o.state, DisplayTiming{
		Success:     timing.SuccessDisplay,
		Error:       timing.ErrorDisplay,
		ConfigError: timing.ConfigErrorDisplay,
		Recover:     timing.RecoverDisplay,
		LiveRetry:   timing.LiveRetryInterval,
	}, o.after)
	o.coord.SetRefresh(o.refreshLive)
	return o
}

// Run processes commands until ctx is done. Pending tickets then fail with
// ErrStopped.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return errors.New("orchestrator already running")
	}
	defer close(o.done)

	execCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.executor(execCtx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	var poll <-chan time.Time
	if o.timing.LivePollInterval > 0 {
		ticker := time.NewTicker(o.timing.LivePollInterval)
		defer ticker.Stop()
		poll = ticker.C
	}

	o.logger.Info("orchestrator started",
		zap.Duration("dispatchSpacing", o.timing.DispatchSpacing),
		zap.Duration("livePoll", o.timing.LivePollInterval),
		zap.Bool("pressRelease", o.pressRelease))
	o.refreshLive()

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return nil
		case fn := <-o.inbox:
			fn()
		case <-poll:
			o.refreshLive()
		}
	}
}

func (o *Orchestrator) shutdown() {
	for seq, t := range o.tickets {
		t.resolve(0, ErrStopped)
		delete(o.tickets, seq)
	}
	o.logger.Info("orchestrator stopped", zap.Int("abandoned", o.state.Depth()))
}

// executor runs jobs one at a time.
func (o *Orchestrator) executor(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-o.jobs:
			job(ctx)
		}
	}
}

// post hands fn to the loop.
func (o *Orchestrator) post(ctx context.Context, fn func()) error {
	select {
	case o.inbox <- fn:
		return nil
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// after is the Coordinator's scheduler: fn runs on the loop after d.
func (o *Orchestrator) after(d time.Duration, fn func()) {
	time.AfterFunc(d, func() {
		_ = o.post(context.Background(), fn)
	})
}

// call runs fn on the loop and waits for it. A context error means fn never
// ran: once the loop has claimed fn, call waits for it to finish whatever
// happens to ctx.
func (o *Orchestrator) call(ctx context.Context, fn func()) error {
	var claim atomic.Int32 // 1: claimed by the loop, 2: abandoned by the caller
	finished := make(chan struct{})
	if err := o.post(ctx, func() {
		if !claim.CompareAndSwap(0, 1) {
			return
		}
		fn()
		close(finished)
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		if claim.CompareAndSwap(0, 2) {
			return ctx.Err()
		}
		// The loop is running fn right now.
		<-finished
		return nil
	}
}

// Submit admits a command. Admission is decided on the loop without waiting
// for the hub; the returned Ticket reports the command's outcome. An
// Exclusive command is refused with ErrAdmissionRejected while another one
// runs or waits. A context error means the command was not admitted.
func (o *Orchestrator) Submit(ctx context.Context, name, action string) (*Ticket, error) {
	origin := audit.Origin(ctx)
	var (
		ticket *Ticket
		err    error
	)
	callErr := o.call(ctx, func() {
		var cmd PendingCommand
		cmd, err = o.state.Admit(name, action, origin)
		if err != nil {
			o.audit.Record(audit.Entry{
				Command: name,
				Action:  action,
				Origin:  origin,
				Outcome: "rejected",
				Code:    Code(err),
			})
			return
		}
		ticket = newTicket(cmd)
		o.tickets[cmd.Seq] = ticket
		o.pump()
	})
	if callErr != nil {
		return nil, callErr
	}
	return ticket, err
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := o.call(ctx, func() { snap = o.state.Snapshot() })
	return snap, err
}

// Recover clears a stuck activity change and re-enables controls.
func (o *Orchestrator) Recover(ctx context.Context) error {
	return o.call(ctx, o.state.Recover)
}

// SetConnected records the hub link state. It is meant to be wired to the
// transport's state callback.
func (o *Orchestrator) SetConnected(connected bool) {
	_ = o.post(context.Background(), func() {
		if o.state.Connected() != connected {
			o.logger.Info("hub link changed", zap.Bool("connected", connected))
		}
		o.state.SetConnected(connected)
	})
}

// HandleNotification feeds hub state digests into the live display. It
// never blocks; digests are dropped while the loop is backed up.
func (o *Orchestrator) HandleNotification(f hubclient.Frame) {
	digest, ok := hubclient.DecodeStateDigest(f)
	if !ok {
		return
	}
	select {
	case o.inbox <- func() { o.applyDigest(digest) }:
	default:
		o.logger.Debug("state digest dropped", zap.String("activity", digest.ActivityID))
	}
}

// applyDigest records the digest's activity; the display follows only when
// the Coordinator allows it.
func (o *Orchestrator) applyDigest(d hubclient.StateDigest) {
	if shown := o.coord.ShowLive(d.ActivityID, o.activityName(d.ActivityID)); !shown {
		o.logger.Debug("state digest recorded", zap.String("activity", d.ActivityID))
	}
}

// pump starts the next command when the executor is free.
func (o *Orchestrator) pump() {
	if o.busy {
		return
	}
	cmd, ok := o.state.Next()
	if !ok {
		return
	}
	if err := o.state.Start(cmd); err != nil {
		o.logger.Error("cannot start command", zap.Uint64("seq", cmd.Seq), zap.Error(err))
		return
	}
	o.busy = true

	o.logger.Debug("dispatching",
		zap.Uint64("seq", cmd.Seq),
		zap.String("command", cmd.String()),
		zap.Stringer("category", cmd.Category))
	o.jobs <- func(ctx context.Context) {
		start := time.Now()
		res, err := o.execute(ctx, cmd)
		latency := time.Since(start)
		_ = o.post(ctx, func() { o.finish(cmd, res, err, latency) })
	}
}

func (o *Orchestrator) finish(cmd PendingCommand, res hubclient.Result, err error, latency time.Duration) {
	o.busy = false
	err = NormalizeError(cmd.String(), err)

	if _, verr := o.state.Complete(err == nil, err); verr != nil {
		o.logger.Error("ordering violation", zap.Uint64("seq", cmd.Seq), zap.Error(verr))
	}

	outcome := res.Outcome.String()
	switch {
	case err != nil:
		outcome = "failed"
		o.logger.Warn("command failed",
			zap.Uint64("seq", cmd.Seq),
			zap.String("command", cmd.String()),
			zap.Error(err))
	case res.Outcome == hubclient.OutcomeUnconfirmed:
		o.logger.Warn("command sent without confirmation",
			zap.Uint64("seq", cmd.Seq),
			zap.String("command", cmd.String()),
			zap.Duration("latency", latency))
	}
	o.audit.Record(audit.Entry{
		Seq:      cmd.Seq,
		Command:  cmd.Name,
		Action:   cmd.Action,
		Category: cmd.Category.String(),
		Origin:   cmd.Origin,
		Outcome:  outcome,
		Code:     Code(err),
		Latency:  latency,
	})

	if t, ok := o.tickets[cmd.Seq]; ok {
		delete(o.tickets, cmd.Seq)
		t.resolve(res.Outcome, err)
	}
	o.pump()
}

// execute resolves cmd against the catalog and sends it. It runs on the
// executor goroutine.
func (o *Orchestrator) execute(ctx context.Context, cmd PendingCommand) (hubclient.Result, error) {
	switch cmd.Category {
	case CategoryExclusive:
		id, err := o.resolveActivity(cmd.Name)
		if err != nil {
			return hubclient.Result{}, err
		}
		return o.hub.StartActivity(ctx, id)

	case CategorySignal:
		command, ok := o.catalog.AudioCommand(cmd.Name)
		if !ok {
			return hubclient.Result{}, fmt.Errorf("audio command %q not configured: %w", cmd.Name, ErrConfiguration)
		}
		dev, ok := o.catalog.Audio()
		if !ok {
			return hubclient.Result{}, fmt.Errorf("audio device not configured: %w", ErrConfiguration)
		}
		if err := o.limiter.Wait(ctx); err != nil {
			return hubclient.Result{}, err
		}
		return o.hub.SendDeviceCommand(ctx, dev.ID, command, o.pressRelease)

	default:
		dev, ok := o.catalog.Device(cmd.Name)
		if !ok {
			return hubclient.Result{}, fmt.Errorf("device %q not configured: %w", cmd.Name, ErrConfiguration)
		}
		if cmd.Action == "" {
			return hubclient.Result{}, fmt.Errorf("device %q needs a command: %w", cmd.Name, ErrConfiguration)
		}
		if err := o.limiter.Wait(ctx); err != nil {
			return hubclient.Result{}, err
		}
		return o.hub.SendDeviceCommand(ctx, dev.ID, cmd.Action, o.pressRelease)
	}
}

// resolveActivity maps an activity alias to a hub id. "off" powers the hub
// down even when the catalog has no power-off activity.
func (o *Orchestrator) resolveActivity(name string) (string, error) {
	if a, ok := o.catalog.Activity(name); ok {
		return a.ID, nil
	}
	if strings.EqualFold(strings.TrimSpace(name), "off") {
		return hubclient.PowerOffActivity, nil
	}
	return "", fmt.Errorf("activity %q not configured: %w", name, ErrConfiguration)
}

func (o *Orchestrator) activityName(id string) string {
	name, _ := o.catalog.ActivityName(id)
	return name
}

// refreshLive queries the hub's current activity on its own goroutine so it
// never delays dispatch.
func (o *Orchestrator) refreshLive() {
	if o.refreshing || !o.coord.RequestLiveUpdate() {
		return
	}
	o.refreshing = true
	timeout := o.timing.StatusTimeout * time.Duration(max(o.timing.RetryMaxAttempts, 1)+1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		id, err := o.hub.CurrentActivity(ctx)
		_ = o.post(context.Background(), func() {
			o.refreshing = false
			if err != nil {
				o.logger.Debug("live refresh failed", zap.Error(err))
				o.coord.LiveUnavailable()
				return
			}
			o.coord.ShowLive(id, o.activityName(id))
		})
	}()
}

// Ticket tracks one admitted command.
type Ticket struct {
	Command PendingCommand

	done    chan struct{}
	outcome hubclient.Outcome
	err     error
}

func newTicket(cmd PendingCommand) *Ticket {
	return &Ticket{Command: cmd, done: make(chan struct{})}
}

func (t *Ticket) resolve(outcome hubclient.Outcome, err error) {
	t.outcome, t.err = outcome, err
	close(t.done)
}

// Done is closed once the command has finished.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Wait blocks until the command finishes. A nil error with
// OutcomeUnconfirmed means the command was sent but the hub did not answer
// in time.
func (t *Ticket) Wait(ctx context.Context) (hubclient.Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, t.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
