package command

import (
	"fmt"
	"time"

	"github.com/homehub/hubctl/internal/hubclient"
)

// Display colors.
const (
	ColorDanger     = "#f7768e"
	ColorWarning    = "#e0af68"
	ColorSuccess    = "#9ece6a"
	ColorProcessing = "#7aa2f7"
	ColorText       = "#c0caf5"
	ColorMuted      = "#565f89"
)

// DisplayTiming controls how long transient statuses stay up.
type DisplayTiming struct {
	Success     time.Duration
	Error       time.Duration
	ConfigError time.Duration
	Recover     time.Duration
	LiveRetry   time.Duration
}

// Scheduler runs fn after d on the goroutine that owns the state. The
// orchestrator's scheduler posts fn back into its loop.
type Scheduler func(d time.Duration, fn func())

// Coordinator arbitrates the status display between transient messages
// (progress, results, errors) and the hub's live state.
type Coordinator struct {
	state    *StateManager
	timing   DisplayTiming
	schedule Scheduler
	refresh  func()

	gen       uint64 // bumped by every transient; stale timers compare against it
	transient bool
	text      string
	color     string
}

// NewCoordinator attaches a coordinator to state.
func NewCoordinator(state *StateManager, timing DisplayTiming, schedule Scheduler) *Coordinator {
	c := &Coordinator{
		state:    state,
		timing:   timing,
		schedule: schedule,
		color:    ColorText,
	}
	state.coord = c
	return c
}

// SetRefresh installs the callback that fetches the live state once the
// display is free.
func (c *Coordinator) SetRefresh(fn func()) { c.refresh = fn }

// IsLiveUpdateAllowed is false while an Exclusive command is in flight.
// Signal and Device commands do not hold live updates back.
func (c *Coordinator) IsLiveUpdateAllowed() bool {
	return !c.state.ExclusiveInProgress()
}

// RequestLiveUpdate is the gate for pollers and hub notifications.
func (c *Coordinator) RequestLiveUpdate() bool {
	if !c.IsLiveUpdateAllowed() {
		c.state.logger.Debug("live update deferred")
		return false
	}
	return true
}

// ShowTransient displays text now and returns to the live state after d.
func (c *Coordinator) ShowTransient(text, color string, d time.Duration) {
	c.gen++
	gen := c.gen
	c.transient = true
	c.show(text, color)
	c.schedule(d, func() { c.returnToLive(gen) })
}

// ReturnToLive hands the display back to the live state, retrying every
// LiveRetry while live updates are held back or a command is in flight.
func (c *Coordinator) ReturnToLive() {
	c.returnToLive(c.gen)
}

func (c *Coordinator) returnToLive(gen uint64) {
	if gen != c.gen {
		// A newer transient owns the display.
		return
	}
	if !c.IsLiveUpdateAllowed() || c.state.Processing() {
		c.schedule(c.timing.LiveRetry, func() { c.returnToLive(gen) })
		return
	}
	c.transient = false
	c.showLastKnown()
	if c.refresh != nil {
		c.refresh()
	}
}

// LiveUnavailable is called when the hub could not be asked for its current
// activity. A display that is not held by a transient or a command falls
// back to the last recorded activity.
func (c *Coordinator) LiveUnavailable() {
	if c.transient || !c.IsLiveUpdateAllowed() || c.state.Processing() {
		return
	}
	c.showLastKnown()
}

// showLastKnown displays the last recorded activity, or a muted "Unknown"
// before the hub has reported one.
func (c *Coordinator) showLastKnown() {
	text, color := "Unknown", ColorMuted
	if c.state.activityID != "" {
		text, color = liveText(c.state.activityID, c.state.activityName)
	}
	if text == c.text && color == c.color {
		return
	}
	c.show(text, color)
}

// ShowLive records the hub's activity and displays it unless a transient
// message or a command in flight owns the display. It reports whether the
// display changed.
func (c *Coordinator) ShowLive(id, name string) bool {
	c.state.SetActivity(id, name)
	if c.transient || !c.IsLiveUpdateAllowed() || c.state.Processing() {
		return false
	}
	c.state.notifier.Live(id, name)
	text, color := liveText(id, name)
	c.show(text, color)
	return true
}

// Transient reports whether a transient message is on display.
func (c *Coordinator) Transient() bool { return c.transient }

func liveText(id, name string) (string, string) {
	switch {
	case id == hubclient.PowerOffActivity:
		return "Off", ColorMuted
	case name != "":
		return name, ColorText
	default:
		return fmt.Sprintf("Activity %s", id), ColorText
	}
}

func (c *Coordinator) show(text, color string) {
	c.text, c.color = text, color
	c.state.notifier.Status(text, color)
}

func (c *Coordinator) showProcessing(backlog int) {
	text := "Processing..."
	if backlog > 0 {
		text = fmt.Sprintf("Processing... (+%d)", backlog)
	}
	c.show(text, ColorProcessing)
}

func (c *Coordinator) commandFinished(cmd PendingCommand, success bool, err error, drained bool) {
	switch {
	case !success:
		kind := ClassifyFailure(err)
		text, color := failureText(kind, cmd)
		d := c.timing.Error
		if kind == FailureConfiguration {
			d = c.timing.ConfigError
		}
		c.ShowTransient(text, color, d)
	case cmd.Category == CategoryExclusive:
		c.ShowTransient("Activity started", ColorSuccess, c.timing.Success)
	case drained && !c.transient:
		c.ReturnToLive()
	}
}

func (c *Coordinator) recovering() {
	c.ShowTransient("Recovering...", ColorWarning, c.timing.Recover)
}

func failureText(kind FailureKind, cmd PendingCommand) (string, string) {
	switch kind {
	case FailureNetwork:
		return "Network error: hub connection", ColorDanger
	case FailureTimeout:
		return fmt.Sprintf("Timeout: %s", cmd), ColorDanger
	case FailureConfiguration:
		return fmt.Sprintf("Not configured: %s", cmd.Name), ColorWarning
	default:
		return fmt.Sprintf("Command failed: %s", cmd), ColorDanger
	}
}
