package command

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// PendingCommand is an admitted command. Seq is assigned at admission and
// strictly increases.
type PendingCommand struct {
	Seq               uint64        `json:"seq"`
	Name              string        `json:"name"`
	Action            string        `json:"action,omitempty"`
	Category          Category      `json:"-"`
	Origin            string        `json:"origin,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	EstimatedDuration time.Duration `json:"-"`
}

// String is "name" or "name action".
func (c PendingCommand) String() string {
	if c.Action == "" {
		return c.Name
	}
	return c.Name + " " + c.Action
}

// Estimates are the expected durations per category, used for display only.
type Estimates struct {
	Exclusive time.Duration
	Signal    time.Duration
	Device    time.Duration
}

func (e Estimates) of(c Category) time.Duration {
	switch c {
	case CategoryExclusive:
		return e.Exclusive
	case CategorySignal:
		return e.Signal
	default:
		return e.Device
	}
}

// Snapshot is a copy of the orchestration state.
type Snapshot struct {
	Processing          bool          `json:"processing"`
	ExclusiveInProgress bool          `json:"exclusiveInProgress"`
	ControlsEnabled     bool          `json:"controlsEnabled"`
	Connected           bool          `json:"connected"`
	Current             *CommandView  `json:"current,omitempty"`
	Queue               []CommandView `json:"queue"`
	QueueDepth          int           `json:"queueDepth"`
	ActivityID          string        `json:"activityId,omitempty"`
	ActivityName        string        `json:"activityName,omitempty"`
	Status              string        `json:"status"`
	StatusColor         string        `json:"statusColor"`
}

// CommandView is the serialized form of a PendingCommand.
type CommandView struct {
	PendingCommand
	Category string `json:"category"`
}

func viewOf(c PendingCommand) CommandView {
	return CommandView{PendingCommand: c, Category: c.Category.String()}
}

// StateManager owns the queue and processing flags. It is not safe for
// concurrent use; the orchestrator loop is its only caller.
//
// The in-flight command stays at the head of the queue until Complete.
type StateManager struct {
	classifier *Classifier
	estimates  Estimates
	notifier   Notifier
	coord      *Coordinator
	logger     *zap.Logger
	now        func() time.Time

	seq                 uint64
	queue               []PendingCommand
	current             *PendingCommand
	exclusiveInProgress bool
	exclusiveStarted    time.Time
	controlsEnabled     bool
	connected           bool
	activityID          string
	activityName        string
}

// NewStateManager creates an idle state manager. Attach a Coordinator with
// NewCoordinator before use.
func NewStateManager(classifier *Classifier, estimates Estimates, notifier Notifier, logger *zap.Logger) *StateManager {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateManager{
		classifier:      classifier,
		estimates:       estimates,
		notifier:        notifier,
		logger:          logger,
		now:             time.Now,
		controlsEnabled: true,
	}
}

// Processing reports whether a command is in flight.
func (s *StateManager) Processing() bool { return s.current != nil }

// ExclusiveInProgress reports whether the in-flight command is Exclusive.
func (s *StateManager) ExclusiveInProgress() bool { return s.exclusiveInProgress }

// Depth is the number of admitted, unfinished commands.
func (s *StateManager) Depth() int { return len(s.queue) }

// CanAccept reports whether Admit would accept a command of category c.
// Exclusive commands are refused while one runs or waits. Other categories
// are always accepted.
func (s *StateManager) CanAccept(c Category) bool {
	if c != CategoryExclusive {
		return true
	}
	if s.exclusiveInProgress {
		return false
	}
	for _, q := range s.queue {
		if q.Category == CategoryExclusive {
			return false
		}
	}
	return true
}

// Admit classifies and enqueues a command.
func (s *StateManager) Admit(name, action, origin string) (PendingCommand, error) {
	name = strings.TrimSpace(name)
	action = strings.TrimSpace(action)
	if name == "" {
		return PendingCommand{}, fmt.Errorf("empty command name: %w", ErrConfiguration)
	}

	category := s.classifier.Classify(name, action)
	if !s.CanAccept(category) {
		s.logger.Debug("command rejected",
			zap.String("command", name),
			zap.Bool("exclusiveInProgress", s.exclusiveInProgress))
		return PendingCommand{}, fmt.Errorf("%s: activity change already in progress: %w", name, ErrAdmissionRejected)
	}

	s.seq++
	cmd := PendingCommand{
		Seq:               s.seq,
		Name:              name,
		Action:            action,
		Category:          category,
		Origin:            origin,
		CreatedAt:         s.now(),
		EstimatedDuration: s.estimates.of(category),
	}
	s.queue = append(s.queue, cmd)
	s.logger.Debug("command admitted",
		zap.Uint64("seq", cmd.Seq),
		zap.String("command", cmd.String()),
		zap.Stringer("category", category),
		zap.Int("depth", len(s.queue)))
	s.verifyOrdering("admit")
	s.publish()
	return cmd, nil
}

// Next returns the head of the queue without removing it. It reports false
// while a command is in flight or the queue is empty.
func (s *StateManager) Next() (PendingCommand, bool) {
	if s.current != nil || len(s.queue) == 0 {
		return PendingCommand{}, false
	}
	return s.queue[0], true
}

// Start marks cmd as in flight. cmd must be the head of the queue.
func (s *StateManager) Start(cmd PendingCommand) error {
	if s.current != nil {
		return fmt.Errorf("start %d while %d in flight: %w", cmd.Seq, s.current.Seq, ErrOrderingViolation)
	}
	if len(s.queue) == 0 || s.queue[0].Seq != cmd.Seq {
		return fmt.Errorf("start %d is not the queue head: %w", cmd.Seq, ErrOrderingViolation)
	}

	current := s.queue[0]
	s.current = &current
	if current.Category == CategoryExclusive {
		s.exclusiveInProgress = true
		s.exclusiveStarted = s.now()
	}
	s.verifyOrdering("start")
	s.publish()
	return nil
}

// Complete removes the in-flight command, returns to idle and hands the
// outcome to the Coordinator. A mismatch between the queue head and the
// in-flight command is reported as ErrOrderingViolation after the state has
// been reset.
func (s *StateManager) Complete(success bool, err error) (PendingCommand, error) {
	if s.current == nil {
		s.exclusiveInProgress = false
		s.logger.Error("complete without a command in flight")
		s.publish()
		return PendingCommand{}, fmt.Errorf("complete without a command in flight: %w", ErrOrderingViolation)
	}

	done := *s.current
	s.current = nil
	if done.Category == CategoryExclusive {
		s.exclusiveInProgress = false
		s.logger.Debug("activity change finished",
			zap.Uint64("seq", done.Seq),
			zap.Duration("took", s.now().Sub(s.exclusiveStarted)))
	}

	var violation error
	if len(s.queue) == 0 || s.queue[0].Seq != done.Seq {
		violation = fmt.Errorf("completed %d is not the queue head: %w", done.Seq, ErrOrderingViolation)
		s.exclusiveInProgress = false
		s.queue = removeSeq(s.queue, done.Seq)
		s.logger.Error("queue out of order", zap.Uint64("seq", done.Seq), zap.Error(violation))
	} else {
		s.queue = s.queue[1:]
	}

	s.logger.Debug("command completed",
		zap.Uint64("seq", done.Seq),
		zap.String("command", done.String()),
		zap.Bool("success", success),
		zap.Int("remaining", len(s.queue)))
	s.verifyOrdering("complete")
	s.publish()

	if s.coord != nil {
		s.coord.commandFinished(done, success, err, len(s.queue) == 0)
	}
	return done, violation
}

func removeSeq(queue []PendingCommand, seq uint64) []PendingCommand {
	out := queue[:0]
	for _, q := range queue {
		if q.Seq != seq {
			out = append(out, q)
		}
	}
	return out
}

// CheckOrdering verifies that admission times never decrease and that the
// in-flight command is the oldest one.
func (s *StateManager) CheckOrdering() error {
	for i := 1; i < len(s.queue); i++ {
		if s.queue[i].CreatedAt.Before(s.queue[i-1].CreatedAt) || s.queue[i].Seq <= s.queue[i-1].Seq {
			return fmt.Errorf("command %d admitted before %d: %w", s.queue[i].Seq, s.queue[i-1].Seq, ErrOrderingViolation)
		}
	}
	if s.current != nil && (len(s.queue) == 0 || s.queue[0].Seq != s.current.Seq) {
		return fmt.Errorf("in-flight %d is not the oldest command: %w", s.current.Seq, ErrOrderingViolation)
	}
	return nil
}

// verifyOrdering runs after every transition. On a violation the exclusive
// flag is dropped so controls cannot stay locked behind a broken queue.
func (s *StateManager) verifyOrdering(after string) {
	err := s.CheckOrdering()
	if err == nil {
		return
	}
	s.logger.Error("queue ordering violated", zap.String("after", after), zap.Error(err))
	s.exclusiveInProgress = false
}

// Recover clears the exclusive flag and re-enables controls. A command that
// is still in flight keeps running and is completed normally.
func (s *StateManager) Recover() {
	s.exclusiveInProgress = false
	s.logger.Warn("recovering",
		zap.Bool("processing", s.current != nil),
		zap.Int("depth", len(s.queue)))
	s.setControls(true)
	s.notifier.QueueDepth(len(s.queue))
	if s.coord != nil {
		s.coord.recovering()
	}
}

// Connected reports the last recorded hub link state.
func (s *StateManager) Connected() bool { return s.connected }

// SetConnected records the hub link state.
func (s *StateManager) SetConnected(connected bool) { s.connected = connected }

// SetActivity records the hub's current activity.
func (s *StateManager) SetActivity(id, name string) {
	s.activityID = id
	s.activityName = name
}

// Snapshot copies the current state.
func (s *StateManager) Snapshot() Snapshot {
	snap := Snapshot{
		Processing:          s.current != nil,
		ExclusiveInProgress: s.exclusiveInProgress,
		ControlsEnabled:     s.controlsEnabled,
		Connected:           s.connected,
		Queue:               make([]CommandView, 0, len(s.queue)),
		QueueDepth:          len(s.queue),
		ActivityID:          s.activityID,
		ActivityName:        s.activityName,
	}
	if s.current != nil {
		v := viewOf(*s.current)
		snap.Current = &v
	}
	for _, q := range s.queue {
		snap.Queue = append(snap.Queue, viewOf(q))
	}
	if s.coord != nil {
		snap.Status, snap.StatusColor = s.coord.text, s.coord.color
	}
	return snap
}

// publish pushes queue depth, control state and the processing status.
func (s *StateManager) publish() {
	s.notifier.QueueDepth(len(s.queue))
	s.setControls(!s.exclusiveInProgress)
	if s.current != nil && s.coord != nil {
		s.coord.showProcessing(len(s.queue) - 1)
	}
}

func (s *StateManager) setControls(enabled bool) {
	if s.controlsEnabled == enabled {
		return
	}
	s.controlsEnabled = enabled
	s.notifier.Controls(enabled)
}
