package hubsim

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/homehub/hubctl/internal/hubclient"
)

// Activity status values carried in a state digest.
const (
	ActivityStatusOff      = 0
	ActivityStatusStarting = 1
	ActivityStatusStarted  = 2
)

var (
	// ErrUnknownActivity is returned for a start request naming no configured activity.
	ErrUnknownActivity = errors.New("unknown activity")
	// ErrStateClosed is returned after Close.
	ErrStateClosed = errors.New("state closed")
)

// Press is one holdAction the hub received.
type Press struct {
	DeviceID string
	Command  string
	Status   string
	At       time.Time
}

// State is the emulated hub: the running activity, the activity being
// switched to and every button press. Commands are applied in arrival order
// by a single worker.
type State struct {
	mu         sync.RWMutex
	current    string
	target     string
	activities map[string]string
	latency    time.Duration
	presses    []Press
	subs       map[int]func(hubclient.StateDigest)
	nextSub    int

	commandQueue chan command
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
}

type command struct {
	apply func()
	done  chan struct{}
}

// NewState starts the command worker. Close stops it.
func NewState(cfg *Config) *State {
	ctx, cancel := context.WithCancel(context.Background())

	activities := make(map[string]string, len(cfg.Activities))
	for id, name := range cfg.Activities {
		activities[id] = name
	}
	current := cfg.InitialActivity
	if current == "" {
		current = hubclient.PowerOffActivity
	}

	s := &State{
		current:      current,
		activities:   activities,
		latency:      cfg.Timing.ActivityLatency,
		subs:         make(map[int]func(hubclient.StateDigest)),
		commandQueue: make(chan command, 100),
		ctx:          ctx,
		cancel:       cancel,
	}

	s.wg.Add(1)
	go s.commandWorker()
	return s
}

// commandWorker applies commands in FIFO order
func (s *State) commandWorker() {
	defer s.wg.Done()

	for {
		select {
		case cmd := <-s.commandQueue:
			cmd.apply()
			close(cmd.done)
		case <-s.ctx.Done():
			return
		}
	}
}

// submit runs fn on the worker and waits for it.
func (s *State) submit(fn func()) error {
	cmd := command{apply: fn, done: make(chan struct{})}
	select {
	case s.commandQueue <- cmd:
	case <-s.ctx.Done():
		return ErrStateClosed
	}
	select {
	case <-cmd.done:
		return nil
	case <-s.ctx.Done():
		return ErrStateClosed
	}
}

// StartActivity begins switching to id. The switch completes after the
// configured latency and is announced to subscribers; a starting digest is
// sent right away.
func (s *State) StartActivity(id string) error {
	var err error
	serr := s.submit(func() {
		if _, ok := s.activities[id]; !ok && id != hubclient.PowerOffActivity {
			err = ErrUnknownActivity
			return
		}
		s.mu.Lock()
		s.target = id
		s.mu.Unlock()

		if id != hubclient.PowerOffActivity {
			s.broadcast(hubclient.StateDigest{ActivityID: id, ActivityStatus: ActivityStatusStarting})
		}
		time.AfterFunc(s.latency, func() {
			_ = s.submit(func() { s.finishSwitch(id) })
		})
	})
	if serr != nil {
		return serr
	}
	return err
}

// finishSwitch runs on the worker. A newer start request supersedes id.
func (s *State) finishSwitch(id string) {
	s.mu.Lock()
	if s.target != id {
		s.mu.Unlock()
		return
	}
	s.current = id
	s.target = ""
	s.mu.Unlock()

	status := ActivityStatusStarted
	if id == hubclient.PowerOffActivity {
		status = ActivityStatusOff
	}
	s.broadcast(hubclient.StateDigest{ActivityID: id, ActivityStatus: status})
}

// Hold records a press or release.
func (s *State) Hold(deviceID, cmd, status string) error {
	return s.submit(func() {
		s.mu.Lock()
		s.presses = append(s.presses, Press{DeviceID: deviceID, Command: cmd, Status: status, At: time.Now()})
		s.mu.Unlock()
	})
}

// CurrentActivity returns the running activity id; "-1" when off.
func (s *State) CurrentActivity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Switching reports whether an activity change is still in progress.
func (s *State) Switching() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.target != ""
}

// Presses returns a copy of every recorded holdAction.
func (s *State) Presses() []Press {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Press, len(s.presses))
	copy(out, s.presses)
	return out
}

// ActivityIDs lists the configured activities, sorted.
func (s *State) ActivityIDs() []string {
	ids := make([]string, 0, len(s.activities))
	for id := range s.activities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Subscribe registers fn for state digests and returns its cancel function.
// fn runs on the worker and must not call back into State.
func (s *State) Subscribe(fn func(hubclient.StateDigest)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *State) broadcast(d hubclient.StateDigest) {
	s.mu.RLock()
	fns := make([]func(hubclient.StateDigest), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(d)
	}
}

// Close stops the worker. Pending switches are abandoned.
func (s *State) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}
