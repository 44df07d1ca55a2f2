package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State is the liveness of the session's connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	// StateDegraded means the connection is up but the last correlated
	// exchange saw no reply. Any inbound frame returns it to StateConnected.
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Usable reports whether frames can be written in this state.
func (s State) Usable() bool {
	return s == StateConnected || s == StateDegraded
}

// Config holds the session dial and keepalive settings.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration // 0 disables keepalive pings
	// PongWait is the read deadline while pings are enabled. Every pong or
	// inbound frame pushes it forward; a silent peer is dropped when it
	// expires.
	PongWait         time.Duration
	ReadLimit        int64
	FrameBuffer      int
}

// DefaultConfig returns the settings used against a real hub.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: time.Second,
		WriteTimeout:     3 * time.Second,
		PingInterval:     30 * time.Second,
		PongWait:         60 * time.Second,
		ReadLimit:        4 << 20,
		FrameBuffer:      64,
	}
}

// link is one established connection and its inbound frame stream.
type link struct {
	conn   *websocket.Conn
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

func (l *link) shutdown() {
	l.once.Do(func() {
		close(l.done)
		_ = l.conn.Close()
	})
}

// Session owns the duplex connection to the hub.
type Session struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *zap.Logger

	mu      sync.Mutex // guards link
	writeMu sync.Mutex // gorilla allows one concurrent writer
	link    *link

	state   atomic.Int32
	onState atomic.Pointer[func(State)]
}

var closedFrames = func() chan []byte {
	ch := make(chan []byte)
	close(ch)
	return ch
}()

// New creates a disconnected session.
func New(cfg Config, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 3 * time.Second
	}
	return &Session{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: logger.Named("transport"),
	}
}

// OnStateChange registers a callback invoked on every state transition.
// The callback must not call back into the session.
func (s *Session) OnStateChange(fn func(State)) {
	s.onState.Store(&fn)
}

// State returns the current connection state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	if prev == next {
		return
	}
	s.logger.Debug("state change", zap.Stringer("from", prev), zap.Stringer("to", next))
	if fn := s.onState.Load(); fn != nil {
		(*fn)(next)
	}
}

// Connect establishes the connection. It is a no-op when already connected.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.link != nil && s.State().Usable() {
		return nil
	}

	s.setState(StateConnecting)
	conn, resp, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		s.setState(StateDisconnected)
		return &Error{Op: "connect", Err: err}
	}
	if s.cfg.ReadLimit > 0 {
		conn.SetReadLimit(s.cfg.ReadLimit)
	}

	l := &link{
		conn:   conn,
		frames: make(chan []byte, s.cfg.FrameBuffer),
		done:   make(chan struct{}),
	}
	if s.keepalive() {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		})
	}
	s.link = l
	s.setState(StateConnected)
	s.logger.Info("connected", zap.String("url", s.cfg.URL))

	go s.readLoop(l)
	if s.cfg.PingInterval > 0 {
		go s.pingLoop(l)
	}
	return nil
}

func (s *Session) keepalive() bool {
	return s.cfg.PingInterval > 0 && s.cfg.PongWait > 0
}

// Frames returns the inbound frames of the current connection. The channel is
// closed when that connection ends; it is never reopened. Without a
// connection the returned channel is already closed.
func (s *Session) Frames() <-chan []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.link == nil {
		return closedFrames
	}
	return s.link.frames
}

// Send writes one text frame. It fails with ErrConnectionLost when there is
// no usable connection.
func (s *Session) Send(ctx context.Context, data []byte) error {
	s.mu.Lock()
	l := s.link
	s.mu.Unlock()
	if l == nil || !s.State().Usable() {
		return ErrConnectionLost
	}

	deadline := time.Now().Add(s.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	s.writeMu.Lock()
	_ = l.conn.SetWriteDeadline(deadline)
	err := l.conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()

	if err != nil {
		s.drop(l)
		return &Error{Op: "send", Err: errors.Join(ErrConnectionLost, err)}
	}
	return nil
}

// MarkDegraded flags a connected session whose last exchange got no reply.
func (s *Session) MarkDegraded() {
	if s.state.CompareAndSwap(int32(StateConnected), int32(StateDegraded)) {
		s.logger.Debug("state change", zap.Stringer("from", StateConnected), zap.Stringer("to", StateDegraded))
		if fn := s.onState.Load(); fn != nil {
			(*fn)(StateDegraded)
		}
	}
}

// Close releases the connection. Safe to call multiple times.
func (s *Session) Close() error {
	s.mu.Lock()
	l := s.link
	s.link = nil
	s.mu.Unlock()

	if l != nil {
		s.writeMu.Lock()
		_ = l.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		l.shutdown()
		s.logger.Info("closed")
	}
	s.setState(StateDisconnected)
	return nil
}

// readLoop feeds the link's frame channel until the connection fails.
func (s *Session) readLoop(l *link) {
	defer func() {
		close(l.frames)
		s.drop(l)
	}()

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			select {
			case <-l.done:
			default:
				s.logger.Warn("read failed", zap.Error(err))
			}
			return
		}

		if s.keepalive() {
			_ = l.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		}
		if s.state.CompareAndSwap(int32(StateDegraded), int32(StateConnected)) {
			if fn := s.onState.Load(); fn != nil {
				(*fn)(StateConnected)
			}
		}

		select {
		case l.frames <- data:
		case <-l.done:
			return
		}
	}
}

// pingLoop keeps NAT and the hub's idle timer from dropping the connection.
func (s *Session) pingLoop(l *link) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout))
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Warn("ping failed", zap.Error(err))
				s.drop(l)
				return
			}
		}
	}
}

// drop tears down a failed link and marks the session disconnected if the
// link is still current.
func (s *Session) drop(l *link) {
	l.shutdown()

	s.mu.Lock()
	current := s.link == l
	if current {
		s.link = nil
	}
	s.mu.Unlock()

	if current {
		s.setState(StateDisconnected)
	}
}
