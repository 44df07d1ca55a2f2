package hubsim

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/homehub/hubctl/internal/hubclient"
)

const writeWait = 2 * time.Second

// Received is one decoded request frame.
type Received struct {
	Conn    int // 1-based connection number
	ID      hubclient.Token
	Cmd     string
	Timeout int
	Params  json.RawMessage
}

// inbound mirrors hubclient.Request with raw params.
type inbound struct {
	HubID   string          `json:"hubId"`
	Timeout int             `json:"timeout"`
	ID      hubclient.Token `json:"id"`
	Hbus    struct {
		Cmd    string          `json:"cmd"`
		ID     hubclient.Token `json:"id"`
		Params json.RawMessage `json:"params"`
	} `json:"hbus"`
}

// Server speaks the hub's websocket protocol on top of a State.
type Server struct {
	cfg      *Config
	state    *State
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mode    atomic.Value // string
	refused atomic.Int32
	seq     atomic.Int32

	mu       sync.Mutex
	conns    map[*hubConn]struct{}
	received []Received
}

// hubConn serializes writes to one client connection.
type hubConn struct {
	conn *websocket.Conn
	seq  int
	mu   sync.Mutex
	done chan struct{}
	once sync.Once
}

func (c *hubConn) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *hubConn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// NewServer creates an emulator bound to state.
func NewServer(cfg *Config, state *State, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:    cfg,
		state:  state,
		logger: logger.Named("hubsim"),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: cfg.Timing.HandshakeTimeout,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		conns: make(map[*hubConn]struct{}),
	}
	s.mode.Store(cfg.Mode)
	return s
}

// SetMode switches the emulation mode for frames received from now on.
func (s *Server) SetMode(mode string) error {
	switch mode {
	case ModeNormal, ModeSilent, ModeNoise, ModeDrops:
	default:
		return errors.New("invalid mode " + mode)
	}
	s.mode.Store(mode)
	s.logger.Info("mode changed", zap.String("mode", mode))
	return nil
}

// Mode returns the current emulation mode.
func (s *Server) Mode() string {
	return s.mode.Load().(string)
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if hubID := r.URL.Query().Get("hubId"); hubID != "" && s.cfg.RemoteID != "" && hubID != s.cfg.RemoteID {
		http.Error(w, "unknown hub", http.StatusNotFound)
		return
	}
	if int(s.refused.Load()) < s.cfg.RefuseFirst {
		s.refused.Add(1)
		s.logger.Info("refusing handshake", zap.Int32("refused", s.refused.Load()))
		http.Error(w, "hub busy", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	c := &hubConn{conn: conn, seq: int(s.seq.Add(1)), done: make(chan struct{})}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	s.logger.Info("client connected", zap.Int("conn", c.seq), zap.String("remote", r.RemoteAddr))

	unsubscribe := s.state.Subscribe(func(d hubclient.StateDigest) {
		if s.Mode() == ModeSilent {
			return
		}
		if err := c.write(digestFrame(d)); err != nil {
			s.logger.Debug("digest write failed", zap.Int("conn", c.seq), zap.Error(err))
		}
	})

	if s.Mode() == ModeNoise {
		go s.noise(c)
	}

	defer func() {
		unsubscribe()
		c.close()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		s.logger.Info("client disconnected", zap.Int("conn", c.seq))
	}()

	requests := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req inbound
		if err := json.Unmarshal(data, &req); err != nil {
			s.logger.Debug("discarding undecodable frame", zap.Error(err))
			continue
		}
		requests++
		s.record(c, req)

		switch s.Mode() {
		case ModeSilent:
			continue
		case ModeDrops:
			if requests >= s.cfg.DropAfter {
				s.logger.Info("dropping connection", zap.Int("conn", c.seq), zap.Int("requests", requests))
				return
			}
		}
		s.reply(c, req)
	}
}

func (s *Server) record(c *hubConn, req inbound) {
	id := req.Hbus.ID
	if id == "" {
		id = req.ID
	}
	s.mu.Lock()
	s.received = append(s.received, Received{
		Conn:    c.seq,
		ID:      id,
		Cmd:     req.Hbus.Cmd,
		Timeout: req.Timeout,
		Params:  req.Hbus.Params,
	})
	s.mu.Unlock()
	s.logger.Debug("request", zap.Int("conn", c.seq), zap.String("cmd", req.Hbus.Cmd), zap.String("id", string(id)))
}

// reply applies req to the state and answers it, after ReplyDelay when set.
func (s *Server) reply(c *hubConn, req inbound) {
	frame := s.handle(req)
	send := func() {
		if err := c.write(frame); err != nil {
			s.logger.Debug("reply write failed", zap.Int("conn", c.seq), zap.Error(err))
		}
	}
	if d := s.cfg.Timing.ReplyDelay; d > 0 {
		time.AfterFunc(d, send)
		return
	}
	send()
}

func (s *Server) handle(req inbound) map[string]any {
	id := req.Hbus.ID
	if id == "" {
		id = req.ID
	}
	resp := func(code int, msg string, data any) map[string]any {
		f := map[string]any{"cmd": req.Hbus.Cmd, "code": code, "id": string(id), "msg": msg}
		if data != nil {
			f["data"] = data
		}
		return f
	}

	switch req.Hbus.Cmd {
	case hubclient.CmdStartActivity:
		var p hubclient.StartActivityParams
		if err := json.Unmarshal(req.Hbus.Params, &p); err != nil {
			return resp(400, "malformed params", nil)
		}
		if err := s.state.StartActivity(p.ActivityID); err != nil {
			if errors.Is(err, ErrUnknownActivity) {
				return resp(404, "activity not found", nil)
			}
			return resp(503, err.Error(), nil)
		}
		return resp(200, "OK", map[string]any{})

	case hubclient.CmdHoldAction:
		var p hubclient.HoldActionParams
		if err := json.Unmarshal(req.Hbus.Params, &p); err != nil {
			return resp(400, "malformed params", nil)
		}
		var a hubclient.DeviceAction
		if err := json.Unmarshal([]byte(p.Action), &a); err != nil || a.DeviceID == "" {
			return resp(400, "malformed action", nil)
		}
		if err := s.state.Hold(a.DeviceID, a.Command, p.Status); err != nil {
			return resp(503, err.Error(), nil)
		}
		return resp(200, "OK", nil)

	case hubclient.CmdGetCurrentActivity:
		return resp(200, "OK", hubclient.CurrentActivityData{Result: s.state.CurrentActivity()})

	default:
		return resp(400, "unknown command", nil)
	}
}

// noise pushes frames no client call is waiting for: a digest repeating the
// current activity and a reply with a stale token.
func (s *Server) noise(c *hubConn) {
	t := time.NewTicker(s.cfg.Timing.NoiseInterval)
	defer t.Stop()
	n := 0
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
		}
		n++
		var frame any
		if n%2 == 0 {
			frame = map[string]any{
				"cmd":  hubclient.CmdGetCurrentActivity,
				"code": 200,
				"id":   "stale-" + time.Now().Format("150405.000"),
				"msg":  "OK",
				"data": hubclient.CurrentActivityData{Result: s.state.CurrentActivity()},
			}
		} else {
			frame = digestFrame(hubclient.StateDigest{
				ActivityID:     s.state.CurrentActivity(),
				ActivityStatus: ActivityStatusStarted,
			})
		}
		if err := c.write(frame); err != nil {
			return
		}
	}
}

func digestFrame(d hubclient.StateDigest) map[string]any {
	return map[string]any{
		"type": hubclient.NotifyStateDigest,
		"data": d,
	}
}

// Received returns a copy of every request frame seen so far.
func (s *Server) Received() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Received, len(s.received))
	copy(out, s.received)
	return out
}

// Connections returns the number of accepted connections so far.
func (s *Server) Connections() int {
	return int(s.seq.Load())
}

// DropAll closes every open connection, as a hub reboot would.
func (s *Server) DropAll() {
	s.mu.Lock()
	conns := make([]*hubConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}
