package hubclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/homehub/hubctl/internal/retry"
	"github.com/homehub/hubctl/internal/transport"
)

// Transport is the session the client multiplexes. *transport.Session
// satisfies it.
type Transport interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, data []byte) error
	Frames() <-chan []byte
	MarkDegraded()
	State() transport.State
	Close() error
}

// Outcome is the delivery status of an exchange that did not fail.
type Outcome int

const (
	// OutcomeConfirmed means the hub replied with the request's token.
	OutcomeConfirmed Outcome = iota + 1
	// OutcomeUnconfirmed means the request was written but no reply arrived
	// before the deadline.
	OutcomeUnconfirmed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeUnconfirmed:
		return "unconfirmed"
	default:
		return "unknown"
	}
}

// Result describes a finished exchange. Frame is nil unless confirmed.
type Result struct {
	Token   Token
	Outcome Outcome
	Frame   *Frame
	Elapsed time.Duration
}

// Confirm turns an unconfirmed result into ErrTimeout for callers that need
// the hub's answer.
func (r Result) Confirm() error {
	if r.Outcome != OutcomeConfirmed {
		return fmt.Errorf("no reply to %s after %s: %w", r.Token, r.Elapsed.Round(time.Millisecond), ErrTimeout)
	}
	return nil
}

// Options configures a Client.
type Options struct {
	HubID  string
	Retry  retry.Policy
	Timing Timing
}

// reply is what the router or the session teardown hands a waiting call.
type reply struct {
	frame Frame
	err   error
}

type pendingRequest struct {
	token       Token
	submittedAt time.Time
	deadline    time.Time
	frames      <-chan []byte // connection the request was written on
	done        chan reply
}

// Client correlates requests and replies over one Transport.
type Client struct {
	session Transport
	opts    Options
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[Token]*pendingRequest
	routed  <-chan []byte
	closed  bool

	notify atomic.Pointer[func(Frame)]
	status singleflight.Group
}

// New wires a client to a session. The session may still be disconnected.
func New(session Transport, opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	opts.Timing = opts.Timing.withDefaults()

	c := &Client{
		session: session,
		opts:    opts,
		logger:  logger.Named("hubclient"),
		pending: make(map[Token]*pendingRequest),
	}
	if c.opts.Retry.OnRetry == nil {
		c.opts.Retry.OnRetry = func(attempt int, delay time.Duration, err error) {
			c.logger.Warn("retrying hub exchange",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(err))
		}
	}
	return c
}

// OnNotification registers the handler for frames that answer no outstanding
// call. It runs on the router goroutine and must not block.
func (c *Client) OnNotification(fn func(Frame)) {
	c.notify.Store(&fn)
}

// State returns the session's connection state.
func (c *Client) State() transport.State {
	return c.session.State()
}

// Connect opens the session under the retry policy.
func (c *Client) Connect(ctx context.Context) error {
	return retry.Do(ctx, c.opts.Retry, c.ensureConnected)
}

// Close fails outstanding calls and closes the session.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	for token, p := range c.pending {
		delete(c.pending, token)
		p.done <- reply{err: ErrClosed}
	}
	c.mu.Unlock()
	return c.session.Close()
}

// Call writes req and waits up to timeout for the reply carrying its token.
// An empty or "0" token is replaced with a fresh UUID, mirrored into the
// engine call. The whole exchange is retried on transport failures.
//
// A deadline without a reply yields OutcomeUnconfirmed and a nil error. A
// reply with a failure code yields *HubError.
func (c *Client) Call(ctx context.Context, req *Request, timeout time.Duration) (Result, error) {
	if req.ID == "" || req.ID == "0" {
		req.ID = Token(uuid.NewString())
	}
	req.Hbus.ID = req.ID
	if req.HubID == "" {
		req.HubID = c.opts.HubID
	}

	data, err := json.Marshal(req)
	if err != nil {
		return Result{Token: req.ID}, fmt.Errorf("encode %s: %w", req.Hbus.Cmd, err)
	}

	var res Result
	err = retry.Do(ctx, c.opts.Retry, func(ctx context.Context) error {
		var xerr error
		res, xerr = c.exchange(ctx, req.ID, req.Hbus.Cmd, data, timeout)
		return xerr
	})
	return res, err
}

func (c *Client) exchange(ctx context.Context, token Token, cmd string, data []byte, timeout time.Duration) (Result, error) {
	res := Result{Token: token}

	if err := c.ensureConnected(ctx); err != nil {
		return res, err
	}

	p, err := c.register(token, timeout)
	if err != nil {
		return res, retry.Permanent(err)
	}
	defer c.unregister(p)

	if err := c.session.Send(ctx, data); err != nil {
		return res, err
	}
	c.logger.Debug("sent", zap.String("cmd", cmd), zap.String("token", string(token)))

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-p.done:
		res.Elapsed = time.Since(p.submittedAt)
		if r.err != nil {
			if errors.Is(r.err, ErrClosed) {
				return res, retry.Permanent(r.err)
			}
			return res, r.err
		}
		frame := r.frame
		res.Outcome = OutcomeConfirmed
		res.Frame = &frame
		if frame.Code.Failed() {
			return res, retry.Permanent(&HubError{Cmd: cmd, Code: frame.Code, Msg: frame.Msg})
		}
		return res, nil

	case <-timer.C:
		res.Outcome = OutcomeUnconfirmed
		res.Elapsed = time.Since(p.submittedAt)
		c.session.MarkDegraded()
		c.logger.Warn("no reply before deadline",
			zap.String("cmd", cmd),
			zap.String("token", string(token)),
			zap.Duration("timeout", timeout))
		return res, nil

	case <-ctx.Done():
		res.Elapsed = time.Since(p.submittedAt)
		return res, ctx.Err()
	}
}

// ensureConnected connects the session and starts a router for its current
// frame stream if none is running.
func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return retry.Permanent(ErrClosed)
	}

	if err := c.session.Connect(ctx); err != nil {
		return err
	}

	frames := c.session.Frames()
	c.mu.Lock()
	if frames != c.routed {
		c.routed = frames
		go c.route(frames)
	}
	c.mu.Unlock()
	return nil
}

func (c *Client) register(token Token, timeout time.Duration) (*pendingRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if _, dup := c.pending[token]; dup {
		return nil, fmt.Errorf("token %s: %w", token, ErrDuplicateToken)
	}
	now := time.Now()
	p := &pendingRequest{
		token:       token,
		submittedAt: now,
		deadline:    now.Add(timeout),
		frames:      c.routed,
		done:        make(chan reply, 1),
	}
	c.pending[token] = p
	return p, nil
}

func (c *Client) unregister(p *pendingRequest) {
	c.mu.Lock()
	if c.pending[p.token] == p {
		delete(c.pending, p.token)
	}
	c.mu.Unlock()
}

// Outstanding returns the number of calls awaiting a reply.
func (c *Client) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// route dispatches the frames of one connection until it closes, then fails
// the calls that were written on it.
func (c *Client) route(frames <-chan []byte) {
	for data := range frames {
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Debug("discarding undecodable frame", zap.Error(err), zap.Int("bytes", len(data)))
			continue
		}
		c.dispatch(f)
	}

	c.mu.Lock()
	for token, p := range c.pending {
		if p.frames != frames {
			continue
		}
		delete(c.pending, token)
		p.done <- reply{err: transport.ErrConnectionLost}
	}
	c.mu.Unlock()
}

func (c *Client) dispatch(f Frame) {
	if f.ID != "" {
		c.mu.Lock()
		p, ok := c.pending[f.ID]
		if ok {
			delete(c.pending, f.ID)
		}
		c.mu.Unlock()

		if ok {
			p.done <- reply{frame: f}
			return
		}
	}

	if fn := c.notify.Load(); fn != nil {
		(*fn)(f)
		return
	}
	c.logger.Debug("discarding uncorrelated frame",
		zap.String("type", f.Type),
		zap.String("cmd", f.Cmd),
		zap.String("token", string(f.ID)))
}
