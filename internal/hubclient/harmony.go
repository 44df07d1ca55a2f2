package hubclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Timing holds per-call reply deadlines.
type Timing struct {
	ActivityTimeout time.Duration // startactivity
	PressTimeout    time.Duration // each half of a press/release pair
	PressReleaseGap time.Duration // pause between press and release
	SingleTimeout   time.Duration // plain press without release
	StatusTimeout   time.Duration // getCurrentActivity
}

// DefaultTiming mirrors how long the hub takes to acknowledge each call.
func DefaultTiming() Timing {
	return Timing{
		ActivityTimeout: 3 * time.Second,
		PressTimeout:    200 * time.Millisecond,
		PressReleaseGap: 50 * time.Millisecond,
		SingleTimeout:   time.Second,
		StatusTimeout:   2 * time.Second,
	}
}

func (t Timing) withDefaults() Timing {
	d := DefaultTiming()
	if t.ActivityTimeout <= 0 {
		t.ActivityTimeout = d.ActivityTimeout
	}
	if t.PressTimeout <= 0 {
		t.PressTimeout = d.PressTimeout
	}
	if t.PressReleaseGap < 0 {
		t.PressReleaseGap = 0
	}
	if t.SingleTimeout <= 0 {
		t.SingleTimeout = d.SingleTimeout
	}
	if t.StatusTimeout <= 0 {
		t.StatusTimeout = d.StatusTimeout
	}
	return t
}

// hub-side timeouts, in seconds, carried in the envelope.
const (
	hubActivityTimeout = 30
	hubDefaultTimeout  = 10
)

// StartActivity switches the hub to an activity. Use PowerOffActivity to turn
// everything off.
func (c *Client) StartActivity(ctx context.Context, activityID string) (Result, error) {
	req := &Request{
		Timeout: hubActivityTimeout,
		Hbus: Hbus{
			Cmd: CmdStartActivity,
			Params: StartActivityParams{
				Async:      "true",
				Timestamp:  0,
				Args:       ActivityArgs{Rule: "start"},
				ActivityID: activityID,
			},
		},
	}
	res, err := c.Call(ctx, req, c.opts.Timing.ActivityTimeout)
	if err != nil {
		return res, fmt.Errorf("start activity %s: %w", activityID, err)
	}
	c.logger.Info("activity started",
		zap.String("activity", activityID),
		zap.Stringer("outcome", res.Outcome),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

// SendDeviceCommand fires one IR command. With pressRelease the button is
// held for PressReleaseGap and released, like a physical remote; the press
// result is returned. A failed release is logged, not returned.
func (c *Client) SendDeviceCommand(ctx context.Context, deviceID, command string, pressRelease bool) (Result, error) {
	action, err := json.Marshal(DeviceAction{Command: command, Type: "IRCommand", DeviceID: deviceID})
	if err != nil {
		return Result{}, err
	}
	hold := func(status string) *Request {
		return &Request{
			Timeout: hubDefaultTimeout,
			Hbus: Hbus{
				Cmd: CmdHoldAction,
				Params: HoldActionParams{
					Status:    status,
					Timestamp: "0",
					Verb:      "render",
					Action:    string(action),
				},
			},
		}
	}

	if !pressRelease {
		res, err := c.Call(ctx, hold(HoldPress), c.opts.Timing.SingleTimeout)
		if err != nil {
			return res, fmt.Errorf("device %s %s: %w", deviceID, command, err)
		}
		return res, nil
	}

	res, err := c.Call(ctx, hold(HoldPress), c.opts.Timing.PressTimeout)
	if err != nil {
		return res, fmt.Errorf("device %s %s press: %w", deviceID, command, err)
	}

	if gap := c.opts.Timing.PressReleaseGap; gap > 0 {
		t := time.NewTimer(gap)
		select {
		case <-ctx.Done():
			t.Stop()
			return res, ctx.Err()
		case <-t.C:
		}
	}

	if _, rerr := c.Call(ctx, hold(HoldRelease), c.opts.Timing.PressTimeout); rerr != nil {
		c.logger.Warn("release failed",
			zap.String("device", deviceID),
			zap.String("command", command),
			zap.Error(rerr))
	}
	return res, nil
}

// CurrentActivity asks the hub which activity is running. Concurrent callers
// share one query. PowerOffActivity means everything is off.
func (c *Client) CurrentActivity(ctx context.Context) (string, error) {
	v, err, shared := c.status.Do("current", func() (any, error) {
		req := &Request{
			Timeout: hubDefaultTimeout,
			Hbus: Hbus{
				Cmd:    CmdGetCurrentActivity,
				Params: GetParams{Verb: "get"},
			},
		}
		res, err := c.Call(ctx, req, c.opts.Timing.StatusTimeout)
		if err != nil {
			return "", err
		}
		if err := res.Confirm(); err != nil {
			return "", err
		}
		var data CurrentActivityData
		if err := json.Unmarshal(res.Frame.Data, &data); err != nil {
			return "", fmt.Errorf("decode current activity: %w", err)
		}
		return data.Result, nil
	})
	if err != nil {
		return "", fmt.Errorf("current activity: %w", err)
	}
	if shared {
		c.logger.Debug("current activity query shared")
	}
	return v.(string), nil
}

// DecodeStateDigest extracts the activity from a NotifyStateDigest frame.
func DecodeStateDigest(f Frame) (StateDigest, bool) {
	if f.Type != NotifyStateDigest || len(f.Data) == 0 {
		return StateDigest{}, false
	}
	var d StateDigest
	if err := json.Unmarshal(f.Data, &d); err != nil {
		return StateDigest{}, false
	}
	return d, d.ActivityID != ""
}
