package hubclient

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Hub engine endpoints.
const (
	CmdStartActivity      = "vnd.logitech.harmony/vnd.logitech.harmony.engine?startactivity"
	CmdHoldAction         = "vnd.logitech.harmony/vnd.logitech.harmony.engine?holdAction"
	CmdGetCurrentActivity = "vnd.logitech.harmony/vnd.logitech.harmony.engine?getCurrentActivity"

	// NotifyStateDigest is the type of the unsolicited frame the hub pushes
	// whenever its activity state changes.
	NotifyStateDigest = "connect.stateDigest?notify"
)

// PowerOffActivity is the activity id the hub reports when everything is off.
const PowerOffActivity = "-1"

// Token correlates a request with its reply. The hub echoes it as a string,
// but some firmware answers with a bare number, so both decode.
type Token string

func (t *Token) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Token(s)
		return nil
	}
	*t = Token(b)
	return nil
}

// Code is the hub's numeric status. It decodes from a number or a quoted number.
type Code int

func (c *Code) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = 0
		return nil
	}
	s := string(bytes.Trim(b, `"`))
	if s == "" {
		*c = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*c = Code(n)
	return nil
}

// Failed reports a hub-side rejection.
func (c Code) Failed() bool { return c >= 400 }

// Request is the envelope written to the hub.
type Request struct {
	HubID   string `json:"hubId"`
	Timeout int    `json:"timeout"`
	ID      Token  `json:"id,omitempty"`
	Hbus    Hbus   `json:"hbus"`
}

// Hbus is the engine call inside a Request.
type Hbus struct {
	Cmd    string `json:"cmd"`
	ID     Token  `json:"id"`
	Params any    `json:"params,omitempty"`
}

// Frame is one decoded inbound message: a reply (ID set) or a notification
// (Type set, usually no ID).
type Frame struct {
	Cmd  string          `json:"cmd,omitempty"`
	Type string          `json:"type,omitempty"`
	ID   Token           `json:"id,omitempty"`
	Code Code            `json:"code,omitempty"`
	Msg  string          `json:"msg,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// StartActivityParams are the params of CmdStartActivity.
type StartActivityParams struct {
	Async      string       `json:"async"`
	Timestamp  int          `json:"timestamp"`
	Args       ActivityArgs `json:"args"`
	ActivityID string       `json:"activityId"`
}

type ActivityArgs struct {
	Rule string `json:"rule"`
}

// HoldActionParams are the params of CmdHoldAction. Action is a JSON-encoded
// DeviceAction; the hub expects it as a string.
type HoldActionParams struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Verb      string `json:"verb"`
	Action    string `json:"action"`
}

// DeviceAction names one IR command of one device.
type DeviceAction struct {
	Command  string `json:"command"`
	Type     string `json:"type"`
	DeviceID string `json:"deviceId"`
}

// Hold action states.
const (
	HoldPress   = "press"
	HoldRelease = "release"
)

// GetParams are the params of read-only engine calls.
type GetParams struct {
	Verb string `json:"verb"`
}

// CurrentActivityData is the data of a getCurrentActivity reply.
type CurrentActivityData struct {
	Result string `json:"result"`
}

// StateDigest is the data of a NotifyStateDigest frame.
type StateDigest struct {
	ActivityID     string `json:"activityId"`
	ActivityStatus int    `json:"activityStatus"`
}
