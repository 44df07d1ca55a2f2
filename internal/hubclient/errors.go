package hubclient

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned by Result.Confirm for an unconfirmed exchange and
	// by queries that cannot do without an answer.
	ErrTimeout = errors.New("TIMEOUT")

	// ErrDuplicateToken rejects a caller-supplied token that is still outstanding.
	ErrDuplicateToken = errors.New("DUPLICATE_TOKEN")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("CLIENT_CLOSED")
)

// HubError is a reply whose code reports a failure on the hub side.
type HubError struct {
	Cmd  string
	Code Code
	Msg  string
}

func (e *HubError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("hub rejected %s: code %d", e.Cmd, e.Code)
	}
	return fmt.Sprintf("hub rejected %s: code %d: %s", e.Cmd, e.Code, e.Msg)
}
