package transport

import (
	"errors"
	"fmt"
)

// Normalized transport errors. Both are retryable.
var (
	ErrTransport      = errors.New("TRANSPORT")
	ErrConnectionLost = errors.New("CONNECTION_LOST")
)

// Error wraps an I/O failure with the session operation that hit it.
type Error struct {
	Op  string // connect, send, ping
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

// Unwrap exposes both ErrTransport and the underlying cause so callers can
// match either with errors.Is.
func (e *Error) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}
