package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/homehub/hubctl/internal/hubclient"
	"github.com/homehub/hubctl/internal/transport"
)

var (
	// ErrAdmissionRejected means an Exclusive command was refused because
	// another one is running or waiting.
	ErrAdmissionRejected = errors.New("ADMISSION_REJECTED")

	// ErrConfiguration means a name did not resolve to a configured
	// activity or device.
	ErrConfiguration = errors.New("NOT_CONFIGURED")

	// ErrOrderingViolation means the queue and the in-flight command
	// disagree. It indicates a defect.
	ErrOrderingViolation = errors.New("ORDERING_VIOLATION")

	// ErrStopped is returned once the orchestrator loop has exited.
	ErrStopped = errors.New("STOPPED")
)

// Normalized failure codes.
var (
	ErrNetwork  = errors.New("NETWORK")
	ErrTimeout  = errors.New("TIMEOUT")
	ErrRejected = errors.New("HUB_REJECTED")
	ErrInternal = errors.New("INTERNAL")
)

// FailureKind selects how a failure is shown.
type FailureKind int

const (
	FailureGeneral FailureKind = iota
	FailureNetwork
	FailureTimeout
	FailureConfiguration
)

func (k FailureKind) String() string {
	switch k {
	case FailureNetwork:
		return "network"
	case FailureTimeout:
		return "timeout"
	case FailureConfiguration:
		return "configuration"
	default:
		return "general"
	}
}

// failureTokens is checked in order; the first kind with a matching token
// wins.
var failureTokens = []struct {
	kind   FailureKind
	tokens []string
}{
	{FailureNetwork, []string{"network", "connection", "connect", "websocket", "transport"}},
	{FailureTimeout, []string{"timeout", "timed out", "time out", "deadline"}},
	{FailureConfiguration, []string{"not configured", "not found", "validation failed", "unknown"}},
}

// ClassifyFailure maps err to a display kind. Known sentinels are matched
// first; anything else falls back to message tokens.
func ClassifyFailure(err error) FailureKind {
	if err == nil {
		return FailureGeneral
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Kind
	}
	switch {
	case errors.Is(err, ErrConfiguration):
		return FailureConfiguration
	case errors.Is(err, transport.ErrTransport), errors.Is(err, transport.ErrConnectionLost):
		return FailureNetwork
	case errors.Is(err, hubclient.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, group := range failureTokens {
		for _, token := range group.tokens {
			if strings.Contains(msg, token) {
				return group.kind
			}
		}
	}
	return FailureGeneral
}

// CommandError wraps a failed command with its normalized code.
type CommandError struct {
	Code     error // ErrNetwork, ErrTimeout, ErrConfiguration, ErrRejected or ErrInternal
	Kind     FailureKind
	Command  string
	Original error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Code, e.Command, e.Original)
}

// Unwrap exposes both the code and the original error.
func (e *CommandError) Unwrap() []error {
	return []error{e.Code, e.Original}
}

// NormalizeError wraps err in a CommandError. nil stays nil and an existing
// CommandError is returned as is.
func NormalizeError(command string, err error) error {
	if err == nil {
		return nil
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return err
	}
	kind := ClassifyFailure(err)
	return &CommandError{
		Code:     codeFor(kind, err),
		Kind:     kind,
		Command:  command,
		Original: err,
	}
}

func codeFor(kind FailureKind, err error) error {
	switch kind {
	case FailureNetwork:
		return ErrNetwork
	case FailureTimeout:
		return ErrTimeout
	case FailureConfiguration:
		return ErrConfiguration
	}
	var hubErr *hubclient.HubError
	if errors.As(err, &hubErr) {
		return ErrRejected
	}
	return ErrInternal
}

// Code returns the normalized code string of err, "SUCCESS" for nil.
func Code(err error) string {
	if err == nil {
		return "SUCCESS"
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code.Error()
	}
	for _, sentinel := range []error{ErrAdmissionRejected, ErrConfiguration, ErrOrderingViolation, ErrStopped} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return codeFor(ClassifyFailure(err), err).Error()
}
