package session

import (
	"errors"
	"fmt"
)

// Rejection reasons carried by CommandRejected.
var (
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrEmptyQueue      = errors.New("queue is empty")
	ErrEmptyList       = errors.New("track list is empty")
	ErrNoSession       = errors.New("no active session")
	ErrInvalidFraction = errors.New("seek fraction must be within [0,1]")
	ErrNoActiveTrack   = errors.New("no active track")
)

// ErrReleased is returned by Connect after Release.
var ErrReleased = errors.New("session released")

// ConnectionError reports that the transport is unreachable.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("transport unavailable: %v", e.Err)
	}
	return fmt.Sprintf("transport unavailable at %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// CommandRejected reports a command that was validated and not sent, or that
// the transport refused. It never leaves local state modified.
type CommandRejected struct {
	Command CommandKind
	Reason  error
}

func (e *CommandRejected) Error() string {
	return fmt.Sprintf("%s rejected: %v", e.Command, e.Reason)
}

func (e *CommandRejected) Unwrap() error { return e.Reason }

// Reject builds a CommandRejected.
func Reject(kind CommandKind, reason error) error {
	return &CommandRejected{Command: kind, Reason: reason}
}

// ResyncFailure reports a transient failure to pull the transport timeline.
type ResyncFailure struct {
	Err error
}

func (e *ResyncFailure) Error() string {
	return fmt.Sprintf("resync failed: %v", e.Err)
}

func (e *ResyncFailure) Unwrap() error { return e.Err }
