package pty

import (
	"errors"
	"fmt"
)

var (
	// ErrWouldBlock is returned by ReadNonblocking when no output is pending.
	// It is the steady state of an idle session, not a failure.
	ErrWouldBlock = errors.New("pty read would block")

	// ErrClosed is returned when the master side has already been closed.
	ErrClosed = errors.New("pty session closed")
)

// SpawnError reports a fatal failure while creating a session.
type SpawnError struct {
	Op    string // "open", "start" or "nonblock"
	Shell string
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %s: %v", e.Shell, e.Op, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
