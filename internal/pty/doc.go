// Package pty owns a shell process attached to a pseudo-terminal.
//
// A Session holds the master side of the pty and the child process handle.
// The master is exposed through two views: a pollable read side that never
// blocks the caller (ReadNonblocking) or parks on the runtime poller (Read),
// and a write side that always delivers the full payload (Write). There is at
// most one reader and one writer at a time.
//
// Lifecycle:
//
//	s, err := pty.Spawn(pty.Options{Shell: "/bin/sh", Set: map[string]string{"PS1": "% "}})
//	if err != nil {
//	    return err // no partial session exists
//	}
//	defer s.Close()
//
//	_ = s.Write([]byte("echo hi\n"))
//	n, err := s.ReadNonblocking(buf)
//	switch {
//	case errors.Is(err, pty.ErrWouldBlock):
//	    // nothing pending, try again next tick
//	case errors.Is(err, io.EOF):
//	    status, _ := s.Reap()
//	}
package pty
