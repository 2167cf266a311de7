package pty

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/GriffinCanCode/termie/internal/shared/id"
)

// killGrace is how long Close waits for the shell to exit on hangup before
// killing it.
const killGrace = 2 * time.Second

// pollSlice bounds a single wait for readiness on the master.
const pollSlice = 100 * time.Millisecond

// Options configures a new session.
type Options struct {
	// Shell is the executable started with no arguments (defaults to /bin/sh).
	Shell string

	// Dir is the working directory of the shell.
	Dir string

	// BaseEnv is the environment the child starts from (defaults to os.Environ()).
	BaseEnv []string

	// Unset lists variables removed from BaseEnv (defaults to DefaultUnset).
	Unset []string

	// Set overrides or adds variables, e.g. a minimal PS1.
	Set map[string]string

	// Cols and Rows are the initial window size (default 80x24).
	Cols uint16
	Rows uint16

	Logger *zap.Logger
}

// ExitStatus describes how the shell terminated.
type ExitStatus struct {
	Code   int    // -1 if the process was killed by a signal
	Signal string // empty unless killed by a signal
}

// Success reports whether the shell exited with status 0.
func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Signal == ""
}

func (s ExitStatus) String() string {
	if s.Signal != "" {
		return "signal: " + s.Signal
	}
	return fmt.Sprintf("exit status %d", s.Code)
}

// Session is a shell process attached to the slave side of a pty, together
// with the exclusively owned master side.
type Session struct {
	ID    id.SessionID
	Shell string

	cmd    *exec.Cmd
	master *os.File
	raw    syscall.RawConn
	logger *zap.Logger

	readMu  sync.Mutex
	writeMu sync.Mutex

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	waitOnce sync.Once
	status   ExitStatus
	waitErr  error
}

// Spawn starts the shell on a new pty and puts the master into non-blocking
// mode. Any failure is fatal for the session: the child is killed and reaped,
// the master is closed, and a *SpawnError is returned.
func Spawn(opts Options) (*Session, error) {
	if opts.Shell == "" {
		opts.Shell = "/bin/sh"
	}
	if opts.BaseEnv == nil {
		opts.BaseEnv = os.Environ()
	}
	if opts.Unset == nil {
		opts.Unset = DefaultUnset
	}
	if opts.Cols == 0 {
		opts.Cols = 80
	}
	if opts.Rows == 0 {
		opts.Rows = 24
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cmd := exec.Command(opts.Shell)
	cmd.Dir = opts.Dir
	cmd.Env = BuildEnv(opts.BaseEnv, opts.Unset, opts.Set)

	// StartWithSize runs setsid and makes the slave the controlling terminal.
	// An exec failure in the child is reported here, before any session exists.
	master, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: opts.Cols, Rows: opts.Rows})
	if err != nil {
		return nil, &SpawnError{Op: "start", Shell: opts.Shell, Err: err}
	}

	raw, err := master.SyscallConn()
	if err != nil {
		abort(cmd, master)
		return nil, &SpawnError{Op: "open", Shell: opts.Shell, Err: err}
	}

	s := &Session{
		ID:     id.NewSessionID(),
		Shell:  opts.Shell,
		cmd:    cmd,
		master: master,
		raw:    raw,
	}
	s.logger = opts.Logger.With(zap.String("session", s.ID.String()), zap.Int("pid", s.PID()))

	if err := s.SetNonblocking(); err != nil {
		abort(cmd, master)
		return nil, &SpawnError{Op: "nonblock", Shell: opts.Shell, Err: err}
	}

	term, _ := Lookup(cmd.Env, "TERM")
	s.logger.Info("Shell started",
		zap.String("shell", opts.Shell),
		zap.String("term", term),
		zap.Uint16("cols", opts.Cols),
		zap.Uint16("rows", opts.Rows),
	)
	return s, nil
}

func abort(cmd *exec.Cmd, master *os.File) {
	_ = master.Close()
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
}

// SetNonblocking sets O_NONBLOCK on the master so reads never block the caller.
func (s *Session) SetNonblocking() error {
	var serr error
	err := s.raw.Control(func(fd uintptr) {
		serr = unix.SetNonblock(int(fd), true)
	})
	if err != nil {
		return fmt.Errorf("control pty: %w", err)
	}
	if serr != nil {
		return fmt.Errorf("set O_NONBLOCK: %w", serr)
	}
	return nil
}

// ReadNonblocking reads whatever output is pending without waiting.
// It returns ErrWouldBlock if nothing is pending and io.EOF once the shell
// side has closed.
func (s *Session) ReadNonblocking(p []byte) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	if s.closed.Load() {
		return 0, ErrClosed
	}

	var (
		n    int
		rerr error
	)
	err := s.raw.Read(func(fd uintptr) bool {
		for {
			n, rerr = unix.Read(int(fd), p)
			if rerr != unix.EINTR {
				// Returning true hands control back instead of parking on the poller.
				return true
			}
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrClosed) {
			return 0, ErrClosed
		}
		return 0, fmt.Errorf("read pty: %w", err)
	}

	switch {
	case rerr == unix.EAGAIN:
		return 0, ErrWouldBlock
	case rerr == unix.EIO:
		// Linux reports a hung-up slave as EIO on the master.
		return 0, io.EOF
	case rerr != nil:
		return 0, fmt.Errorf("read pty: %w", rerr)
	case n <= 0:
		return 0, io.EOF
	}
	return n, nil
}

// Read blocks until output is available. It is meant for a dedicated reader
// goroutine; the runtime poller parks it while the master is idle.
func (s *Session) Read(p []byte) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	for {
		if s.closed.Load() {
			return 0, ErrClosed
		}

		n, err := s.master.Read(p)
		switch {
		case err == nil:
			return n, nil
		case errors.Is(err, syscall.EAGAIN):
			// Master is not on the runtime poller; wait for it ourselves.
			if werr := s.wait(unix.POLLIN); werr != nil {
				return 0, werr
			}
		case errors.Is(err, syscall.EINTR):
		case errors.Is(err, syscall.EIO), errors.Is(err, io.EOF):
			return n, io.EOF
		case errors.Is(err, os.ErrClosed):
			return n, ErrClosed
		default:
			return n, fmt.Errorf("read pty: %w", err)
		}
	}
}

// Write delivers all of p to the shell, retrying short writes.
func (s *Session) Write(p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for len(p) > 0 {
		if s.closed.Load() {
			return ErrClosed
		}

		n, err := s.master.Write(p)
		p = p[n:]
		switch {
		case err == nil, errors.Is(err, io.ErrShortWrite), errors.Is(err, syscall.EINTR):
		case errors.Is(err, syscall.EAGAIN):
			if werr := s.wait(unix.POLLOUT); werr != nil {
				return werr
			}
		case errors.Is(err, os.ErrClosed):
			return ErrClosed
		default:
			return fmt.Errorf("write pty: %w", err)
		}
	}
	return nil
}

// wait polls the master for events in short slices so that Close is never
// held up by a waiter.
func (s *Session) wait(events int16) error {
	var perr error
	err := s.raw.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
		_, perr = unix.Poll(fds, int(pollSlice/time.Millisecond))
	})
	if err != nil {
		if errors.Is(err, os.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("poll pty: %w", err)
	}
	if perr != nil && perr != unix.EINTR {
		return fmt.Errorf("poll pty: %w", perr)
	}
	return nil
}

// Resize updates the pty window size; the shell receives SIGWINCH.
func (s *Session) Resize(cols, rows uint16) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := pty.Setsize(s.master, &pty.Winsize{Cols: cols, Rows: rows}); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}
	return nil
}

// Reap waits for the shell to exit. It is safe to call more than once; every
// call returns the same status.
func (s *Session) Reap() (ExitStatus, error) {
	s.waitOnce.Do(func() {
		err := s.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			s.waitErr = fmt.Errorf("wait shell: %w", err)
			return
		}
		s.status = statusOf(s.cmd.ProcessState)
		s.logger.Info("Shell exited", zap.Stringer("status", s.status))
	})
	return s.status, s.waitErr
}

func statusOf(state *os.ProcessState) ExitStatus {
	if state == nil {
		return ExitStatus{Code: -1}
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitStatus{Code: -1, Signal: ws.Signal().String()}
	}
	return ExitStatus{Code: state.ExitCode()}
}

// PID returns the shell's process ID.
func (s *Session) PID() int {
	if s.cmd.Process == nil {
		return -1
	}
	return s.cmd.Process.Pid
}

// Close closes the master side and reaps the shell. Closing the master hangs
// up the terminal; a shell that ignores the hangup is killed after a grace
// period.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.master.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = s.Reap()
		}()

		select {
		case <-done:
		case <-time.After(killGrace):
			s.logger.Warn("Shell ignored hangup, killing")
			_ = s.cmd.Process.Kill()
			<-done
		}
	})
	return s.closeErr
}
