package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termie/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termie/internal/pty"
)

// DefaultChunk is the read size used when none is configured.
const DefaultChunk = 4096

// Mode selects where the read side runs.
type Mode string

const (
	// ModeBackground reads on a dedicated goroutine with blocking reads.
	ModeBackground Mode = "background"
	// ModeInline polls with non-blocking reads from the tick loop.
	ModeInline Mode = "inline"
)

// ParseMode validates a configured read mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeBackground, ModeInline:
		return m, nil
	default:
		return "", fmt.Errorf("unknown read mode %q", s)
	}
}

// Source is the read view of a pty session.
type Source interface {
	Read(p []byte) (int, error)
	ReadNonblocking(p []byte) (int, error)
	Reap() (pty.ExitStatus, error)
}

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	Chunk   int
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// Reader is the read role of a session. A Reader must be driven either by
// Run or by Poll, never both.
type Reader struct {
	src     Source
	box     *Mailbox[Event]
	dec     *Decoder
	buf     []byte
	logger  *zap.Logger
	metrics *monitoring.Metrics
	done    bool
}

// NewReader creates a reader that posts events to box.
func NewReader(src Source, box *Mailbox[Event], opts ReaderOptions) *Reader {
	if opts.Chunk <= 0 {
		opts.Chunk = DefaultChunk
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Reader{
		src:     src,
		box:     box,
		dec:     NewDecoder(),
		buf:     make([]byte, opts.Chunk),
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// Run reads until end of stream, then reaps the child and posts Closed. It
// blocks; cancel ctx and close the session to stop it early.
func (r *Reader) Run(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.deliver(r.buf[:n])
		}
		if err != nil {
			r.finish(err)
			return
		}
	}
	r.finish(ctx.Err())
}

// Poll drains everything the session has pending without blocking. It
// returns false once the stream has ended; the Closed event is posted from a
// separate goroutine because reaping blocks.
func (r *Reader) Poll() bool {
	if r.done {
		return false
	}
	for {
		n, err := r.src.ReadNonblocking(r.buf)
		if errors.Is(err, pty.ErrWouldBlock) {
			return true
		}
		if n > 0 {
			r.deliver(r.buf[:n])
		}
		if err != nil {
			r.done = true
			go r.finish(err)
			return false
		}
	}
}

// Done reports whether Poll has seen the end of the stream.
func (r *Reader) Done() bool {
	return r.done
}

func (r *Reader) deliver(chunk []byte) {
	r.metrics.AddPtyRead(len(chunk))
	text := r.dec.Decode(nil, chunk)
	if len(text) == 0 {
		return
	}
	r.box.Push(Output{Text: text})
}

func (r *Reader) finish(cause error) {
	if tail := r.dec.Flush(nil); len(tail) > 0 {
		r.box.Push(Output{Text: tail})
	}

	var readErr error
	switch {
	case cause == nil, errors.Is(cause, io.EOF), errors.Is(cause, pty.ErrClosed),
		errors.Is(cause, context.Canceled):
	default:
		readErr = cause
		r.logger.Error("Pty read failed, ending session", zap.Error(cause))
	}

	status, err := r.src.Reap()
	if err != nil {
		r.logger.Error("Failed to reap shell", zap.Error(err))
		if readErr == nil {
			readErr = err
		}
	}
	r.box.Push(Closed{Status: status, Err: readErr})
}
