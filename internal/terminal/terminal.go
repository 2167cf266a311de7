package terminal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termie/internal/bridge"
	"github.com/GriffinCanCode/termie/internal/buffer"
	"github.com/GriffinCanCode/termie/internal/editor"
	"github.com/GriffinCanCode/termie/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termie/internal/pty"
	"github.com/GriffinCanCode/termie/internal/render"
)

// DefaultTick is the default tick interval, about 60 frames per second.
const DefaultTick = 16 * time.Millisecond

const naturalNotice = "natural language query received"

// Session is the part of a pty session the loop drives.
type Session interface {
	bridge.Source
	bridge.Sink
	Resize(cols, rows uint16) error
}

// Dispatcher starts classifier calls whose results arrive in the inbox.
type Dispatcher interface {
	Classify(line []byte)
	Answer(line []byte)
	CanAnswer() bool
}

// Options configures a Terminal.
type Options struct {
	Session  Session
	Mode     bridge.Mode
	Window   render.Window
	Pipeline *render.Pipeline

	// Output and Editor are created with default capacities when nil.
	Output *buffer.Output
	Editor *editor.Editor

	// Inbox receives pty and classifier events; created when nil. A
	// Dispatcher must post to Inbox.Classifier.
	Inbox      *bridge.Inbox
	Dispatcher Dispatcher

	Tick      time.Duration
	ReadChunk int
	Logger    *zap.Logger
	Metrics   *monitoring.Metrics
}

// Terminal is the tick loop. Tick and Run must be called from one
// goroutine; SendKey, Transcript, OutputEvicted and Done are safe from any
// goroutine.
type Terminal struct {
	session    Session
	mode       bridge.Mode
	window     render.Window
	pipeline   *render.Pipeline
	output     *buffer.Output
	editor     *editor.Editor
	inbox      *bridge.Inbox
	keys       *bridge.Mailbox[editor.KeyEvent]
	dispatcher Dispatcher
	reader     *bridge.Reader
	writer     *bridge.Writer
	tick       time.Duration
	logger     *zap.Logger
	metrics    *monitoring.Metrics

	events  []bridge.Event
	pressed []editor.KeyEvent

	width, height int
	dirty         bool
	exited        bool
	status        pty.ExitStatus

	started  bool
	done     chan struct{}
	doneOnce sync.Once
}

// New creates a terminal. Call Run, or Start followed by Tick, to drive it.
func New(opts Options) *Terminal {
	if opts.Mode == "" {
		opts.Mode = bridge.ModeBackground
	}
	if opts.Output == nil {
		opts.Output = buffer.NewOutput(buffer.DefaultCap)
	}
	if opts.Editor == nil {
		opts.Editor = editor.New(editor.Options{Classify: opts.Dispatcher != nil, Logger: opts.Logger})
	}
	if opts.Inbox == nil {
		opts.Inbox = bridge.NewInbox()
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Terminal{
		session:    opts.Session,
		mode:       opts.Mode,
		window:     opts.Window,
		pipeline:   opts.Pipeline,
		output:     opts.Output,
		editor:     opts.Editor,
		inbox:      opts.Inbox,
		keys:       bridge.NewMailbox[editor.KeyEvent](),
		dispatcher: opts.Dispatcher,
		reader: bridge.NewReader(opts.Session, opts.Inbox.Pty, bridge.ReaderOptions{
			Chunk:   opts.ReadChunk,
			Logger:  opts.Logger.Named("bridge"),
			Metrics: opts.Metrics,
		}),
		writer:  bridge.NewWriter(opts.Session, opts.Logger.Named("bridge"), opts.Metrics),
		tick:    opts.Tick,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		dirty:   true,
		done:    make(chan struct{}),
	}
}

// Start launches the background reader when configured. It is idempotent.
func (t *Terminal) Start(ctx context.Context) {
	if t.started {
		return
	}
	t.started = true
	t.metrics.SetSessionAlive(true)
	if t.mode == bridge.ModeBackground {
		go t.reader.Run(ctx)
	}
	t.logger.Info("Terminal started", zap.String("read_mode", string(t.mode)), zap.Duration("tick", t.tick))
}

// Run drives the loop until the shell exits or ctx is cancelled.
func (t *Terminal) Run(ctx context.Context) error {
	t.Start(ctx)

	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	for {
		if !t.Tick() {
			return nil
		}
		select {
		case <-ctx.Done():
			t.stop()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs one iteration and reports whether the loop should go on.
func (t *Terminal) Tick() bool {
	if t.exited {
		return false
	}

	if t.mode == bridge.ModeInline {
		t.reader.Poll()
	}

	t.events = t.inbox.Drain(t.events[:0])
	for _, ev := range t.events {
		t.handleEvent(ev)
	}
	clear(t.events)

	if !t.exited {
		t.pressed = t.keys.Drain(t.pressed[:0])
		for _, ev := range t.pressed {
			t.handleKey(ev)
		}
	}

	t.followWindow()

	if t.dirty {
		t.render()
	}

	if t.exited {
		t.stop()
		return false
	}
	return true
}

// SendKey queues a key event for the next tick.
func (t *Terminal) SendKey(ev editor.KeyEvent) {
	t.keys.Push(ev)
}

// Transcript returns the displayable output so far.
func (t *Terminal) Transcript() string {
	return t.output.String()
}

// OutputEvicted returns how many output bytes were dropped to stay within
// the buffer capacity.
func (t *Terminal) OutputEvicted() uint64 {
	return t.output.Evicted()
}

// Done is closed once the loop has stopped.
func (t *Terminal) Done() <-chan struct{} {
	return t.done
}

// ExitStatus returns the shell's status once Done is closed.
func (t *Terminal) ExitStatus() pty.ExitStatus {
	<-t.done
	return t.status
}

func (t *Terminal) stop() {
	t.doneOnce.Do(func() {
		// Late classifier results are dropped from here on.
		t.inbox.Close()
		t.keys.Close()
		t.metrics.SetSessionAlive(false)
		close(t.done)
	})
}

func (t *Terminal) handleEvent(ev bridge.Event) {
	switch e := ev.(type) {
	case bridge.Output:
		t.appendOutput(e.Text)

	case bridge.Closed:
		t.exited = true
		t.status = e.Status
		t.appendOutput([]byte(fmt.Sprintf("\n[process exited: %s]\n", e.Status)))
		if e.Err != nil {
			t.logger.Error("Session ended after I/O error", zap.Error(e.Err))
		}
		t.logger.Info("Shell session ended", zap.Stringer("status", e.Status))

	case bridge.Classification:
		if e.IsCommand {
			t.send(e.Line)
			return
		}
		t.natural(e.Line)

	case bridge.ClassifierError:
		t.logger.Debug("Classifier unavailable, line treated as natural language", zap.String("error", e.Message))
		t.natural(e.Line)

	case bridge.Answer:
		t.appendOutput([]byte("\n" + e.Text + "\n"))
		t.send([]byte{'\n'})
	}
}

// natural shows a line that was not a command and resyncs the prompt.
func (t *Terminal) natural(line []byte) {
	text := make([]byte, 0, len(line)+len(naturalNotice)+2)
	text = append(text, trimNewline(line)...)
	text = append(text, '\n')
	text = append(text, naturalNotice...)
	text = append(text, '\n')
	t.appendOutput(text)

	t.send([]byte{'\n'})
	if t.dispatcher != nil && t.dispatcher.CanAnswer() {
		t.dispatcher.Answer(line)
	}
}

func (t *Terminal) handleKey(ev editor.KeyEvent) {
	t.dirty = true

	act := t.editor.Handle(ev)
	switch act.Kind {
	case editor.ActionWrite:
		t.send(act.Data)
	case editor.ActionClassify:
		if t.dispatcher == nil {
			t.send(act.Data)
			return
		}
		t.dispatcher.Classify(act.Data)
	}
}

func (t *Terminal) send(p []byte) {
	if err := t.writer.Send(p); err != nil && !errors.Is(err, pty.ErrClosed) {
		t.logger.Warn("Input not delivered", zap.Int("bytes", len(p)))
	}
}

func (t *Terminal) appendOutput(text []byte) {
	if len(text) == 0 {
		return
	}
	evicted := t.output.Append(text)
	t.metrics.RecordOutput(len(text), evicted, t.output.Len())
	t.dirty = true
}

func (t *Terminal) followWindow() {
	if t.window == nil || t.pipeline == nil {
		return
	}
	w, h := t.window.CurrentSize()
	if w == t.width && h == t.height {
		return
	}
	t.width, t.height = w, h
	t.dirty = true

	cols, rows := t.pipeline.Grid(w, h)
	if err := t.session.Resize(uint16(cols), uint16(rows)); err != nil && !errors.Is(err, pty.ErrClosed) {
		t.logger.Warn("Failed to resize pty", zap.Int("cols", cols), zap.Int("rows", rows), zap.Error(err))
	}
}

func (t *Terminal) render() {
	t.dirty = false
	if t.window == nil || t.pipeline == nil {
		return
	}
	_, rows := t.pipeline.Grid(t.width, t.height)
	if err := t.pipeline.Frame(t.window, t.output.Tail(rows), []byte(t.editor.Text())); err != nil {
		t.logger.Warn("Failed to present frame", zap.Error(err))
	}
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
