// Package editor turns key events into a pending command line and decides
// what a submitted line becomes: shell input, or a request to the command
// classifier.
package editor

import (
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// ActionKind says what the caller must do after a key event.
type ActionKind int

const (
	// ActionNone: only the pending line changed (or nothing did).
	ActionNone ActionKind = iota
	// ActionWrite: write Data to the shell.
	ActionWrite
	// ActionClassify: send Data to the classifier before it reaches the shell.
	ActionClassify
)

func (k ActionKind) String() string {
	switch k {
	case ActionNone:
		return "none"
	case ActionWrite:
		return "write"
	case ActionClassify:
		return "classify"
	default:
		return "unknown"
	}
}

// Action is the result of handling one key event.
type Action struct {
	Kind ActionKind
	Data []byte
}

// Options configures an Editor.
type Options struct {
	// Cap bounds the pending line in bytes.
	Cap int

	// Classify routes submitted lines through the classifier.
	Classify bool

	Logger *zap.Logger
}

// Editor is the line-editing state machine. It owns one Line and is driven
// from a single goroutine.
type Editor struct {
	line     *Line
	classify bool
	logger   *zap.Logger
}

// New creates an editor.
func New(opts Options) *Editor {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Editor{
		line:     NewLine(opts.Cap),
		classify: opts.Classify,
		logger:   opts.Logger,
	}
}

// Text returns the pending line.
func (e *Editor) Text() string {
	return e.line.String()
}

// Handle applies ev and returns what the caller must do next.
//
// Enter on an empty line passes a bare newline to the shell so that pressing
// Enter at the prompt behaves like a real terminal. A non-empty line is
// submitted with a trailing newline and the line is cleared.
func (e *Editor) Handle(ev KeyEvent) Action {
	switch ev.Key {
	case KeyRune:
		e.insert(ev.Text)
	case KeySpace:
		e.insert(" ")
	case KeyBackspace:
		e.line.Backspace()
	case KeyEnter:
		return e.submit()
	case KeyTab:
		return Action{Kind: ActionWrite, Data: []byte{'\t'}}
	case KeyInterrupt:
		e.line.Clear()
		return Action{Kind: ActionWrite, Data: []byte{0x03}}
	case KeyEOF:
		if e.line.Empty() {
			return Action{Kind: ActionWrite, Data: []byte{0x04}}
		}
	}
	return Action{Kind: ActionNone}
}

// insert adds the printable runes of text. Newlines, ESC and the other
// control characters never enter the line; they would split or corrupt the
// submitted command.
func (e *Editor) insert(text string) {
	text = strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, text)
	if text == "" {
		return
	}
	if err := e.line.Insert(text); err != nil {
		e.logger.Debug("Dropped input past line capacity",
			zap.Int("cap", e.line.Cap()),
			zap.Int("dropped_bytes", len(text)),
		)
	}
}

func (e *Editor) submit() Action {
	if e.line.Empty() {
		return Action{Kind: ActionWrite, Data: []byte{'\n'}}
	}
	data := append(e.line.Take(), '\n')
	if e.classify {
		return Action{Kind: ActionClassify, Data: data}
	}
	return Action{Kind: ActionWrite, Data: data}
}
