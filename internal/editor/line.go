package editor

import (
	"errors"
	"unicode/utf8"
)

// DefaultCap is the default InputLine capacity in bytes.
const DefaultCap = 4096

// ErrLineFull is returned when a character does not fit in the line.
var ErrLineFull = errors.New("input line is full")

// Line is the pending command line, bounded to a fixed number of bytes.
type Line struct {
	buf []byte
	cap int
}

// NewLine creates an empty line holding at most capacity bytes.
func NewLine(capacity int) *Line {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Line{buf: make([]byte, 0, 64), cap: capacity}
}

// Insert appends text. If text does not fit, as many whole runes as fit are
// kept and ErrLineFull is returned.
func (l *Line) Insert(text string) error {
	if len(l.buf)+len(text) <= l.cap {
		l.buf = append(l.buf, text...)
		return nil
	}
	for _, r := range text {
		if len(l.buf)+utf8.RuneLen(r) > l.cap {
			return ErrLineFull
		}
		l.buf = utf8.AppendRune(l.buf, r)
	}
	return nil
}

// Backspace removes the last rune. It is a no-op on an empty line.
func (l *Line) Backspace() {
	if len(l.buf) == 0 {
		return
	}
	_, size := utf8.DecodeLastRune(l.buf)
	l.buf = l.buf[:len(l.buf)-size]
}

// Take returns the line contents and clears the line.
func (l *Line) Take() []byte {
	out := make([]byte, len(l.buf))
	copy(out, l.buf)
	l.buf = l.buf[:0]
	return out
}

// Clear empties the line.
func (l *Line) Clear() {
	l.buf = l.buf[:0]
}

func (l *Line) String() string { return string(l.buf) }
func (l *Line) Len() int       { return len(l.buf) }
func (l *Line) Cap() int       { return l.cap }
func (l *Line) Empty() bool    { return len(l.buf) == 0 }
