package bridge

import (
	"github.com/GriffinCanCode/termie/internal/pty"
)

// Event is a message delivered to the tick loop.
type Event interface {
	isEvent()
}

// Output carries newly scanned, displayable shell output.
type Output struct {
	Text []byte
}

// Closed reports that the shell's side of the pty is gone and the child was
// reaped. Err is set when reading stopped because of an I/O failure.
type Closed struct {
	Status pty.ExitStatus
	Err    error
}

// Classification is the classifier's verdict for a submitted line.
type Classification struct {
	Line      []byte
	IsCommand bool
}

// ClassifierError reports a failed classifier call. The line is treated as
// natural language.
type ClassifierError struct {
	Line    []byte
	Message string
}

// Answer carries a model reply to a natural-language line.
type Answer struct {
	Line []byte
	Text string
}

func (Output) isEvent()          {}
func (Closed) isEvent()          {}
func (Classification) isEvent()  {}
func (ClassifierError) isEvent() {}
func (Answer) isEvent()          {}
