// Package escape strips terminal control sequences from shell output.
//
// The Scanner is a stripping filter, not an emulator: CSI sequences
// (ESC [ ... letter) and OSC sequences (ESC ] ... BEL or ESC \) are dropped,
// everything else is copied through in order. Its state survives across
// calls, so a sequence split between two reads is still removed whole.
package escape

import "golang.org/x/text/transform"

const (
	esc = 0x1b
	bel = 0x07
)

// State is the scanner's position within a control sequence.
type State uint8

const (
	Normal State = iota
	EscapeSeen
	CSIParams
	OSCString

	// oscEscape is an ESC inside an OSC string that may start ESC \.
	oscEscape
)

func (s State) String() string {
	switch s {
	case Normal:
		return "normal"
	case EscapeSeen:
		return "escape"
	case CSIParams:
		return "csi"
	case OSCString, oscEscape:
		return "osc"
	default:
		return "unknown"
	}
}

// Scanner removes control sequences from a byte stream. The zero value is
// ready to use. A Scanner is not safe for concurrent use.
type Scanner struct {
	state State
}

var _ transform.Transformer = (*Scanner)(nil)

// State reports where the scanner stopped after the last input.
func (s *Scanner) State() State {
	if s.state == oscEscape {
		return OSCString
	}
	return s.state
}

// Reset returns the scanner to Normal, discarding any partial sequence.
func (s *Scanner) Reset() {
	s.state = Normal
}

// Append appends the displayable bytes of src to dst and returns the
// extended slice. Bytes of an unterminated sequence at the end of src are
// held back as state, never emitted.
func (s *Scanner) Append(dst, src []byte) []byte {
	for _, b := range src {
		if s.step(b) {
			dst = append(dst, b)
		}
	}
	return dst
}

// Transform implements transform.Transformer. It consumes all of src unless
// dst fills up.
func (s *Scanner) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		prev := s.state
		b := src[nSrc]
		if s.step(b) {
			if nDst == len(dst) {
				s.state = prev
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = b
			nDst++
		}
		nSrc++
	}
	return nDst, nSrc, nil
}

// step advances the state machine by one byte and reports whether b is
// displayable.
func (s *Scanner) step(b byte) bool {
	switch s.state {
	case EscapeSeen:
		switch b {
		case '[':
			s.state = CSIParams
			return false
		case ']':
			s.state = OSCString
			return false
		}
		// A lone ESC is dropped and b is scanned as ordinary input.
		s.state = Normal
		return s.step(b)

	case CSIParams:
		if isLetter(b) {
			s.state = Normal
		}
		return false

	case OSCString:
		switch b {
		case bel:
			s.state = Normal
		case esc:
			s.state = oscEscape
		}
		return false

	case oscEscape:
		if b == '\\' {
			s.state = Normal
			return false
		}
		s.state = OSCString
		return s.step(b)

	default:
		if b == esc {
			s.state = EscapeSeen
			return false
		}
		return true
	}
}

func isLetter(b byte) bool {
	return ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

// Scan returns text with all control sequences removed. A sequence left
// open at the end of text is dropped.
func Scan(text string) string {
	var s Scanner
	return string(s.Append(make([]byte, 0, len(text)), []byte(text)))
}
