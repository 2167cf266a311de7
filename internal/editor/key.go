package editor

// Key identifies a keyboard event kind.
type Key int

const (
	KeyRune Key = iota
	KeySpace
	KeyBackspace
	KeyEnter
	KeyTab
	KeyInterrupt // Ctrl-C
	KeyEOF       // Ctrl-D
)

func (k Key) String() string {
	switch k {
	case KeyRune:
		return "rune"
	case KeySpace:
		return "space"
	case KeyBackspace:
		return "backspace"
	case KeyEnter:
		return "enter"
	case KeyTab:
		return "tab"
	case KeyInterrupt:
		return "interrupt"
	case KeyEOF:
		return "eof"
	default:
		return "unknown"
	}
}

// KeyEvent is a single key press. Text carries the typed characters for
// KeyRune and may hold more than one rune (composed input, paste).
type KeyEvent struct {
	Key  Key
	Text string
}

// Runes returns a KeyRune event for text.
func Runes(text string) KeyEvent {
	return KeyEvent{Key: KeyRune, Text: text}
}

// Press returns an event for a named key.
func Press(k Key) KeyEvent {
	return KeyEvent{Key: k}
}
