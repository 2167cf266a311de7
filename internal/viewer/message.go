package viewer

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/GriffinCanCode/termie/internal/editor"
)

// Message is a JSON message exchanged with a viewer.
type Message struct {
	Type     string `json:"type"`
	Key      string `json:"key,omitempty"`
	Text     string `json:"text,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	ViewerID string `json:"viewer_id,omitempty"`
	Message  string `json:"message,omitempty"`
}

var namedKeys = map[string]editor.Key{
	"enter":     editor.KeyEnter,
	"backspace": editor.KeyBackspace,
	"space":     editor.KeySpace,
	"tab":       editor.KeyTab,
	"ctrl-c":    editor.KeyInterrupt,
	"ctrl-d":    editor.KeyEOF,
}

// KeyEvent converts a key or text message into an editor event.
func (m Message) KeyEvent() (editor.KeyEvent, error) {
	switch m.Type {
	case "text":
		if m.Text == "" {
			return editor.KeyEvent{}, errors.New("empty text")
		}
		if strings.IndexFunc(m.Text, unicode.IsPrint) < 0 {
			return editor.KeyEvent{}, errors.New("no printable text")
		}
		return editor.Runes(m.Text), nil
	case "key":
		k, ok := namedKeys[m.Key]
		if !ok {
			return editor.KeyEvent{}, fmt.Errorf("unknown key %q", m.Key)
		}
		return editor.Press(k), nil
	default:
		return editor.KeyEvent{}, fmt.Errorf("not a key message: %q", m.Type)
	}
}
