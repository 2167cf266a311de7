package bridge

import (
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/GriffinCanCode/termie/internal/escape"
)

// Decoder turns raw pty output into displayable text. A rune or a control
// sequence split across two chunks is completed by the next call.
type Decoder struct {
	chain   transform.Transformer
	scanner *escape.Scanner
	pending []byte
	buf     []byte
}

// NewDecoder creates a decoder in the Normal scanner state. Invalid UTF-8
// becomes U+FFFD before the scanner sees it.
func NewDecoder() *Decoder {
	scanner := &escape.Scanner{}
	return &Decoder{
		chain:   transform.Chain(unicode.UTF8.NewDecoder(), scanner),
		scanner: scanner,
		buf:     make([]byte, 4096),
	}
}

// Decode appends the displayable text of chunk to dst.
func (d *Decoder) Decode(dst, chunk []byte) []byte {
	return d.run(dst, chunk, false)
}

// Flush appends whatever an incomplete trailing rune decodes to, U+FFFD, and
// is called once the stream has ended. An unterminated control sequence
// stays swallowed.
func (d *Decoder) Flush(dst []byte) []byte {
	return d.run(dst, nil, true)
}

// State reports the scanner state after the last call.
func (d *Decoder) State() escape.State {
	return d.scanner.State()
}

// Reset discards any partial rune or sequence.
func (d *Decoder) Reset() {
	d.chain.Reset()
	d.pending = d.pending[:0]
}

func (d *Decoder) run(dst, chunk []byte, atEOF bool) []byte {
	src := chunk
	if len(d.pending) > 0 {
		src = append(d.pending, chunk...)
	}

	for {
		nDst, nSrc, err := d.chain.Transform(d.buf, src, atEOF)
		dst = append(dst, d.buf[:nDst]...)
		src = src[nSrc:]

		if err == transform.ErrShortDst {
			if nDst == 0 && nSrc == 0 {
				d.buf = make([]byte, 2*len(d.buf))
			}
			continue
		}
		// ErrShortSrc: an incomplete rune stays pending for the next chunk.
		break
	}
	d.pending = append(d.pending[:0], src...)
	return dst
}
