package render

import (
	"bytes"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/GriffinCanCode/termie/internal/infrastructure/monitoring"
)

const tabWidth = 8

// Window is the presentation surface.
type Window interface {
	CurrentSize() (width, height int)
	Resize(width, height int)
	AcquireFramebuffer() *Framebuffer
	Present(fb *Framebuffer) error
}

// Options configures a Pipeline.
type Options struct {
	// LinePitch is the vertical distance between line tops in pixels.
	LinePitch int
	// Margin is the left and top inset in pixels.
	Margin int
	// Background is the clear color, 0xRRGGBB.
	Background uint32

	Metrics *monitoring.Metrics
}

// Pipeline composes terminal text into a framebuffer.
type Pipeline struct {
	font    Font
	pitch   int
	margin  int
	bg      uint32
	metrics *monitoring.Metrics

	lines []string
}

// NewPipeline creates a pipeline drawing with f.
func NewPipeline(f Font, opts Options) *Pipeline {
	if opts.LinePitch <= 0 {
		opts.LinePitch = 20
	}
	if opts.Margin < 0 {
		opts.Margin = 0
	}
	return &Pipeline{
		font:    f,
		pitch:   opts.LinePitch,
		margin:  opts.Margin,
		bg:      Opaque(opts.Background),
		metrics: opts.Metrics,
	}
}

// Grid returns how many character cells fit in a width x height surface.
func (p *Pipeline) Grid(width, height int) (cols, rows int) {
	if adv := p.font.Advance(); adv > 0 {
		cols = max((width-2*p.margin)/adv, 1)
	}
	rows = max((height-2*p.margin)/p.pitch, 1)
	return cols, rows
}

// Compose clears fb and draws output followed by the pending input line.
// When there are more lines than fit, the last ones are shown. Only the
// visible rows of output are decoded, so the cost of a frame does not grow
// with the size of output.
func (p *Pipeline) Compose(fb *Framebuffer, output, input []byte) {
	start := time.Now()
	fb.Clear(p.bg)

	_, rows := p.Grid(fb.Width, fb.Height)
	p.lines = splitLines(p.lines[:0], lastLines(output, rows), input, p.visibleCols(fb.Width))
	first := max(len(p.lines)-rows, 0)

	for i, line := range p.lines[first:] {
		top := p.margin + i*p.pitch
		if top >= fb.Height {
			break
		}
		p.drawLine(fb, p.margin, top, line)
	}

	p.metrics.RecordFrame(time.Since(start))
}

// Frame acquires a framebuffer from w, composes into it and presents it.
func (p *Pipeline) Frame(w Window, output, input []byte) error {
	fb := w.AcquireFramebuffer()
	p.Compose(fb, output, input)
	return w.Present(fb)
}

// visibleCols is the number of cells that can land inside a surface of the
// given width, counting a partially visible last cell. Zero means unbounded.
func (p *Pipeline) visibleCols(width int) int {
	adv := p.font.Advance()
	if adv <= 0 {
		return 0
	}
	return max((width-p.margin)/adv+1, 1)
}

func (p *Pipeline) drawLine(fb *Framebuffer, left, top int, line string) {
	for _, g := range p.font.Layout(line) {
		bm := p.font.Rasterize(g.Key)
		if bm.Width == 0 || bm.Height == 0 {
			continue
		}
		blit(fb, left+g.X, top+g.Y, bm, p.bg)
	}
}

// blit writes bm's coverage at (x0, y0), clipping to the framebuffer. Where
// glyphs overlap the higher coverage wins.
func blit(fb *Framebuffer, x0, y0 int, bm Bitmap, bg uint32) {
	for y := 0; y < bm.Height; y++ {
		py := y0 + y
		if py < 0 || py >= fb.Height {
			continue
		}
		row := bm.Coverage[y*bm.Width : (y+1)*bm.Width]
		for x, a := range row {
			px := x0 + x
			if a == 0 || px < 0 || px >= fb.Width {
				continue
			}
			i := py*fb.Width + px
			if cur := fb.Pix[i]; cur == bg || uint8(cur>>24) < a {
				fb.Pix[i] = Gray(a)
			}
		}
	}
}

// lastLines returns the suffix of b holding its last n lines. The result
// aliases b.
func lastLines(b []byte, n int) []byte {
	end := len(b)
	for ; n > 0; n-- {
		i := bytes.LastIndexByte(b[:end], '\n')
		if i < 0 {
			return b
		}
		end = i
	}
	return b[end+1:]
}

// splitLines joins output and input and splits the result into displayable
// lines: carriage returns and other control characters are dropped, tabs
// are expanded. When limit is positive each line keeps at most limit cells;
// cells past the limit still count for backspacing.
func splitLines(dst []string, output, input []byte, limit int) []string {
	var sb strings.Builder
	col := 0
	flush := func() {
		dst = append(dst, sb.String())
		sb.Reset()
		col = 0
	}
	clipped := func() bool { return limit > 0 && col >= limit }
	write := func(b []byte) {
		for len(b) > 0 {
			r, size := utf8.DecodeRune(b)
			b = b[size:]
			switch {
			case r == '\n':
				flush()
			case r == '\t':
				n := tabWidth - col%tabWidth
				for ; n > 0; n-- {
					if !clipped() {
						sb.WriteByte(' ')
					}
					col++
				}
			case r == '\b':
				if col == 0 {
					break
				}
				col--
				if !clipped() {
					s := []rune(sb.String())
					sb.Reset()
					sb.WriteString(string(s[:len(s)-1]))
				}
			case unicode.IsControl(r):
			default:
				if !clipped() {
					sb.WriteRune(r)
				}
				col++
			}
		}
	}
	write(output)
	write(input)
	flush()
	return dst
}
