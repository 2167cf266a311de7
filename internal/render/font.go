package render

import (
	"fmt"
	"image"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// GlyphKey identifies a rasterized glyph.
type GlyphKey struct {
	Rune rune
}

// Glyph is one laid-out glyph. X and Y locate the top-left corner of its
// bitmap relative to the top-left corner of the line.
type Glyph struct {
	X, Y int
	Key  GlyphKey
}

// Bitmap is a glyph's coverage, one byte per pixel, row-major.
type Bitmap struct {
	Width, Height int
	Coverage      []uint8
}

// Font lays out text and rasterizes glyphs. Results depend only on the text
// and the font size.
type Font interface {
	Layout(text string) []Glyph
	Rasterize(key GlyphKey) Bitmap
	// Advance is the horizontal cell width in pixels.
	Advance() int
}

// glyphData is a cached rasterization with its offset from the dot.
type glyphData struct {
	bitmap Bitmap
	dx, dy int
}

// FaceFont implements Font over an x/image font.Face. It is not safe for
// concurrent use.
type FaceFont struct {
	face    font.Face
	ascent  int
	advance int
	cache   map[rune]glyphData
}

// NewMonoFont loads the Go Mono typeface at size pixels.
func NewMonoFont(size float64) (*FaceFont, error) {
	f, err := opentype.Parse(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse go mono: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create face: %w", err)
	}
	return NewFaceFont(face), nil
}

// NewFaceFont wraps face.
func NewFaceFont(face font.Face) *FaceFont {
	adv, ok := face.GlyphAdvance('M')
	if !ok {
		adv = fixed.I(face.Metrics().Height.Ceil() / 2)
	}
	return &FaceFont{
		face:    face,
		ascent:  face.Metrics().Ascent.Ceil(),
		advance: adv.Ceil(),
		cache:   make(map[rune]glyphData),
	}
}

// Advance implements Font.
func (f *FaceFont) Advance() int {
	return f.advance
}

// Layout implements Font. Runes are placed on whole-pixel pen positions
// with kerning applied.
func (f *FaceFont) Layout(text string) []Glyph {
	glyphs := make([]Glyph, 0, len(text))
	pen := fixed.I(0)
	prev := rune(-1)
	for _, r := range text {
		if prev >= 0 {
			pen += f.face.Kern(prev, r)
		}
		g := f.glyph(r)
		glyphs = append(glyphs, Glyph{
			X:   pen.Round() + g.dx,
			Y:   f.ascent + g.dy,
			Key: GlyphKey{Rune: r},
		})
		adv, ok := f.face.GlyphAdvance(r)
		if !ok {
			adv = fixed.I(f.advance)
		}
		pen += adv
		prev = r
	}
	return glyphs
}

// Rasterize implements Font.
func (f *FaceFont) Rasterize(key GlyphKey) Bitmap {
	return f.glyph(key.Rune).bitmap
}

func (f *FaceFont) glyph(r rune) glyphData {
	if g, ok := f.cache[r]; ok {
		return g
	}

	var g glyphData
	dr, mask, maskp, _, ok := f.face.Glyph(fixed.P(0, 0), r)
	if ok && !dr.Empty() {
		g.dx, g.dy = dr.Min.X, dr.Min.Y
		g.bitmap = copyMask(mask, maskp, dr.Dx(), dr.Dy())
	}
	f.cache[r] = g
	return g
}

// copyMask copies a w x h region of mask starting at maskp. The face reuses
// its mask buffer between calls.
func copyMask(mask image.Image, maskp image.Point, w, h int) Bitmap {
	bm := Bitmap{Width: w, Height: h, Coverage: make([]uint8, w*h)}
	if alpha, ok := mask.(*image.Alpha); ok {
		for y := 0; y < h; y++ {
			off := alpha.PixOffset(maskp.X, maskp.Y+y)
			copy(bm.Coverage[y*w:(y+1)*w], alpha.Pix[off:off+w])
		}
		return bm
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			_, _, _, a := mask.At(maskp.X+x, maskp.Y+y).RGBA()
			bm.Coverage[y*w+x] = uint8(a >> 8)
		}
	}
	return bm
}
