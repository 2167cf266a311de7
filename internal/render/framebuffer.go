package render

import "image"

// Framebuffer is a 32-bit packed ARGB pixel buffer, row-major.
type Framebuffer struct {
	Width  int
	Height int
	Pix    []uint32
}

// NewFramebuffer allocates a width x height framebuffer.
func NewFramebuffer(width, height int) *Framebuffer {
	width, height = max(width, 0), max(height, 0)
	return &Framebuffer{Width: width, Height: height, Pix: make([]uint32, width*height)}
}

// Clear fills every pixel with c.
func (fb *Framebuffer) Clear(c uint32) {
	for i := range fb.Pix {
		fb.Pix[i] = c
	}
}

// At returns the pixel at (x, y), or 0 outside the buffer.
func (fb *Framebuffer) At(x, y int) uint32 {
	if x < 0 || y < 0 || x >= fb.Width || y >= fb.Height {
		return 0
	}
	return fb.Pix[y*fb.Width+x]
}

// Image converts the framebuffer to an opaque RGBA image for encoding.
func (fb *Framebuffer) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, fb.Width, fb.Height))
	for i, p := range fb.Pix {
		img.Pix[4*i+0] = uint8(p >> 16)
		img.Pix[4*i+1] = uint8(p >> 8)
		img.Pix[4*i+2] = uint8(p)
		img.Pix[4*i+3] = 0xff
	}
	return img
}

// Gray returns the packed pixel for a glyph coverage value: coverage in
// every color channel and in alpha.
func Gray(coverage uint8) uint32 {
	a := uint32(coverage)
	return a<<24 | a*0x010101
}

// Opaque returns an opaque packed pixel for an RGB color such as 0x1e1e1e.
func Opaque(rgb uint32) uint32 {
	return 0xff000000 | rgb&0xffffff
}
