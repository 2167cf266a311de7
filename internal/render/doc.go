// Package render draws terminal text into a packed-pixel framebuffer.
//
// Each frame the Pipeline clears the framebuffer, splits the output and the
// pending input into lines, asks the Font for glyph positions and coverage
// bitmaps, and writes every covered pixel inside the bounds. Text layout and
// rasterization live behind Font; presentation lives behind Window.
package render
