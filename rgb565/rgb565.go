package rgb565

import (
	"image"
	"image/color"
)

// Color represents one packed RGB565 value: red in bits 15-11, green in
// bits 10-5, blue in bits 4-0.
type Color struct {
	V uint16
}

// RGBA converts the packed color to standard 16-bit RGBA. Channel values
// are expanded by bit replication so full-scale 5/6-bit values map to
// 0xFFFF exactly.
func (c Color) RGBA() (r, g, b, a uint32) {
	r5 := uint32(c.V >> 11 & 0x1F)
	g6 := uint32(c.V >> 5 & 0x3F)
	b5 := uint32(c.V & 0x1F)

	r = r5<<11 | r5<<6 | r5<<1 | r5>>4
	g = g6<<10 | g6<<4 | g6>>2
	b = b5<<11 | b5<<6 | b5<<1 | b5>>4
	return r, g, b, 0xFFFF
}

// toRGB565 converts any color.Color to Color by truncating each channel to
// its field width.
func toRGB565(c color.Color) color.Color {
	if v, ok := c.(Color); ok {
		return v
	}
	r, g, b, _ := c.RGBA()
	return Color{V: uint16(r>>11)<<11 | uint16(g>>10)<<5 | uint16(b>>11)}
}

// Model converts colors to Color.
var Model = color.ModelFunc(toRGB565)

// Image is an RGB565 image backed by a raw little-endian byte buffer, two
// bytes per pixel. It implements draw.Image.
type Image struct {
	Pix    []byte          // Pixel data, little-endian uint16 per pixel
	Stride int             // Bytes per row
	Rect   image.Rectangle // Image bounds
}

// New creates a zeroed Image with the specified bounds.
func New(r image.Rectangle) *Image {
	w, h := r.Dx(), r.Dy()
	if w < 0 || h < 0 {
		return &Image{Rect: r}
	}
	stride := w * 2
	return &Image{
		Pix:    make([]byte, stride*h),
		Stride: stride,
		Rect:   r,
	}
}

// NewWithBuffer creates an Image over an existing pixel buffer. The buffer
// must hold at least r.Dx()*r.Dy()*2 bytes; writes through the image mutate
// the buffer in place.
func NewWithBuffer(pix []byte, r image.Rectangle) *Image {
	if len(pix) < r.Dx()*r.Dy()*2 {
		panic("rgb565: buffer too small for bounds")
	}
	return &Image{
		Pix:    pix,
		Stride: r.Dx() * 2,
		Rect:   r,
	}
}

// ColorModel returns the color model of the image.
func (p *Image) ColorModel() color.Model {
	return Model
}

// Bounds returns the image bounds.
func (p *Image) Bounds() image.Rectangle {
	return p.Rect
}

// At returns the color of the pixel at (x, y).
// It implements the image.Image interface.
func (p *Image) At(x, y int) color.Color {
	return p.RGB565At(x, y)
}

// RGB565At returns the packed color of the pixel at (x, y).
func (p *Image) RGB565At(x, y int) Color {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return Color{}
	}
	i := p.pixOffset(x, y)
	return Color{V: uint16(p.Pix[i]) | uint16(p.Pix[i+1])<<8}
}

// Set sets the color of the pixel at (x, y).
func (p *Image) Set(x, y int, c color.Color) {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return
	}
	i := p.pixOffset(x, y)
	v := Model.Convert(c).(Color).V
	p.Pix[i] = byte(v)
	p.Pix[i+1] = byte(v >> 8)
}

// SetRGB565 sets the packed color of the pixel at (x, y).
// This is faster than Set as it skips color conversion.
func (p *Image) SetRGB565(x, y int, c Color) {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return
	}
	i := p.pixOffset(x, y)
	p.Pix[i] = byte(c.V)
	p.Pix[i+1] = byte(c.V >> 8)
}

// pixOffset returns the byte offset of the pixel at (x, y).
func (p *Image) pixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*2
}
