// Package media defines the core frame type that flows through the mixer's
// per-channel pipeline, from producers through the compositor to the
// network output sender.
package media

import "fmt"

// BytesPerPixel is the stride of one RGBA8 pixel.
const BytesPerPixel = 4

// Frame is a straight-alpha RGBA8 image: width, height, and tightly packed
// pixel bytes in row-major, top-left origin order. Alpha 0 means fully
// transparent, 255 means fully opaque.
type Frame struct {
	Width  int
	Height int
	Pix    []byte // len == Width*Height*BytesPerPixel
}

// NewFrame allocates a zeroed frame of the given dimensions. The pixel
// buffer is not cleared to any particular color; callers that need opaque
// black should use Clear.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*BytesPerPixel),
	}
}

// Stride returns the byte length of one row.
func (f *Frame) Stride() int {
	return f.Width * BytesPerPixel
}

// SameSize reports whether f and other have equal width and height.
func (f *Frame) SameSize(other *Frame) bool {
	return f.Width == other.Width && f.Height == other.Height
}

// Clear fills the frame with opaque black (R=G=B=0, A=255).
func (f *Frame) Clear() {
	for i := 0; i < len(f.Pix); i += BytesPerPixel {
		f.Pix[i+0] = 0
		f.Pix[i+1] = 0
		f.Pix[i+2] = 0
		f.Pix[i+3] = 255
	}
}

// CopyFrom replaces f's contents with a copy of src's pixels. src must be
// the same size as f.
func (f *Frame) CopyFrom(src *Frame) error {
	if !f.SameSize(src) {
		return fmt.Errorf("media: copy size mismatch: dst %dx%d, src %dx%d", f.Width, f.Height, src.Width, src.Height)
	}
	copy(f.Pix, src.Pix)
	return nil
}

// Clone returns a deep copy of f.
func (f *Frame) Clone() *Frame {
	out := &Frame{Width: f.Width, Height: f.Height, Pix: make([]byte, len(f.Pix))}
	copy(out.Pix, f.Pix)
	return out
}

// At returns the RGBA bytes of the pixel at (x, y).
func (f *Frame) At(x, y int) (r, g, b, a byte) {
	i := (y*f.Width + x) * BytesPerPixel
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3]
}

// Set writes the RGBA bytes of the pixel at (x, y).
func (f *Frame) Set(x, y int, r, g, b, a byte) {
	i := (y*f.Width + x) * BytesPerPixel
	f.Pix[i] = r
	f.Pix[i+1] = g
	f.Pix[i+2] = b
	f.Pix[i+3] = a
}

// SourceKind identifies which producer a Layer's frame originated from, used
// to route per-layer filter chains.
type SourceKind int

const (
	// SourceNetworkInput marks a layer sourced from the channel's network
	// video input.
	SourceNetworkInput SourceKind = iota
	// SourceBrowserOverlay marks a layer sourced from a browser overlay;
	// OverlayIndex distinguishes which configured overlay it is.
	SourceBrowserOverlay
)

// Layer is a single composited input: a frame reference plus the blend
// parameters that govern how it is drawn into the canvas.
type Layer struct {
	Frame        *Frame
	Opacity      float64 // 0.0..1.0, scalar applied to source alpha
	ZIndex       int     // render order, ascending, lower drawn first
	Source       SourceKind
	OverlayIndex int // meaningful only when Source == SourceBrowserOverlay
}
