package media

import (
	"image"

	"golang.org/x/image/draw"
)

// Resize returns a new Frame holding src resized to (width, height) via
// nearest-neighbor sampling, the only resize discipline this system uses:
// layers are expected to already match the canvas size in the common case,
// and nearest-neighbor is cheap enough to fit inside one render tick when
// they don't.
func Resize(src *Frame, width, height int) *Frame {
	dst := NewFrame(width, height)
	draw.NearestNeighbor.Scale(asRGBA(dst), asRGBA(dst).Bounds(), asRGBA(src), asRGBA(src).Bounds(), draw.Src, nil)
	return dst
}

// asRGBA wraps a Frame's pixel buffer as an *image.RGBA without copying.
func asRGBA(f *Frame) *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Stride(),
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}
