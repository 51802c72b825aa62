// Package compositor implements the pure frame-compositing function shared
// by every channel: an ordered set of layers blended onto a reusable canvas.
// This file is the CPU reference backend; see the gpu package for the GPU
// compute equivalent, which must produce output within ±1 per channel of
// this one.
package compositor

import (
	"sort"

	"github.com/zsiec/mixer/media"
)

// opacityFixed converts a 0.0..1.0 opacity scalar into an 8.8 fixed-point
// scale in 0..256, so per-pixel blending avoids floating point entirely.
func opacityFixed(opacity float64) int {
	if opacity <= 0 {
		return 0
	}
	if opacity >= 1 {
		return 256
	}
	return int(opacity*256 + 0.5)
}

// Composite clears canvas to opaque black, stable-sorts layers by ascending
// z_index, and blends them in order using Porter-Duff "source over" with
// each layer's opacity scalar applied to its source alpha. Layers whose
// size differs from canvas are nearest-neighbor resized first. canvas is
// mutated in place and always left fully opaque.
func Composite(canvas *media.Frame, layers []media.Layer) {
	canvas.Clear()

	if len(layers) == 0 {
		return
	}

	ordered := make([]media.Layer, len(layers))
	copy(ordered, layers)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ZIndex < ordered[j].ZIndex
	})

	if len(ordered) == 1 {
		l := ordered[0]
		if l.Opacity >= 1.0 && l.Frame.SameSize(canvas) {
			copy(canvas.Pix, l.Frame.Pix)
			return
		}
	}

	for _, l := range ordered {
		opacity := opacityFixed(l.Opacity)
		if opacity == 0 {
			continue
		}
		src := l.Frame
		if !src.SameSize(canvas) {
			src = media.Resize(src, canvas.Width, canvas.Height)
		}
		blendOver(canvas, src, opacity)
	}
}

// blendOver blends src onto dst (same dimensions required) using Porter-Duff
// "over", with opacity already expressed as an 8.8 fixed-point scale in
// 0..256.
func blendOver(dst, src *media.Frame, opacity int) {
	n := len(dst.Pix)
	for i := 0; i+3 < n; i += media.BytesPerPixel {
		srcA := int(src.Pix[i+3])
		sa := (srcA * opacity) >> 8
		if sa > 255 {
			sa = 255
		}
		if sa == 0 {
			continue
		}
		if sa == 255 {
			dst.Pix[i+0] = src.Pix[i+0]
			dst.Pix[i+1] = src.Pix[i+1]
			dst.Pix[i+2] = src.Pix[i+2]
			dst.Pix[i+3] = 255
			continue
		}

		dstA := int(dst.Pix[i+3])
		outA := sa + (dstA*(255-sa))/255
		if outA <= 0 {
			continue
		}

		for c := 0; c < 3; c++ {
			sc := int(src.Pix[i+c])
			dc := int(dst.Pix[i+c])
			out := (sc*sa + dc*(255-sa)*dstA/255) / outA
			if out > 255 {
				out = 255
			}
			dst.Pix[i+c] = byte(out)
		}
		dst.Pix[i+3] = byte(outA)
	}
}
