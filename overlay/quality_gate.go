package overlay

import "github.com/zsiec/mixer/media"

// acceptFrame reports whether f is fit to publish: it must contain at least
// one pixel that is meaningfully opaque (alpha > 128) and not pure white,
// which filters out the broken-alpha and white-background frames the
// transparent screencast path occasionally emits.
func acceptFrame(f *media.Frame) bool {
	for i := 0; i+3 < len(f.Pix); i += media.BytesPerPixel {
		r, g, b, a := f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3]
		if a > 128 && !(r == 255 && g == 255 && b == 255) {
			return true
		}
	}
	return false
}
