package overlay

import (
	"testing"

	"github.com/zsiec/mixer/media"
)

func solid(w, h int, r, g, b, a byte) *media.Frame {
	f := media.NewFrame(w, h)
	for i := 0; i+3 < len(f.Pix); i += media.BytesPerPixel {
		f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3] = r, g, b, a
	}
	return f
}

func TestAcceptFrameRejectsAllWhite(t *testing.T) {
	t.Parallel()
	if acceptFrame(solid(4, 4, 255, 255, 255, 255)) {
		t.Fatal("an all-white opaque frame should be rejected")
	}
}

func TestAcceptFrameRejectsLowAlpha(t *testing.T) {
	t.Parallel()
	if acceptFrame(solid(4, 4, 10, 20, 30, 100)) {
		t.Fatal("a frame with no pixel above the alpha threshold should be rejected")
	}
}

func TestAcceptFrameAcceptsOpaqueNonWhite(t *testing.T) {
	t.Parallel()
	if !acceptFrame(solid(4, 4, 10, 20, 30, 200)) {
		t.Fatal("an opaque non-white frame should be accepted")
	}
}

func TestAcceptFrameAcceptsMixedContent(t *testing.T) {
	t.Parallel()
	f := solid(4, 4, 255, 255, 255, 255)
	f.Set(0, 0, 1, 2, 3, 200) // one good pixel among otherwise-white ones
	if !acceptFrame(f) {
		t.Fatal("a single qualifying pixel should be enough to accept the frame")
	}
}
