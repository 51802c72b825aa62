package overlay

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodeTestPNG(t *testing.T, w, h int, fill color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestDecodePNGToFrame(t *testing.T) {
	t.Parallel()
	data := encodeTestPNG(t, 3, 2, color.NRGBA{R: 10, G: 20, B: 30, A: 200})

	f, err := decodePNGToFrame(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Width != 3 || f.Height != 2 {
		t.Fatalf("dims: got %dx%d, want 3x2", f.Width, f.Height)
	}
	r, g, b, a := f.At(0, 0)
	if r != 10 || g != 20 || b != 30 || a != 200 {
		t.Fatalf("pixel: got (%d,%d,%d,%d)", r, g, b, a)
	}
}

func TestDecodeBase64PNGToFrame(t *testing.T) {
	t.Parallel()
	data := encodeTestPNG(t, 2, 2, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	b64 := base64.StdEncoding.EncodeToString(data)

	f, err := decodeBase64PNGToFrame(b64)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	r, g, b, a := f.At(1, 1)
	if r != 1 || g != 2 || b != 3 || a != 255 {
		t.Fatalf("pixel: got (%d,%d,%d,%d)", r, g, b, a)
	}
}

func TestDecodeBase64PNGToFrameInvalidBase64(t *testing.T) {
	t.Parallel()
	if _, err := decodeBase64PNGToFrame("not valid base64!!"); err == nil {
		t.Fatal("expected an error for invalid base64")
	}
}
