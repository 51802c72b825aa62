package videoproto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/zsiec/mixer/media"
)

// wireMagic identifies the start of a frame on the wire.
var wireMagic = [4]byte{'M', 'X', 'F', 'R'}

// headerSize is the fixed-size prefix before a frame's pixel payload:
// magic(4) + width(4) + height(4) + format(1) + payloadLen(4).
const headerSize = 4 + 4 + 4 + 1 + 4

// ErrBadMagic is returned by Decode when the wire magic does not match.
var ErrBadMagic = errors.New("videoproto: bad frame magic")

// EncodeFrame writes f to w as a length-prefixed wire frame tagged with
// format. The payload is f.Pix verbatim; callers are responsible for
// converting to the wire format (e.g. RGBA→BGRA) before calling this.
func EncodeFrame(w io.Writer, f *media.Frame, format PixelFormat) error {
	var hdr [headerSize]byte
	copy(hdr[0:4], wireMagic[:])
	binary.BigEndian.PutUint32(hdr[4:8], uint32(f.Width))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(f.Height))
	hdr[12] = byte(format)
	binary.BigEndian.PutUint32(hdr[13:17], uint32(len(f.Pix)))

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("videoproto: write header: %w", err)
	}
	if _, err := w.Write(f.Pix); err != nil {
		return fmt.Errorf("videoproto: write payload: %w", err)
	}
	return nil
}

// DecodeFrame reads one wire frame from r, decoding BGRX/BGRA payloads to
// straight-alpha RGBA. It returns the decoded frame and the wire format it
// arrived in.
func DecodeFrame(r io.Reader) (*media.Frame, PixelFormat, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, 0, fmt.Errorf("videoproto: read header: %w", err)
	}
	if hdr[0] != wireMagic[0] || hdr[1] != wireMagic[1] || hdr[2] != wireMagic[2] || hdr[3] != wireMagic[3] {
		return nil, 0, ErrBadMagic
	}

	width := int(binary.BigEndian.Uint32(hdr[4:8]))
	height := int(binary.BigEndian.Uint32(hdr[8:12]))
	format := PixelFormat(hdr[12])
	payloadLen := int(binary.BigEndian.Uint32(hdr[13:17]))

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, 0, fmt.Errorf("videoproto: read payload: %w", err)
	}

	f := &media.Frame{Width: width, Height: height, Pix: payload}
	switch format {
	case FormatRGBA:
		// Already straight-alpha RGBA; nothing to do.
	case FormatBGRX:
		bgrxToRGBA(f.Pix)
	case FormatBGRA:
		swapRedBlue(f.Pix)
	default:
		return nil, 0, fmt.Errorf("videoproto: unknown pixel format %d", format)
	}
	return f, format, nil
}

// swapRedBlue exchanges the R and B bytes of every pixel in place. It is
// its own inverse: RGBA→BGRA and BGRA→RGBA use the same operation.
func swapRedBlue(pix []byte) {
	for i := 0; i+3 < len(pix); i += media.BytesPerPixel {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}

// bgrxToRGBA converts BGRX (B,G,R,X padding) pixels to straight-alpha RGBA
// in place, treating every pixel as fully opaque.
func bgrxToRGBA(pix []byte) {
	for i := 0; i+3 < len(pix); i += media.BytesPerPixel {
		b, g, r := pix[i], pix[i+1], pix[i+2]
		pix[i], pix[i+1], pix[i+2], pix[i+3] = r, g, b, 255
	}
}

// RGBAToBGRA converts f's straight-alpha RGBA pixels into dst (reused
// across calls) as straight-alpha BGRA, the mixer's output wire format.
// dst is reallocated only if it does not already match f's size.
func RGBAToBGRA(f *media.Frame, dst []byte) []byte {
	if len(dst) != len(f.Pix) {
		dst = make([]byte, len(f.Pix))
	}
	for i := 0; i+3 < len(f.Pix); i += media.BytesPerPixel {
		dst[i+0] = f.Pix[i+2]
		dst[i+1] = f.Pix[i+1]
		dst[i+2] = f.Pix[i+0]
		dst[i+3] = f.Pix[i+3]
	}
	return dst
}
