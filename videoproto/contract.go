// Package videoproto is the concrete stand-in for the "network video
// protocol" that carries frames between mixer channels and the outside
// world: named-source discovery, a small length-prefixed raw-RGBA wire
// frame format, and transport over SRT via github.com/zsiec/srtgo. The
// protocol itself (its discovery and wire details) is treated as an
// external system by the channel components that consume it; this package
// is that system's implementation.
package videoproto

import (
	"context"
	"time"
)

// PixelFormat identifies the channel layout of a wire frame's payload.
type PixelFormat byte

const (
	// FormatRGBA is straight-alpha RGBA8, row-major, top-left origin.
	FormatRGBA PixelFormat = iota
	// FormatBGRX is BGR with a padding byte in place of alpha; treated as
	// fully opaque RGBA on decode.
	FormatBGRX
	// FormatBGRA is straight-alpha BGRA8, the mixer's output wire format.
	FormatBGRA
)

// Source describes a discovered named source available on the network.
type Source struct {
	Name string
	Addr string
}

// Discoverer enumerates sources visible on the network video protocol.
type Discoverer interface {
	// Discover scans for window and returns every source seen.
	Discover(ctx context.Context, window time.Duration) ([]Source, error)
}
