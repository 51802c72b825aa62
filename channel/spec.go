package channel

import "time"

// FilterSpec describes one compiled compute-shader filter stage: the WGSL
// source already read from its configured path, and its named parameters.
type FilterSpec struct {
	Label  string
	Source string
	Params map[string]float32
}

// NetworkInputSpec configures the one network-input layer a channel may
// have.
type NetworkInputSpec struct {
	Source  string
	ZIndex  int
	Opacity float64
	Filters []FilterSpec
}

// OverlaySpec configures one browser overlay layer.
type OverlaySpec struct {
	URL            string
	Width, Height  int
	ZIndex         int
	Opacity        float64
	CSS            string
	ReloadInterval time.Duration
	Filters        []FilterSpec
}

// Spec is a validated, immutable-after-start description of one channel,
// built from configuration. It carries everything Start needs and nothing
// it doesn't: file paths are already resolved to shader source, durations
// are already parsed.
type Spec struct {
	Name       string
	OutputName string
	Width      int
	Height     int
	FrameRate  int

	NetworkInput *NetworkInputSpec
	Overlays     []OverlaySpec

	Filters []FilterSpec // channel-level, applied after compositing
}

// FrameInterval returns the target duration between output frames.
func (s Spec) FrameInterval() time.Duration {
	return time.Second / time.Duration(s.FrameRate)
}
