package channel

import "sync/atomic"

// OverlayState is the status-reporting view of one browser overlay layer:
// a static URL plus an atomically-updated loaded flag.
type OverlayState struct {
	URL     string
	loaded  atomic.Bool
	Filters []FilterSpec
}

// Loaded reports whether the overlay has completed its setup sequence.
func (o *OverlayState) Loaded() bool {
	return o.loaded.Load()
}

// SetLoaded updates the overlay's loaded flag.
func (o *OverlayState) SetLoaded(v bool) {
	o.loaded.Store(v)
}

// State is the atomic-counter-backed runtime status of a running channel,
// safe for concurrent reads from the status server while the render loop
// and producers update it.
type State struct {
	Name       string
	OutputName string
	Width      int
	Height     int
	FrameRate  int
	Filters    []FilterSpec

	NetworkInputSource string // "" if this channel has no network input
	networkConnected    atomic.Bool
	networkFrames       atomic.Uint64

	Overlays []*OverlayState

	framesOutput atomic.Uint64
	usingGPU     atomic.Bool
}

// NetworkConnected reports whether the network input layer currently has a
// live connection. Always false if the channel has no network input.
func (s *State) NetworkConnected() bool {
	return s.networkConnected.Load()
}

// NetworkFramesReceived returns the count of frames received from the
// network input layer.
func (s *State) NetworkFramesReceived() uint64 {
	return s.networkFrames.Load()
}

// FramesOutput returns the count of frames this channel has sent to its
// output.
func (s *State) FramesOutput() uint64 {
	return s.framesOutput.Load()
}

// UsingGPU reports whether the most recent composite used the GPU path.
func (s *State) UsingGPU() bool {
	return s.usingGPU.Load()
}

// SetNetworkConnected updates whether the network input layer currently has
// a live connection.
func (s *State) SetNetworkConnected(v bool) {
	s.networkConnected.Store(v)
}

// SetNetworkFramesReceived updates the count of frames received from the
// network input layer.
func (s *State) SetNetworkFramesReceived(v uint64) {
	s.networkFrames.Store(v)
}

// AddFramesOutput adds delta to the count of frames sent to output.
func (s *State) AddFramesOutput(delta uint64) {
	s.framesOutput.Add(delta)
}

// SetUsingGPU updates whether the most recent composite used the GPU path.
func (s *State) SetUsingGPU(v bool) {
	s.usingGPU.Store(v)
}
