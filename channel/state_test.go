package channel

import "testing"

func TestStateDefaultsToDisconnectedAndCPU(t *testing.T) {
	t.Parallel()
	s := &State{Name: "test"}

	if s.NetworkConnected() {
		t.Error("NetworkConnected should default to false")
	}
	if s.NetworkFramesReceived() != 0 {
		t.Error("NetworkFramesReceived should default to 0")
	}
	if s.FramesOutput() != 0 {
		t.Error("FramesOutput should default to 0")
	}
	if s.UsingGPU() {
		t.Error("UsingGPU should default to false")
	}
}

func TestStateCountersUpdateIndependently(t *testing.T) {
	t.Parallel()
	s := &State{}

	s.networkConnected.Store(true)
	s.networkFrames.Store(7)
	s.framesOutput.Add(3)
	s.usingGPU.Store(true)

	if !s.NetworkConnected() {
		t.Error("NetworkConnected should report true after Store")
	}
	if got := s.NetworkFramesReceived(); got != 7 {
		t.Errorf("NetworkFramesReceived() = %d, want 7", got)
	}
	if got := s.FramesOutput(); got != 3 {
		t.Errorf("FramesOutput() = %d, want 3", got)
	}
	if !s.UsingGPU() {
		t.Error("UsingGPU should report true after Store")
	}
}

func TestOverlayStateLoaded(t *testing.T) {
	t.Parallel()
	o := &OverlayState{URL: "https://example.com"}

	if o.Loaded() {
		t.Error("Loaded should default to false")
	}
	o.loaded.Store(true)
	if !o.Loaded() {
		t.Error("Loaded should report true after Store")
	}
}
