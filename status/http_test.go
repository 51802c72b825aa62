package status

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/zsiec/mixer/channel"
)

func fakeState(name string, withNetworkInput bool, overlayURLs ...string) *channel.State {
	spec := channel.Spec{
		Name:       name,
		OutputName: name + "-out",
		Width:      1920,
		Height:     1080,
		FrameRate:  30,
	}
	if withNetworkInput {
		spec.NetworkInput = &channel.NetworkInputSpec{Source: "cam1"}
	}
	for _, u := range overlayURLs {
		spec.Overlays = append(spec.Overlays, channel.OverlaySpec{URL: u, Width: 1280, Height: 720})
	}
	return channel.NewState(spec)
}

func TestBuildResponseBasicShape(t *testing.T) {
	t.Parallel()
	st := fakeState("main", false)
	resp := buildResponse("v1.0.0", "gpu", time.Now().Add(-5*time.Second), []*channel.State{st})

	if resp.Version != "v1.0.0" {
		t.Errorf("version: got %q", resp.Version)
	}
	if resp.Compositor != "gpu" {
		t.Errorf("compositor: got %q, want gpu", resp.Compositor)
	}
	if resp.UptimeSeconds < 4 || resp.UptimeSeconds > 10 {
		t.Errorf("uptime_seconds: got %d, want ~5", resp.UptimeSeconds)
	}
	if len(resp.Channels) != 1 {
		t.Fatalf("expected 1 channel, got %d", len(resp.Channels))
	}

	ch := resp.Channels[0]
	if ch.Name != "main" || ch.OutputName != "main-out" {
		t.Errorf("unexpected name/output_name: %+v", ch)
	}
	if ch.Resolution != "1920x1080" {
		t.Errorf("resolution: got %q", ch.Resolution)
	}
	if ch.FrameRate != 30 {
		t.Errorf("frame_rate: got %d", ch.FrameRate)
	}
	if ch.NetworkInput != nil {
		t.Errorf("expected no network_input, got %+v", ch.NetworkInput)
	}
	if len(ch.BrowserOverlays) != 0 {
		t.Errorf("expected no overlays, got %+v", ch.BrowserOverlays)
	}
}

func TestBuildResponseWithNetworkInputAndOverlays(t *testing.T) {
	t.Parallel()
	st := fakeState("main", true, "https://example.com/a", "https://example.com/b")
	st.SetNetworkConnected(true)
	st.SetNetworkFramesReceived(42)
	st.AddFramesOutput(100)
	st.Overlays[1].SetLoaded(true)

	resp := buildResponse("v1.0.0", "cpu", time.Now(), []*channel.State{st})
	ch := resp.Channels[0]

	if ch.NetworkInput == nil {
		t.Fatal("expected network_input to be present")
	}
	if ch.NetworkInput.Source != "cam1" {
		t.Errorf("network_input.source: got %q", ch.NetworkInput.Source)
	}
	if !ch.NetworkInput.Connected {
		t.Error("expected network_input.connected = true")
	}
	if ch.NetworkInput.FramesReceived != 42 {
		t.Errorf("network_input.frames_received: got %d", ch.NetworkInput.FramesReceived)
	}
	if ch.FramesOutput != 100 {
		t.Errorf("frames_output: got %d", ch.FramesOutput)
	}

	if len(ch.BrowserOverlays) != 2 {
		t.Fatalf("expected 2 overlays, got %d", len(ch.BrowserOverlays))
	}
	if ch.BrowserOverlays[0].Loaded {
		t.Error("first overlay should not be loaded")
	}
	if !ch.BrowserOverlays[1].Loaded {
		t.Error("second overlay should be loaded")
	}
}

func TestBuildResponseJSONFieldNames(t *testing.T) {
	t.Parallel()
	st := fakeState("main", true, "https://example.com/a")
	resp := buildResponse("v1.0.0", "gpu", time.Now(), []*channel.State{st})

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"version", "compositor", "uptime_seconds", "channels"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing top-level key %q in %s", key, data)
		}
	}

	channels, _ := raw["channels"].([]any)
	if len(channels) != 1 {
		t.Fatalf("expected 1 channel in JSON, got %d", len(channels))
	}
	chMap, _ := channels[0].(map[string]any)
	for _, key := range []string{"name", "output_name", "resolution", "frame_rate", "network_input", "browser_overlays", "frames_output"} {
		if _, ok := chMap[key]; !ok {
			t.Errorf("missing channel key %q in %s", key, data)
		}
	}
}

func TestRefreshMetricsDoesNotPanicOnEmptyState(t *testing.T) {
	t.Parallel()
	refreshMetrics(nil)
	refreshMetrics([]*channel.State{fakeState("solo", false)})
}
