// Package status exposes a running mixer process's state over HTTP: a
// JSON status document per spec.md §6, and a Prometheus scrape endpoint.
package status

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FramesOutput tracks the cumulative count of output frames per channel.
// It is a gauge rather than a counter because channel.State already holds
// the running total as a plain atomic; refreshMetrics sets it to that
// total directly instead of tracking deltas.
var FramesOutput = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "mixer_frames_output_total",
	Help: "Total frames sent to output, per channel.",
}, []string{"channel"})

// NetworkInputFrames tracks the cumulative count of network input frames
// received per channel, for the same reason FramesOutput is a gauge.
var NetworkInputFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "mixer_network_input_frames_total",
	Help: "Total frames received from network input, per channel.",
}, []string{"channel"})

// NetworkInputConnected reports whether a channel's network input is
// currently connected (1) or not (0).
var NetworkInputConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "mixer_network_input_connected",
	Help: "1 if the channel's network input is connected, 0 otherwise.",
}, []string{"channel"})

// UsingGPU reports whether a channel's most recent composite used the GPU
// path (1) or the CPU fallback (0).
var UsingGPU = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "mixer_channel_using_gpu",
	Help: "1 if the channel's most recent composite ran on the GPU, 0 if it fell back to CPU.",
}, []string{"channel"})

// OverlayLoaded reports whether a browser overlay has finished its setup
// sequence (1) or is still loading (0).
var OverlayLoaded = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "mixer_overlay_loaded",
	Help: "1 if the overlay has finished loading, 0 while it is still loading.",
}, []string{"channel", "url"})

// MetricsHandler returns the Prometheus scrape handler for GET /metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// gaugeBool sets a GaugeVec's single value to 1 or 0.
func gaugeBool(g *prometheus.GaugeVec, labels []string, v bool) {
	val := 0.0
	if v {
		val = 1.0
	}
	g.WithLabelValues(labels...).Set(val)
}
