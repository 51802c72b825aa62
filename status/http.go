package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/zsiec/mixer/channel"
)

// Server is the HTTP status endpoint: GET /status (spec.md §6's JSON
// document) and GET /metrics (Prometheus scrape).
type Server struct {
	log        *slog.Logger
	httpSrv    *http.Server
	version    string
	compositor string // "cpu" or "gpu", fixed for the process's lifetime
	startTime  time.Time
	listStates func() []*channel.State
}

// NewServer builds a status server listening on addr (e.g. "0.0.0.0:8080").
// compositor reflects the backend chosen at startup (spec.md §6's "compositor
// selection" signal), not any single channel's per-tick fallback state.
// listStates is called on every request to build a fresh snapshot.
func NewServer(addr, version, compositor string, listStates func() []*channel.State, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		log:        log.With("component", "status"),
		version:    version,
		compositor: compositor,
		startTime:  time.Now(),
		listStates: listStates,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", MetricsHandler())
	s.httpSrv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start runs the server until ctx is cancelled, then shuts it down
// gracefully. It mirrors the apiSrv serve/shutdown pair in cmd/prism/main.go,
// folded into a single reusable call instead of two inline goroutines.
func (s *Server) Start(ctx context.Context) error {
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("status server shutdown error", "error", err)
		}
		close(shutdownDone)
	}()

	s.log.Info("status endpoint listening", "addr", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	<-shutdownDone
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status: %w", err)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	states := s.listStates()
	refreshMetrics(states)

	resp := buildResponse(s.version, s.compositor, s.startTime, states)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Warn("encode status response", "error", err)
	}
}

type statusResponse struct {
	Version       string          `json:"version"`
	Compositor    string          `json:"compositor"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Channels      []channelStatus `json:"channels"`
}

type channelStatus struct {
	Name            string                 `json:"name"`
	OutputName      string                 `json:"output_name"`
	Resolution      string                 `json:"resolution"`
	FrameRate       int                    `json:"frame_rate"`
	NetworkInput    *networkInputStatus    `json:"network_input,omitempty"`
	BrowserOverlays []browserOverlayStatus `json:"browser_overlays"`
	Filters         []filterStatus         `json:"filters,omitempty"`
	FramesOutput    uint64                 `json:"frames_output"`
}

type networkInputStatus struct {
	Source         string         `json:"source"`
	Connected      bool           `json:"connected"`
	FramesReceived uint64         `json:"frames_received"`
	Filters        []filterStatus `json:"filters,omitempty"`
}

type browserOverlayStatus struct {
	URL     string         `json:"url"`
	Loaded  bool           `json:"loaded"`
	Filters []filterStatus `json:"filters,omitempty"`
}

type filterStatus struct {
	Shader string `json:"shader"`
}

// buildResponse is pure: it reads the current value of every atomic counter
// in states exactly once and assembles the JSON document, so a status
// response is always a consistent-enough snapshot even while the render
// loops keep running concurrently.
func buildResponse(version, compositor string, startTime time.Time, states []*channel.State) statusResponse {
	resp := statusResponse{
		Version:       version,
		Compositor:    compositor,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		Channels:      make([]channelStatus, 0, len(states)),
	}
	for _, st := range states {
		resp.Channels = append(resp.Channels, channelStatusFrom(st))
	}
	return resp
}

func channelStatusFrom(st *channel.State) channelStatus {
	cs := channelStatus{
		Name:            st.Name,
		OutputName:      st.OutputName,
		Resolution:      fmt.Sprintf("%dx%d", st.Width, st.Height),
		FrameRate:       st.FrameRate,
		BrowserOverlays: make([]browserOverlayStatus, 0, len(st.Overlays)),
		Filters:         filterStatusesFrom(st.Filters),
		FramesOutput:    st.FramesOutput(),
	}
	if st.NetworkInputSource != "" {
		cs.NetworkInput = &networkInputStatus{
			Source:         st.NetworkInputSource,
			Connected:      st.NetworkConnected(),
			FramesReceived: st.NetworkFramesReceived(),
		}
	}
	for _, ov := range st.Overlays {
		cs.BrowserOverlays = append(cs.BrowserOverlays, browserOverlayStatus{
			URL:     ov.URL,
			Loaded:  ov.Loaded(),
			Filters: filterStatusesFrom(ov.Filters),
		})
	}
	return cs
}

func filterStatusesFrom(filters []channel.FilterSpec) []filterStatus {
	if len(filters) == 0 {
		return nil
	}
	out := make([]filterStatus, len(filters))
	for i, f := range filters {
		out[i] = filterStatus{Shader: f.Label}
	}
	return out
}

// refreshMetrics pushes every channel's current counters into the
// Prometheus gauges declared in metrics.go, setting each to its absolute
// current value rather than incrementing, since channel.State already
// holds the running total.
func refreshMetrics(states []*channel.State) {
	for _, st := range states {
		FramesOutput.WithLabelValues(st.Name).Set(float64(st.FramesOutput()))
		gaugeBool(UsingGPU, []string{st.Name}, st.UsingGPU())

		if st.NetworkInputSource != "" {
			NetworkInputFrames.WithLabelValues(st.Name).Set(float64(st.NetworkFramesReceived()))
			gaugeBool(NetworkInputConnected, []string{st.Name}, st.NetworkConnected())
		}
		for _, ov := range st.Overlays {
			gaugeBool(OverlayLoaded, []string{st.Name, ov.URL}, ov.Loaded())
		}
	}
}
