package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zsiec/mixer/compositor"
	"github.com/zsiec/mixer/gpu"
	"github.com/zsiec/mixer/media"
	"github.com/zsiec/mixer/overlay"
	"github.com/zsiec/mixer/videoproto"
)

// listenAddr is always port 0: the OS picks a free port and the channel
// advertises the real one over discovery, mirroring how a network input
// source is found by name rather than by a fixed address.
const listenAddr = "0.0.0.0:0"

// overlayLayer pairs a running overlay with the static spec fields the
// render loop needs every tick.
type overlayLayer struct {
	overlay   *overlay.Overlay
	index     int
	zIndex    int
	opacity   float64
	filters   []*gpu.Filter
	state     *OverlayState
	lastFrame *media.Frame
}

// Channel owns one running channel: its producers (network input, browser
// overlays), its chosen compositor backend, its output sender, and the
// goroutine driving its render loop. Start returns once every producer has
// been launched; Close stops them and waits for the loop to exit.
type Channel struct {
	log   *slog.Logger
	spec  Spec
	state *State

	canvas *media.Frame

	input          *videoproto.InputReceiver
	inputFilter    []*gpu.Filter
	lastInputFrame *media.Frame
	overlays       []overlayLayer

	cpuLayers []media.Layer // scratch, reused every tick to avoid per-frame allocation

	gctx               *gpu.Context
	gcomp              *gpu.Compositor
	gpuLayers          []gpu.Layer
	chanFilter         []*gpu.Filter
	warnedNoGPUFilters sync.Once

	sender *videoproto.OutputSender

	cancel context.CancelFunc
	done   chan struct{}
}

// Start validates nothing (spec is assumed already validated by the config
// loader), wires every producer and the output sender, and launches the
// render loop on its own goroutine. gctx may be nil, in which case the
// channel composites on the CPU and skips any configured filters.
func Start(ctx context.Context, spec Spec, gctx *gpu.Context, browser *overlay.SharedBrowser, log *slog.Logger) (*Channel, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "channel", "name", spec.Name)

	ctx, cancel := context.WithCancel(ctx)

	ch := &Channel{
		log:    log,
		spec:   spec,
		state:  NewState(spec),
		canvas: media.NewFrame(spec.Width, spec.Height),
		gctx:   gctx,
		sender: videoproto.NewOutputSender(spec.OutputName, log),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if err := ch.wireFilters(); err != nil {
		cancel()
		return nil, err
	}

	if spec.NetworkInput != nil {
		ch.input = videoproto.NewInputReceiver(spec.NetworkInput.Source, spec.Width, spec.Height, log)
		go func() {
			if err := ch.input.Start(ctx); err != nil {
				log.Warn("network input stopped", "error", err)
			}
		}()
	}

	for i, osp := range spec.Overlays {
		o, err := overlay.Start(ctx, browser, overlay.Spec{
			URL:            osp.URL,
			Width:          osp.Width,
			Height:         osp.Height,
			CSS:            osp.CSS,
			ReloadInterval: osp.ReloadInterval,
		}, log)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("channel %s: start overlay %s: %w", spec.Name, osp.URL, err)
		}
		filters, ferr := ch.compileFilters(osp.Filters)
		if ferr != nil {
			cancel()
			return nil, fmt.Errorf("channel %s: compile overlay filters: %w", spec.Name, ferr)
		}
		ch.overlays = append(ch.overlays, overlayLayer{
			overlay: o,
			index:   i,
			zIndex:  osp.ZIndex,
			opacity: osp.Opacity,
			filters: filters,
			state:   ch.state.Overlays[i],
		})
	}

	if gctx != nil {
		gcomp, err := gpu.NewCompositor(gctx, spec.Width, spec.Height)
		if err != nil {
			log.Warn("gpu compositor unavailable, falling back to cpu", "error", err)
		} else {
			ch.gcomp = gcomp
			ch.state.SetUsingGPU(true)
		}
	}

	go ch.runSender(ctx)
	go ch.runLoop(ctx)

	return ch, nil
}

// wireFilters compiles the channel-level filter chain (applied once, after
// compositing) and the network input's per-layer filter chain. Per-overlay
// chains are compiled in Start, once each overlay's spec is in hand.
func (ch *Channel) wireFilters() error {
	chanFilters, err := ch.compileFilters(ch.spec.Filters)
	if err != nil {
		return fmt.Errorf("channel %s: compile channel filters: %w", ch.spec.Name, err)
	}
	ch.chanFilter = chanFilters

	if ch.spec.NetworkInput != nil {
		inputFilters, err := ch.compileFilters(ch.spec.NetworkInput.Filters)
		if err != nil {
			return fmt.Errorf("channel %s: compile network input filters: %w", ch.spec.Name, err)
		}
		ch.inputFilter = inputFilters
	}
	return nil
}

// compileFilters compiles each spec against the channel's GPU context. If
// no GPU context is available, it returns nil with no error: filters are
// compute-shader-only, so the channel skips them for its whole lifetime and
// logs that once.
func (ch *Channel) compileFilters(specs []FilterSpec) ([]*gpu.Filter, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	if ch.gctx == nil {
		ch.warnedNoGPUFilters.Do(func() {
			ch.log.Warn("no gpu context available, configured filters will be skipped")
		})
		return nil, nil
	}
	out := make([]*gpu.Filter, 0, len(specs))
	for _, fs := range specs {
		f, err := gpu.CompileFilter(ch.gctx, fs.Label, fs.Source, fs.Params)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", fs.Label, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// runSender advertises the output over discovery once the sender is
// listening, and runs the sender loop until ctx is cancelled.
func (ch *Channel) runSender(ctx context.Context) {
	onListening := func(addr string) {
		ann, err := videoproto.NewAnnouncer(ch.spec.OutputName, addr)
		if err != nil {
			ch.log.Warn("announcer unavailable, output will not be discoverable", "error", err)
			return
		}
		go func() {
			if err := ann.Run(ctx); err != nil {
				ch.log.Debug("announcer stopped", "error", err)
			}
		}()
	}
	if err := ch.sender.Run(ctx, listenAddr, ch.spec.Width, ch.spec.Height, onListening); err != nil {
		ch.log.Warn("output sender stopped", "error", err)
	}
}

// runLoop drives one composite-and-emit cycle per frame interval until ctx
// is cancelled, then signals done.
func (ch *Channel) runLoop(ctx context.Context) {
	defer close(ch.done)
	runLoop(ctx, ch.spec.FrameInterval(), func() { ch.tick() })
}

// tick drains every producer's mailbox into its last-frame slot (an empty
// mailbox retains the prior frame; a producer that never delivered
// contributes no layer at all), composites, and offers the result to the
// sender without blocking.
func (ch *Channel) tick() {
	layers := ch.buildLayers()

	ok := false
	if ch.gcomp != nil {
		ok = ch.gcomp.Composite(ch.canvas, ch.gpuLayersFrom(layers), ch.chanFilter)
		if !ok {
			ch.log.Warn("gpu composite failed, falling back to cpu for this frame")
		}
	}
	ch.state.SetUsingGPU(ch.gcomp != nil && ok)
	if !ok {
		compositor.Composite(ch.canvas, layers)
	}

	ch.sender.Send(ch.canvas)
	ch.state.AddFramesOutput(1)
}

// buildLayers takes the latest frame from every producer mailbox (keeping
// the channel's last-known frame if a mailbox is currently empty) and
// returns the layer list in the order compositor.Composite expects. A
// producer that has never delivered a frame contributes nothing.
func (ch *Channel) buildLayers() []media.Layer {
	layers := ch.cpuLayers[:0]

	if ch.input != nil {
		if f, ok := ch.input.Mailbox().Take(); ok {
			ch.lastInputFrame = f
		}
		ch.state.SetNetworkConnected(ch.input.Connected())
		ch.state.SetNetworkFramesReceived(ch.input.FramesReceived())
		if ch.lastInputFrame != nil {
			layers = append(layers, media.Layer{
				Frame:   ch.lastInputFrame,
				Opacity: ch.spec.NetworkInput.Opacity,
				ZIndex:  ch.spec.NetworkInput.ZIndex,
				Source:  media.SourceNetworkInput,
			})
		}
	}

	for i := range ch.overlays {
		ov := &ch.overlays[i]
		if f, ok := ov.overlay.Mailbox().Take(); ok {
			ov.lastFrame = f
		}
		ov.state.SetLoaded(ov.overlay.Loaded())
		if ov.lastFrame != nil {
			layers = append(layers, media.Layer{
				Frame:        ov.lastFrame,
				Opacity:      ov.opacity,
				ZIndex:       ov.zIndex,
				Source:       media.SourceBrowserOverlay,
				OverlayIndex: ov.index,
			})
		}
	}

	ch.cpuLayers = layers
	return layers
}

// gpuLayersFrom re-derives the GPU layer list (each annotated with its own
// filter chain) from the same last-frame slots buildLayers just populated,
// so the two compositor backends never disagree about which frame is
// current.
func (ch *Channel) gpuLayersFrom(layers []media.Layer) []gpu.Layer {
	out := ch.gpuLayers[:0]
	for _, l := range layers {
		var filters []*gpu.Filter
		switch l.Source {
		case media.SourceNetworkInput:
			filters = ch.inputFilter
		case media.SourceBrowserOverlay:
			filters = ch.overlays[l.OverlayIndex].filters
		}
		out = append(out, gpu.Layer{Layer: l, Filters: filters})
	}
	ch.gpuLayers = out
	return out
}

// State returns the channel's live status, safe for concurrent reads from
// the status server.
func (ch *Channel) State() *State {
	return ch.state
}

// Close cancels every producer and the render loop, and waits for the loop
// goroutine to exit. It does not wait for producer goroutines, which exit
// independently on the same cancellation.
func (ch *Channel) Close() {
	ch.cancel()
	<-ch.done
	for _, ov := range ch.overlays {
		ov.overlay.Close()
	}
	if ch.gcomp != nil {
		ch.gcomp.Close()
	}
}

// NewState builds the initial State for spec, pre-sizing the Overlays slice
// so buildLayers can index into it by position. Exported so the status
// server's tests can build fixtures without a live Channel.
func NewState(spec Spec) *State {
	s := &State{
		Name:       spec.Name,
		OutputName: spec.OutputName,
		Width:      spec.Width,
		Height:     spec.Height,
		FrameRate:  spec.FrameRate,
		Filters:    spec.Filters,
	}
	if spec.NetworkInput != nil {
		s.NetworkInputSource = spec.NetworkInput.Source
	}
	s.Overlays = make([]*OverlayState, len(spec.Overlays))
	for i, osp := range spec.Overlays {
		s.Overlays[i] = &OverlayState{URL: osp.URL, Filters: osp.Filters}
	}
	return s
}
