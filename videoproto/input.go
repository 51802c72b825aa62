package videoproto

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/mixer/mailbox"
	"github.com/zsiec/mixer/media"
)

const (
	discoveryWindow   = 2 * time.Second
	discoveryRetry    = 1 * time.Second
	reconnectPause    = 1 * time.Second
	inputSRTLatencyNs = 120_000_000
)

// InputReceiver discovers a named source, connects to it over SRT, decodes
// straight-alpha RGBA frames, resizes them to the channel's output
// dimensions, and publishes the latest one to a mailbox. Disconnections are
// transient and retried indefinitely; Start reports no errors.
type InputReceiver struct {
	log    *slog.Logger
	source string
	width  int
	height int

	discoverer Discoverer
	mbox       *mailbox.Mailbox[*media.Frame]

	connected      atomic.Bool
	framesReceived atomic.Uint64
}

// NewInputReceiver creates a receiver for sourceSubstring, resizing
// incoming frames to width×height. If log is nil, slog.Default() is used.
func NewInputReceiver(sourceSubstring string, width, height int, log *slog.Logger) *InputReceiver {
	if log == nil {
		log = slog.Default()
	}
	return &InputReceiver{
		log:        log.With("component", "input-receiver", "source", sourceSubstring),
		source:     sourceSubstring,
		width:      width,
		height:     height,
		discoverer: UDPDiscoverer{},
		mbox:       mailbox.New[*media.Frame](),
	}
}

// Mailbox returns the single-slot mailbox the render loop takes frames
// from.
func (r *InputReceiver) Mailbox() *mailbox.Mailbox[*media.Frame] {
	return r.mbox
}

// Connected reports whether a source connection is currently live.
func (r *InputReceiver) Connected() bool {
	return r.connected.Load()
}

// FramesReceived returns the number of frames decoded so far.
func (r *InputReceiver) FramesReceived() uint64 {
	return r.framesReceived.Load()
}

// Start runs until ctx is cancelled, repeatedly discovering the source,
// connecting, and streaming frames, recovering locally from every
// transient failure. It returns nil once ctx is cancelled.
func (r *InputReceiver) Start(ctx context.Context) error {
	for ctx.Err() == nil {
		src, err := DiscoverByName(ctx, r.discoverer, r.source, discoveryWindow, discoveryRetry)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			r.log.Warn("discovery error", "error", err)
			continue
		}
		if ctx.Err() != nil {
			break
		}

		if err := r.runConnection(ctx, src); err != nil {
			r.log.Warn("connection ended", "error", err)
		}
		r.connected.Store(false)

		select {
		case <-ctx.Done():
		case <-time.After(reconnectPause):
		}
	}
	return nil
}

// runConnection dials src and streams frames until the connection errors
// or ctx is cancelled. A watcher goroutine closes the connection on
// cancellation so the blocking read in the main loop returns promptly,
// mirroring the ingest server's accept-loop shutdown in the teacher.
func (r *InputReceiver) runConnection(ctx context.Context, src Source) error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = inputSRTLatencyNs

	conn, err := srtgo.Dial(src.Addr, cfg)
	if err != nil {
		return fmt.Errorf("dial %s: %w", src.Addr, err)
	}
	defer conn.Close()

	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-closed:
		}
	}()

	r.connected.Store(true)
	r.log.Info("connected", "addr", src.Addr)

	reader := bufio.NewReaderSize(conn, 1<<20)
	for {
		f, _, err := DecodeFrame(reader)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("decode frame: %w", err)
		}

		if f.Width != r.width || f.Height != r.height {
			f = media.Resize(f, r.width, r.height)
		}
		r.mbox.Publish(f)
		r.framesReceived.Add(1)
	}
}
