package videoproto

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/mixer/media"
)

// outputSRTLatencyNs matches the input side's latency setting so a single
// round trip budget governs both directions of a channel.
const outputSRTLatencyNs = 120_000_000

// OutputSender accepts a finished RGBA canvas from the render loop, converts
// it to BGRA, and hands it to a dedicated sender goroutine over a bounded
// single-slot channel. Send never blocks the render loop: if the previous
// frame is still in flight, the new one is dropped.
type OutputSender struct {
	log  *slog.Logger
	name string

	queue chan []byte

	sent    atomic.Int64
	dropped atomic.Int64
}

// NewOutputSender creates a sender named name (used as the SRT stream ID).
// If log is nil, slog.Default() is used.
func NewOutputSender(name string, log *slog.Logger) *OutputSender {
	if log == nil {
		log = slog.Default()
	}
	return &OutputSender{
		log:   log.With("component", "output-sender", "name", name),
		name:  name,
		queue: make(chan []byte, 1),
	}
}

// Sent returns the number of frames accepted into the sender queue.
func (s *OutputSender) Sent() int64 { return s.sent.Load() }

// Dropped returns the number of frames dropped due to sender backpressure.
func (s *OutputSender) Dropped() int64 { return s.dropped.Load() }

// Send converts canvas to BGRA and offers it to the sender goroutine.
// Non-blocking: if the queue already holds an unsent frame, this frame is
// dropped instead. Each call allocates a fresh buffer, since a successfully
// queued buffer's ownership passes to the sender goroutine.
func (s *OutputSender) Send(canvas *media.Frame) {
	buf := RGBAToBGRA(canvas, nil)

	select {
	case s.queue <- buf:
		s.sent.Add(1)
	default:
		s.dropped.Add(1)
	}
}

// Run starts the dedicated sender goroutine-equivalent loop: it listens for
// a caller connection and writes each queued BGRA buffer as a wire frame,
// until ctx is cancelled. addr may specify port 0 to let the OS choose an
// ephemeral port; if onListening is non-nil, it is called once with the
// listener's actual address so the caller can advertise it (e.g. via an
// Announcer) before the first Accept.
func (s *OutputSender) Run(ctx context.Context, addr string, width, height int, onListening func(addr string)) error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = outputSRTLatencyNs
	cfg.StreamID = s.name

	l, err := srtgo.Listen(addr, cfg)
	if err != nil {
		return fmt.Errorf("videoproto: listen %s: %w", addr, err)
	}
	defer l.Close()

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	actualAddr := l.Addr().String()
	s.log.Info("listening", "addr", actualAddr)
	if onListening != nil {
		onListening(actualAddr)
	}

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept error", "error", err)
			continue
		}
		s.log.Info("receiver connected", "remote", conn.RemoteAddr())
		s.serveConn(ctx, conn, width, height)
	}
}

func (s *OutputSender) serveConn(ctx context.Context, conn *srtgo.Conn, width, height int) {
	defer conn.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case buf, ok := <-s.queue:
			if !ok {
				return
			}
			f := &media.Frame{Width: width, Height: height, Pix: buf}
			if err := EncodeFrame(conn, f, FormatBGRA); err != nil {
				s.log.Debug("write error", "error", err)
				return
			}
		}
	}
}
