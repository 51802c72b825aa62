package videoproto

import (
	"testing"

	"github.com/zsiec/mixer/media"
)

func TestOutputSenderDropsWhenQueueFull(t *testing.T) {
	t.Parallel()
	s := NewOutputSender("test-channel", nil)
	canvas := media.NewFrame(2, 2)

	// Nobody drains s.queue, so only the first Send can succeed; the rest
	// must be dropped without blocking.
	s.Send(canvas)
	s.Send(canvas)
	s.Send(canvas)

	if got := s.Sent(); got != 1 {
		t.Errorf("sent: got %d, want 1", got)
	}
	if got := s.Dropped(); got != 2 {
		t.Errorf("dropped: got %d, want 2", got)
	}
}

func TestOutputSenderSendsAfterDrain(t *testing.T) {
	t.Parallel()
	s := NewOutputSender("test-channel", nil)
	canvas := media.NewFrame(2, 2)

	s.Send(canvas)
	<-s.queue // simulate the sender goroutine draining one frame
	s.Send(canvas)

	if got := s.Sent(); got != 2 {
		t.Errorf("sent: got %d, want 2", got)
	}
	if got := s.Dropped(); got != 0 {
		t.Errorf("dropped: got %d, want 0", got)
	}
}

func TestOutputSenderSendConvertsToBGRA(t *testing.T) {
	t.Parallel()
	s := NewOutputSender("test-channel", nil)
	canvas := media.NewFrame(1, 1)
	canvas.Set(0, 0, 10, 20, 30, 255)

	s.Send(canvas)
	buf := <-s.queue
	if buf[0] != 30 || buf[1] != 20 || buf[2] != 10 || buf[3] != 255 {
		t.Fatalf("got bgra %v, want (30,20,10,255)", buf)
	}
}
