package channel

import (
	"context"
	"time"
)

// spinFinishThreshold is how close to the deadline the scheduler switches
// from coarse sleeping to a busy-wait spin, bounding the spin's cost to at
// most this much busy-waiting per tick regardless of frame rate.
const spinFinishThreshold = 3 * time.Millisecond

// coarseSleepStep is the sleep granularity used while more than
// spinFinishThreshold remains before the deadline.
const coarseSleepStep = 1 * time.Millisecond

// sleepUntil blocks until deadline, combining ~1ms coarse sleeps with a
// busy-wait spin for the final few milliseconds. OS timers coalesce sleeps
// by tens of milliseconds on some platforms; a plain time.Sleep to the
// exact deadline would miss the frame budget at any reasonable frame rate.
func sleepUntil(deadline time.Time) {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		if remaining > spinFinishThreshold {
			time.Sleep(coarseSleepStep)
			continue
		}
		for time.Now().Before(deadline) {
			// busy-wait spin for sub-millisecond wake-up accuracy
		}
		return
	}
}

// nextAlignedTick advances deadline by whole multiples of interval until it
// is back in the future. A single slow tick (e.g. a stalled GPU composite)
// then skips only the deadlines it overran instead of producing a burst of
// catch-up frames at the next opportunity.
func nextAlignedTick(deadline time.Time, interval time.Duration) time.Time {
	now := time.Now()
	for !deadline.After(now) {
		deadline = deadline.Add(interval)
	}
	return deadline
}

// runLoop drives one composite-and-emit cycle per frame interval on the
// calling goroutine until ctx is cancelled. step is invoked once per tick;
// it must not block beyond the frame budget.
func runLoop(ctx context.Context, interval time.Duration, step func()) {
	deadline := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		step()

		deadline = deadline.Add(interval)
		if !deadline.After(time.Now()) {
			deadline = nextAlignedTick(deadline, interval)
		}
		sleepUntil(deadline)
	}
}
