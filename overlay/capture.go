package overlay

import (
	"context"
	"time"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// screencastFrame is the decoded payload handed from the chromedp target
// listener to the capture loop goroutine.
type screencastFrame struct {
	data      string
	sessionID int64
}

// captureLoop combines a periodic direct screenshot (correct alpha, slow)
// with a live screencast stream (fast, occasionally broken alpha) per the
// hybrid strategy: every accepted frame, from either source, is decoded and
// quality-gated before publishing.
func (o *Overlay) captureLoop(ctx context.Context) {
	o.takeDirectScreenshot()

	frames := make(chan screencastFrame, 4)
	o.startScreencast(frames)

	refresh := time.NewTicker(refreshInterval)
	defer refresh.Stop()

	var reload <-chan time.Time
	if o.spec.ReloadInterval > 0 {
		t := time.NewTicker(o.spec.ReloadInterval)
		defer t.Stop()
		reload = t.C
	}

	for {
		select {
		case <-ctx.Done():
			o.stopScreencast()
			return
		case <-o.pageCtx.Done():
			return
		case <-refresh.C:
			o.takeDirectScreenshot()
		case <-reload:
			o.reload(frames)
		case f, ok := <-frames:
			if !ok {
				return
			}
			o.ackScreencastFrame(f.sessionID)
			o.publishBase64PNG(f.data)
		}
	}
}

func (o *Overlay) startScreencast(frames chan<- screencastFrame) {
	chromedp.ListenTarget(o.pageCtx, func(ev interface{}) {
		e, ok := ev.(*cdppage.EventScreencastFrame)
		if !ok {
			return
		}
		select {
		case frames <- screencastFrame{data: e.Data, sessionID: e.SessionID}:
		default:
			// Backlogged; drop this screencast frame rather than block the
			// CDP event dispatcher.
		}
	})

	err := chromedp.Run(o.pageCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return cdppage.StartScreencast().
			WithFormat(cdppage.ScreencastFormatPng).
			WithMaxWidth(int64(o.spec.Width)).
			WithMaxHeight(int64(o.spec.Height)).
			WithEveryNthFrame(1).
			Do(ctx)
	}))
	if err != nil {
		o.log.Warn("start screencast failed", "error", err)
		return
	}
	o.log.Info("screencast started", "width", o.spec.Width, "height", o.spec.Height)
}

func (o *Overlay) stopScreencast() {
	_ = chromedp.Run(o.pageCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return cdppage.StopScreencast().Do(ctx)
	}))
}

func (o *Overlay) ackScreencastFrame(sessionID int64) {
	_ = chromedp.Run(o.pageCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return cdppage.ScreencastFrameAck(cdppage.ScreencastSessionID(sessionID)).Do(ctx)
	}))
}

// reload stops the screencast, reloads the page, waits reloadSettleDelay,
// restarts the screencast (registering a fresh event listener), and takes a
// fresh direct screenshot, in that order. It issues no separate
// transparent-background override: the body background is cleared only by
// preNavigationScript, which runs again on the reloaded document.
func (o *Overlay) reload(frames chan<- screencastFrame) {
	o.log.Debug("reloading overlay")
	o.stopScreencast()

	if err := chromedp.Run(o.pageCtx, chromedp.Reload()); err != nil {
		o.log.Warn("reload failed", "error", err)
		return
	}

	time.Sleep(reloadSettleDelay)

	o.startScreencast(frames)
	o.takeDirectScreenshot()
	o.log.Debug("overlay reload complete")
}
