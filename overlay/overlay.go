package overlay

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/zsiec/mixer/mailbox"
	"github.com/zsiec/mixer/media"
)

// refreshInterval is how often a direct, correctly-transparent screenshot is
// taken regardless of screencast activity, to catch content that finishes
// loading after the initial capture (e.g. client-rendered apps).
const refreshInterval = 2 * time.Second

// reloadSettleDelay is how long to wait after a reload before restarting
// the screencast and its event listener.
const reloadSettleDelay = 500 * time.Millisecond

// activationClickGap is the spacing between the follow-up clicks used to
// satisfy user-activation gating on embedded video players that render
// their play button asynchronously.
const activationClickGap = 3 * time.Second

// preNavigationScript forces media autoplay (muted), grants iframes
// autoplay permission as they appear, and clears the body background once
// the DOM is ready. It must be installed before any page script runs, on
// every navigation including reloads.
const preNavigationScript = `
const origPlay = HTMLMediaElement.prototype.play;
HTMLMediaElement.prototype.play = function() {
	this.muted = true;
	return origPlay.call(this).catch(() => {
		this.muted = true;
		return origPlay.call(this);
	});
};
new MutationObserver((mutations) => {
	for (const m of mutations) {
		for (const node of m.addedNodes) {
			if (node.nodeName === 'VIDEO' || node.nodeName === 'AUDIO') {
				node.muted = true;
				node.play().catch(() => {});
			}
			if (node.querySelectorAll) {
				node.querySelectorAll('video, audio').forEach(el => {
					el.muted = true;
					el.play().catch(() => {});
				});
			}
		}
	}
}).observe(document.documentElement, { childList: true, subtree: true });
const grantAutoplay = (el) => {
	if (el.tagName === 'IFRAME' && !el.allow.includes('autoplay')) {
		el.allow = el.allow ? el.allow + '; autoplay' : 'autoplay; encrypted-media';
	}
};
new MutationObserver((mutations) => {
	for (const m of mutations) {
		for (const node of m.addedNodes) {
			if (node.nodeType === 1) {
				grantAutoplay(node);
				if (node.querySelectorAll) {
					node.querySelectorAll('iframe').forEach(grantAutoplay);
				}
			}
		}
		if (m.type === 'attributes' && m.attributeName === 'src' && m.target.tagName === 'IFRAME') {
			grantAutoplay(m.target);
		}
	}
}).observe(document.documentElement, { childList: true, subtree: true, attributes: true, attributeFilter: ['src'] });
document.addEventListener('DOMContentLoaded', () => {
	document.body.style.background = 'transparent';
	document.querySelectorAll('iframe').forEach(grantAutoplay);
});
`

// Spec describes one configured browser overlay.
type Spec struct {
	URL            string
	Width          int
	Height         int
	CSS            string
	ReloadInterval time.Duration // 0 disables reloading
}

// Overlay owns one page on the shared browser and a background capture task
// publishing decoded RGBA frames to its mailbox.
type Overlay struct {
	log  *slog.Logger
	spec Spec

	pageCtx    context.Context
	pageCancel context.CancelFunc

	mbox   *mailbox.Mailbox[*media.Frame]
	loaded bool // set once during setup, read-only afterward
}

// Start runs the setup sequence (open page, install scripts, navigate,
// activate, inject CSS) synchronously in the exact order spec.md requires,
// then launches the background capture loop. It returns once loaded.
func Start(ctx context.Context, browser *SharedBrowser, spec Spec, log *slog.Logger) (*Overlay, error) {
	if log == nil {
		log = slog.Default()
	}
	pageCtx, pageCancel := browser.NewPageContext()

	o := &Overlay{
		log:        log.With("component", "overlay", "url", spec.URL),
		spec:       spec,
		pageCtx:    pageCtx,
		pageCancel: pageCancel,
		mbox:       mailbox.New[*media.Frame](),
	}

	if err := o.setup(); err != nil {
		pageCancel()
		return nil, fmt.Errorf("overlay: setup %s: %w", spec.URL, err)
	}

	go o.captureLoop(ctx)
	return o, nil
}

// setup executes the six-step sequence from the browser overlay contract:
// blank page + viewport, pre-navigation script, navigate, activation
// clicks, optional CSS, then mark loaded.
func (o *Overlay) setup() error {
	w, h := int64(o.spec.Width), int64(o.spec.Height)

	if err := chromedp.Run(o.pageCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetDeviceMetricsOverride(w, h, 1, false).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(preNavigationScript).Do(ctx)
			return err
		}),
		chromedp.Navigate(o.spec.URL),
	); err != nil {
		return err
	}

	centerX, centerY := float64(o.spec.Width)/2, float64(o.spec.Height)/2
	if err := chromedp.Run(o.pageCtx, chromedp.MouseClickXY(centerX, centerY)); err != nil {
		o.log.Warn("activation click failed", "error", err)
	}
	go o.delayedActivationClicks(centerX, centerY)

	if o.spec.CSS != "" {
		escaped := strings.ReplaceAll(o.spec.CSS, "`", "\\`")
		js := fmt.Sprintf("const style = document.createElement('style'); style.textContent = `%s`; document.head.appendChild(style);", escaped)
		if err := chromedp.Run(o.pageCtx, chromedp.Evaluate(js, nil)); err != nil {
			o.log.Warn("css injection failed", "error", err)
		}
	}

	o.loaded = true
	o.log.Info("overlay loaded")
	return nil
}

func (o *Overlay) delayedActivationClicks(x, y float64) {
	for i := 0; i < 2; i++ {
		select {
		case <-o.pageCtx.Done():
			return
		case <-time.After(activationClickGap):
		}
		if err := chromedp.Run(o.pageCtx, chromedp.MouseClickXY(x, y)); err != nil {
			o.log.Debug("delayed activation click failed", "error", err)
		}
	}
}

// Mailbox returns the single-slot mailbox the render loop takes frames
// from.
func (o *Overlay) Mailbox() *mailbox.Mailbox[*media.Frame] {
	return o.mbox
}

// Loaded reports whether setup has completed.
func (o *Overlay) Loaded() bool {
	return o.loaded
}

// Close releases the page.
func (o *Overlay) Close() {
	o.pageCancel()
}

func (o *Overlay) takeDirectScreenshot() {
	var buf []byte
	err := chromedp.Run(o.pageCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithOmitBackground(true).
			Do(ctx)
		return err
	}))
	if err != nil {
		o.log.Warn("direct screenshot failed", "error", err)
		return
	}
	o.publishPNG(buf)
}

func (o *Overlay) publishPNG(pngData []byte) {
	f, err := decodePNGToFrame(pngData)
	if err != nil {
		return // FrameDecodeError: malformed screenshot payload, discard silently
	}
	if acceptFrame(f) {
		o.mbox.Publish(f)
	}
}

// publishBase64PNG decodes a base64-encoded PNG payload such as a
// screencast event's Data field and publishes it if it passes the quality
// gate.
func (o *Overlay) publishBase64PNG(b64 string) {
	f, err := decodeBase64PNGToFrame(b64)
	if err != nil {
		return // FrameDecodeError: malformed base64/PNG from screencast, discard silently
	}
	if acceptFrame(f) {
		o.mbox.Publish(f)
	}
}

func decodePNGToFrame(data []byte) (*media.Frame, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	f := media.NewFrame(w, h)

	rgba, ok := img.(*image.NRGBA)
	if ok {
		for y := 0; y < h; y++ {
			srcOff := y * rgba.Stride
			dstOff := y * f.Stride()
			copy(f.Pix[dstOff:dstOff+f.Stride()], rgba.Pix[srcOff:srcOff+f.Stride()])
		}
		return f, nil
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			f.Set(x, y, byte(r>>8), byte(g>>8), byte(b>>8), byte(a>>8))
		}
	}
	return f, nil
}

// decodeBase64PNGToFrame decodes a base64-encoded PNG payload such as a
// screencast frame's Data field.
func decodeBase64PNGToFrame(b64 string) (*media.Frame, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	return decodePNGToFrame(raw)
}
