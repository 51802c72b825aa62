// Package overlay captures HTML/web content rendered by a single shared
// headless browser into straight-alpha RGBA frames, one mailbox per
// configured overlay.
package overlay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chromedp/chromedp"
)

// launchArgs mirrors the flag set the original mixer launched Chromium
// with: chromedp's own defaults minus --enable-automation (it blocks
// autoplay), plus the autoplay/sandbox/site-isolation additions needed for
// embedded video overlays.
var launchArgs = []chromedp.ExecAllocatorOption{
	chromedp.NoFirstRun,
	chromedp.NoDefaultBrowserCheck,
	chromedp.Headless,
	chromedp.Flag("disable-background-networking", true),
	chromedp.Flag("enable-features", "NetworkService,NetworkServiceInProcess"),
	chromedp.Flag("disable-background-timer-throttling", true),
	chromedp.Flag("disable-backgrounding-occluded-windows", true),
	chromedp.Flag("disable-breakpad", true),
	chromedp.Flag("disable-client-side-phishing-detection", true),
	chromedp.Flag("disable-component-extensions-with-background-pages", true),
	chromedp.Flag("disable-default-apps", true),
	chromedp.Flag("disable-dev-shm-usage", true),
	chromedp.Flag("disable-features", "TranslateUI,IsolateOrigins,site-per-process"),
	chromedp.Flag("disable-hang-monitor", true),
	chromedp.Flag("disable-ipc-flooding-protection", true),
	chromedp.Flag("disable-popup-blocking", true),
	chromedp.Flag("disable-prompt-on-repost", true),
	chromedp.Flag("disable-renderer-backgrounding", true),
	chromedp.Flag("disable-sync", true),
	chromedp.Flag("force-color-profile", "srgb"),
	chromedp.Flag("metrics-recording-only", true),
	chromedp.Flag("password-store", "basic"),
	chromedp.Flag("use-mock-keychain", true),
	chromedp.Flag("enable-blink-features", "IdleDetection"),
	chromedp.Flag("lang", "en_US"),
	chromedp.Flag("no-sandbox", true),
	chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
	chromedp.Flag("disable-blink-features", "AutomationControlled"),
	chromedp.Flag("disable-site-isolation-trials", true),
}

// SharedBrowser is the single process-wide browser instance that every
// overlay page is opened against. Launching one browser per overlay would
// be prohibitively slow; sharing pages across overlays would cause
// navigation contention, so each overlay gets its own page on this browser.
type SharedBrowser struct {
	log         *slog.Logger
	allocCtx    context.Context
	allocStop   context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc
}

// Launch starts the shared headless browser. Close shuts down the browser
// and its allocator; cancelling ctx also tears both down.
func Launch(ctx context.Context, log *slog.Logger) (*SharedBrowser, error) {
	if log == nil {
		log = slog.Default()
	}
	allocCtx, allocStop := chromedp.NewExecAllocator(ctx, launchArgs...)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)

	// chromedp lazily launches the browser on first use; force it now so
	// startup failures surface immediately instead of on the first page.
	if err := chromedp.Run(browserCtx); err != nil {
		browserStop()
		allocStop()
		return nil, fmt.Errorf("overlay: launch browser: %w", err)
	}

	log.Info("headless browser launched", "component", "overlay-browser")
	return &SharedBrowser{
		log:         log.With("component", "overlay-browser"),
		allocCtx:    allocCtx,
		allocStop:   allocStop,
		browserCtx: browserCtx,
		browserStop: browserStop,
	}, nil
}

// NewPageContext returns a context scoped to a new page (tab) on the shared
// browser. Each overlay gets its own.
func (b *SharedBrowser) NewPageContext() (context.Context, context.CancelFunc) {
	return chromedp.NewContext(b.browserCtx)
}

// Close releases the browser and its allocator.
func (b *SharedBrowser) Close() {
	b.browserStop()
	b.allocStop()
}
