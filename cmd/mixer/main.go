package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/mixer/channel"
	"github.com/zsiec/mixer/config"
	"github.com/zsiec/mixer/gpu"
	"github.com/zsiec/mixer/internal/supervisor"
	"github.com/zsiec/mixer/overlay"
	"github.com/zsiec/mixer/status"
	"github.com/zsiec/mixer/videoproto"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

// sourceScanWindow is how long --list-sources listens before printing what
// it found, matching original_source/main.rs's fixed scan duration.
const sourceScanWindow = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:    "mixer",
		Usage:   "headless multi-channel video mixer with HTML overlay support",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.toml",
				Usage:   "path to the TOML configuration file",
			},
			&cli.BoolFlag{
				Name:  "list-sources",
				Usage: "list discoverable network video sources and exit",
			},
			&cli.BoolFlag{
				Name:  "print-status",
				Usage: "print a periodic terminal status summary in addition to the HTTP endpoint",
			},
		},
		Action: run,
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cctx *cli.Context) error {
	if cctx.Bool("list-sources") {
		return listSources(cctx.Context)
	}

	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.Settings.LogLevel),
	})))
	log := slog.Default()

	log.Info("mixer starting", "version", version, "channels", len(cfg.Channel))

	g, ctx := errgroup.WithContext(cctx.Context)

	var browser *overlay.SharedBrowser
	if cfg.HasBrowserOverlays() {
		log.Info("launching headless browser for overlays")
		browser, err = overlay.Launch(ctx, log.With("component", "browser"))
		if err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		defer browser.Close()
	}

	compositorKind := "cpu"
	gctx, gpuErr := gpu.NewContext(log)
	if gpuErr != nil {
		log.Warn("gpu unavailable at startup, channels will composite on cpu", "error", gpuErr)
	} else {
		compositorKind = "gpu"
		log.With("component", "startup").Info("gpu compositor selected", "adapter", gctx.AdapterName())
		defer gctx.Close()
	}

	specs, err := cfg.ChannelSpecs()
	if err != nil {
		return fmt.Errorf("build channel specs: %w", err)
	}

	mgr := supervisor.NewManager(log)
	defer mgr.Close()
	for _, spec := range specs {
		if _, created, err := mgr.Create(ctx, spec, gctx, browser, log); err != nil {
			return fmt.Errorf("start channel %s: %w", spec.Name, err)
		} else if !created {
			return fmt.Errorf("duplicate channel name %q in config", spec.Name)
		}
	}

	if cfg.Settings.StatusPort > 0 {
		addr := fmt.Sprintf(":%d", cfg.Settings.StatusPort)
		srv := status.NewServer(addr, version, compositorKind, func() []*channel.State {
			return statesOf(mgr.List())
		}, log)
		g.Go(func() error { return srv.Start(ctx) })
		log.Info("status endpoint available", "url", fmt.Sprintf("http://localhost:%d/status", cfg.Settings.StatusPort))
	}

	if cctx.Bool("print-status") {
		g.Go(func() error { return printTerminalStatus(ctx, mgr, version) })
	}

	// Keep the channels running until a signal (or a failing group member)
	// cancels ctx, even when neither optional goroutine above was started.
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("mixer stopped")
	return nil
}

func statesOf(channels []*channel.Channel) []*channel.State {
	states := make([]*channel.State, len(channels))
	for i, ch := range channels {
		states[i] = ch.State()
	}
	return states
}

// listSources scans the discovery multicast group for sourceScanWindow and
// prints whatever it finds, without requiring a configuration file.
func listSources(ctx context.Context) error {
	sources, err := (videoproto.UDPDiscoverer{}).Discover(ctx, sourceScanWindow)
	if err != nil {
		return fmt.Errorf("discover sources: %w", err)
	}
	if len(sources) == 0 {
		fmt.Println("No sources found.")
		return nil
	}
	fmt.Printf("Found %d source%s:\n", len(sources), plural(len(sources)))
	for _, s := range sources {
		fmt.Printf("  - %s\n", s.Name)
	}
	return nil
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// printTerminalStatus redraws a 1Hz terminal summary until ctx is
// cancelled, an opt-in supplement to the HTTP status endpoint (a headless
// server process normally has no attached terminal to redraw).
func printTerminalStatus(ctx context.Context, mgr *supervisor.Manager, version string) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nMixer stopped.")
			return nil
		case <-ticker.C:
			printStatusOnce(mgr, version)
		}
	}
}

func printStatusOnce(mgr *supervisor.Manager, version string) {
	channels := mgr.List()
	fmt.Print("\x1b[2J\x1b[H") // clear screen, cursor to top
	fmt.Printf("Mixer %s — %d channel%s active\n\n", version, len(channels), plural(len(channels)))

	for _, ch := range channels {
		st := ch.State()

		networkStatus := "network: -"
		if st.NetworkInputSource != "" {
			mark := "\x1b[33m~\x1b[0m"
			if st.NetworkConnected() {
				mark = "\x1b[32m+\x1b[0m"
			}
			networkStatus = fmt.Sprintf("network: %s %s", mark, st.NetworkInputSource)
		}

		browserStatus := "overlays: -"
		if len(st.Overlays) > 0 {
			loaded := 0
			for _, ov := range st.Overlays {
				if ov.Loaded() {
					loaded++
				}
			}
			browserStatus = fmt.Sprintf("overlays: %d/%d loaded", loaded, len(st.Overlays))
		}

		fmt.Printf("%-16s %dx%d@%d  %s  %s  frames=%d\n",
			st.Name, st.Width, st.Height, st.FrameRate, networkStatus, browserStatus, st.FramesOutput())
	}
}
