// Package config loads and validates the TOML configuration document that
// describes every channel a mixer process runs.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/zsiec/mixer/channel"
)

const (
	defaultFrameRate = 30
	defaultOpacity   = 1.0
	defaultZIndex    = 1
	maxFilterParams  = 16
)

// Config is the top-level document.
type Config struct {
	Settings Settings        `toml:"settings"`
	Channel  []ChannelConfig `toml:"channel"`
}

// Settings holds process-wide options.
type Settings struct {
	StatusPort int    `toml:"status_port"`
	LogLevel   string `toml:"log_level"`
}

// FilterConfig describes one compute-shader filter stage.
type FilterConfig struct {
	Shader string             `toml:"shader"`
	Params map[string]float64 `toml:"params"`
}

// NetworkInputConfig configures the one network-input layer a channel may
// have. Opacity is a pointer so an absent field can default to 1.0 without
// colliding with an explicit 0.0 (fully transparent).
type NetworkInputConfig struct {
	Source  string         `toml:"source"`
	ZIndex  int            `toml:"z_index"`
	Opacity *float64       `toml:"opacity"`
	Filters []FilterConfig `toml:"filters"`
}

// BrowserOverlayConfig configures one browser overlay layer. ZIndex and
// Opacity are pointers for the same reason as NetworkInputConfig.Opacity:
// their zero values are both meaningful, distinct from "unset".
type BrowserOverlayConfig struct {
	URL            string         `toml:"url"`
	Width          int            `toml:"width"`
	Height         int            `toml:"height"`
	ZIndex         *int           `toml:"z_index"`
	Opacity        *float64       `toml:"opacity"`
	CSS            string         `toml:"css"`
	ReloadInterval int            `toml:"reload_interval"` // seconds; 0 = no reload
	Filters        []FilterConfig `toml:"filters"`
}

// ChannelConfig is one channel entry in the document. BrowserOverlay is the
// legacy singular form kept for backward compatibility; allOverlays merges
// it ahead of BrowserOverlays wherever overlays are read, and neither field
// is modified.
type ChannelConfig struct {
	Name           string                 `toml:"name"`
	OutputName     string                 `toml:"output_name"`
	Width          int                    `toml:"width"`
	Height         int                    `toml:"height"`
	FrameRate      int                    `toml:"frame_rate"`
	NetworkInput   *NetworkInputConfig    `toml:"network_input"`
	BrowserOverlay *BrowserOverlayConfig  `toml:"browser_overlay"`
	BrowserOverlays []BrowserOverlayConfig `toml:"browser_overlays"`
	Filters        []FilterConfig         `toml:"filters"`
}

// Load reads, parses, and validates the configuration document at path.
// Every failure — missing file, malformed TOML, or a field that violates
// spec.md §6's constraints — is returned as a *ConfigError, fatal at
// startup.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("read config file %s: %s", path, err)}
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("parse config file: %s", err)}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in every default spec.md §6 specifies, mirroring
// original_source/config.rs's serde defaults since TOML has no notion of a
// struct-tag default.
func (c *Config) applyDefaults() {
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = "info"
	}
	for i := range c.Channel {
		ch := &c.Channel[i]
		if ch.FrameRate == 0 {
			ch.FrameRate = defaultFrameRate
		}
		if ch.NetworkInput != nil && ch.NetworkInput.Opacity == nil {
			ch.NetworkInput.Opacity = floatPtr(defaultOpacity)
		}
		if ch.BrowserOverlay != nil {
			applyOverlayDefaults(ch.BrowserOverlay)
		}
		for j := range ch.BrowserOverlays {
			applyOverlayDefaults(&ch.BrowserOverlays[j])
		}
	}
}

func applyOverlayDefaults(o *BrowserOverlayConfig) {
	if o.ZIndex == nil {
		o.ZIndex = intPtr(defaultZIndex)
	}
	if o.Opacity == nil {
		o.Opacity = floatPtr(defaultOpacity)
	}
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

// validate checks every constraint spec.md §6 names. It returns the first
// violation found, wrapped as a *ConfigError.
func (c *Config) validate() error {
	if len(c.Channel) == 0 {
		return &ConfigError{Msg: "at least one channel must be defined"}
	}
	for _, ch := range c.Channel {
		if err := ch.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (ch *ChannelConfig) validate() error {
	if ch.Name == "" {
		return &ConfigError{Msg: "channel name must not be empty"}
	}
	if ch.Width <= 0 || ch.Height <= 0 {
		return &ConfigError{Msg: fmt.Sprintf("channel %q: width and height must be > 0", ch.Name)}
	}
	if ch.FrameRate <= 0 {
		return &ConfigError{Msg: fmt.Sprintf("channel %q: frame_rate must be > 0", ch.Name)}
	}
	if ch.NetworkInput != nil {
		if err := validateOpacity(ch.Name, "network_input", *ch.NetworkInput.Opacity); err != nil {
			return err
		}
		if err := validateFilters(ch.Name, "network_input", ch.NetworkInput.Filters); err != nil {
			return err
		}
	}
	for _, o := range ch.allOverlays() {
		if o.Width <= 0 || o.Height <= 0 {
			return &ConfigError{Msg: fmt.Sprintf("channel %q: browser overlay width and height must be > 0", ch.Name)}
		}
		if err := validateOpacity(ch.Name, "browser_overlay", *o.Opacity); err != nil {
			return err
		}
		if o.ReloadInterval < 0 {
			return &ConfigError{Msg: fmt.Sprintf("channel %q: browser overlay reload_interval must be >= 0", ch.Name)}
		}
		if err := validateFilters(ch.Name, "browser_overlay", o.Filters); err != nil {
			return err
		}
	}
	if err := validateFilters(ch.Name, "channel", ch.Filters); err != nil {
		return err
	}
	return nil
}

func validateOpacity(channelName, field string, opacity float64) error {
	if opacity < 0 || opacity > 1 {
		return &ConfigError{Msg: fmt.Sprintf("channel %q: %s opacity must be 0.0-1.0", channelName, field)}
	}
	return nil
}

func validateFilters(channelName, field string, filters []FilterConfig) error {
	for _, f := range filters {
		if f.Shader == "" {
			return &ConfigError{Msg: fmt.Sprintf("channel %q: %s filter missing shader path", channelName, field)}
		}
		if _, err := os.Stat(f.Shader); err != nil {
			return &ConfigError{Msg: fmt.Sprintf("channel %q: %s filter shader %q: %s", channelName, field, f.Shader, err)}
		}
		if len(f.Params) > maxFilterParams {
			return &ConfigError{Msg: fmt.Sprintf("channel %q: %s filter %q has more than %d params", channelName, field, f.Shader, maxFilterParams)}
		}
	}
	return nil
}

// allOverlays merges the legacy singular BrowserOverlay into the plural
// BrowserOverlays list, in declaration order (singular first), so every
// downstream consumer only ever deals with one slice.
func (ch *ChannelConfig) allOverlays() []BrowserOverlayConfig {
	if ch.BrowserOverlay == nil {
		return ch.BrowserOverlays
	}
	merged := make([]BrowserOverlayConfig, 0, len(ch.BrowserOverlays)+1)
	merged = append(merged, *ch.BrowserOverlay)
	merged = append(merged, ch.BrowserOverlays...)
	return merged
}

// HasBrowserOverlays reports whether any channel configures at least one
// browser overlay, used by cmd/mixer to decide whether to launch the shared
// browser at all.
func (c *Config) HasBrowserOverlays() bool {
	for _, ch := range c.Channel {
		if len(ch.allOverlays()) > 0 {
			return true
		}
	}
	return false
}

// ChannelSpecs converts every channel entry into a channel.Spec, reading
// each configured filter's shader source from disk. Shader paths were
// already confirmed to exist during validate, so a read failure here
// indicates the file was removed between load and start.
func (c *Config) ChannelSpecs() ([]channel.Spec, error) {
	specs := make([]channel.Spec, 0, len(c.Channel))
	for _, ch := range c.Channel {
		spec, err := ch.toSpec()
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (ch *ChannelConfig) toSpec() (channel.Spec, error) {
	spec := channel.Spec{
		Name:       ch.Name,
		OutputName: ch.OutputName,
		Width:      ch.Width,
		Height:     ch.Height,
		FrameRate:  ch.FrameRate,
	}

	chanFilters, err := toFilterSpecs(ch.Filters)
	if err != nil {
		return channel.Spec{}, fmt.Errorf("channel %q: %w", ch.Name, err)
	}
	spec.Filters = chanFilters

	if ch.NetworkInput != nil {
		inputFilters, err := toFilterSpecs(ch.NetworkInput.Filters)
		if err != nil {
			return channel.Spec{}, fmt.Errorf("channel %q: network_input: %w", ch.Name, err)
		}
		spec.NetworkInput = &channel.NetworkInputSpec{
			Source:  ch.NetworkInput.Source,
			ZIndex:  ch.NetworkInput.ZIndex,
			Opacity: *ch.NetworkInput.Opacity,
			Filters: inputFilters,
		}
	}

	for _, o := range ch.allOverlays() {
		filters, err := toFilterSpecs(o.Filters)
		if err != nil {
			return channel.Spec{}, fmt.Errorf("channel %q: browser_overlay %s: %w", ch.Name, o.URL, err)
		}
		spec.Overlays = append(spec.Overlays, channel.OverlaySpec{
			URL:            o.URL,
			Width:          o.Width,
			Height:         o.Height,
			ZIndex:         *o.ZIndex,
			Opacity:        *o.Opacity,
			CSS:            o.CSS,
			ReloadInterval: time.Duration(o.ReloadInterval) * time.Second,
			Filters:        filters,
		})
	}

	return spec, nil
}

func toFilterSpecs(filters []FilterConfig) ([]channel.FilterSpec, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	out := make([]channel.FilterSpec, 0, len(filters))
	for _, f := range filters {
		src, err := os.ReadFile(f.Shader)
		if err != nil {
			return nil, fmt.Errorf("read shader %s: %w", f.Shader, err)
		}
		params := make(map[string]float32, len(f.Params))
		for k, v := range f.Params {
			params[k] = float32(v)
		}
		out = append(out, channel.FilterSpec{
			Label:  f.Shader,
			Source: string(src),
			Params: params,
		})
	}
	return out, nil
}
