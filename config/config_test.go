package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func writeTempShader(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "shader.wgsl")
	if err := os.WriteFile(path, []byte("@compute @workgroup_size(16,16,1) fn main() {}"), 0o644); err != nil {
		t.Fatalf("write temp shader: %v", err)
	}
	return path
}

func TestLoadMinimalConfig(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
[[channel]]
name = "main"
output_name = "main-out"
width = 1920
height = 1080
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Channel) != 1 {
		t.Fatalf("expected 1 channel, got %d", len(cfg.Channel))
	}
	if got := cfg.Channel[0].FrameRate; got != defaultFrameRate {
		t.Errorf("frame_rate default: got %d, want %d", got, defaultFrameRate)
	}
	if cfg.Settings.LogLevel != "info" {
		t.Errorf("log_level default: got %q, want info", cfg.Settings.LogLevel)
	}
}

func TestLoadRejectsEmptyChannelList(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
[settings]
status_port = 8080
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a document with no channels")
	}
}

func TestLoadRejectsZeroDimensions(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
[[channel]]
name = "main"
output_name = "main-out"
width = 0
height = 1080
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for width = 0")
	}
}

func TestLoadRejectsOutOfRangeOpacity(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
[[channel]]
name = "main"
output_name = "main-out"
width = 1920
height = 1080

[channel.network_input]
source = "cam1"
opacity = 1.5
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for opacity > 1.0")
	}
}

func TestLoadExplicitZeroOpacityIsNotOverwritten(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
[[channel]]
name = "main"
output_name = "main-out"
width = 1920
height = 1080

[channel.network_input]
source = "cam1"
opacity = 0.0
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := *cfg.Channel[0].NetworkInput.Opacity; got != 0.0 {
		t.Errorf("opacity: got %v, want 0.0 (explicit, not defaulted)", got)
	}
}

func TestLoadRejectsMissingShaderFile(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
[[channel]]
name = "main"
output_name = "main-out"
width = 1920
height = 1080

[[channel.filters]]
shader = "/nonexistent/shader.wgsl"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a missing shader file")
	}
}

func TestLoadRejectsTooManyFilterParams(t *testing.T) {
	t.Parallel()
	shader := writeTempShader(t)

	body := fmt.Sprintf("[[channel]]\nname = \"main\"\noutput_name = \"main-out\"\nwidth = 1920\nheight = 1080\n\n"+
		"[[channel.filters]]\nshader = %q\n\n[channel.filters.params]\n", shader)
	for i := 0; i < 17; i++ {
		body += fmt.Sprintf("p%d = 1.0\n", i)
	}
	path := writeTempConfig(t, body)

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for more than 16 filter params")
	}
}

func TestLoadMergesLegacySingularAndPluralOverlays(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
[[channel]]
name = "main"
output_name = "main-out"
width = 1920
height = 1080

[channel.browser_overlay]
url = "https://example.com/legacy"
width = 1920
height = 1080

[[channel.browser_overlays]]
url = "https://example.com/second"
width = 1920
height = 1080
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	specs, err := cfg.ChannelSpecs()
	if err != nil {
		t.Fatalf("ChannelSpecs: %v", err)
	}
	if len(specs[0].Overlays) != 2 {
		t.Fatalf("expected 2 overlays, got %d", len(specs[0].Overlays))
	}
	if specs[0].Overlays[0].URL != "https://example.com/legacy" {
		t.Errorf("legacy overlay should come first, got %q", specs[0].Overlays[0].URL)
	}
	if specs[0].Overlays[1].URL != "https://example.com/second" {
		t.Errorf("plural overlay should come second, got %q", specs[0].Overlays[1].URL)
	}
}

func TestHasBrowserOverlays(t *testing.T) {
	t.Parallel()
	withOverlay := writeTempConfig(t, `
[[channel]]
name = "main"
output_name = "main-out"
width = 1920
height = 1080

[channel.browser_overlay]
url = "https://example.com"
width = 1920
height = 1080
`)
	cfg, err := Load(withOverlay)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.HasBrowserOverlays() {
		t.Error("expected HasBrowserOverlays to be true")
	}

	without := writeTempConfig(t, `
[[channel]]
name = "main"
output_name = "main-out"
width = 1920
height = 1080
`)
	cfg2, err := Load(without)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg2.HasBrowserOverlays() {
		t.Error("expected HasBrowserOverlays to be false")
	}
}

func TestChannelSpecsAppliesDefaultZIndexAndOpacity(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
[[channel]]
name = "main"
output_name = "main-out"
width = 1920
height = 1080

[channel.browser_overlay]
url = "https://example.com"
width = 1920
height = 1080
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	specs, err := cfg.ChannelSpecs()
	if err != nil {
		t.Fatalf("ChannelSpecs: %v", err)
	}
	ov := specs[0].Overlays[0]
	if ov.ZIndex != defaultZIndex {
		t.Errorf("z_index default: got %d, want %d", ov.ZIndex, defaultZIndex)
	}
	if ov.Opacity != defaultOpacity {
		t.Errorf("opacity default: got %v, want %v", ov.Opacity, defaultOpacity)
	}
}
