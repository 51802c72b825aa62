package videoproto

import (
	"context"
	"testing"
	"time"
)

func TestParseAnnouncement(t *testing.T) {
	t.Parallel()
	name, addr, ok := parseAnnouncement("studio-cam-1|10.0.0.5:9000")
	if !ok {
		t.Fatal("expected ok=true")
	}
	if name != "studio-cam-1" || addr != "10.0.0.5:9000" {
		t.Fatalf("got name=%q addr=%q", name, addr)
	}
}

func TestParseAnnouncementMalformed(t *testing.T) {
	t.Parallel()
	if _, _, ok := parseAnnouncement("no-separator"); ok {
		t.Fatal("expected ok=false for a message with no separator")
	}
}

// fakeDiscoverer returns a fixed set of sources on the first N calls, then
// a set containing the target, simulating a source appearing after retries.
type fakeDiscoverer struct {
	calls   int
	appears int
	target  Source
}

func (f *fakeDiscoverer) Discover(ctx context.Context, window time.Duration) ([]Source, error) {
	f.calls++
	if f.calls < f.appears {
		return []Source{{Name: "unrelated", Addr: "1.2.3.4:1"}}, nil
	}
	return []Source{{Name: "unrelated", Addr: "1.2.3.4:1"}, f.target}, nil
}

func TestDiscoverByNameFindsSubstringMatch(t *testing.T) {
	t.Parallel()
	d := &fakeDiscoverer{appears: 2, target: Source{Name: "studio-cam-1", Addr: "10.0.0.5:9000"}}

	got, err := DiscoverByName(context.Background(), d, "cam-1", time.Millisecond, time.Millisecond)
	if err != nil {
		t.Fatalf("DiscoverByName: %v", err)
	}
	if got.Name != "studio-cam-1" {
		t.Errorf("got %+v, want name studio-cam-1", got)
	}
	if d.calls < 2 {
		t.Errorf("expected DiscoverByName to retry until the source appeared, got %d calls", d.calls)
	}
}

func TestDiscoverByNameRespectsCancellation(t *testing.T) {
	t.Parallel()
	d := &fakeDiscoverer{appears: 1 << 30} // never appears
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DiscoverByName(ctx, d, "anything", time.Millisecond, time.Millisecond)
	if err == nil {
		t.Fatal("expected an error when context is already cancelled")
	}
}
