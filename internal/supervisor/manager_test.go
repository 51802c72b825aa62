package supervisor

import (
	"context"
	"testing"

	"github.com/zsiec/mixer/channel"
)

func testSpec(name string) channel.Spec {
	return channel.Spec{
		Name:       name,
		OutputName: name + "-out",
		Width:      64,
		Height:     64,
		FrameRate:  30,
	}
}

func TestManagerCreateAndList(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, ok, err := m.Create(ctx, testSpec("test-channel"), nil, nil, nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if !ok {
		t.Fatal("Create returned not-ok for new channel")
	}
	if ch == nil {
		t.Fatal("Create returned nil channel")
	}
	defer m.Remove("test-channel")

	channels := m.List()
	if len(channels) != 1 || channels[0] != ch {
		t.Error("List should return the created channel")
	}
}

func TestManagerCreateDuplicate(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, ok1, err1 := m.Create(ctx, testSpec("dup"), nil, nil, nil)
	if err1 != nil || !ok1 {
		t.Fatalf("first Create should succeed, got ok=%v err=%v", ok1, err1)
	}
	defer m.Remove("dup")

	ch2, ok2, err2 := m.Create(ctx, testSpec("dup"), nil, nil, nil)
	if err2 != nil {
		t.Fatalf("duplicate Create should not error, got %v", err2)
	}
	if ok2 {
		t.Error("duplicate Create should return false")
	}
	if ch2 != nil {
		t.Error("duplicate Create should return nil channel")
	}
}

func TestManagerRemove(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, ok, err := m.Create(ctx, testSpec("removable"), nil, nil, nil); err != nil || !ok {
		t.Fatalf("Create failed: ok=%v err=%v", ok, err)
	}
	if len(m.List()) != 1 {
		t.Fatalf("count: got %d, want 1", len(m.List()))
	}

	m.Remove("removable")
	if len(m.List()) != 0 {
		t.Errorf("count after remove: got %d, want 0", len(m.List()))
	}
}

func TestManagerRemoveNonexistent(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)
	// Should not panic.
	m.Remove("nonexistent")
}

func TestManagerCloseStopsEveryChannel(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, name := range []string{"a", "b", "c"} {
		if _, ok, err := m.Create(ctx, testSpec(name), nil, nil, nil); err != nil || !ok {
			t.Fatalf("Create(%s) failed: ok=%v err=%v", name, ok, err)
		}
	}
	if len(m.List()) != 3 {
		t.Fatalf("expected 3 channels, got %d", len(m.List()))
	}

	m.Close()
	if len(m.List()) != 0 {
		t.Errorf("count after Close: got %d, want 0", len(m.List()))
	}
}
