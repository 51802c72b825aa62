// Package supervisor tracks the lifecycle of running channels, providing
// create/remove/list operations used by the process entrypoint and the
// status server.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zsiec/mixer/channel"
	"github.com/zsiec/mixer/gpu"
	"github.com/zsiec/mixer/overlay"
)

// Manager manages the lifecycle of running channels.
type Manager struct {
	log      *slog.Logger
	mu       sync.RWMutex
	channels map[string]*channel.Channel
}

// NewManager creates a new channel manager. If log is nil, slog.Default() is used.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:      log.With("component", "channel-manager"),
		channels: make(map[string]*channel.Channel),
	}
}

// Create starts a new channel from spec and registers it under spec.Name.
// Returns ok=false without starting anything if a channel with this name
// is already running. gctx may be nil to force the CPU compositor; browser
// may be nil if spec has no overlays.
func (m *Manager) Create(ctx context.Context, spec channel.Spec, gctx *gpu.Context, browser *overlay.SharedBrowser, log *slog.Logger) (*channel.Channel, bool, error) {
	m.mu.Lock()
	if _, exists := m.channels[spec.Name]; exists {
		m.mu.Unlock()
		m.log.Warn("channel already exists, rejecting duplicate", "name", spec.Name)
		return nil, false, nil
	}
	// Unlocked during Start: it launches goroutines and contacts external
	// collaborators (browser, network), and must not hold the map lock
	// while doing so.
	m.mu.Unlock()

	ch, err := channel.Start(ctx, spec, gctx, browser, log)
	if err != nil {
		return nil, false, fmt.Errorf("supervisor: start channel %s: %w", spec.Name, err)
	}

	m.mu.Lock()
	if _, exists := m.channels[spec.Name]; exists {
		m.mu.Unlock()
		ch.Close()
		m.log.Warn("channel already exists, rejecting duplicate", "name", spec.Name)
		return nil, false, nil
	}
	m.channels[spec.Name] = ch
	m.mu.Unlock()

	m.log.Info("channel started", "name", spec.Name)
	return ch, true, nil
}

// Remove stops and unregisters the channel named name, if any.
func (m *Manager) Remove(name string) {
	m.mu.Lock()
	ch, ok := m.channels[name]
	if ok {
		delete(m.channels, name)
	}
	m.mu.Unlock()

	if ok {
		ch.Close()
		m.log.Info("channel removed", "name", name)
	}
}

// List returns every running channel.
func (m *Manager) List() []*channel.Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()

	channels := make([]*channel.Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		channels = append(channels, ch)
	}
	return channels
}

// Close stops every running channel.
func (m *Manager) Close() {
	m.mu.Lock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	m.mu.Unlock()

	for _, name := range names {
		m.Remove(name)
	}
}
