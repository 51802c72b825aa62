package videoproto

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// multicastGroup is the announce/query rendezvous address for source
// discovery. There is no discovery-protocol library anywhere in the
// reference corpus for this concern, so it is built directly on net.
const multicastGroup = "239.255.77.77:7711"

const announceInterval = 1 * time.Second

// Announcer periodically broadcasts a source's name and reachable address
// on the discovery multicast group, so that Input Receivers elsewhere can
// find it by name substring.
type Announcer struct {
	name string
	addr string
	conn *net.UDPConn
}

// NewAnnouncer opens the multicast socket used to advertise name at addr
// (the address a caller should dial to pull frames from this source).
func NewAnnouncer(name, addr string) (*Announcer, error) {
	groupAddr, err := net.ResolveUDPAddr("udp", multicastGroup)
	if err != nil {
		return nil, fmt.Errorf("videoproto: resolve multicast group: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, groupAddr)
	if err != nil {
		return nil, fmt.Errorf("videoproto: dial multicast group: %w", err)
	}
	return &Announcer{name: name, addr: addr, conn: conn}, nil
}

// Run announces on announceInterval until ctx is cancelled.
func (a *Announcer) Run(ctx context.Context) error {
	defer a.conn.Close()

	ticker := time.NewTicker(announceInterval)
	defer ticker.Stop()

	for {
		a.announceOnce()
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *Announcer) announceOnce() {
	msg := a.name + "|" + a.addr
	_, _ = a.conn.Write([]byte(msg))
}

// UDPDiscoverer discovers announced sources by listening on the discovery
// multicast group.
type UDPDiscoverer struct{}

// Discover opens the multicast group and collects announcements for
// window, returning the distinct sources seen (most recent address wins
// per name).
func (UDPDiscoverer) Discover(ctx context.Context, window time.Duration) ([]Source, error) {
	groupAddr, err := net.ResolveUDPAddr("udp", multicastGroup)
	if err != nil {
		return nil, fmt.Errorf("videoproto: resolve multicast group: %w", err)
	}
	conn, err := net.ListenMulticastUDP("udp", nil, groupAddr)
	if err != nil {
		return nil, fmt.Errorf("videoproto: listen multicast group: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(window)
	found := make(map[string]string) // name -> addr

	buf := make([]byte, 512)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 || ctx.Err() != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(minDuration(remaining, 200*time.Millisecond)))

		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			break
		}
		name, addr, ok := parseAnnouncement(string(buf[:n]))
		if ok {
			found[name] = addr
		}
	}

	sources := make([]Source, 0, len(found))
	for name, addr := range found {
		sources = append(sources, Source{Name: name, Addr: addr})
	}
	return sources, nil
}

// DiscoverByName repeatedly scans in discoveryWindow bursts separated by
// retryPause until a source whose name contains substr appears, or ctx is
// cancelled.
func DiscoverByName(ctx context.Context, d Discoverer, substr string, discoveryWindow, retryPause time.Duration) (Source, error) {
	for {
		if ctx.Err() != nil {
			return Source{}, ctx.Err()
		}
		sources, err := d.Discover(ctx, discoveryWindow)
		if err == nil {
			for _, s := range sources {
				if strings.Contains(s.Name, substr) {
					return s, nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return Source{}, ctx.Err()
		case <-time.After(retryPause):
		}
	}
}

func parseAnnouncement(msg string) (name, addr string, ok bool) {
	i := strings.LastIndex(msg, "|")
	if i < 0 {
		return "", "", false
	}
	return msg[:i], msg[i+1:], true
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
