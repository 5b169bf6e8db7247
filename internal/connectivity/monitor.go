package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Monitor maintains a simplified online/offline signal. Link-layer
// availability alone is not trusted: an "up" report only counts after a
// reachability probe against a captive-portal-style endpoint succeeds.
// A "down" report is published immediately without probing.
type Monitor struct {
	probeURL string
	interval time.Duration
	http     *http.Client

	mu     sync.Mutex
	known  bool
	online bool
	subs   []chan bool
}

// NewMonitor creates a monitor probing probeURL with the given timeout.
func NewMonitor(probeURL string, probeTimeout, interval time.Duration) *Monitor {
	if probeTimeout <= 0 {
		probeTimeout = 1500 * time.Millisecond
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{
		probeURL: probeURL,
		interval: interval,
		http:     &http.Client{Timeout: probeTimeout},
	}
}

// Online returns the last published value. False until the first probe resolves.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe returns a channel of connectivity transitions. Consecutive
// duplicate values are suppressed, so every received value is an edge.
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 16)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Probe performs one reachability check. Any transport error or timeout
// means offline; nothing is ever returned to the caller as an error.
func (m *Monitor) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusNoContent
}

// SetLinkState feeds a platform-level link event into the monitor.
// A lost link is published immediately; an available link is confirmed
// by an asynchronous probe first. The probe may race with a newer link
// event; last write wins, the probe result is advisory.
func (m *Monitor) SetLinkState(ctx context.Context, up bool) {
	if !up {
		m.publish(false)
		return
	}
	go func() {
		m.publish(m.Probe(ctx))
	}()
}

// Run probes periodically until ctx is cancelled. This is the station's
// stand-in for OS connectivity callbacks: a fixed-interval poll with an
// immediate initial check.
func (m *Monitor) Run(ctx context.Context) {
	m.publish(m.Probe(ctx))
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.publish(m.Probe(ctx))
		case <-ctx.Done():
			return
		}
	}
}

// publish records a new value and fans it out, dropping duplicates.
func (m *Monitor) publish(online bool) {
	m.mu.Lock()
	if m.known && m.online == online {
		m.mu.Unlock()
		return
	}
	m.known = true
	m.online = online
	subs := make([]chan bool, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- online:
		default:
			// Subscriber is not keeping up; values are low-frequency
			// booleans, losing one edge beats blocking the publisher.
		}
	}
}
