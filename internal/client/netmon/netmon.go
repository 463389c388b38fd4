// Package netmon tracks online/offline state. The platform connectivity
// signal is a pluggable probe; transitions are edge-deduplicated so
// subscribers fire exactly once per actual flip, no matter how often the
// probe reports the same state.
package netmon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Probe reports whether the network currently looks reachable.
type Probe func(ctx context.Context) bool

// HTTPProbe probes connectivity with a HEAD request against url, typically
// the backend's health endpoint.
func HTTPProbe(url string, client *http.Client) Probe {
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode < http.StatusInternalServerError
	}
}

// Monitor holds the current network state and notifies subscribers on
// transitions.
type Monitor struct {
	probe    Probe
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	offline bool
	subs    map[int]func(online bool)
	nextID  int

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Monitor and computes the initial state eagerly from one probe
// call. Call Start to keep re-probing in the background.
func New(probe Probe, interval time.Duration, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Monitor{
		probe:    probe,
		interval: interval,
		log:      log,
		subs:     make(map[int]func(online bool)),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	m.offline = !probe(ctx)
	return m
}

// Start launches the periodic probe loop. It returns immediately.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Set(m.probe(ctx))
			}
		}
	}()
}

// Close stops the probe loop.
func (m *Monitor) Close() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}

// Offline reports the current state.
func (m *Monitor) Offline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offline
}

// Set records the observed state. Subscribers are invoked only when the
// state actually flips; redundant reports of the current state are dropped.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.offline == !online {
		m.mu.Unlock()
		return
	}
	m.offline = !online
	subs := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	m.log.Info("network state changed", zap.Bool("online", online))
	for _, fn := range subs {
		fn(online)
	}
}

// Subscribers reports how many transition subscribers are registered.
func (m *Monitor) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// OnTransition registers fn to run on every state flip, with the new state.
// The returned function unsubscribes; it is safe to call more than once.
func (m *Monitor) OnTransition(fn func(online bool)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}
