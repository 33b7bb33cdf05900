// Package connectivity tracks online/offline status for the sync core.
//
// Status flips come from platform events through SetOnline and from a
// reachability probe against the service health endpoint. Every transition
// is delivered to every active subscriber, synchronously and in the order the
// transitions happened.
package connectivity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Dompi123/FOMO2025PART4/internal/logging"
)

// Default probe settings.
const (
	DefaultProbeInterval = 30 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
)

// Prober performs a lightweight reachability call.
type Prober interface {
	Health(ctx context.Context) error
}

// Status is the current connectivity reading.
type Status struct {
	IsOnline    bool
	LastChecked time.Time
}

// Listener receives status transitions. It must not call SetOnline or
// CheckNow on the same Monitor.
type Listener func(Status)

// Options configures a Monitor.
type Options struct {
	InitialOnline bool
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
}

// Monitor is the single source of truth for online/offline status.
type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration

	mu        sync.Mutex
	status    Status
	listeners map[int]Listener
	nextID    int

	// deliverMu serializes transitions with their delivery
	deliverMu sync.Mutex

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a Monitor. prober may be nil, in which case CheckNow
// reports the current status unchanged.
func NewMonitor(prober Prober, opts Options) *Monitor {
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = DefaultProbeInterval
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	return &Monitor{
		prober:    prober,
		interval:  opts.ProbeInterval,
		timeout:   opts.ProbeTimeout,
		status:    Status{IsOnline: opts.InitialOnline},
		listeners: make(map[int]Listener),
	}
}

// Status returns the current reading.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// IsOnline is shorthand for Status().IsOnline.
func (m *Monitor) IsOnline() bool {
	return m.Status().IsOnline
}

// Subscribe registers l for future transitions and returns its unsubscribe
// handle. The handle is safe to call more than once.
func (m *Monitor) Subscribe(l Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// SetOnline records a platform connectivity event.
func (m *Monitor) SetOnline(online bool) {
	m.transition(online, time.Time{})
}

// CheckNow probes reachability and lets the result override the current
// reading in either direction.
func (m *Monitor) CheckNow(ctx context.Context) Status {
	if m.prober == nil {
		return m.Status()
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.prober.Health(probeCtx)
	if ctx.Err() != nil {
		// Caller gave up, the probe result says nothing about the network
		return m.Status()
	}
	if err != nil {
		logging.Debug("Reachability probe failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	m.transition(err == nil, time.Now())
	return m.Status()
}

func (m *Monitor) transition(online bool, checked time.Time) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()
	if !checked.IsZero() {
		m.status.LastChecked = checked
	}
	if m.status.IsOnline == online {
		m.mu.Unlock()
		return
	}
	m.status.IsOnline = online
	snapshot := m.status

	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	listeners := make([]Listener, 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		listeners = append(listeners, m.listeners[id])
	}
	m.mu.Unlock()

	logging.Info("Connectivity changed", map[string]interface{}{
		"online": online,
	})

	for _, l := range listeners {
		l(snapshot)
	}
}

// Start begins periodic probing until ctx is done or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.loop(ctx, m.done)
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// Stop ends periodic probing and waits for the probe loop to exit.
func (m *Monitor) Stop() {
	m.loopMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
