package connectivity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	mu    sync.Mutex
	err   error
	calls int32
}

func (p *fakeProber) Health(ctx context.Context) error {
	atomic.AddInt32(&p.calls, 1)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakeProber) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

type recorder struct {
	mu   sync.Mutex
	seen []bool
}

func (r *recorder) listen(s Status) {
	r.mu.Lock()
	r.seen = append(r.seen, s.IsOnline)
	r.mu.Unlock()
}

func (r *recorder) values() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.seen...)
}

// TestMonitor_transitionsInOrder verifies every transition reaches every subscriber in order.
func TestMonitor_transitionsInOrder(t *testing.T) {
	m := NewMonitor(nil, Options{InitialOnline: true})
	var a, b recorder
	m.Subscribe(a.listen)
	m.Subscribe(b.listen)

	m.SetOnline(false)
	m.SetOnline(false) // no transition
	m.SetOnline(true)
	m.SetOnline(false)

	want := []bool{false, true, false}
	assert.Equal(t, want, a.values())
	assert.Equal(t, want, b.values())
	assert.False(t, m.IsOnline())
}

// TestMonitor_unsubscribe verifies removed listeners are not called.
func TestMonitor_unsubscribe(t *testing.T) {
	m := NewMonitor(nil, Options{})
	var r recorder
	unsubscribe := m.Subscribe(r.listen)

	m.SetOnline(true)
	unsubscribe()
	unsubscribe()
	m.SetOnline(false)

	assert.Equal(t, []bool{true}, r.values())
}

// TestMonitor_concurrentTransitions verifies listeners never observe a repeated value.
func TestMonitor_concurrentTransitions(t *testing.T) {
	m := NewMonitor(nil, Options{})
	var r recorder
	m.Subscribe(r.listen)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.SetOnline(i%2 == 0)
		}(i)
	}
	wg.Wait()

	seen := r.values()
	for i := 1; i < len(seen); i++ {
		assert.NotEqual(t, seen[i-1], seen[i], "transition %d repeats previous state", i)
	}
	if len(seen) > 0 {
		assert.Equal(t, m.IsOnline(), seen[len(seen)-1])
	}
}

// TestMonitor_checkNowOverrides verifies the probe result wins in both directions.
func TestMonitor_checkNowOverrides(t *testing.T) {
	p := &fakeProber{err: errors.New("unreachable")}
	m := NewMonitor(p, Options{InitialOnline: true})
	var r recorder
	m.Subscribe(r.listen)

	status := m.CheckNow(context.Background())
	assert.False(t, status.IsOnline)
	assert.False(t, status.LastChecked.IsZero())

	p.setErr(nil)
	assert.True(t, m.CheckNow(context.Background()).IsOnline)
	assert.Equal(t, []bool{false, true}, r.values())
}

// TestMonitor_checkNowCancelled verifies a cancelled probe leaves status alone.
func TestMonitor_checkNowCancelled(t *testing.T) {
	p := &fakeProber{err: context.Canceled}
	m := NewMonitor(p, Options{InitialOnline: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.True(t, m.CheckNow(ctx).IsOnline)
}

// TestMonitor_startStop verifies periodic probing runs until stopped.
func TestMonitor_startStop(t *testing.T) {
	p := &fakeProber{}
	m := NewMonitor(p, Options{ProbeInterval: 5 * time.Millisecond})

	m.Start(context.Background())
	m.Start(context.Background()) // second start is ignored

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&p.calls) >= 2
	}, time.Second, 5*time.Millisecond)
	assert.True(t, m.IsOnline())

	m.Stop()
	calls := atomic.LoadInt32(&p.calls)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, atomic.LoadInt32(&p.calls))

	m.Stop()
}
