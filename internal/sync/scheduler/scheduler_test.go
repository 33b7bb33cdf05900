// Package scheduler tests for background sweep scheduling.
package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type counter struct {
	runs int32
}

func (c *counter) job(ctx context.Context) {
	atomic.AddInt32(&c.runs, 1)
}

func (c *counter) count() int32 {
	return atomic.LoadInt32(&c.runs)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// TestDefaultSchedulerConfig verifies default configuration.
func TestDefaultSchedulerConfig(t *testing.T) {
	config := DefaultSchedulerConfig()

	if config.Interval != 60*time.Second {
		t.Errorf("Interval = %v, want 60s", config.Interval)
	}
	if config.JobTimeout != 5*time.Minute {
		t.Errorf("JobTimeout = %v, want 5m", config.JobTimeout)
	}

	s := NewScheduler(func(context.Context) {}, &SchedulerConfig{})
	if s.interval != 60*time.Second || s.timeout != 5*time.Minute {
		t.Errorf("zero config not defaulted: %v %v", s.interval, s.timeout)
	}
}

// TestSchedulerPeriodic verifies the cron entry fires while running.
func TestSchedulerPeriodic(t *testing.T) {
	var c counter
	s := NewScheduler(c.job, &SchedulerConfig{Interval: time.Second})

	s.Start(context.Background())
	defer s.Stop()

	if !s.IsRunning() {
		t.Fatal("Expected scheduler to be running")
	}
	if !waitFor(t, 3*time.Second, func() bool { return c.count() >= 1 }) {
		t.Fatal("Periodic job never ran")
	}
}

// TestSchedulerPausedSkipsTicks verifies paused schedulers do not run the job.
func TestSchedulerPausedSkipsTicks(t *testing.T) {
	var c counter
	s := NewScheduler(c.job, &SchedulerConfig{Interval: time.Second})
	s.Pause()
	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(1500 * time.Millisecond)
	if c.count() != 0 {
		t.Errorf("Expected no runs while paused, got %d", c.count())
	}
	if s.After(time.Millisecond) {
		t.Error("After must refuse while paused")
	}

	s.Resume()
	if s.IsPaused() {
		t.Error("Expected scheduler to be resumed")
	}
	if !s.After(time.Millisecond) {
		t.Fatal("After refused after resume")
	}
	if !waitFor(t, time.Second, func() bool { return c.count() >= 1 }) {
		t.Error("Follow-up did not run after resume")
	}
}

// TestSchedulerAfter verifies a follow-up runs once and is then forgotten.
func TestSchedulerAfter(t *testing.T) {
	var c counter
	s := NewScheduler(c.job, &SchedulerConfig{Interval: time.Hour})
	if s.After(time.Millisecond) {
		t.Error("After must refuse before Start")
	}

	s.Start(context.Background())
	defer s.Stop()

	s.After(10 * time.Millisecond)
	if s.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", s.Pending())
	}
	if !waitFor(t, time.Second, func() bool { return c.count() == 1 && s.Pending() == 0 }) {
		t.Fatalf("Follow-up did not run, runs=%d pending=%d", c.count(), s.Pending())
	}
}

// TestSchedulerPauseCancelsFollowUps verifies Pause and Stop drop pending follow-ups.
func TestSchedulerPauseCancelsFollowUps(t *testing.T) {
	var c counter
	s := NewScheduler(c.job, &SchedulerConfig{Interval: time.Hour})
	s.Start(context.Background())

	s.After(50 * time.Millisecond)
	s.Pause()
	s.Resume()
	s.After(50 * time.Millisecond)
	s.Stop()

	time.Sleep(100 * time.Millisecond)
	if c.count() != 0 {
		t.Errorf("Expected cancelled follow-ups, got %d runs", c.count())
	}
	if s.IsRunning() {
		t.Error("Expected scheduler to be stopped")
	}
	s.Stop()
}

// TestSchedulerStopWaitsForJob verifies Stop returns after a running job.
func TestSchedulerStopWaitsForJob(t *testing.T) {
	started := make(chan struct{})
	var finished int32
	s := NewScheduler(func(ctx context.Context) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		atomic.StoreInt32(&finished, 1)
	}, &SchedulerConfig{Interval: time.Hour})

	s.Start(context.Background())
	s.After(0)
	<-started
	s.Stop()

	if atomic.LoadInt32(&finished) != 1 {
		t.Error("Stop returned before the job finished")
	}
}

// TestSchedulerJobContext verifies jobs get a bounded context.
func TestSchedulerJobContext(t *testing.T) {
	deadlines := make(chan bool, 1)
	s := NewScheduler(func(ctx context.Context) {
		_, ok := ctx.Deadline()
		deadlines <- ok
	}, &SchedulerConfig{Interval: time.Hour, JobTimeout: time.Second})

	s.Start(context.Background())
	defer s.Stop()
	s.After(0)

	select {
	case ok := <-deadlines:
		if !ok {
			t.Error("Expected job context with a deadline")
		}
	case <-time.After(time.Second):
		t.Fatal("Job did not run")
	}
}
