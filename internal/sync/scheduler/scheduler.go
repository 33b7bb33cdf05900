// Package scheduler provides background sweep scheduling for the sync manager.
//
// A cron entry fires the sweep job periodically while the scheduler is
// running and not paused. One-shot follow-ups scheduled with After implement
// retry backoff; they are cancelled by Pause and Stop.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Dompi123/FOMO2025PART4/internal/logging"
)

// Job is the work run on every tick.
type Job func(ctx context.Context)

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	Interval   time.Duration // periodic sweep interval (default: 60 seconds)
	JobTimeout time.Duration // upper bound for one job run (default: 5 minutes)
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		Interval:   60 * time.Second,
		JobTimeout: 5 * time.Minute,
	}
}

// Scheduler runs a Job periodically and on demand after a delay.
type Scheduler struct {
	job      Job
	interval time.Duration
	timeout  time.Duration

	mu        sync.Mutex
	cron      *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
	isPaused  bool
	timers    map[int]*time.Timer
	nextTimer int
	wg        sync.WaitGroup
}

// NewScheduler creates a new Scheduler.
func NewScheduler(job Job, config *SchedulerConfig) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if config == nil {
		config = defaults
	}
	interval, timeout := config.Interval, config.JobTimeout
	if interval <= 0 {
		interval = defaults.Interval
	}
	if timeout <= 0 {
		timeout = defaults.JobTimeout
	}

	return &Scheduler{
		job:      job,
		interval: interval,
		timeout:  timeout,
		timers:   make(map[int]*time.Timer),
	}
}

// Start begins periodic scheduling. Jobs run with a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	logger := cronLogger{}
	s.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(s.tick))
	s.cron.Start()
	s.isRunning = true

	logging.Info("Background sync scheduler started", map[string]interface{}{
		"interval_seconds": s.interval.Seconds(),
		"paused":           s.isPaused,
	})
}

// Stop stops periodic scheduling, cancels pending follow-ups and waits for
// a running job to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	c := s.cron
	s.cancelTimersLocked()
	cancel := s.cancel
	s.mu.Unlock()

	<-c.Stop().Done()
	s.wg.Wait()
	cancel()

	logging.Info("Background sync scheduler stopped", nil)
}

// Pause suspends periodic runs and cancels pending follow-ups.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isPaused {
		return
	}
	s.isPaused = true
	s.cancelTimersLocked()
	logging.Debug("Sync scheduler paused", nil)
}

// Resume re-enables periodic runs.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isPaused {
		return
	}
	s.isPaused = false
	logging.Debug("Sync scheduler resumed", nil)
}

// After runs the job once after delay unless the scheduler is stopped or
// paused first. It reports whether the follow-up was scheduled.
func (s *Scheduler) After(delay time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning || s.isPaused {
		return false
	}

	id := s.nextTimer
	s.nextTimer++
	s.timers[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, pending := s.timers[id]
		delete(s.timers, id)
		s.mu.Unlock()
		if pending {
			s.tick()
		}
	})

	logging.Debug("Follow-up sweep scheduled", map[string]interface{}{
		"delay_ms": delay.Milliseconds(),
	})
	return true
}

// Pending returns the number of scheduled follow-ups.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// IsPaused returns whether periodic runs are suspended.
func (s *Scheduler) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isPaused
}

func (s *Scheduler) cancelTimersLocked() {
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	if !s.isRunning || s.isPaused {
		s.mu.Unlock()
		return
	}
	parent := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()
	s.job(ctx)
}

// cronLogger routes cron's internal logging through the logging package.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.Debug("cron: "+msg, kv(keysAndValues))
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logging.Error("cron: "+msg, err, kv(keysAndValues))
}

func kv(keysAndValues []interface{}) map[string]interface{} {
	if len(keysAndValues) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if k, ok := keysAndValues[i].(string); ok {
			out[k] = keysAndValues[i+1]
		}
	}
	return out
}
