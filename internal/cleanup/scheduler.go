// Package cleanup periodically drops idle query conversations from the
// in-memory session store.
package cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/aatumaykin/stockpilot/internal/logger"
)

// Sweeper removes conversations idle for longer than maxAge and reports how
// many were removed.
type Sweeper interface {
	ClearIdle(maxAge time.Duration) int
}

// SchedulerConfig holds configuration for the cleanup scheduler.
type SchedulerConfig struct {
	Enabled  bool          // Enable periodic cleanup
	Interval time.Duration // Interval between cleanup runs
	MaxIdle  time.Duration // Conversations untouched for longer are dropped
}

// Stats describes one cleanup run.
type Stats struct {
	SessionsDeleted int
	Duration        time.Duration
}

// Scheduler manages periodic cleanup runs.
type Scheduler struct {
	sweeper Sweeper
	config  SchedulerConfig
	logger  *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a new cleanup scheduler.
func NewScheduler(sweeper Sweeper, config SchedulerConfig, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		sweeper: sweeper,
		config:  config,
		logger:  log.Component("cleanup"),
	}
}

// Start begins the periodic cleanup scheduler. It is a no-op when disabled
// or already started.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.config.Enabled || s.config.Interval <= 0 || s.config.MaxIdle <= 0 {
		s.logger.Info("cleanup scheduler disabled")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("cleanup scheduler started",
		logger.Field{Key: "interval", Value: s.config.Interval.String()},
		logger.Field{Key: "max_idle", Value: s.config.MaxIdle.String()})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Trigger()
			case <-ctx.Done():
				s.logger.Info("cleanup scheduler stopped")
				return
			}
		}
	}()
}

// Stop stops the cleanup scheduler and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Trigger runs cleanup immediately.
func (s *Scheduler) Trigger() Stats {
	start := time.Now()
	n := s.sweeper.ClearIdle(s.config.MaxIdle)
	stats := Stats{SessionsDeleted: n, Duration: time.Since(start)}

	if n > 0 {
		s.logger.Info("idle conversations cleared",
			logger.Field{Key: "sessions_deleted", Value: n},
			logger.Field{Key: "duration_ms", Value: stats.Duration.Milliseconds()})
	} else {
		s.logger.Debug("cleanup completed: no idle conversations")
	}
	return stats
}
