// Package workers provides the bounded worker pool that executes scheduled
// task runs off the cron timer goroutine.
package workers

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPoolStopped is returned when submitting to a stopped pool.
	ErrPoolStopped = errors.New("worker pool is stopped")
	// ErrQueueFull is returned by TrySubmit when no queue slot is free.
	ErrQueueFull = errors.New("worker pool queue is full")
)

// Job is a unit of work executed by a worker.
type Job struct {
	ID      string                          // Unique job identifier
	Name    string                          // Task name, used in logs
	Run     func(ctx context.Context) error // Work to execute
	Context context.Context                 // Optional job context; the pool context otherwise
}

// Result represents the outcome of a job execution.
type Result struct {
	JobID    string
	Name     string
	Error    error
	Duration time.Duration
}

// Stats tracks execution counters for the worker pool.
type Stats struct {
	Submitted     uint64
	Completed     uint64
	Failed        uint64
	Panicked      uint64
	TotalDuration time.Duration
}

// Constants for worker pool configuration
const (
	DefaultPoolSize  = 4
	DefaultQueueSize = 64
)
