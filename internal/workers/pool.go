package workers

import (
	"context"
	"sync"

	"github.com/aatumaykin/stockpilot/internal/logger"
	"github.com/aatumaykin/stockpilot/internal/metrics"
)

// Pool manages a fixed set of goroutine workers reading from a bounded queue.
type Pool struct {
	queue   chan Job
	workers int
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *logger.Logger
	metrics *metrics.Metrics
	// OnResult, when set before Start, receives every finished job.
	OnResult func(Result)

	mu      sync.RWMutex
	started bool
	stopped bool

	statsMu sync.Mutex
	stats   Stats
}

// NewPool creates a worker pool. Non-positive sizes fall back to defaults.
func NewPool(workers, queueSize int, log *logger.Logger, m *metrics.Metrics) *Pool {
	if workers <= 0 {
		workers = DefaultPoolSize
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		queue:   make(chan Job, queueSize),
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
		logger:  log.Component("workers"),
		metrics: m,
	}
}

// Start launches the worker goroutines. Calling it twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	p.logger.Info("starting worker pool",
		logger.Field{Key: "workers", Value: p.workers},
		logger.Field{Key: "queue_size", Value: cap(p.queue)})

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit enqueues job, blocking until a slot is free or ctx is done.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.queue <- job:
		p.submitted(job)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit enqueues job without blocking.
func (p *Pool) TrySubmit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.queue <- job:
		p.submitted(job)
		return nil
	default:
		p.metrics.RecordPoolJob("rejected")
		return ErrQueueFull
	}
}

func (p *Pool) submitted(job Job) {
	p.statsMu.Lock()
	p.stats.Submitted++
	p.statsMu.Unlock()

	p.metrics.SetQueueDepth(len(p.queue))
	p.logger.Debug("job submitted",
		logger.Field{Key: "job_id", Value: job.ID},
		logger.Field{Key: "job", Value: job.Name})
}

// Stop stops accepting jobs and waits until queued and in-flight jobs finish.
// The pool context is cancelled only afterwards, so running jobs complete
// their ledger writes.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	started := p.started
	p.mu.Unlock()

	if started {
		p.wg.Wait()
	}
	p.cancel()

	stats := p.Stats()
	p.logger.Info("worker pool stopped",
		logger.Field{Key: "jobs_submitted", Value: stats.Submitted},
		logger.Field{Key: "jobs_completed", Value: stats.Completed},
		logger.Field{Key: "jobs_failed", Value: stats.Failed})
}

// WorkerCount returns the number of workers.
func (p *Pool) WorkerCount() int {
	return p.workers
}

// QueueLen returns the number of jobs waiting in the queue.
func (p *Pool) QueueLen() int {
	return len(p.queue)
}
