package workers

import (
	"fmt"
	"time"

	"github.com/aatumaykin/stockpilot/internal/logger"
)

// worker drains the queue until it is closed.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("worker started", logger.Field{Key: "worker_id", Value: id})
	for job := range p.queue {
		p.metrics.SetQueueDepth(len(p.queue))
		p.process(id, job)
	}
	p.logger.Debug("worker stopping", logger.Field{Key: "worker_id", Value: id})
}

// process runs a single job with panic recovery and bookkeeping.
func (p *Pool) process(workerID int, job Job) {
	start := time.Now()
	ctx := p.ctx
	if job.Context != nil {
		ctx = job.Context
	}

	var panicked bool
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				err = fmt.Errorf("panic during job execution: %v", r)
			}
		}()
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		return job.Run(ctx)
	}()

	res := Result{JobID: job.ID, Name: job.Name, Error: err, Duration: time.Since(start)}
	p.record(res, panicked)

	fields := []logger.Field{
		{Key: "worker_id", Value: workerID},
		{Key: "job_id", Value: job.ID},
		{Key: "job", Value: job.Name},
		{Key: "duration_ms", Value: res.Duration.Milliseconds()},
	}
	switch {
	case panicked:
		p.logger.Error("job panic recovered", err, fields...)
	case err != nil:
		p.logger.Warn("job failed", append(fields, logger.Field{Key: "error", Value: err.Error()})...)
	default:
		p.logger.Debug("job processed", fields...)
	}

	if p.OnResult != nil {
		p.OnResult(res)
	}
}
