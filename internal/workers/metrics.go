package workers

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

func (p *Pool) record(res Result, panicked bool) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	p.stats.TotalDuration += res.Duration
	status := "completed"
	switch {
	case panicked:
		p.stats.Panicked++
		p.stats.Failed++
		status = "panicked"
	case res.Error != nil:
		p.stats.Failed++
		status = "failed"
	default:
		p.stats.Completed++
	}
	p.metrics.RecordPoolJob(status)
}
