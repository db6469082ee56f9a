// Package metrics defines the Prometheus collectors exported on /metrics.
// Every method is safe to call on a nil *Metrics, so components can be used
// without instrumentation in tests and CLI commands.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups all stockpilot collectors.
type Metrics struct {
	taskRuns         *prometheus.CounterVec
	taskDuration     *prometheus.HistogramVec
	schedulerRunning prometheus.Gauge
	activeBindings   prometheus.Gauge
	llmRequests      *prometheus.CounterVec
	llmDuration      prometheus.Histogram
	llmTokens        *prometheus.CounterVec
	queries          *prometheus.CounterVec
	toolIterations   prometheus.Histogram
	notifications    *prometheus.CounterVec
	poolJobs         *prometheus.CounterVec
	poolQueueDepth   prometheus.Gauge
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg
// (prometheus.DefaultRegisterer when nil).
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		taskRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_runs_total",
				Help:      "Scheduled task executions by task, trigger and status",
			},
			[]string{"task", "trigger", "status"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Duration of scheduled task executions",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
			},
			[]string{"task"},
		),
		schedulerRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "scheduler_running",
				Help:      "1 when the scheduler is running",
			},
		),
		activeBindings: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "scheduler_active_bindings",
				Help:      "Number of tasks bound to a timer",
			},
		),
		llmRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_requests_total",
				Help:      "Model requests by outcome",
			},
			[]string{"outcome"},
		),
		llmDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_request_duration_seconds",
				Help:      "Latency of accepted model requests",
				Buckets:   []float64{.25, .5, 1, 2, 5, 10, 30, 60},
			},
		),
		llmTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_tokens_total",
				Help:      "Tokens consumed by direction",
			},
			[]string{"direction"},
		),
		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Processed queries by result type",
			},
			[]string{"type"},
		),
		toolIterations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_tool_iterations",
				Help:      "Tool loop iterations per model-path query",
				Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
			},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Emitted notifications by type and priority",
			},
			[]string{"type", "priority"},
		),
		poolJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_jobs_total",
				Help:      "Worker pool jobs by status",
			},
			[]string{"status"},
		),
		poolQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_queue_depth",
				Help:      "Jobs waiting in the worker pool queue",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "API requests by route pattern, method and status code",
			},
			[]string{"route", "method", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "API request latency by route pattern",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	reg.MustRegister(
		m.taskRuns,
		m.taskDuration,
		m.schedulerRunning,
		m.activeBindings,
		m.llmRequests,
		m.llmDuration,
		m.llmTokens,
		m.queries,
		m.toolIterations,
		m.notifications,
		m.poolJobs,
		m.poolQueueDepth,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

func (m *Metrics) RecordTaskRun(task, trigger string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.taskRuns.WithLabelValues(task, trigger, status).Inc()
	m.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

func (m *Metrics) SetSchedulerRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.schedulerRunning.Set(1)
	} else {
		m.schedulerRunning.Set(0)
	}
}

func (m *Metrics) SetActiveBindings(n int) {
	if m == nil {
		return
	}
	m.activeBindings.Set(float64(n))
}

// RecordLLMRequest counts a model request. outcome is "ok", "rate_limited"
// or an error kind.
func (m *Metrics) RecordLLMRequest(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.llmDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) RecordTokens(input, output int) {
	if m == nil {
		return
	}
	m.llmTokens.WithLabelValues("input").Add(float64(input))
	m.llmTokens.WithLabelValues("output").Add(float64(output))
}

func (m *Metrics) RecordQuery(resultType string, iterations int) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(resultType).Inc()
	if iterations > 0 {
		m.toolIterations.Observe(float64(iterations))
	}
}

func (m *Metrics) RecordNotification(kind, priority string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, priority).Inc()
}

func (m *Metrics) RecordPoolJob(status string) {
	if m == nil {
		return
	}
	m.poolJobs.WithLabelValues(status).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.poolQueueDepth.Set(float64(n))
}

// RecordHTTPRequest counts one API request. route is the router pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) RecordHTTPRequest(route, method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
