package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sample returns the counter or gauge value of the series name{labels}.
func sample(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue series
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			if g := m.GetGauge(); g != nil {
				return g.GetValue()
			}
		}
	}
	return 0
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("stockpilot", reg)

	m.RecordTaskRun("stockCheck", "manual", true, 20*time.Millisecond)
	m.RecordTaskRun("stockCheck", "manual", false, 20*time.Millisecond)
	m.RecordTaskRun("stockCheck", "manual", false, 20*time.Millisecond)
	m.RecordLLMRequest("ok", time.Second)
	m.RecordLLMRequest("rate_limited", 0)
	m.RecordNotification("warning", "high")
	m.SetSchedulerRunning(true)

	assert.Equal(t, 1.0, sample(t, reg, "stockpilot_task_runs_total", map[string]string{"task": "stockCheck", "status": "success"}))
	assert.Equal(t, 2.0, sample(t, reg, "stockpilot_task_runs_total", map[string]string{"task": "stockCheck", "status": "failure"}))
	assert.Equal(t, 1.0, sample(t, reg, "stockpilot_llm_requests_total", map[string]string{"outcome": "rate_limited"}))
	assert.Equal(t, 1.0, sample(t, reg, "stockpilot_notifications_total", map[string]string{"type": "warning", "priority": "high"}))
	assert.Equal(t, 1.0, sample(t, reg, "stockpilot_scheduler_running", nil))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTaskRun("x", "manual", true, time.Second)
		m.SetSchedulerRunning(true)
		m.SetActiveBindings(3)
		m.RecordLLMRequest("ok", time.Second)
		m.RecordTokens(1, 2)
		m.RecordQuery("ai_response", 2)
		m.RecordNotification("info", "low")
		m.RecordPoolJob("completed")
		m.SetQueueDepth(1)
	})
}
