package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/stockpilot/internal/agent"
	"github.com/aatumaykin/stockpilot/internal/agent/session"
	"github.com/aatumaykin/stockpilot/internal/cron"
	"github.com/aatumaykin/stockpilot/internal/ledger"
	"github.com/aatumaykin/stockpilot/internal/logger"
	"github.com/aatumaykin/stockpilot/internal/metrics"
	"github.com/aatumaykin/stockpilot/internal/notify"
	"github.com/aatumaykin/stockpilot/internal/storage"
	"github.com/aatumaykin/stockpilot/internal/tasks"
)

// mockScheduler records calls and returns canned errors per task name.
type mockScheduler struct {
	mu       sync.Mutex
	running  bool
	known    map[string]bool
	failing  map[string]error
	calls    []string
	startErr error
}

func newMockScheduler(names ...string) *mockScheduler {
	m := &mockScheduler{known: map[string]bool{}, failing: map[string]error{}}
	for _, n := range names {
		m.known[n] = true
	}
	return m
}

func (m *mockScheduler) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *mockScheduler) check(name string) error {
	if !m.known[name] {
		return fmt.Errorf("%w: %s", tasks.ErrTaskNotFound, name)
	}
	return m.failing[name]
}

func (m *mockScheduler) Start(ctx context.Context) error {
	m.record("start")
	if m.startErr != nil {
		return m.startErr
	}
	m.mu.Lock()
	m.running = true
	m.mu.Unlock()
	return nil
}

func (m *mockScheduler) Stop() {
	m.record("stop")
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

func (m *mockScheduler) Status(ctx context.Context) (cron.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := cron.StateStopped
	if m.running {
		state = cron.StateRunning
	}
	return cron.Status{Running: m.running, State: state, Tasks: []cron.TaskSummary{}}, nil
}

func (m *mockScheduler) Tasks(ctx context.Context) ([]cron.TaskSummary, error) {
	out := []cron.TaskSummary{}
	for name := range m.known {
		out = append(out, cron.TaskSummary{ScheduledTask: cron.ScheduledTask{Name: name, Enabled: true}})
	}
	return out, nil
}

func (m *mockScheduler) Trigger(ctx context.Context, name, actorID string) (tasks.Result, error) {
	m.record("trigger:" + name + ":" + actorID)
	if err := m.check(name); err != nil {
		return nil, err
	}
	return tasks.Result{"checked": 3}, nil
}

func (m *mockScheduler) Enable(ctx context.Context, name string) error {
	m.record("enable:" + name)
	return m.check(name)
}

func (m *mockScheduler) Disable(ctx context.Context, name string) error {
	m.record("disable:" + name)
	return m.check(name)
}

func (m *mockScheduler) Reschedule(ctx context.Context, name, expr string) error {
	m.record("reschedule:" + name)
	if _, err := cron.Parse(expr); err != nil {
		return err
	}
	return m.check(name)
}

func (m *mockScheduler) UpdateConfig(ctx context.Context, name string, partial map[string]any) (map[string]any, error) {
	if err := m.check(name); err != nil {
		return nil, err
	}
	if v, ok := partial["threshold"].(float64); ok && v < 0 {
		return nil, fmt.Errorf("%w: threshold must be >= 0", tasks.ErrInvalidConfig)
	}
	merged := map[string]any{"threshold": 10.0}
	for k, v := range partial {
		merged[k] = v
	}
	return merged, nil
}

// mockQueries answers with a fixed result per query text.
type mockQueries struct {
	results map[string]agent.Result
	cleared []string
}

func (m *mockQueries) Process(ctx context.Context, req agent.Request) (agent.Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return agent.Result{Type: agent.TypeError, Error: agent.ErrEmptyQuery.Error()}, agent.ErrEmptyQuery
	}
	if res, ok := m.results[req.Query]; ok {
		return res, nil
	}
	return agent.Result{Success: true, Type: agent.TypeAIResponse, Message: "echo: " + req.Query}, nil
}

func (m *mockQueries) ClearConversation(id string) error {
	if id != "conv-1" {
		return session.ErrNotFound
	}
	m.cleared = append(m.cleared, id)
	return nil
}

type testEnv struct {
	server    *Server
	scheduler *mockScheduler
	queries   *mockQueries
	ledger    *ledger.Ledger
	hub       *notify.Hub
	registry  *prometheus.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := prometheus.NewRegistry()
	env := &testEnv{
		scheduler: newMockScheduler("stockCheck", "expiryCheck"),
		queries:   &mockQueries{results: map[string]agent.Result{}},
		ledger:    ledger.New(db),
		hub:       notify.NewHub(10, logger.Nop()),
		registry:  reg,
	}
	env.server = NewServer(Options{
		Scheduler: env.scheduler,
		Queries:   env.queries,
		Ledger:    env.ledger,
		Hub:       env.hub,
		Metrics:   metrics.New("stockpilot", reg),
		Gatherer:  reg,
		Ping:      db.PingContext,
		Logger:    logger.Nop(),
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestHealthz_PingFailure(t *testing.T) {
	srv := NewServer(Options{
		Logger: logger.Nop(),
		Ping:   func(context.Context) error { return errors.New("database is closed") },
	})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, Prefix+"/status", "")

	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `stockpilot_http_requests_total{code="200",method="GET",route="/api/agents/status"} 1`)
}

func TestStatusAndTasks(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, Prefix+"/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["isRunning"])
	assert.Equal(t, "stopped", body["state"])

	rec = env.do(t, http.MethodGet, Prefix+"/tasks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decodeBody(t, rec)["count"])
}

func TestTrigger(t *testing.T) {
	env := newTestEnv(t)
	env.scheduler.failing["expiryCheck"] = &tasks.HandlerError{Task: "expiryCheck", Err: errors.New("collection unavailable")}

	tests := []struct {
		name     string
		task     string
		body     string
		wantCode int
		wantType string
	}{
		{name: "success", task: "stockCheck", body: `{"actorId":"admin"}`, wantCode: http.StatusOK},
		{name: "no body", task: "stockCheck", wantCode: http.StatusOK},
		{name: "unknown task", task: "nope", wantCode: http.StatusNotFound, wantType: errTypeNotFound},
		{name: "handler failure", task: "expiryCheck", wantCode: http.StatusInternalServerError, wantType: errTypeHandler},
		{name: "malformed body", task: "stockCheck", body: `{"actorId":`, wantCode: http.StatusBadRequest, wantType: errTypeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, Prefix+"/trigger/"+tt.task, tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			body := decodeBody(t, rec)
			if tt.wantType == "" {
				assert.Equal(t, true, body["success"])
				assert.Equal(t, tt.task, body["taskName"])
				return
			}
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantType, body["type"])
			assert.NotEmpty(t, body["error"])
		})
	}

	assert.Contains(t, env.scheduler.calls, "trigger:stockCheck:admin")
}

func TestSetEnabled(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, Prefix+"/tasks/stockCheck/enabled", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["enabled"])

	rec = env.do(t, http.MethodPut, Prefix+"/tasks/stockCheck/enabled", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"disable:stockCheck", "enable:stockCheck"}, env.scheduler.calls)

	rec = env.do(t, http.MethodPut, Prefix+"/tasks/stockCheck/enabled", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, Prefix+"/tasks/ghost/enabled", `{"enabled":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetSchedule(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, Prefix+"/tasks/stockCheck/schedule", `{"scheduleExpression":"0 9 * * *"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0 9 * * *", decodeBody(t, rec)["scheduleExpression"])

	rec = env.do(t, http.MethodPut, Prefix+"/tasks/stockCheck/schedule", `{"scheduleExpression":"every day"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errTypeInvalidSchedule, decodeBody(t, rec)["type"])

	rec = env.do(t, http.MethodPut, Prefix+"/tasks/stockCheck/schedule", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateConfig(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, Prefix+"/tasks/stockCheck/config", `{"threshold":5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decodeBody(t, rec)["config"].(map[string]any)
	assert.EqualValues(t, 5, cfg["threshold"])

	rec = env.do(t, http.MethodPut, Prefix+"/tasks/stockCheck/config", `{"threshold":-1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errTypeInvalidConfig, decodeBody(t, rec)["type"])

	rec = env.do(t, http.MethodPut, Prefix+"/tasks/stockCheck/config", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchedulerStartStop(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, Prefix+"/scheduler/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["isRunning"])

	rec = env.do(t, http.MethodPost, Prefix+"/scheduler/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["isRunning"])

	env.scheduler.startErr = errors.New("seed default tasks: disk full")
	rec = env.do(t, http.MethodPost, Prefix+"/scheduler/start", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, errTypeInternal, decodeBody(t, rec)["type"])
}
