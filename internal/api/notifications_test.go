package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/stockpilot/internal/logger"
	"github.com/aatumaykin/stockpilot/internal/notify"
)

func TestLogs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.ledger.Create(ctx, "scheduler", "stockCheck", map[string]any{"trigger": "manual"})
	require.NoError(t, err)
	_, err = env.ledger.Complete(ctx, id, map[string]any{"lowStock": 2})
	require.NoError(t, err)
	qid, err := env.ledger.Create(ctx, "query", "query", nil)
	require.NoError(t, err)
	_, err = env.ledger.Fail(ctx, qid, "rate limited")
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, Prefix+"/logs?taskName=stockCheck", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 1, body["count"])

	rec = env.do(t, http.MethodGet, Prefix+"/logs?agentKind=query&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decodeBody(t, rec)["logs"].([]any)
	require.Len(t, logs, 1)
	assert.Equal(t, "failed", logs[0].(map[string]any)["status"])

	rec = env.do(t, http.MethodGet, Prefix+"/logs/recent?days=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decodeBody(t, rec)["count"])

	rec = env.do(t, http.MethodGet, Prefix+"/logs/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decodeBody(t, rec)["total"])

	rec = env.do(t, http.MethodGet, Prefix+"/logs/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decodeBody(t, rec)["status"])

	rec = env.do(t, http.MethodGet, Prefix+"/logs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, Prefix+"/logs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotifications(t *testing.T) {
	env := newTestEnv(t)
	first := env.hub.Emit(notify.Notification{Type: notify.TypeWarning, Title: "Low stock", Message: "2 items"})
	env.hub.Emit(notify.Notification{Type: notify.TypeSuccess, Title: "Backup", Message: "done"})

	rec := env.do(t, http.MethodGet, Prefix+"/notifications?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	items := decodeBody(t, rec)["notifications"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Backup", items[0].(map[string]any)["title"])

	rec = env.do(t, http.MethodPut, Prefix+"/notifications/"+first.ID+"/read", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, Prefix+"/notifications/unread", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["count"])

	rec = env.do(t, http.MethodPut, Prefix+"/notifications/unknown/read", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPut, Prefix+"/notifications/read-all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["marked"])
	assert.Empty(t, env.hub.Unread())
}

func TestNotificationStream(t *testing.T) {
	hub := notify.NewHub(10, logger.Nop())
	srv := httptest.NewServer(NewServer(Options{Hub: hub, Logger: logger.Nop(), Heartbeat: time.Hour}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+Prefix+"/notifications/stream", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "retry: 3000\n", line)

	// the subscription is in place once the preamble arrives
	sent := hub.Emit(notify.Notification{Type: notify.TypeError, Title: "Task failed", Message: "stockCheck"})

	var data string
	for data == "" {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}

	var got notify.Notification
	require.NoError(t, json.Unmarshal([]byte(data), &got))
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, "Task failed", got.Title)
}

func TestNotificationStream_Heartbeat(t *testing.T) {
	hub := notify.NewHub(10, logger.Nop())
	srv := httptest.NewServer(NewServer(Options{Hub: hub, Logger: logger.Nop(), Heartbeat: 20 * time.Millisecond}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+Prefix+"/notifications/stream", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line == ": ping\n" {
			return
		}
	}
}
