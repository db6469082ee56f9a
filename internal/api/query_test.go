package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/stockpilot/internal/agent"
	"github.com/aatumaykin/stockpilot/internal/llm"
)

func TestQuery_StatusMapping(t *testing.T) {
	env := newTestEnv(t)
	env.queries.results["low stock under 5"] = agent.Result{Success: true, Type: agent.TypeQuickQuery, Message: "2 items below 5 units"}
	env.queries.results["no model"] = agent.Result{Type: agent.TypeConfigError, Error: agent.ErrNotConfigured.Error()}
	env.queries.results["limited"] = agent.Result{Type: agent.TypeAPIError, Error: "rate limit exceeded, retry after 12s"}
	env.queries.results["broken"] = agent.Result{Type: agent.TypeError, Error: "tool loop did not converge"}

	tests := []struct {
		query    string
		wantCode int
		wantType agent.ResultType
	}{
		{"low stock under 5", http.StatusOK, agent.TypeQuickQuery},
		{"what sells best on mondays", http.StatusOK, agent.TypeAIResponse},
		{"no model", http.StatusServiceUnavailable, agent.TypeConfigError},
		{"limited", http.StatusBadGateway, agent.TypeAPIError},
		{"broken", http.StatusInternalServerError, agent.TypeError},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, Prefix+"/query", `{"query":"`+tt.query+`","conversationId":"c1"}`)
			require.Equal(t, tt.wantCode, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, string(tt.wantType), body["type"])
			assert.Equal(t, tt.wantCode == http.StatusOK, body["success"])
		})
	}
}

func TestQuery_UsageIsReported(t *testing.T) {
	env := newTestEnv(t)
	env.queries.results["count drugs"] = agent.Result{
		Success: true,
		Type:    agent.TypeAIResponse,
		Message: "There are 42 drugs.",
		Usage:   &llm.Usage{InputTokens: 120, OutputTokens: 30},
	}

	rec := env.do(t, http.MethodPost, Prefix+"/query", `{"query":"count drugs"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	usage, ok := decodeBody(t, rec)["usage"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, usage, 2)
}

func TestQuery_BadInput(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, Prefix+"/query", `{"query":"   "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, errTypeInvalidRequest, body["type"])

	rec = env.do(t, http.MethodPost, Prefix+"/query", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, Prefix+"/query", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearConversation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodDelete, Prefix+"/conversation/conv-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"conv-1"}, env.queries.cleared)

	rec = env.do(t, http.MethodDelete, Prefix+"/conversation/unknown", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errTypeNotFound, decodeBody(t, rec)["type"])
}
