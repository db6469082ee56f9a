package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aatumaykin/stockpilot/internal/logger"
)

const (
	// AnthropicBaseURL is the default API root.
	AnthropicBaseURL = "https://api.anthropic.com"
	// AnthropicVersion is sent in the anthropic-version header.
	AnthropicVersion = "2023-06-01"
	// AnthropicRequestTimeout is the default timeout for API requests
	AnthropicRequestTimeout = 60 * time.Second
	// AnthropicDefaultModel is used when neither config nor request names one.
	AnthropicDefaultModel = "claude-sonnet-4-5"

	maxErrorBody = 512
)

// AnthropicConfig contains configuration for the Anthropic provider.
type AnthropicConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// AnthropicProvider implements Provider for the Messages API.
type AnthropicProvider struct {
	client *http.Client
	config AnthropicConfig
	apiURL string
	logger *logger.Logger
}

// anthropicRequest is the Messages API request body.
type anthropicRequest struct {
	Model       string           `json:"model"`
	MaxTokens   int              `json:"max_tokens"`
	System      string           `json:"system,omitempty"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
}

// anthropicResponse is the Messages API response body.
type anthropicResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// anthropicError is the error envelope returned with non-2xx statuses.
type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAnthropicProvider creates a provider. Empty fields fall back to defaults.
func NewAnthropicProvider(cfg AnthropicConfig, log *logger.Logger) *AnthropicProvider {
	if cfg.Model == "" {
		cfg.Model = AnthropicDefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = AnthropicBaseURL
	}
	if log == nil {
		log = logger.Nop()
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = AnthropicRequestTimeout
	}

	return &AnthropicProvider{
		client: &http.Client{Timeout: timeout},
		config: cfg,
		apiURL: strings.TrimRight(cfg.BaseURL, "/") + "/v1/messages",
		logger: log.Component("llm"),
	}
}

// Chat sends a request to the Messages API.
func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	p.logger.DebugCtx(ctx, "sending messages request",
		logger.Field{Key: "model", Value: p.model(req)},
		logger.Field{Key: "messages_count", Value: len(req.Messages)},
		logger.Field{Key: "tools_count", Value: len(req.Tools)})

	body, err := json.Marshal(p.mapChatRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := p.doRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	return p.mapChatResponse(resp), nil
}

func (p *AnthropicProvider) model(req ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.config.Model
}

func (p *AnthropicProvider) mapChatRequest(req ChatRequest) anthropicRequest {
	out := anthropicRequest{
		Model:     p.model(req),
		MaxTokens: req.MaxTokens,
		System:    req.System,
		Messages:  req.Messages,
		Tools:     req.Tools,
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = 4096
	}
	if req.Temperature > 0 {
		t := req.Temperature
		out.Temperature = &t
	}
	return out
}

func (p *AnthropicProvider) mapChatResponse(r *anthropicResponse) *ChatResponse {
	return &ChatResponse{
		Content:    r.Content,
		StopReason: StopReason(r.StopReason),
		Usage:      Usage{InputTokens: r.Usage.InputTokens, OutputTokens: r.Usage.OutputTokens},
		Model:      r.Model,
	}
}

// doRequest executes a single HTTP request and maps error statuses to the
// typed errors of this package.
func (p *AnthropicProvider) doRequest(ctx context.Context, body []byte) (*anthropicResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.config.APIKey)
	httpReq.Header.Set("anthropic-version", AnthropicVersion)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		apiErr := p.mapError(httpResp, respBody)
		p.logger.WarnCtx(ctx, "messages API returned error status",
			logger.Field{Key: "status_code", Value: httpResp.StatusCode},
			logger.Field{Key: "error", Value: apiErr.Error()})
		return nil, apiErr
	}

	var out anthropicResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	p.logger.DebugCtx(ctx, "messages response",
		logger.Field{Key: "stop_reason", Value: out.StopReason},
		logger.Field{Key: "blocks", Value: len(out.Content)},
		logger.Field{Key: "input_tokens", Value: out.Usage.InputTokens},
		logger.Field{Key: "output_tokens", Value: out.Usage.OutputTokens})
	return &out, nil
}

func (p *AnthropicProvider) mapError(resp *http.Response, body []byte) error {
	msg := errorMessage(body)
	status := resp.StatusCode
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{StatusCode: status, Message: msg}
	case status == http.StatusTooManyRequests:
		return &UpstreamRateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("retry-after")), Message: msg}
	case status >= 500:
		return &UpstreamError{StatusCode: status, Message: msg}
	default:
		return &APIError{StatusCode: status, Message: msg}
	}
}

func errorMessage(body []byte) string {
	var env anthropicError
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		if env.Error.Type != "" {
			return env.Error.Type + ": " + env.Error.Message
		}
		return env.Error.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	if s == "" {
		return "empty response body"
	}
	return s
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// SupportsToolCalling returns true; the Messages API supports tool use.
func (p *AnthropicProvider) SupportsToolCalling() bool {
	return true
}

// GetDefaultModel returns the configured model.
func (p *AnthropicProvider) GetDefaultModel() string {
	return p.config.Model
}
