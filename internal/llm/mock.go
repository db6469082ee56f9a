package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockProvider is a Provider for tests and offline mode.
type MockProvider struct {
	mu        sync.Mutex
	mode      MockMode
	responses []string
	script    []*ChatResponse
	handler   func(req ChatRequest) (*ChatResponse, error)
	index     int
	callCount int
	requests  []ChatRequest
}

// MockMode defines the operation mode of the mock provider.
type MockMode int

const (
	// MockModeEcho returns the last user text
	MockModeEcho MockMode = iota

	// MockModeFixed returns a fixed response
	MockModeFixed

	// MockModeScript returns pre-defined responses in order; the last one repeats
	MockModeScript

	// MockModeError always returns an error
	MockModeError

	// MockModeToolLoop requests the same tool on every call
	MockModeToolLoop

	// MockModeFunc delegates to a function
	MockModeFunc
)

// MockConfig holds configuration for the mock provider.
type MockConfig struct {
	Mode      MockMode
	Responses []string
	Script    []*ChatResponse
	Handler   func(req ChatRequest) (*ChatResponse, error)
	// ToolName and ToolInput are used by MockModeToolLoop.
	ToolName  string
	ToolInput string
}

// NewMockProvider creates a new mock provider.
func NewMockProvider(cfg MockConfig) *MockProvider {
	m := &MockProvider{mode: cfg.Mode, responses: cfg.Responses, script: cfg.Script, handler: cfg.Handler}
	if cfg.Mode == MockModeToolLoop {
		input := cfg.ToolInput
		if input == "" {
			input = `{"collection":"inventory","operation":"count"}`
		}
		m.script = []*ChatResponse{ToolUseResponse("call", cfg.ToolName, json.RawMessage(input))}
	}
	return m
}

// NewEchoProvider creates a mock provider that echoes user messages.
func NewEchoProvider() *MockProvider {
	return NewMockProvider(MockConfig{Mode: MockModeEcho})
}

// NewFixedProvider creates a mock provider that always returns response.
func NewFixedProvider(response string) *MockProvider {
	return NewMockProvider(MockConfig{Mode: MockModeFixed, Responses: []string{response}})
}

// NewScriptProvider replays responses in order.
func NewScriptProvider(responses ...*ChatResponse) *MockProvider {
	return NewMockProvider(MockConfig{Mode: MockModeScript, Script: responses})
}

// NewErrorProvider creates a mock provider that always returns err.
func NewErrorProvider(err error) *MockProvider {
	return NewMockProvider(MockConfig{Mode: MockModeFunc, Handler: func(ChatRequest) (*ChatResponse, error) {
		return nil, err
	}})
}

// TextResponse builds an end_turn response with one text block.
func TextResponse(text string) *ChatResponse {
	return &ChatResponse{
		Content:    []ContentBlock{{Type: BlockText, Text: text}},
		StopReason: StopEndTurn,
		Model:      "mock-model",
	}
}

// ToolUseResponse builds a response requesting one tool call.
func ToolUseResponse(id, name string, input json.RawMessage) *ChatResponse {
	return &ChatResponse{
		Content:    []ContentBlock{{Type: BlockToolUse, ID: id, Name: name, Input: input}},
		StopReason: StopToolUse,
		Model:      "mock-model",
	}
}

// Chat implements the Provider interface.
func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	m.requests = append(m.requests, req)

	switch m.mode {
	case MockModeError:
		return nil, fmt.Errorf("mock provider error")
	case MockModeFunc:
		return m.handler(req)
	case MockModeScript, MockModeToolLoop:
		if len(m.script) == 0 {
			return TextResponse("Script: no responses configured"), nil
		}
		resp := m.script[m.index]
		if m.index < len(m.script)-1 {
			m.index++
		}
		return resp, nil
	case MockModeFixed:
		if len(m.responses) > 0 {
			return TextResponse(m.responses[0]), nil
		}
		return TextResponse("Fixed response: no responses configured"), nil
	}

	var userMessage string
	if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == RoleUser {
		for _, b := range req.Messages[n-1].Content {
			if b.Type == BlockText {
				userMessage = b.Text
			}
		}
	}
	if userMessage == "" {
		userMessage = "(no user message)"
	}
	resp := TextResponse("Echo: " + userMessage)
	resp.Usage = Usage{InputTokens: len(userMessage), OutputTokens: len(resp.Text())}
	return resp, nil
}

// SupportsToolCalling implements the Provider interface.
func (m *MockProvider) SupportsToolCalling() bool {
	return true
}

// GetDefaultModel implements the Provider interface.
func (m *MockProvider) GetDefaultModel() string {
	return "mock-model"
}

// CallCount returns the number of Chat calls made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Requests returns a copy of every request received.
func (m *MockProvider) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.requests...)
}
