package tools

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aatumaykin/stockpilot/internal/logger"
)

var (
	// ErrForbidden is returned for collections or operations outside the whitelist.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidQuery is returned for malformed tool input or filters.
	ErrInvalidQuery = errors.New("invalid query")
)

// ToolError - структурированная ошибка выполнения инструмента
type ToolError struct {
	Code       string         `json:"code"`                 // Код ошибки для программной обработки
	Message    string         `json:"message"`              // Человекочитаемое сообщение
	Details    map[string]any `json:"details,omitempty"`    // Дополнительные детали
	Suggestion string         `json:"suggestion,omitempty"` // Предложение по исправлению
	Err        error          `json:"-"`
}

// Error реализует интерфейс error
func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Err, e.Message)
	}
	return e.Message
}

func (e *ToolError) Unwrap() error { return e.Err }

// ToLLMContext возвращает структурированное описание для LLM
func (e *ToolError) ToLLMContext() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tool Error:\n - Code: %s\n - Message: %s", e.Code, e.Message)

	if e.Suggestion != "" {
		fmt.Fprintf(&b, "\n - Suggestion: %s", e.Suggestion)
	}

	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n - Details:")
		for _, k := range keys {
			fmt.Fprintf(&b, "\n     - %s: %v", k, e.Details[k])
		}
	}

	return b.String()
}

// LogFields возвращает поля для структурированного логирования
func (e *ToolError) LogFields() []logger.Field {
	fields := []logger.Field{
		{Key: "error_code", Value: e.Code},
		{Key: "error_message", Value: e.Message},
	}
	if e.Suggestion != "" {
		fields = append(fields, logger.Field{Key: "error_suggestion", Value: e.Suggestion})
	}
	return fields
}

// NewForbiddenError создает ошибку доступа
func NewForbiddenError(code, message string, details map[string]any) *ToolError {
	return &ToolError{
		Code:    code,
		Message: message,
		Details: details,
		Err:     ErrForbidden,
	}
}

// NewInvalidQueryError создает ошибку валидации
func NewInvalidQueryError(code, message, suggestion string) *ToolError {
	return &ToolError{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Err:        ErrInvalidQuery,
	}
}
