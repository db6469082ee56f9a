package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate проверяет валидность конфигурации
func (c *Config) Validate() []error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, fmt.Errorf("server.addr is required"))
	}

	if c.Storage.Path == "" {
		errs = append(errs, fmt.Errorf("storage.path is required"))
	} else if err := validatePath(c.Storage.Path, "storage.path"); err != nil {
		errs = append(errs, err)
	}

	if c.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("invalid scheduler.timezone: %s", c.Scheduler.Timezone))
		}
	}

	if c.Workers.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("workers.pool_size must be >= 1"))
	}

	switch c.LLM.Provider {
	case "anthropic":
		if c.LLM.APIKey == "" {
			errs = append(errs, fmt.Errorf("llm.api_key is required when provider is 'anthropic'"))
		} else if err := validateAPIKey(c.LLM.APIKey, "llm.api_key"); err != nil {
			errs = append(errs, err)
		}
	case "mock", "none":
	default:
		errs = append(errs, fmt.Errorf("invalid llm.provider: %s (expected: anthropic, mock, none)", c.LLM.Provider))
	}

	if c.LLM.RateLimit.MaxRequestsPerMinute < 1 {
		errs = append(errs, fmt.Errorf("llm.rate_limit.max_requests_per_minute must be >= 1"))
	}
	if c.LLM.RateLimit.MinIntervalMillis < 0 {
		errs = append(errs, fmt.Errorf("llm.rate_limit.min_interval_ms must be >= 0"))
	}

	if c.Agent.MaxToolIterations < 1 {
		errs = append(errs, fmt.Errorf("agent.max_tool_iterations must be >= 1"))
	}
	if c.Agent.MaxHistoryLength < 1 {
		errs = append(errs, fmt.Errorf("agent.max_history_length must be >= 1"))
	}
	if c.Agent.SessionIdleMinutes < 0 {
		errs = append(errs, fmt.Errorf("agent.session_idle_minutes must be >= 0"))
	}
	if c.Agent.CleanupIntervalMinutes < 1 {
		errs = append(errs, fmt.Errorf("agent.cleanup_interval_minutes must be >= 1"))
	}

	if c.Notifications.HistorySize < 1 {
		errs = append(errs, fmt.Errorf("notifications.history_size must be >= 1"))
	}
	if c.Notifications.Telegram.Enabled {
		tg := c.Notifications.Telegram
		if tg.Token == "" {
			errs = append(errs, fmt.Errorf("notifications.telegram.token is required when telegram is enabled"))
		} else if err := validateTelegramToken(tg.Token); err != nil {
			errs = append(errs, err)
		}
		if len(tg.ChatIDs) == 0 {
			errs = append(errs, fmt.Errorf("notifications.telegram.chat_ids cannot be empty when telegram is enabled"))
		}
		validPriorities := map[string]bool{"low": true, "normal": true, "high": true, "critical": true}
		if !validPriorities[tg.MinPriority] {
			errs = append(errs, fmt.Errorf("invalid notifications.telegram.min_priority: %s (expected: low, normal, high, critical)", tg.MinPriority))
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
	}

	if c.Backup.Retain < 1 {
		errs = append(errs, fmt.Errorf("backup.retain must be >= 1"))
	}

	return errs
}

func validateAPIKey(key, fieldName string) error {
	if len(key) < 10 {
		return fmt.Errorf("%s is too short (minimum 10 characters, got %d)", fieldName, len(key))
	}
	return nil
}

func validateTelegramToken(token string) error {
	parts := strings.Split(token, ":")
	if len(parts) != 2 {
		return fmt.Errorf("telegram token has invalid format (expected format: <bot_id>:<token>, got: %s)", maskSecret(token))
	}
	for _, r := range parts[0] {
		if r < '0' || r > '9' {
			return fmt.Errorf("telegram token has invalid bot ID (expected digits only)")
		}
	}
	if len(parts[1]) < 10 {
		return fmt.Errorf("telegram token is too short")
	}
	return nil
}

func validatePath(path, fieldName string) error {
	if strings.HasPrefix(path, "~") || path == ":memory:" {
		return nil
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("%s contains potentially dangerous path traversal sequence", fieldName)
	}
	return nil
}
