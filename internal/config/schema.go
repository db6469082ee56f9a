// Package config provides configuration loading and validation for stockpilot.
// It supports TOML configuration files with environment variable expansion,
// default values, and validation.
//
// Configuration structure:
//   - [server]: HTTP listen address and timeouts
//   - [storage]: SQLite database path
//   - [scheduler]: scheduler switch, time zone
//   - [workers]: execution pool sizing
//   - [llm]: model provider and rate limit
//   - [agent]: query orchestrator limits
//   - [notifications]: notification history and Telegram forwarding
//   - [logging]: log level, format and output
//   - [backup]: database snapshot location
//
// Environment variables can be referenced using ${VAR} or ${VAR:default} syntax,
// for example: api_key = "${ANTHROPIC_API_KEY}"
package config

// Config represents the main application configuration.
type Config struct {
	Server        ServerConfig        `toml:"server"`
	Storage       StorageConfig       `toml:"storage"`
	Scheduler     SchedulerConfig     `toml:"scheduler"`
	Workers       WorkersConfig       `toml:"workers"`
	LLM           LLMConfig           `toml:"llm"`
	Agent         AgentConfig         `toml:"agent"`
	Notifications NotificationsConfig `toml:"notifications"`
	Logging       LoggingConfig       `toml:"logging"`
	Backup        BackupConfig        `toml:"backup"`
}

// ServerConfig представляет конфигурацию HTTP сервера
type ServerConfig struct {
	Addr                   string `toml:"addr"`
	ReadTimeoutSeconds     int    `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `toml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds"`
}

// StorageConfig представляет конфигурацию хранилища
type StorageConfig struct {
	Path string `toml:"path"`
}

// SchedulerConfig controls the background task scheduler.
type SchedulerConfig struct {
	Enabled   bool   `toml:"enabled"`
	Timezone  string `toml:"timezone"`
	AutoStart bool   `toml:"auto_start"`
}

// WorkersConfig sizes the pool that executes scheduled runs.
type WorkersConfig struct {
	PoolSize  int `toml:"pool_size"`
	QueueSize int `toml:"queue_size"`
}

// LLMConfig представляет конфигурацию LLM провайдера
type LLMConfig struct {
	Provider       string          `toml:"provider"` // anthropic, mock
	APIKey         string          `toml:"api_key"`
	BaseURL        string          `toml:"base_url"`
	Model          string          `toml:"model"`
	MaxTokens      int             `toml:"max_tokens"`
	Temperature    float64         `toml:"temperature"`
	TimeoutSeconds int             `toml:"timeout_seconds"`
	RateLimit      RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig describes the fixed request window in front of the provider.
type RateLimitConfig struct {
	MaxRequestsPerMinute int `toml:"max_requests_per_minute"`
	MinIntervalMillis    int `toml:"min_interval_ms"`
}

// AgentConfig представляет конфигурацию query orchestrator
type AgentConfig struct {
	MaxToolIterations int `toml:"max_tool_iterations"`
	MaxHistoryLength  int `toml:"max_history_length"`
	// Conversations untouched for this long are dropped; 0 keeps them forever.
	SessionIdleMinutes     int `toml:"session_idle_minutes"`
	CleanupIntervalMinutes int `toml:"cleanup_interval_minutes"`
}

// NotificationsConfig controls the in-memory history and delivery channels.
type NotificationsConfig struct {
	HistorySize int            `toml:"history_size"`
	Telegram    TelegramConfig `toml:"telegram"`
}

// TelegramConfig представляет конфигурацию пересылки уведомлений в Telegram
type TelegramConfig struct {
	Enabled     bool     `toml:"enabled"`
	Token       string   `toml:"token"`
	ChatIDs     []string `toml:"chat_ids"`
	MinPriority string   `toml:"min_priority"`
	TimeoutSec  int      `toml:"timeout_seconds"`
}

// LoggingConfig представляет конфигурацию логирования
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

// BackupConfig controls where database snapshots are written.
type BackupConfig struct {
	Dir    string `toml:"dir"`
	Retain int    `toml:"retain"`
}
