package config

// applyDefaults применяет значения по умолчанию
func applyDefaults(c *Config) {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds == 0 {
		c.Server.WriteTimeoutSeconds = 120
	}
	if c.Server.ShutdownTimeoutSeconds == 0 {
		c.Server.ShutdownTimeoutSeconds = 10
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "~/.stockpilot/stockpilot.db"
	}

	if c.Workers.PoolSize == 0 {
		c.Workers.PoolSize = 4
	}
	if c.Workers.QueueSize == 0 {
		c.Workers.QueueSize = 64
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "anthropic"
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.anthropic.com"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "claude-sonnet-4-5"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.2
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 60
	}
	if c.LLM.RateLimit.MaxRequestsPerMinute == 0 {
		c.LLM.RateLimit.MaxRequestsPerMinute = 50
	}
	if c.LLM.RateLimit.MinIntervalMillis == 0 {
		c.LLM.RateLimit.MinIntervalMillis = 1000
	}

	if c.Agent.MaxToolIterations == 0 {
		c.Agent.MaxToolIterations = 10
	}
	if c.Agent.MaxHistoryLength == 0 {
		c.Agent.MaxHistoryLength = 10
	}
	if c.Agent.CleanupIntervalMinutes == 0 {
		c.Agent.CleanupIntervalMinutes = 15
	}

	if c.Notifications.HistorySize == 0 {
		c.Notifications.HistorySize = 100
	}
	if c.Notifications.Telegram.MinPriority == "" {
		c.Notifications.Telegram.MinPriority = "high"
	}
	if c.Notifications.Telegram.TimeoutSec == 0 {
		c.Notifications.Telegram.TimeoutSec = 10
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.Backup.Dir == "" {
		c.Backup.Dir = "~/.stockpilot/backups"
	}
	if c.Backup.Retain == 0 {
		c.Backup.Retain = 7
	}
}
