package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	tests := []struct {
		name  string
		field string
		want  any
		got   any
	}{
		{"server addr", "server.addr", ":8080", cfg.Server.Addr},
		{"llm provider", "llm.provider", "anthropic", cfg.LLM.Provider},
		{"rate limit", "llm.rate_limit.max_requests_per_minute", 50, cfg.LLM.RateLimit.MaxRequestsPerMinute},
		{"min interval", "llm.rate_limit.min_interval_ms", 1000, cfg.LLM.RateLimit.MinIntervalMillis},
		{"tool iterations", "agent.max_tool_iterations", 10, cfg.Agent.MaxToolIterations},
		{"history", "agent.max_history_length", 10, cfg.Agent.MaxHistoryLength},
		{"cleanup interval", "agent.cleanup_interval_minutes", 15, cfg.Agent.CleanupIntervalMinutes},
		{"session idle", "agent.session_idle_minutes", 0, cfg.Agent.SessionIdleMinutes},
		{"notification history", "notifications.history_size", 100, cfg.Notifications.HistorySize},
		{"worker pool", "workers.pool_size", 4, cfg.Workers.PoolSize},
		{"logging level", "logging.level", "info", cfg.Logging.Level},
		{"logging format", "logging.format", "json", cfg.Logging.Format},
		{"backup retain", "backup.retain", 7, cfg.Backup.Retain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got, tt.field)
		})
	}
}

func TestParse_KeepsExplicitSchedulerDisable(t *testing.T) {
	cfg, err := Parse(`
[scheduler]
enabled = false
`)
	require.NoError(t, err)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.True(t, cfg.Scheduler.AutoStart)

	cfg, err = Parse("")
	require.NoError(t, err)
	assert.True(t, cfg.Scheduler.Enabled)
}

func TestParse_InvalidTOML(t *testing.T) {
	_, err := Parse("[server\naddr = ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("STOCKPILOT_TEST_KEY", "sk-ant-test-0123456789")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[storage]
path = "` + filepath.Join(dir, "data.db") + `"

[llm]
api_key = "${STOCKPILOT_TEST_KEY}"
base_url = "${STOCKPILOT_UNSET_BASE:http://localhost:9999}"

[notifications.telegram]
chat_ids = ["${STOCKPILOT_UNSET_CHAT:12345}"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test-0123456789", cfg.LLM.APIKey)
	assert.Equal(t, "http://localhost:9999", cfg.LLM.BaseURL)
	assert.Equal(t, []string{"12345"}, cfg.Notifications.Telegram.ChatIDs)
	assert.Empty(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "data.db"), expandHome("~/data.db"))
	assert.Equal(t, "/abs/data.db", expandHome("/abs/data.db"))
}

func validConfig() *Config {
	cfg := Default()
	cfg.LLM.APIKey = "sk-ant-test-0123456789"
	cfg.Storage.Path = "/tmp/stockpilot.db"
	return cfg
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "mock provider without key", mutate: func(c *Config) { c.LLM.Provider = "mock"; c.LLM.APIKey = "" }},
		{name: "missing api key", mutate: func(c *Config) { c.LLM.APIKey = "" }, wantErr: "llm.api_key is required"},
		{name: "short api key", mutate: func(c *Config) { c.LLM.APIKey = "short" }, wantErr: "too short"},
		{name: "unknown provider", mutate: func(c *Config) { c.LLM.Provider = "openai" }, wantErr: "invalid llm.provider"},
		{name: "path traversal", mutate: func(c *Config) { c.Storage.Path = "/var/../etc/db" }, wantErr: "path traversal"},
		{name: "bad timezone", mutate: func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, wantErr: "scheduler.timezone"},
		{name: "zero pool", mutate: func(c *Config) { c.Workers.PoolSize = 0 }, wantErr: "workers.pool_size"},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, wantErr: "logging.level"},
		{name: "telegram without token", mutate: func(c *Config) {
			c.Notifications.Telegram.Enabled = true
			c.Notifications.Telegram.ChatIDs = []string{"1"}
		}, wantErr: "telegram.token is required"},
		{name: "telegram malformed token", mutate: func(c *Config) {
			c.Notifications.Telegram.Enabled = true
			c.Notifications.Telegram.Token = "not-a-token"
			c.Notifications.Telegram.ChatIDs = []string{"1"}
		}, wantErr: "invalid format"},
		{name: "telegram without chats", mutate: func(c *Config) {
			c.Notifications.Telegram.Enabled = true
			c.Notifications.Telegram.Token = "123456:ABCDEFGHIJKLMNOP"
		}, wantErr: "chat_ids cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.NotEmpty(t, errs)
			var joined []string
			for _, e := range errs {
				joined = append(joined, e.Error())
			}
			assert.Contains(t, strings.Join(joined, "; "), tt.wantErr)
		})
	}
}

func TestLocation(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "Local", cfg.Location().String())

	cfg.Scheduler.Timezone = "UTC"
	assert.Equal(t, "UTC", cfg.Location().String())
}

func TestRedacted(t *testing.T) {
	cfg := validConfig()
	cfg.Notifications.Telegram.Token = "123456:ABCDEFGHIJKLMNOP"
	cfg.Notifications.Telegram.ChatIDs = []string{"42"}

	red := cfg.Redacted()
	assert.Equal(t, "sk-a**************6789", red.LLM.APIKey)
	assert.Equal(t, "123456:ABCD********MNOP", red.Notifications.Telegram.Token)
	assert.Equal(t, "sk-ant-test-0123456789", cfg.LLM.APIKey)

	red.Notifications.Telegram.ChatIDs[0] = "changed"
	assert.Equal(t, "42", cfg.Notifications.Telegram.ChatIDs[0])
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, "***", maskSecret("short"))
	assert.Equal(t, "abcd**efgh", maskSecret("abcd12efgh"))
}
