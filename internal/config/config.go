package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load загружает конфигурацию из TOML файла
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(string(data))
}

// Parse decodes TOML text, applies defaults and expands environment references.
func Parse(data string) (*Config, error) {
	var cfg Config
	meta, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// scheduler.enabled defaults to true, so an explicit false must survive applyDefaults
	if !meta.IsDefined("scheduler", "enabled") {
		cfg.Scheduler.Enabled = true
	}
	if !meta.IsDefined("scheduler", "auto_start") {
		cfg.Scheduler.AutoStart = true
	}

	applyDefaults(&cfg)
	expandEnvVars(&cfg)

	return &cfg, nil
}

// Default returns a configuration with every default applied, used when no
// config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.AutoStart = true
	applyDefaults(cfg)
	expandEnvVars(cfg)
	return cfg
}

// Location returns the scheduler time zone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Scheduler.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// expandEnvVars расширяет переменные окружения в конфигурации
func expandEnvVars(c *Config) {
	c.LLM.APIKey = expandEnv(c.LLM.APIKey)
	c.LLM.BaseURL = expandEnv(c.LLM.BaseURL)
	c.Notifications.Telegram.Token = expandEnv(c.Notifications.Telegram.Token)
	for i, id := range c.Notifications.Telegram.ChatIDs {
		c.Notifications.Telegram.ChatIDs[i] = expandEnv(id)
	}
	c.Storage.Path = expandHome(expandEnv(c.Storage.Path))
	c.Backup.Dir = expandHome(expandEnv(c.Backup.Dir))
	c.Logging.Output = expandEnv(c.Logging.Output)
}
