package config

import (
	"strings"
)

// maskSecret маскирует секрет, оставляя только первые 4 и последние 4 символа
func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}

	// Если секрет слишком короткий, маскируем полностью
	if len(secret) < 8 {
		return "***"
	}

	prefix := secret[:4]
	suffix := secret[len(secret)-4:]
	return prefix + strings.Repeat("*", len(secret)-8) + suffix
}

// maskTelegramToken маскирует Telegram токен, оставляя bot_id видимым для диагностики
func maskTelegramToken(token string) string {
	if token == "" {
		return ""
	}

	botID, secret, ok := strings.Cut(token, ":")
	if !ok {
		return maskSecret(token)
	}
	return botID + ":" + maskSecret(secret)
}

// Redacted returns a copy of the configuration with every secret masked,
// suitable for printing or logging.
func (c *Config) Redacted() Config {
	out := *c
	out.LLM.APIKey = maskSecret(c.LLM.APIKey)
	out.Notifications.Telegram.Token = maskTelegramToken(c.Notifications.Telegram.Token)
	out.Notifications.Telegram.ChatIDs = append([]string(nil), c.Notifications.Telegram.ChatIDs...)
	return out
}
