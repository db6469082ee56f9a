package builders

import (
	"context"
	"fmt"
	"time"

	"github.com/aatumaykin/stockpilot/internal/config"
	"github.com/aatumaykin/stockpilot/internal/logger"
	"github.com/aatumaykin/stockpilot/internal/notify"
	"github.com/aatumaykin/stockpilot/internal/retry"
)

type TelegramBuilder struct {
	config *config.Config
	logger *logger.Logger
	hub    *notify.Hub
}

func NewTelegramBuilder(cfg *config.Config, log *logger.Logger, hub *notify.Hub) *TelegramBuilder {
	return &TelegramBuilder{
		config: cfg,
		logger: log,
		hub:    hub,
	}
}

// ForwarderConfig converts the [notifications.telegram] section.
func (b *TelegramBuilder) ForwarderConfig() (notify.TelegramConfig, error) {
	tg := b.config.Notifications.Telegram
	chatIDs, err := notify.ParseChatIDs(tg.ChatIDs)
	if err != nil {
		return notify.TelegramConfig{}, err
	}
	minPriority, ok := notify.ParsePriority(tg.MinPriority)
	if tg.MinPriority != "" && !ok {
		return notify.TelegramConfig{}, fmt.Errorf("invalid notifications.telegram.min_priority: %s", tg.MinPriority)
	}
	return notify.TelegramConfig{
		Token:       tg.Token,
		ChatIDs:     chatIDs,
		MinPriority: minPriority,
		Timeout:     time.Duration(tg.TimeoutSec) * time.Second,
		Retry:       retry.Config{MaxAttempts: 3, InitialBackoff: time.Second, MaxBackoff: 5 * time.Second, Logger: b.logger},
	}, nil
}

// Build starts a forwarder subscribed to the hub, or returns nil when
// forwarding is disabled. The returned func unsubscribes it.
func (b *TelegramBuilder) Build(ctx context.Context) (*notify.TelegramForwarder, func(), error) {
	if !b.config.Notifications.Telegram.Enabled {
		return nil, func() {}, nil
	}

	cfg, err := b.ForwarderConfig()
	if err != nil {
		return nil, nil, err
	}
	fwd, err := notify.NewTelegramForwarder(cfg, b.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start telegram forwarder: %w", err)
	}
	fwd.Start(ctx)
	unsubscribe := b.hub.Subscribe(fwd)

	b.logger.Info("telegram forwarder started", logger.Field{Key: "chats", Value: len(cfg.ChatIDs)})
	return fwd, unsubscribe, nil
}
