package builders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/stockpilot/internal/logger"
	"github.com/aatumaykin/stockpilot/internal/notify"
)

func TestTelegramBuilder_Disabled(t *testing.T) {
	cfg := testConfig(t)
	fwd, unsubscribe, err := NewTelegramBuilder(cfg, logger.Nop(), notify.NewHub(5, logger.Nop())).Build(context.Background())
	require.NoError(t, err)
	assert.Nil(t, fwd)
	assert.NotPanics(t, unsubscribe)
}

func TestTelegramBuilder_ForwarderConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notifications.Telegram.Token = "123456:ABCDEFGHIJKLMNOP"
	cfg.Notifications.Telegram.ChatIDs = []string{"42", "-100123"}
	cfg.Notifications.Telegram.MinPriority = "high"
	cfg.Notifications.Telegram.TimeoutSec = 5

	fc, err := NewTelegramBuilder(cfg, logger.Nop(), nil).ForwarderConfig()
	require.NoError(t, err)
	assert.Equal(t, []int64{42, -100123}, fc.ChatIDs)
	assert.Equal(t, notify.PriorityHigh, fc.MinPriority)
	assert.Equal(t, 5*time.Second, fc.Timeout)

	cfg.Notifications.Telegram.MinPriority = "urgent"
	_, err = NewTelegramBuilder(cfg, logger.Nop(), nil).ForwarderConfig()
	require.Error(t, err)

	cfg.Notifications.Telegram.MinPriority = ""
	cfg.Notifications.Telegram.ChatIDs = []string{"abc"}
	_, err = NewTelegramBuilder(cfg, logger.Nop(), nil).ForwarderConfig()
	require.Error(t, err)
}
