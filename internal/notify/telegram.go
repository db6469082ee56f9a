package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"

	"github.com/aatumaykin/stockpilot/internal/logger"
	"github.com/aatumaykin/stockpilot/internal/retry"
)

// ErrForwarderQueueFull is returned by Notify when the delivery queue is full.
var ErrForwarderQueueFull = errors.New("telegram forwarder queue is full")

// BotInterface is the subset of the Telegram bot API the forwarder needs.
type BotInterface interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// TelegramConfig configures a TelegramForwarder.
type TelegramConfig struct {
	Token       string
	ChatIDs     []int64
	MinPriority Priority
	Timeout     time.Duration
	QueueSize   int
	Retry       retry.Config
}

// TelegramForwarder delivers notifications at or above MinPriority to the
// configured chats. Notify only enqueues; delivery happens on the goroutine
// started by Start so the hub is never blocked on the network.
type TelegramForwarder struct {
	bot    BotInterface
	cfg    TelegramConfig
	queue  chan Notification
	logger *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewTelegramForwarder creates a forwarder backed by a real telego bot.
func NewTelegramForwarder(cfg TelegramConfig, log *logger.Logger) (*TelegramForwarder, error) {
	bot, err := telego.NewBot(cfg.Token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	return NewTelegramForwarderWithBot(bot, cfg, log), nil
}

// NewTelegramForwarderWithBot creates a forwarder over any BotInterface.
func NewTelegramForwarderWithBot(bot BotInterface, cfg TelegramConfig, log *logger.Logger) *TelegramForwarder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.MinPriority == "" {
		cfg.MinPriority = PriorityHigh
	}
	if log == nil {
		log = logger.Nop()
	}
	cfg.Retry.Logger = log
	return &TelegramForwarder{
		bot:    bot,
		cfg:    cfg,
		queue:  make(chan Notification, cfg.QueueSize),
		logger: log.Component("telegram"),
	}
}

// ParseChatIDs converts configured chat ids to integers.
func ParseChatIDs(ids []string) ([]int64, error) {
	out := make([]int64, 0, len(ids))
	for _, s := range ids {
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid telegram chat id %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// Notify implements Observer.
func (f *TelegramForwarder) Notify(n Notification) error {
	if n.Priority.Rank() < f.cfg.MinPriority.Rank() {
		return nil
	}
	select {
	case f.queue <- n:
		return nil
	default:
		return ErrForwarderQueueFull
	}
}

// Start launches the delivery goroutine. Calling Start twice is a no-op.
func (f *TelegramForwarder) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return
	}
	ctx, f.cancel = context.WithCancel(ctx)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-f.queue:
				f.deliver(ctx, n)
			}
		}
	}()
	f.logger.Info("telegram forwarder started", logger.Field{Key: "chats", Value: len(f.cfg.ChatIDs)})
}

// Stop stops the delivery goroutine; queued notifications are dropped.
func (f *TelegramForwarder) Stop() {
	f.mu.Lock()
	cancel := f.cancel
	f.cancel = nil
	f.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	f.wg.Wait()
}

func (f *TelegramForwarder) deliver(ctx context.Context, n Notification) {
	text := FormatHTML(n)
	for _, chatID := range f.cfg.ChatIDs {
		params := &telego.SendMessageParams{
			ChatID:    telego.ChatID{ID: chatID},
			Text:      text,
			ParseMode: telego.ModeHTML,
		}
		err := retry.DoWithRetry(ctx, f.cfg.Retry, func() error {
			sendCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
			defer cancel()
			_, err := f.bot.SendMessage(sendCtx, params)
			return err
		})
		if err != nil {
			f.logger.ErrorCtx(ctx, "failed to deliver notification", err,
				logger.Field{Key: "chat_id", Value: chatID},
				logger.Field{Key: "notification_id", Value: n.ID})
		}
	}
}

var typeIcons = map[Type]string{
	TypeInfo:    "ℹ️",
	TypeSuccess: "✅",
	TypeWarning: "⚠️",
	TypeError:   "❌",
}

// FormatHTML renders n as a Telegram HTML message.
func FormatHTML(n Notification) string {
	var b strings.Builder
	if icon, ok := typeIcons[n.Type]; ok {
		b.WriteString(icon)
		b.WriteString(" ")
	}
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(n.Title))
	b.WriteString("</b>")
	if n.Message != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(n.Message))
	}
	if n.TaskName != "" {
		b.WriteString("\n<i>")
		b.WriteString(html.EscapeString(n.TaskName))
		b.WriteString("</i>")
	}
	return b.String()
}
