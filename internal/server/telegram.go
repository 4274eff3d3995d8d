package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/domain"
	"github.com/otp-relay/sms-otp-bridge/internal/service"
)

// CommandHandler processes one inbound chat message
type CommandHandler interface {
	HandleMessage(ctx context.Context, req *service.MessageRequest) error
}

// UpdateSource is the long-poll side of the Telegram Bot API
type UpdateSource interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

const (
	defaultLongPollTimeout = 30 // seconds
	defaultRetryDelay      = 3 * time.Second
)

// TelegramListener long-polls the bot for commands and hands them to a CommandHandler
type TelegramListener struct {
	updates    UpdateSource
	handler    CommandHandler
	clock      clockwork.Clock
	logger     *slog.Logger
	timeout    int
	retryDelay time.Duration

	offset int
}

// NewTelegramListener creates a new Telegram command listener
func NewTelegramListener(updates UpdateSource, handler CommandHandler, clock clockwork.Clock, logger *slog.Logger) *TelegramListener {
	return &TelegramListener{
		updates:    updates,
		handler:    handler,
		clock:      clock,
		logger:     logger.With("component", "telegram"),
		timeout:    defaultLongPollTimeout,
		retryDelay: defaultRetryDelay,
	}
}

// Run polls for updates until ctx is done. It returns domain.ErrDuplicateInstance
// when Telegram reports that another process is consuming the same bot's updates.
func (l *TelegramListener) Run(ctx context.Context) error {
	l.logger.Info("Listening for commands")

	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := l.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if isConflict(err) {
				l.logger.Error("Another instance is polling this bot, stopping", "error", err)
				return fmt.Errorf("%w: %v", domain.ErrDuplicateInstance, err)
			}

			l.logger.Warn("Failed to get updates, retrying", "error", err, "retry_in", l.retryDelay.String())
			select {
			case <-ctx.Done():
				return nil
			case <-l.clock.After(l.retryDelay):
			}
			continue
		}

		for i := range updates {
			u := &updates[i]
			if u.UpdateID >= l.offset {
				l.offset = u.UpdateID + 1
			}
			l.handleUpdate(ctx, u)
		}
	}
}

// getUpdates runs one long-poll request. The library call is not cancellable, so it
// runs in its own goroutine and is abandoned when ctx ends.
func (l *TelegramListener) getUpdates(ctx context.Context) ([]tgbotapi.Update, error) {
	type result struct {
		updates []tgbotapi.Update
		err     error
	}
	ch := make(chan result, 1)

	cfg := tgbotapi.NewUpdate(l.offset)
	cfg.Timeout = l.timeout
	cfg.AllowedUpdates = []string{"message", "channel_post"}

	go func() {
		updates, err := l.updates.GetUpdates(cfg)
		ch <- result{updates: updates, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.updates, r.err
	}
}

func (l *TelegramListener) handleUpdate(ctx context.Context, u *tgbotapi.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			l.logger.Error("Command handler panicked", "update_id", u.UpdateID, "panic", rec, "stack", string(debug.Stack()))
		}
	}()

	msg := u.Message
	if msg == nil {
		msg = u.ChannelPost
	}
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return
	}

	req := &service.MessageRequest{
		ChatID:  strconv.FormatInt(msg.Chat.ID, 10),
		MsgID:   strconv.Itoa(msg.MessageID),
		Content: msg.Text,
	}
	if msg.From != nil {
		req.SenderID = strconv.FormatInt(msg.From.ID, 10)
	}

	if err := l.handler.HandleMessage(ctx, req); err != nil {
		l.logger.Error("Failed to handle command", "chat_id", req.ChatID, "error", err)
	}
}

func isConflict(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}
