package data

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/domain"
	"github.com/otp-relay/sms-otp-bridge/internal/biz/repo"
)

// telegramRepo implements ChatRepo with the Telegram Bot API
type telegramRepo struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramRepo creates a new Telegram chat repository
func NewTelegramRepo(bot *tgbotapi.BotAPI) repo.ChatRepo {
	return &telegramRepo{bot: bot}
}

// Send delivers one message. chatID is either a numeric chat id or a @channel username.
func (r *telegramRepo) Send(ctx context.Context, chatID string, msg domain.OutgoingMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cfg, err := NewTelegramMessage(chatID, msg)
	if err != nil {
		return err
	}
	if _, err := r.bot.Send(cfg); err != nil {
		return fmt.Errorf("telegram send to %s: %w", chatID, err)
	}
	return nil
}

// NewTelegramMessage builds the send config for one destination
func NewTelegramMessage(chatID string, msg domain.OutgoingMessage) (tgbotapi.MessageConfig, error) {
	chatID = strings.TrimSpace(chatID)

	var cfg tgbotapi.MessageConfig
	switch {
	case strings.HasPrefix(chatID, "@"):
		cfg = tgbotapi.NewMessageToChannel(chatID, msg.Text)
	default:
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid telegram chat id %q", chatID)
		}
		cfg = tgbotapi.NewMessage(id, msg.Text)
	}

	if msg.Format == domain.FormatMarkdown {
		cfg.ParseMode = tgbotapi.ModeMarkdown
	}
	return cfg, nil
}
