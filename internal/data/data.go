package data

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/repo"
	"github.com/otp-relay/sms-otp-bridge/internal/infra/feishu"
)

// Source transports
const (
	TransportBrowser = "browser"
	TransportHTTP    = "http"
)

// Chat platforms
const (
	PlatformTelegram = "telegram"
	PlatformFeishu   = "feishu"
)

// NewSourceRepo creates the source repository for the given transport
func NewSourceRepo(transport string, opts SourceOptions, clock clockwork.Clock, logger *slog.Logger) (repo.SourceRepo, error) {
	switch transport {
	case TransportBrowser, "":
		return NewBrowserSource(opts, clock, logger), nil
	case TransportHTTP:
		return NewHTTPSource(opts, logger), nil
	default:
		return nil, fmt.Errorf("unknown source transport %q", transport)
	}
}

// ChatOptions holds the credentials of the chat platforms
type ChatOptions struct {
	Platform        string
	TelegramToken   string
	FeishuAppID     string
	FeishuAppSecret string
}

// Chat is the outbound chat repository plus the platform client that receives commands.
// Exactly one of Telegram and Feishu is set.
type Chat struct {
	Repo     repo.ChatRepo
	Telegram *tgbotapi.BotAPI
	Feishu   *feishu.Client
}

// NewChat connects to the configured chat platform
func NewChat(opts ChatOptions, logger *slog.Logger) (*Chat, error) {
	switch opts.Platform {
	case PlatformTelegram, "":
		// Route the library's own log lines through slog
		_ = tgbotapi.SetLogger(slog.NewLogLogger(logger.With("component", "telegram-api").Handler(), slog.LevelWarn))

		bot, err := tgbotapi.NewBotAPI(opts.TelegramToken)
		if err != nil {
			return nil, fmt.Errorf("connect to telegram: %w", err)
		}
		logger.Info("Telegram bot authorized", "username", bot.Self.UserName)
		return &Chat{Repo: NewTelegramRepo(bot), Telegram: bot}, nil

	case PlatformFeishu:
		client := feishu.NewClient(opts.FeishuAppID, opts.FeishuAppSecret, logger)
		return &Chat{Repo: NewFeishuRepo(client), Feishu: client}, nil

	default:
		return nil, fmt.Errorf("unknown chat platform %q", opts.Platform)
	}
}
