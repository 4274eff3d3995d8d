package conf

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/usecase"
	"github.com/otp-relay/sms-otp-bridge/internal/data"
)

// Chat platforms
const (
	PlatformTelegram = data.PlatformTelegram
	PlatformFeishu   = data.PlatformFeishu
)

const (
	defaultSourceURL       = "https://d-group.stats.direct/rest/sms"
	defaultTelegramChannel = "@otpgrouptempno"
)

// Config represents application configuration
type Config struct {
	// SMS gateway and how to reach it
	Source SourceConfig

	// Poll schedule
	Poll PollConfig

	// Session health policy
	Session SessionConfig

	// Chat platform and destinations
	Chat ChatConfig

	// Liveness server
	HTTP HTTPConfig

	// Logging
	Log LogConfig

	// Message templates (loaded from YAML)
	Messages *MessagesConfig

	// IANA zone name for timestamps, empty for the host zone
	Timezone string

	messagesErr error
}

// SourceConfig contains SMS gateway configuration
type SourceConfig struct {
	URL        string
	Username   string
	Password   string
	PerPage    int
	Transport  string // browser or http
	ChromePath string
	Headless   bool
	UserAgent  string

	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	RequestTimeout    time.Duration
}

// PollConfig contains scheduling configuration
type PollConfig struct {
	Interval            time.Duration
	HealthCheckInterval time.Duration
}

// SessionConfig contains session health configuration
type SessionConfig struct {
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	StaleAfter           time.Duration
}

// ChatConfig contains chat platform configuration
type ChatConfig struct {
	Platform string
	Telegram TelegramConfig
	Feishu   FeishuConfig
}

// TelegramConfig contains Telegram configuration
type TelegramConfig struct {
	BotToken string
	ChatIDs  []string // numeric ids or @channel usernames
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID     string
	AppSecret string
	ChatIDs   []string
}

// HTTPConfig contains liveness server configuration
type HTTPConfig struct {
	Port         int
	HealthWindow time.Duration // Max time since last successful fetch to report ok
}

// ToChatOptions converts to the chat platform options
func (c *ChatConfig) ToChatOptions() data.ChatOptions {
	return data.ChatOptions{
		Platform:        c.Platform,
		TelegramToken:   c.Telegram.BotToken,
		FeishuAppID:     c.Feishu.AppID,
		FeishuAppSecret: c.Feishu.AppSecret,
	}
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string
	Format string // text or json
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Telegram destinations: list first, single id as fallback
	telegramChats := splitList(os.Getenv("TELEGRAM_CHAT_IDS"))
	if len(telegramChats) == 0 {
		telegramChats = splitList(os.Getenv("TELEGRAM_CHAT_ID"))
	}
	if len(telegramChats) == 0 {
		telegramChats = []string{defaultTelegramChannel}
	}

	// Load message templates from YAML
	messages, messagesErr := LoadMessagesConfig(os.Getenv("MESSAGES_CONFIG_PATH"))

	return &Config{
		Source: SourceConfig{
			URL:               envString("API_URL", defaultSourceURL),
			Username:          os.Getenv("API_USERNAME"),
			Password:          os.Getenv("API_PASSWORD"),
			PerPage:           envInt("MAX_PER_PAGE", 100),
			Transport:         strings.ToLower(envString("SOURCE_TRANSPORT", data.TransportBrowser)),
			ChromePath:        os.Getenv("CHROME_PATH"),
			Headless:          envBool("BROWSER_HEADLESS", true),
			UserAgent:         os.Getenv("BROWSER_USER_AGENT"),
			NavigationTimeout: envMillis("NAVIGATION_TIMEOUT", 60*time.Second),
			SettleDelay:       envMillis("SETTLE_DELAY", 3*time.Second),
			RequestTimeout:    envMillis("REQUEST_TIMEOUT", 30*time.Second),
		},
		Poll: PollConfig{
			Interval:            envMillis("POLL_INTERVAL", 10*time.Second),
			HealthCheckInterval: envMillis("HEALTH_CHECK_INTERVAL", 60*time.Second),
		},
		Session: SessionConfig{
			MaxReconnectAttempts: envInt("MAX_RECONNECT_ATTEMPTS", 5),
			ReconnectDelay:       envMillis("RECONNECT_DELAY", 5*time.Second),
			StaleAfter:           envMillis("STALE_AFTER", 5*time.Minute),
		},
		Chat: ChatConfig{
			Platform: strings.ToLower(envString("CHAT_PLATFORM", PlatformTelegram)),
			Telegram: TelegramConfig{
				BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
				ChatIDs:  telegramChats,
			},
			Feishu: FeishuConfig{
				AppID:     os.Getenv("FEISHU_APP_ID"),
				AppSecret: os.Getenv("FEISHU_APP_SECRET"),
				ChatIDs:   splitList(os.Getenv("FEISHU_CHAT_IDS")),
			},
		},
		HTTP: HTTPConfig{
			Port:         envInt("PORT", 3000),
			HealthWindow: envMillis("HEALTH_WINDOW", 5*time.Minute),
		},
		Log: LogConfig{
			Level:  strings.ToLower(envString("LOG_LEVEL", "info")),
			Format: strings.ToLower(envString("LOG_FORMAT", "text")),
		},
		Messages:    messages,
		Timezone:    os.Getenv("TIMEZONE"),
		messagesErr: messagesErr,
	}
}

// Destinations returns the chat ids of the active platform
func (c *Config) Destinations() []string {
	if c.Chat.Platform == PlatformFeishu {
		return c.Chat.Feishu.ChatIDs
	}
	return c.Chat.Telegram.ChatIDs
}

// Location resolves Timezone; empty means the host zone
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// ToSessionConfig converts to the session usecase configuration
func (c *SessionConfig) ToSessionConfig() usecase.SessionConfig {
	return usecase.SessionConfig{
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		ReconnectDelay:       c.ReconnectDelay,
		StaleAfter:           c.StaleAfter,
	}
}

// ToSourceOptions converts to the source transport options
func (c *SourceConfig) ToSourceOptions() data.SourceOptions {
	return data.SourceOptions{
		URL:               c.URL,
		Username:          c.Username,
		Password:          c.Password,
		PerPage:           c.PerPage,
		NavigationTimeout: c.NavigationTimeout,
		SettleDelay:       c.SettleDelay,
		RequestTimeout:    c.RequestTimeout,
		ExecPath:          c.ChromePath,
		Headless:          c.Headless,
		UserAgent:         c.UserAgent,
	}
}

// ToMessageConfig converts to the template configuration
func (c *Config) ToMessageConfig() (usecase.MessageConfig, error) {
	loc, err := c.Location()
	if err != nil {
		return usecase.MessageConfig{}, err
	}
	messages := c.Messages
	if messages == nil {
		messages = DefaultMessagesConfig()
	}
	cfg := messages.ToMessageConfig()
	cfg.Location = loc
	return cfg, nil
}

// SlogLevel maps Log.Level to a slog level
func (c *LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.messagesErr != nil {
		return &ConfigError{Field: "MESSAGES_CONFIG_PATH", Message: c.messagesErr.Error()}
	}
	if c.Source.Username == "" || c.Source.Password == "" {
		return &ConfigError{Field: "API_USERNAME/API_PASSWORD", Message: "required"}
	}
	if u, err := url.Parse(c.Source.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ConfigError{Field: "API_URL", Message: "must be an absolute http(s) URL"}
	}
	if c.Source.PerPage <= 0 {
		return &ConfigError{Field: "MAX_PER_PAGE", Message: "must be positive"}
	}
	if c.Source.Transport != data.TransportBrowser && c.Source.Transport != data.TransportHTTP {
		return &ConfigError{Field: "SOURCE_TRANSPORT", Message: "must be browser or http"}
	}
	if c.Poll.Interval <= 0 {
		return &ConfigError{Field: "POLL_INTERVAL", Message: "must be positive"}
	}
	if c.Poll.HealthCheckInterval <= 0 {
		return &ConfigError{Field: "HEALTH_CHECK_INTERVAL", Message: "must be positive"}
	}
	if c.Session.MaxReconnectAttempts < 1 {
		return &ConfigError{Field: "MAX_RECONNECT_ATTEMPTS", Message: "must be at least 1"}
	}
	if c.Session.ReconnectDelay < 0 {
		return &ConfigError{Field: "RECONNECT_DELAY", Message: "must not be negative"}
	}
	if c.Session.StaleAfter <= 0 {
		return &ConfigError{Field: "STALE_AFTER", Message: "must be positive"}
	}

	switch c.Chat.Platform {
	case PlatformTelegram:
		if c.Chat.Telegram.BotToken == "" {
			return &ConfigError{Field: "TELEGRAM_BOT_TOKEN", Message: "required"}
		}
		for _, id := range c.Chat.Telegram.ChatIDs {
			if !strings.HasPrefix(id, "@") {
				if _, err := strconv.ParseInt(id, 10, 64); err != nil {
					return &ConfigError{Field: "TELEGRAM_CHAT_IDS", Message: fmt.Sprintf("%q is neither a numeric id nor an @username", id)}
				}
			}
		}
	case PlatformFeishu:
		if c.Chat.Feishu.AppID == "" || c.Chat.Feishu.AppSecret == "" {
			return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
		}
		if len(c.Chat.Feishu.ChatIDs) == 0 {
			return &ConfigError{Field: "FEISHU_CHAT_IDS", Message: "required"}
		}
	default:
		return &ConfigError{Field: "CHAT_PLATFORM", Message: "must be telegram or feishu"}
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return &ConfigError{Field: "PORT", Message: "must be between 1 and 65535"}
	}
	if c.HTTP.HealthWindow <= 0 {
		return &ConfigError{Field: "HEALTH_WINDOW", Message: "must be positive"}
	}
	if _, err := c.Location(); err != nil {
		return &ConfigError{Field: "TIMEZONE", Message: err.Error()}
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return &ConfigError{Field: "LOG_FORMAT", Message: "must be text or json"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

func envString(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return def
}

// envMillis reads a duration given in milliseconds
func envMillis(key string, def time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return time.Duration(parsed) * time.Millisecond
		}
	}
	return def
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
