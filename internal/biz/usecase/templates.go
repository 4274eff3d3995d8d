package usecase

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/domain"
)

// MessageConfig holds the text templates used for chat output
type MessageConfig struct {
	Notification       string
	NotificationFormat domain.TextFormat
	StartReply         string
	Status             string
	Shutdown           string
	TimeLayout         string
	Location           *time.Location
}

// DefaultMessageConfig is the default message configuration
var DefaultMessageConfig = MessageConfig{
	Notification: "🔔 *NEW OTP RECEIVED*\n" +
		"━━━━━━━━━━━━━━━━━━━━\n\n" +
		"📤 *Source:* `{{.Source}}`\n" +
		"📱 *Destination:* `{{.Destination}}`\n\n" +
		"💬 *Message:*\n" +
		"```\n{{.Message}}\n```\n\n" +
		"━━━━━━━━━━━━━━━━━━━━\n" +
		"⏰ _{{.Time}}_",
	NotificationFormat: domain.FormatMarkdown,
	StartReply:         "🤖 OTP Bot is active and monitoring for new SMS messages!",
	Status: "📊 Bot Status:\n" +
		"{{if .Running}}✅ Running{{else}}⛔ Stopped{{end}}\n" +
		"🆔 Last SMS ID: {{.LastSeenID}}\n" +
		"⏱️ Poll Interval: {{.PollSeconds}}s\n" +
		"🌐 Browser: {{.Browser}} ({{.Session}})\n" +
		"📡 Channels: {{.Destinations}}\n" +
		"🔄 Polls: {{.PollCount}} (delivered {{.Delivered}})\n" +
		"⏳ Uptime: {{.Uptime}}",
	Shutdown:   "🛑 OTP Bot is shutting down ({{.Time}})",
	TimeLayout: "2006-01-02 15:04:05 MST",
}

// notificationView is the data passed to the notification template
type notificationView struct {
	ID          int64
	Source      string
	Destination string
	Message     string
	Time        string
}

// statusView is the data passed to the status template
type statusView struct {
	Running      bool
	LastSeenID   int64
	PollSeconds  string
	Browser      string
	Session      string
	Destinations int
	PollCount    int64
	Delivered    int64
	Uptime       string
}

// Templates renders every chat message the relay produces
type Templates struct {
	notification       *template.Template
	notificationFormat domain.TextFormat
	startReply         *template.Template
	status             *template.Template
	shutdown           *template.Template
	timeLayout         string
	location           *time.Location
}

// NewTemplates parses the configured templates, falling back to defaults for empty ones
func NewTemplates(cfg MessageConfig) (*Templates, error) {
	defaults := DefaultMessageConfig
	pick := func(v, def string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return v
	}

	t := &Templates{
		notificationFormat: cfg.NotificationFormat,
		timeLayout:         pick(cfg.TimeLayout, defaults.TimeLayout),
		location:           cfg.Location,
	}
	if t.location == nil {
		t.location = time.Local
	}
	if strings.TrimSpace(cfg.Notification) == "" {
		t.notificationFormat = defaults.NotificationFormat
	}

	var err error
	if t.notification, err = template.New("notification").Parse(pick(cfg.Notification, defaults.Notification)); err != nil {
		return nil, fmt.Errorf("parse notification template: %w", err)
	}
	if t.startReply, err = template.New("start").Parse(pick(cfg.StartReply, defaults.StartReply)); err != nil {
		return nil, fmt.Errorf("parse start template: %w", err)
	}
	if t.status, err = template.New("status").Parse(pick(cfg.Status, defaults.Status)); err != nil {
		return nil, fmt.Errorf("parse status template: %w", err)
	}
	if t.shutdown, err = template.New("shutdown").Parse(pick(cfg.Shutdown, defaults.Shutdown)); err != nil {
		return nil, fmt.Errorf("parse shutdown template: %w", err)
	}
	return t, nil
}

// Notification renders the message announcing one SMS record
func (t *Templates) Notification(rec *domain.SMSRecord, at time.Time) (domain.OutgoingMessage, error) {
	view := notificationView{
		ID:          rec.ID,
		Source:      rec.Source(),
		Destination: rec.Destination(),
		Message:     rec.Body(),
		Time:        at.In(t.location).Format(t.timeLayout),
	}
	if t.notificationFormat == domain.FormatMarkdown {
		view.Source = markdownCode(view.Source)
		view.Destination = markdownCode(view.Destination)
		view.Message = markdownCode(view.Message)
	}

	text, err := execute(t.notification, view)
	if err != nil {
		return domain.OutgoingMessage{}, err
	}
	return domain.OutgoingMessage{Text: text, Format: t.notificationFormat}, nil
}

// StartReply renders the /start answer
func (t *Templates) StartReply() (domain.OutgoingMessage, error) {
	text, err := execute(t.startReply, nil)
	if err != nil {
		return domain.OutgoingMessage{}, err
	}
	return domain.OutgoingMessage{Text: text, Format: domain.FormatPlain}, nil
}

// Status renders the /status answer
func (t *Templates) Status(s *domain.Status) (domain.OutgoingMessage, error) {
	browser := "Not initialized"
	if s.SessionActive {
		browser = "Active"
	}
	view := statusView{
		Running:      s.Running,
		LastSeenID:   s.LastSeenID,
		PollSeconds:  formatSeconds(s.PollInterval),
		Browser:      browser,
		Session:      s.Session.String(),
		Destinations: s.Destinations,
		PollCount:    s.PollCount,
		Delivered:    s.Delivered,
		Uptime:       s.Uptime().Truncate(time.Second).String(),
	}

	text, err := execute(t.status, view)
	if err != nil {
		return domain.OutgoingMessage{}, err
	}
	return domain.OutgoingMessage{Text: text, Format: domain.FormatPlain}, nil
}

// Shutdown renders the shutdown announcement
func (t *Templates) Shutdown(at time.Time) (domain.OutgoingMessage, error) {
	text, err := execute(t.shutdown, struct{ Time string }{Time: at.In(t.location).Format(t.timeLayout)})
	if err != nil {
		return domain.OutgoingMessage{}, err
	}
	return domain.OutgoingMessage{Text: text, Format: domain.FormatPlain}, nil
}

func execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// markdownCode keeps a value from closing the code span it is embedded in
func markdownCode(s string) string {
	return strings.ReplaceAll(s, "`", "'")
}

func formatSeconds(d time.Duration) string {
	secs := d.Seconds()
	if secs == float64(int64(secs)) {
		return fmt.Sprintf("%d", int64(secs))
	}
	return fmt.Sprintf("%.1f", secs)
}
