package usecase

import (
	"strings"
	"testing"
	"time"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/domain"
)

func TestTemplates_NotificationPlaceholders(t *testing.T) {
	tmpl := newTestTemplates(t)
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	msg, err := tmpl.Notification(&domain.SMSRecord{ID: 3}, at)
	if err != nil {
		t.Fatalf("Notification failed: %v", err)
	}
	for _, want := range []string{"Unknown Source", "Unknown Destination", "No content", "2024-03-01 12:30:00 UTC"} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("Expected %q in %q", want, msg.Text)
		}
	}
}

func TestTemplates_MarkdownKeepsCodeSpansClosed(t *testing.T) {
	tmpl := newTestTemplates(t)

	msg, err := tmpl.Notification(&domain.SMSRecord{ID: 1, SourceAddr: "a`b", ShortMessage: "```x"}, time.Now())
	if err != nil {
		t.Fatalf("Notification failed: %v", err)
	}
	if strings.Contains(msg.Text, "a`b") || strings.Contains(msg.Text, "````") {
		t.Errorf("Expected backticks in values replaced, got %q", msg.Text)
	}
}

func TestTemplates_PlainFormatLeavesValues(t *testing.T) {
	tmpl, err := NewTemplates(MessageConfig{
		Notification:       "{{.Source}}: {{.Message}}",
		NotificationFormat: domain.FormatPlain,
	})
	if err != nil {
		t.Fatalf("NewTemplates failed: %v", err)
	}

	msg, err := tmpl.Notification(&domain.SMSRecord{ID: 1, SourceAddr: "a`b", ShortMessage: "hi"}, time.Now())
	if err != nil {
		t.Fatalf("Notification failed: %v", err)
	}
	if msg.Text != "a`b: hi" {
		t.Errorf("Expected %q, got %q", "a`b: hi", msg.Text)
	}
	if msg.Format != domain.FormatPlain {
		t.Errorf("Expected plain format, got %v", msg.Format)
	}
}

func TestTemplates_EmptyConfigUsesDefaults(t *testing.T) {
	tmpl, err := NewTemplates(MessageConfig{})
	if err != nil {
		t.Fatalf("NewTemplates failed: %v", err)
	}

	msg, err := tmpl.StartReply()
	if err != nil {
		t.Fatalf("StartReply failed: %v", err)
	}
	if msg.Text != DefaultMessageConfig.StartReply {
		t.Errorf("Expected default start reply, got %q", msg.Text)
	}

	note, err := tmpl.Notification(&domain.SMSRecord{ID: 1}, time.Now())
	if err != nil {
		t.Fatalf("Notification failed: %v", err)
	}
	if note.Format != domain.FormatMarkdown {
		t.Errorf("Expected default notification to be markdown, got %v", note.Format)
	}
}

func TestTemplates_InvalidTemplate(t *testing.T) {
	if _, err := NewTemplates(MessageConfig{Status: "{{.Broken"}); err == nil {
		t.Error("Expected parse error")
	}
}

func TestTemplates_Status(t *testing.T) {
	tmpl := newTestTemplates(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	msg, err := tmpl.Status(&domain.Status{
		Running:       true,
		LastSeenID:    42,
		PollInterval:  10 * time.Second,
		Session:       domain.SessionActive,
		SessionActive: true,
		Destinations:  2,
		PollCount:     17,
		Delivered:     5,
		StartedAt:     now.Add(-90 * time.Minute),
		Now:           now,
	})
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}

	for _, want := range []string{"✅ Running", "Last SMS ID: 42", "Poll Interval: 10s", "Browser: Active", "Channels: 2", "Polls: 17", "1h30m0s"} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("Expected %q in %q", want, msg.Text)
		}
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{10 * time.Second, "10"},
		{1500 * time.Millisecond, "1.5"},
		{0, "0"},
	}
	for _, tt := range tests {
		if got := formatSeconds(tt.in); got != tt.want {
			t.Errorf("formatSeconds(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
