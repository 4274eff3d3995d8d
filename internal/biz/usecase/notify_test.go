package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/domain"
)

type sentMessage struct {
	chatID string
	msg    domain.OutgoingMessage
}

type mockChatRepo struct {
	mu       sync.Mutex
	sent     []sentMessage
	failFor  map[string]error
	panicFor map[string]bool
	onSend   func(chatID string) // called outside the lock after a successful send
}

func (m *mockChatRepo) Send(ctx context.Context, chatID string, msg domain.OutgoingMessage) error {
	m.mu.Lock()
	if m.panicFor[chatID] {
		m.mu.Unlock()
		panic("client exploded")
	}
	if err, ok := m.failFor[chatID]; ok {
		m.mu.Unlock()
		return err
	}
	m.sent = append(m.sent, sentMessage{chatID: chatID, msg: msg})
	hook := m.onSend
	m.mu.Unlock()

	if hook != nil {
		hook(chatID)
	}
	return nil
}

func (m *mockChatRepo) sentTo(chatID string) []domain.OutgoingMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OutgoingMessage
	for _, s := range m.sent {
		if s.chatID == chatID {
			out = append(out, s.msg)
		}
	}
	return out
}

func newTestTemplates(t *testing.T) *Templates {
	t.Helper()
	cfg := DefaultMessageConfig
	cfg.Location = time.UTC
	tmpl, err := NewTemplates(cfg)
	if err != nil {
		t.Fatalf("NewTemplates failed: %v", err)
	}
	return tmpl
}

func newTestNotifier(t *testing.T, chat *mockChatRepo, dests ...string) *NotifyUsecase {
	t.Helper()
	return NewNotifyUsecase(chat, dests, newTestTemplates(t), clockwork.NewFakeClock(), testLogger())
}

func TestDeliver_SendsToEveryDestination(t *testing.T) {
	chat := &mockChatRepo{}
	uc := newTestNotifier(t, chat, "@channel", "-100123")

	rec := &domain.SMSRecord{ID: 9, SourceAddr: "Google", DestinationAddr: "+15550001", ShortMessage: "G-123456 is your code"}
	report := uc.Deliver(context.Background(), rec)

	if report.Attempted != 2 || report.Succeeded() != 2 {
		t.Errorf("Expected 2/2 delivered, got %d/%d", report.Succeeded(), report.Attempted)
	}
	for _, dest := range []string{"@channel", "-100123"} {
		msgs := chat.sentTo(dest)
		if len(msgs) != 1 {
			t.Fatalf("Expected 1 message to %s, got %d", dest, len(msgs))
		}
		if !strings.Contains(msgs[0].Text, "G-123456 is your code") {
			t.Errorf("Expected body in message, got %q", msgs[0].Text)
		}
		if !strings.Contains(msgs[0].Text, "Google") || !strings.Contains(msgs[0].Text, "+15550001") {
			t.Errorf("Expected addresses in message, got %q", msgs[0].Text)
		}
		if msgs[0].Format != domain.FormatMarkdown {
			t.Errorf("Expected markdown format, got %v", msgs[0].Format)
		}
	}
}

func TestDeliver_IsolatesDestinationFailures(t *testing.T) {
	chat := &mockChatRepo{failFor: map[string]error{"b": errors.New("chat not found")}}
	uc := newTestNotifier(t, chat, "a", "b", "c")

	report := uc.Deliver(context.Background(), &domain.SMSRecord{ID: 1, ShortMessage: "1111"})

	if report.Attempted != 3 {
		t.Errorf("Expected 3 attempts, got %d", report.Attempted)
	}
	if report.Succeeded() != 2 {
		t.Errorf("Expected 2 successes, got %d", report.Succeeded())
	}
	if _, ok := report.Failed["b"]; !ok {
		t.Error("Expected failure recorded for b")
	}
	if len(chat.sentTo("a")) != 1 || len(chat.sentTo("c")) != 1 {
		t.Error("Expected a and c to receive the message despite b failing")
	}
}

func TestDeliver_IsolatesDestinationPanics(t *testing.T) {
	chat := &mockChatRepo{panicFor: map[string]bool{"b": true}}
	uc := newTestNotifier(t, chat, "a", "b", "c")

	report := uc.Deliver(context.Background(), &domain.SMSRecord{ID: 1, ShortMessage: "2222"})

	if report.Attempted != 3 {
		t.Errorf("Expected 3 attempts, got %d", report.Attempted)
	}
	err, ok := report.Failed["b"]
	if !ok {
		t.Fatal("Expected failure recorded for b")
	}
	if !strings.Contains(err.Error(), "client exploded") {
		t.Errorf("Expected panic value in error, got %v", err)
	}
	if len(chat.sentTo("a")) != 1 || len(chat.sentTo("c")) != 1 {
		t.Error("Expected a and c to receive the message despite b panicking")
	}
}

func TestDeliver_StripsControlCharacters(t *testing.T) {
	chat := &mockChatRepo{}
	uc := newTestNotifier(t, chat, "a")

	uc.Deliver(context.Background(), &domain.SMSRecord{ID: 1, ShortMessage: "code\x00 4321\x07"})

	msgs := chat.sentTo("a")
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	if strings.ContainsAny(msgs[0].Text, "\x00\x07") {
		t.Errorf("Expected control characters removed, got %q", msgs[0].Text)
	}
	if !strings.Contains(msgs[0].Text, "code 4321") {
		t.Errorf("Expected cleaned body, got %q", msgs[0].Text)
	}
}

func TestAnnounceShutdown(t *testing.T) {
	chat := &mockChatRepo{}
	uc := newTestNotifier(t, chat, "a", "b")

	report := uc.AnnounceShutdown(context.Background())
	if report.Succeeded() != 2 {
		t.Errorf("Expected 2 deliveries, got %d", report.Succeeded())
	}
	msgs := chat.sentTo("a")
	if len(msgs) != 1 || !strings.Contains(msgs[0].Text, "shutting down") {
		t.Errorf("Expected shutdown notice, got %+v", msgs)
	}
}

func TestNotifyUsecase_NoDestinations(t *testing.T) {
	chat := &mockChatRepo{}
	uc := newTestNotifier(t, chat)

	report := uc.Deliver(context.Background(), &domain.SMSRecord{ID: 1})
	if report.Attempted != 0 {
		t.Errorf("Expected no attempts, got %d", report.Attempted)
	}
	if uc.Destinations() != 0 {
		t.Errorf("Expected 0 destinations, got %d", uc.Destinations())
	}
}
