package usecase

import (
	"strings"
	"testing"
	"time"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/domain"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		want Command
		ok   bool
	}{
		{"/start", CommandStart, true},
		{"/status", CommandStatus, true},
		{"/STATUS", CommandStatus, true},
		{"/status@OtpRelayBot", CommandStatus, true},
		{"@_user_1 /status", CommandStatus, true},
		{"  /start  now", CommandStart, true},
		{"/help", "", false},
		{"status", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseCommand(tt.text)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseCommand(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCommandUsecase_Handle(t *testing.T) {
	f := newPollFixture(t, &mockSourceRepo{records: records(41, 42)}, "a", "b")
	runCycle(t, f.poller)
	f.clock.Advance(2 * time.Minute)

	statusUC := NewStatusUsecase(f.poller, f.session, f.poller.notifier, 10*time.Second, f.clock)
	uc := NewCommandUsecase(statusUC, newTestTemplates(t))

	msg, ok, err := uc.Handle("/start")
	if err != nil || !ok {
		t.Fatalf("Expected /start handled, got ok=%v err=%v", ok, err)
	}
	if !strings.Contains(msg.Text, "monitoring") {
		t.Errorf("Unexpected start reply: %q", msg.Text)
	}

	msg, ok, err = uc.Handle("/status")
	if err != nil || !ok {
		t.Fatalf("Expected /status handled, got ok=%v err=%v", ok, err)
	}
	for _, want := range []string{"Last SMS ID: 42", "Poll Interval: 10s", "Browser: Active", "Channels: 2", "Polls: 1"} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("Expected %q in %q", want, msg.Text)
		}
	}

	if _, ok, _ := uc.Handle("hello there"); ok {
		t.Error("Expected plain text to be ignored")
	}
}

func TestStatusUsecase_Snapshot(t *testing.T) {
	f := newPollFixture(t, &mockSourceRepo{records: records(7)})
	statusUC := NewStatusUsecase(f.poller, f.session, f.poller.notifier, 10*time.Second, f.clock)

	f.clock.Advance(time.Minute)
	runCycle(t, f.poller)
	f.clock.Advance(30 * time.Second)

	s := statusUC.Snapshot()
	if !s.Running {
		t.Error("Expected running")
	}
	if s.LastSeenID != 7 {
		t.Errorf("Expected last id 7, got %d", s.LastSeenID)
	}
	if s.Session != domain.SessionActive || !s.SessionActive {
		t.Errorf("Expected active session, got %s", s.Session)
	}
	if s.Uptime() != 90*time.Second {
		t.Errorf("Expected uptime 90s, got %v", s.Uptime())
	}
	if s.SinceLastSuccess() != 30*time.Second {
		t.Errorf("Expected 30s since last success, got %v", s.SinceLastSuccess())
	}
	if s.PollCount != 1 || s.Delivered != 1 {
		t.Errorf("Expected 1 poll and 1 delivery, got %d/%d", s.PollCount, s.Delivered)
	}
}
