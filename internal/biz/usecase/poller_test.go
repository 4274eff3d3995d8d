package usecase

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/domain"
)

type pollFixture struct {
	source  *mockSourceRepo
	chat    *mockChatRepo
	session *SessionUsecase
	poller  *PollUsecase
	clock   *clockwork.FakeClock
}

func newPollFixture(t *testing.T, source *mockSourceRepo, dests ...string) *pollFixture {
	t.Helper()
	if len(dests) == 0 {
		dests = []string{"a"}
	}
	clock := clockwork.NewFakeClock()
	chat := &mockChatRepo{}
	session := NewSessionUsecase(source, noDelayConfig(), clock, testLogger())
	notifier := NewNotifyUsecase(chat, dests, newTestTemplates(t), clock, testLogger())
	return &pollFixture{
		source:  source,
		chat:    chat,
		session: session,
		poller:  NewPollUsecase(session, notifier, clock, testLogger()),
		clock:   clock,
	}
}

func records(ids ...int64) []domain.SMSRecord {
	out := make([]domain.SMSRecord, len(ids))
	for i, id := range ids {
		out[i] = domain.SMSRecord{ID: id, SourceAddr: "src", ShortMessage: "msg-" + strconv.FormatInt(id, 10)}
	}
	return out
}

func runCycle(t *testing.T, p *PollUsecase) *CycleResult {
	t.Helper()
	res, err := p.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	return res
}

func TestRunCycle_DeliversAndAdvancesCursor(t *testing.T) {
	f := newPollFixture(t, &mockSourceRepo{records: records(1, 2, 3)}, "a", "b")

	res := runCycle(t, f.poller)

	if res.Delivered != 3 || res.Fetched != 3 {
		t.Errorf("Expected 3 fetched and delivered, got %d/%d", res.Fetched, res.Delivered)
	}
	if f.poller.Cursor() != 3 {
		t.Errorf("Expected cursor 3, got %d", f.poller.Cursor())
	}
	if len(f.chat.sentTo("a")) != 3 || len(f.chat.sentTo("b")) != 3 {
		t.Errorf("Expected 3 messages per destination")
	}
	if f.poller.PollCount() != 1 {
		t.Errorf("Expected poll count 1, got %d", f.poller.PollCount())
	}
	if f.poller.Delivered() != 3 {
		t.Errorf("Expected 3 delivered, got %d", f.poller.Delivered())
	}
}

func TestRunCycle_PassesCursorToFetch(t *testing.T) {
	f := newPollFixture(t, &mockSourceRepo{batches: [][]domain.SMSRecord{records(4, 8)}})

	runCycle(t, f.poller)
	runCycle(t, f.poller)

	if len(f.source.fetchCursors) != 2 {
		t.Fatalf("Expected 2 fetches, got %d", len(f.source.fetchCursors))
	}
	if f.source.fetchCursors[0] != 0 || f.source.fetchCursors[1] != 8 {
		t.Errorf("Expected cursors [0 8], got %v", f.source.fetchCursors)
	}
}

func TestRunCycle_IdempotentRefetch(t *testing.T) {
	f := newPollFixture(t, &mockSourceRepo{records: records(10, 11)})

	first := runCycle(t, f.poller)
	second := runCycle(t, f.poller)

	if first.Delivered != 2 {
		t.Errorf("Expected 2 deliveries on first cycle, got %d", first.Delivered)
	}
	if second.Delivered != 0 || second.Skipped != 2 {
		t.Errorf("Expected second cycle to skip everything, got delivered=%d skipped=%d", second.Delivered, second.Skipped)
	}
	if len(f.chat.sentTo("a")) != 2 {
		t.Errorf("Expected 2 messages total, got %d", len(f.chat.sentTo("a")))
	}
}

func TestRunCycle_SkipRule(t *testing.T) {
	f := newPollFixture(t, &mockSourceRepo{batches: [][]domain.SMSRecord{
		records(10),
		records(4, 10, 0, 11),
	}})

	runCycle(t, f.poller)
	res := runCycle(t, f.poller)

	if res.Delivered != 1 || res.Skipped != 3 {
		t.Errorf("Expected 1 delivered and 3 skipped, got %d/%d", res.Delivered, res.Skipped)
	}
	if f.poller.Cursor() != 11 {
		t.Errorf("Expected cursor 11, got %d", f.poller.Cursor())
	}
	for _, msg := range f.chat.sentTo("a") {
		if strings.Contains(msg.Text, "msg-4") || strings.Contains(msg.Text, "msg-0") {
			t.Errorf("Record at or below cursor was delivered: %q", msg.Text)
		}
	}
}

func TestRunCycle_SourceOrderIsTrusted(t *testing.T) {
	tests := []struct {
		name       string
		ids        []int64
		wantCursor int64
		wantBodies []string
	}{
		{"descending", []int64{5, 3}, 5, []string{"msg-5"}},
		{"ascending", []int64{3, 5}, 5, []string{"msg-3", "msg-5"}},
		{"gap", []int64{2, 9, 4}, 9, []string{"msg-2", "msg-9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPollFixture(t, &mockSourceRepo{records: records(tt.ids...)})
			runCycle(t, f.poller)

			if f.poller.Cursor() != tt.wantCursor {
				t.Errorf("Expected cursor %d, got %d", tt.wantCursor, f.poller.Cursor())
			}
			sent := f.chat.sentTo("a")
			if len(sent) != len(tt.wantBodies) {
				t.Fatalf("Expected %d deliveries, got %d", len(tt.wantBodies), len(sent))
			}
			for i, body := range tt.wantBodies {
				if !strings.Contains(sent[i].Text, body) {
					t.Errorf("Delivery %d: expected %q in %q", i, body, sent[i].Text)
				}
			}
		})
	}
}

func TestRunCycle_CursorNeverDecreases(t *testing.T) {
	batches := [][]domain.SMSRecord{
		records(3, 7),
		records(1, 2),
		records(),
		records(6, 8, 5),
		records(8),
	}
	f := newPollFixture(t, &mockSourceRepo{batches: batches})

	prev := f.poller.Cursor()
	for range batches {
		runCycle(t, f.poller)
		if f.poller.Cursor() < prev {
			t.Fatalf("Cursor decreased from %d to %d", prev, f.poller.Cursor())
		}
		prev = f.poller.Cursor()
	}
	if prev != 8 {
		t.Errorf("Expected final cursor 8, got %d", prev)
	}
}

func TestRunCycle_DeliveryFailureStillAdvancesCursor(t *testing.T) {
	source := &mockSourceRepo{records: records(1, 2)}
	f := newPollFixture(t, source, "good", "bad")
	f.chat.failFor = map[string]error{"bad": errors.New("forbidden")}

	res := runCycle(t, f.poller)

	if res.Delivered != 2 {
		t.Errorf("Expected 2 records processed, got %d", res.Delivered)
	}
	if f.poller.Cursor() != 2 {
		t.Errorf("Expected cursor 2, got %d", f.poller.Cursor())
	}
	if len(f.chat.sentTo("good")) != 2 {
		t.Errorf("Expected healthy destination to get both messages")
	}
}

func TestRunCycle_SingleFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	source := &mockSourceRepo{records: records(1)}
	source.fetchHook = func() {
		close(entered)
		<-release
	}
	f := newPollFixture(t, source)

	done := make(chan *CycleResult, 1)
	go func() {
		res, _ := f.poller.RunCycle(context.Background())
		done <- res
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("First cycle never fetched")
	}

	if !f.poller.InFlight() {
		t.Error("Expected a cycle in flight")
	}
	res, err := f.poller.RunCycle(context.Background())
	if !errors.Is(err, ErrCycleInFlight) {
		t.Errorf("Expected ErrCycleInFlight, got %v", err)
	}
	if res != nil {
		t.Error("Expected no result for a skipped cycle")
	}
	if f.source.fetchCount() != 1 {
		t.Errorf("Expected skipped cycle to do zero fetches, got %d total", f.source.fetchCount())
	}

	close(release)
	select {
	case first := <-done:
		if first == nil || first.Delivered != 1 {
			t.Errorf("Expected first cycle to deliver 1 record, got %+v", first)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("First cycle never finished")
	}

	if len(f.chat.sentTo("a")) != 1 {
		t.Errorf("Expected exactly 1 delivery, got %d", len(f.chat.sentTo("a")))
	}
	if f.poller.PollCount() != 1 {
		t.Errorf("Expected skipped cycle not counted, got %d", f.poller.PollCount())
	}
	if f.poller.InFlight() {
		t.Error("Expected flag released after cycle")
	}
}

func TestRunCycle_ReconnectExhaustedLeavesCursor(t *testing.T) {
	source := &mockSourceRepo{batches: [][]domain.SMSRecord{records(4)}, records: records(9)}
	f := newPollFixture(t, source)

	runCycle(t, f.poller)

	source.mu.Lock()
	source.responsive = false
	source.initErr = errors.New("challenge not cleared")
	source.mu.Unlock()

	res := runCycle(t, f.poller)

	if !errors.Is(res.Err, domain.ErrReconnectExhausted) {
		t.Errorf("Expected ErrReconnectExhausted, got %v", res.Err)
	}
	if res.Fetched != 0 || res.Delivered != 0 {
		t.Errorf("Expected empty batch, got fetched=%d delivered=%d", res.Fetched, res.Delivered)
	}
	if f.poller.Cursor() != 4 {
		t.Errorf("Expected cursor unchanged at 4, got %d", f.poller.Cursor())
	}
	if source.teardownCalls != 1 {
		t.Errorf("Expected 1 teardown, got %d", source.teardownCalls)
	}
	if source.initCalls != 6 {
		t.Errorf("Expected 1 initial + 5 failed initializations, got %d", source.initCalls)
	}
	if f.poller.PollCount() != 2 {
		t.Errorf("Expected failed cycle counted, got %d", f.poller.PollCount())
	}
}

func TestRunCycle_SourceErrorsYieldEmptyBatch(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"rate limited", &domain.SourceStatusError{Code: 429, StatusText: "Too Many Requests"}},
		{"server error", &domain.SourceStatusError{Code: 502}},
		{"transport", &domain.SourceTransportError{Message: "Failed to fetch"}},
		{"shape", domain.ErrUnexpectedShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPollFixture(t, &mockSourceRepo{fetchErr: tt.err})

			res := runCycle(t, f.poller)
			if !errors.Is(res.Err, tt.err) {
				t.Errorf("Expected %v, got %v", tt.err, res.Err)
			}
			if res.Delivered != 0 || f.poller.Cursor() != 0 {
				t.Errorf("Expected nothing delivered, got %d (cursor %d)", res.Delivered, f.poller.Cursor())
			}
			if f.source.teardownCalls != 0 {
				t.Errorf("Expected session kept, got %d teardowns", f.source.teardownCalls)
			}
		})
	}
}

func TestRunCycle_StopsOnCancel(t *testing.T) {
	f := newPollFixture(t, &mockSourceRepo{records: records(1, 2, 3)})

	ctx, cancel := context.WithCancel(context.Background())
	f.source.fetchHook = cancel

	res, err := f.poller.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if res.Delivered != 0 {
		t.Errorf("Expected no deliveries after cancel, got %d", res.Delivered)
	}
	if f.poller.Cursor() != 0 {
		t.Errorf("Expected cursor unchanged, got %d", f.poller.Cursor())
	}
}

func TestRunCycle_CancelDuringDeliveryKeepsCursor(t *testing.T) {
	f := newPollFixture(t, &mockSourceRepo{records: records(1, 2)}, "a", "b")

	ctx, cancel := context.WithCancel(context.Background())
	f.chat.onSend = func(chatID string) {
		if chatID == "a" {
			cancel()
		}
	}

	res, err := f.poller.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if res.Delivered != 0 {
		t.Errorf("Expected no completed deliveries, got %d", res.Delivered)
	}
	if f.poller.Cursor() != 0 || res.Cursor != 0 {
		t.Errorf("Expected cursor 0, got %d (result %d)", f.poller.Cursor(), res.Cursor)
	}
	if len(f.chat.sentTo("a")) != 1 {
		t.Errorf("Expected only the first record sent to a, got %d", len(f.chat.sentTo("a")))
	}
}
