package server

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/otp-relay/sms-otp-bridge/internal/infra/feishu"
	"github.com/otp-relay/sms-otp-bridge/internal/service"
)

// EventSource delivers inbound Feishu messages
type EventSource interface {
	OnMessage(handler feishu.MessageHandler)
	Start(ctx context.Context) error
}

const seenTTL = 5 * time.Minute

// FeishuListener receives commands over the Feishu websocket and hands them to a CommandHandler
type FeishuListener struct {
	events  EventSource
	handler CommandHandler
	clock   clockwork.Clock
	logger  *slog.Logger

	// Feishu redelivers events it considers unacknowledged
	seenMu sync.Mutex
	seen   map[string]time.Time // msgID -> first seen
}

// NewFeishuListener creates a new Feishu command listener
func NewFeishuListener(events EventSource, handler CommandHandler, clock clockwork.Clock, logger *slog.Logger) *FeishuListener {
	return &FeishuListener{
		events:  events,
		handler: handler,
		clock:   clock,
		logger:  logger.With("component", "feishu"),
		seen:    make(map[string]time.Time),
	}
}

// Run connects the event stream and blocks until ctx is done
func (l *FeishuListener) Run(ctx context.Context) error {
	l.events.OnMessage(func(msg *feishu.Message) {
		l.handleMessage(ctx, msg)
	})
	l.logger.Info("Listening for commands")
	return l.events.Start(ctx)
}

func (l *FeishuListener) handleMessage(ctx context.Context, msg *feishu.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			l.logger.Error("Command handler panicked", "msg_id", msg.MsgID, "panic", rec, "stack", string(debug.Stack()))
		}
	}()

	if l.markSeen(msg.MsgID) {
		l.logger.Debug("Duplicate message ignored", "msg_id", msg.MsgID)
		return
	}

	req := &service.MessageRequest{
		ChatID:   msg.ChatID,
		MsgID:    msg.MsgID,
		Content:  msg.Content,
		SenderID: msg.SenderID,
	}
	if err := l.handler.HandleMessage(ctx, req); err != nil {
		l.logger.Error("Failed to handle command", "chat_id", msg.ChatID, "error", err)
	}
}

// markSeen records msgID and reports whether it was already seen
func (l *FeishuListener) markSeen(msgID string) bool {
	if msgID == "" {
		return false
	}

	l.seenMu.Lock()
	defer l.seenMu.Unlock()

	now := l.clock.Now()
	cutoff := now.Add(-seenTTL)
	for id, ts := range l.seen {
		if ts.Before(cutoff) {
			delete(l.seen, id)
		}
	}

	if _, ok := l.seen[msgID]; ok {
		return true
	}
	l.seen[msgID] = now
	return false
}
