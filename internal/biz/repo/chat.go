package repo

import (
	"context"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/domain"
)

// ChatRepo is the outbound side of the chat platform
type ChatRepo interface {
	// Send delivers one message to one destination chat
	Send(ctx context.Context, chatID string, msg domain.OutgoingMessage) error
}
