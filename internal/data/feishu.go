package data

import (
	"context"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/domain"
	"github.com/otp-relay/sms-otp-bridge/internal/biz/repo"
	"github.com/otp-relay/sms-otp-bridge/internal/infra/feishu"
)

// feishuSender is the part of the Feishu client the chat repository needs
type feishuSender interface {
	SendText(ctx context.Context, chatID, text string) error
	SendMarkdown(ctx context.Context, chatID, markdown string) error
}

// feishuRepo implements ChatRepo with Feishu group messages
type feishuRepo struct {
	client feishuSender
}

// NewFeishuRepo creates a new Feishu chat repository
func NewFeishuRepo(client *feishu.Client) repo.ChatRepo {
	return &feishuRepo{client: client}
}

// Send delivers markdown as an interactive card and everything else as plain text
func (r *feishuRepo) Send(ctx context.Context, chatID string, msg domain.OutgoingMessage) error {
	if msg.Format == domain.FormatMarkdown {
		return r.client.SendMarkdown(ctx, chatID, msg.Text)
	}
	return r.client.SendText(ctx, chatID, msg.Text)
}
