package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/repo"
	"github.com/otp-relay/sms-otp-bridge/internal/biz/usecase"
)

// MessageRequest is an inbound chat message
type MessageRequest struct {
	ChatID   string
	MsgID    string
	Content  string
	SenderID string
}

// CommandService answers /start and /status in the chat the command came from
type CommandService struct {
	commandUC *usecase.CommandUsecase
	chatRepo  repo.ChatRepo
	logger    *slog.Logger
}

// NewCommandService creates a new command service
func NewCommandService(commandUC *usecase.CommandUsecase, chatRepo repo.ChatRepo, logger *slog.Logger) *CommandService {
	return &CommandService{
		commandUC: commandUC,
		chatRepo:  chatRepo,
		logger:    logger.With("component", "commands"),
	}
}

// HandleMessage replies to a command; other messages are ignored
func (s *CommandService) HandleMessage(ctx context.Context, req *MessageRequest) error {
	reply, ok, err := s.commandUC.Handle(req.Content)
	if !ok {
		return nil
	}
	if err != nil {
		return fmt.Errorf("render reply: %w", err)
	}

	s.logger.Info("Command received", "chat_id", req.ChatID, "sender", req.SenderID, "text", req.Content)
	if err := s.chatRepo.Send(ctx, req.ChatID, reply); err != nil {
		return fmt.Errorf("send reply to %s: %w", req.ChatID, err)
	}
	return nil
}
