package usecase

import (
	"strings"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/domain"
)

// Command is a recognised inbound chat command
type Command string

const (
	CommandStart  Command = "/start"
	CommandStatus Command = "/status"
)

// CommandUsecase answers inbound chat commands
type CommandUsecase struct {
	statusUC  *StatusUsecase
	templates *Templates
}

// NewCommandUsecase creates a new command usecase
func NewCommandUsecase(statusUC *StatusUsecase, templates *Templates) *CommandUsecase {
	return &CommandUsecase{
		statusUC:  statusUC,
		templates: templates,
	}
}

// ParseCommand extracts the command from a chat message.
// Accepts "/status", "/status@SomeBot" and text with a leading mention.
func ParseCommand(text string) (Command, bool) {
	for _, field := range strings.Fields(text) {
		if !strings.HasPrefix(field, "/") {
			continue
		}
		name, _, _ := strings.Cut(field, "@")
		switch cmd := Command(strings.ToLower(name)); cmd {
		case CommandStart, CommandStatus:
			return cmd, true
		}
		return "", false
	}
	return "", false
}

// Handle returns the reply for text, or false when text is not a command
func (uc *CommandUsecase) Handle(text string) (domain.OutgoingMessage, bool, error) {
	cmd, ok := ParseCommand(text)
	if !ok {
		return domain.OutgoingMessage{}, false, nil
	}

	switch cmd {
	case CommandStart:
		msg, err := uc.templates.StartReply()
		return msg, true, err
	default:
		msg, err := uc.templates.Status(uc.statusUC.Snapshot())
		return msg, true, err
	}
}
