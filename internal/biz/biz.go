package biz

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/repo"
	"github.com/otp-relay/sms-otp-bridge/internal/biz/usecase"
)

// Usecases contains all usecases
type Usecases struct {
	Session *usecase.SessionUsecase
	Notify  *usecase.NotifyUsecase
	Poll    *usecase.PollUsecase
	Status  *usecase.StatusUsecase
	Command *usecase.CommandUsecase
}

// Options holds what the usecases need besides the repositories
type Options struct {
	Destinations []string
	Templates    *usecase.Templates
	Session      usecase.SessionConfig
	PollInterval time.Duration
	Clock        clockwork.Clock
	Logger       *slog.Logger
}

// NewUsecases wires the usecase layer on top of the repositories
func NewUsecases(source repo.SourceRepo, chat repo.ChatRepo, opts Options) *Usecases {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	session := usecase.NewSessionUsecase(source, opts.Session, clock, opts.Logger)
	notify := usecase.NewNotifyUsecase(chat, opts.Destinations, opts.Templates, clock, opts.Logger)
	poll := usecase.NewPollUsecase(session, notify, clock, opts.Logger)
	status := usecase.NewStatusUsecase(poll, session, notify, opts.PollInterval, clock)

	return &Usecases{
		Session: session,
		Notify:  notify,
		Poll:    poll,
		Status:  status,
		Command: usecase.NewCommandUsecase(status, opts.Templates),
	}
}
