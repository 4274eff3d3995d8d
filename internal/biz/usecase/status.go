package usecase

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/domain"
)

// StatusUsecase assembles status snapshots for chat commands and the liveness endpoint
type StatusUsecase struct {
	poller       *PollUsecase
	session      *SessionUsecase
	notifier     *NotifyUsecase
	pollInterval time.Duration
	startedAt    time.Time
	clock        clockwork.Clock
}

// NewStatusUsecase creates a new status usecase; the start time is taken from clock
func NewStatusUsecase(poller *PollUsecase, session *SessionUsecase, notifier *NotifyUsecase, pollInterval time.Duration, clock clockwork.Clock) *StatusUsecase {
	return &StatusUsecase{
		poller:       poller,
		session:      session,
		notifier:     notifier,
		pollInterval: pollInterval,
		startedAt:    clock.Now(),
		clock:        clock,
	}
}

// Snapshot returns the current relay status
func (uc *StatusUsecase) Snapshot() *domain.Status {
	return &domain.Status{
		Running:             true,
		LastSeenID:          uc.poller.Cursor(),
		PollInterval:        uc.pollInterval,
		Session:             uc.session.State(),
		SessionActive:       uc.session.Active(),
		Destinations:        uc.notifier.Destinations(),
		PollCount:           uc.poller.PollCount(),
		Delivered:           uc.poller.Delivered(),
		StartedAt:           uc.startedAt,
		LastSuccessfulFetch: uc.session.LastSuccess(),
		Now:                 uc.clock.Now(),
	}
}
