package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/domain"
	"github.com/otp-relay/sms-otp-bridge/internal/biz/repo"
)

// NotifyUsecase fans one message out to every configured destination.
// Destinations are attempted independently; a failure is logged and never retried.
type NotifyUsecase struct {
	chatRepo     repo.ChatRepo
	destinations []string
	templates    *Templates
	clock        clockwork.Clock
	logger       *slog.Logger
}

// NewNotifyUsecase creates a new notify usecase
func NewNotifyUsecase(
	chatRepo repo.ChatRepo,
	destinations []string,
	templates *Templates,
	clock clockwork.Clock,
	logger *slog.Logger,
) *NotifyUsecase {
	dests := make([]string, len(destinations))
	copy(dests, destinations)
	return &NotifyUsecase{
		chatRepo:     chatRepo,
		destinations: dests,
		templates:    templates,
		clock:        clock,
		logger:       logger.With("component", "notifier"),
	}
}

// Deliver announces one SMS record to every destination
func (uc *NotifyUsecase) Deliver(ctx context.Context, rec *domain.SMSRecord) *domain.DeliveryReport {
	msg, err := uc.templates.Notification(rec, uc.clock.Now())
	if err != nil {
		// A broken template must not stop the relay; fall back to the bare body
		uc.logger.Error("Failed to render notification", "sms_id", rec.ID, "error", err)
		msg = domain.OutgoingMessage{Text: rec.Source() + ": " + rec.Body(), Format: domain.FormatPlain}
	}

	report := uc.Broadcast(ctx, msg)
	uc.logger.Info("Relayed SMS",
		"sms_id", rec.ID,
		"source", rec.Source(),
		"delivered", report.Succeeded(),
		"failed", len(report.Failed))
	return report
}

// Broadcast sends msg to every destination, in configuration order
func (uc *NotifyUsecase) Broadcast(ctx context.Context, msg domain.OutgoingMessage) *domain.DeliveryReport {
	report := &domain.DeliveryReport{Failed: make(map[string]error)}

	for _, dest := range uc.destinations {
		report.Attempted++
		if err := uc.send(ctx, dest, msg); err != nil {
			report.Failed[dest] = err
			uc.logger.Error("Failed to send message", "destination", dest, "error", err)
		}
	}
	return report
}

// send turns a panicking chat client into a failure for that destination only
func (uc *NotifyUsecase) send(ctx context.Context, dest string, msg domain.OutgoingMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while sending: %v", r)
		}
	}()
	return uc.chatRepo.Send(ctx, dest, msg)
}

// AnnounceShutdown tells every destination the relay is going away
func (uc *NotifyUsecase) AnnounceShutdown(ctx context.Context) *domain.DeliveryReport {
	msg, err := uc.templates.Shutdown(uc.clock.Now())
	if err != nil {
		uc.logger.Error("Failed to render shutdown message", "error", err)
		return &domain.DeliveryReport{Failed: map[string]error{}}
	}
	return uc.Broadcast(ctx, msg)
}

// Destinations returns the number of configured destinations
func (uc *NotifyUsecase) Destinations() int {
	return len(uc.destinations)
}
