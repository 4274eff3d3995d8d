package server

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/domain"
	"github.com/otp-relay/sms-otp-bridge/internal/biz/usecase"
)

// Component is a long-running part of the relay
type Component interface {
	Run(ctx context.Context) error
}

// Relay supervises the poll runner, the liveness server and the command listener
type Relay struct {
	components []Component
	notifier   *usecase.NotifyUsecase
	session    *usecase.SessionUsecase
	logger     *slog.Logger
}

// NewRelay creates a new relay; nil components are ignored
func NewRelay(notifier *usecase.NotifyUsecase, session *usecase.SessionUsecase, logger *slog.Logger, components ...Component) *Relay {
	r := &Relay{
		notifier: notifier,
		session:  session,
		logger:   logger.With("component", "relay"),
	}
	for _, c := range components {
		if c != nil {
			r.components = append(r.components, c)
		}
	}
	return r
}

// Run starts every component and blocks until ctx is done or one of them fails.
// On the way out it announces the shutdown to every destination and closes the
// source session. The returned error is the first component failure, if any.
func (r *Relay) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range r.components {
		c := c
		g.Go(func() error {
			return c.Run(gctx)
		})
	}

	err := g.Wait()
	if err != nil {
		r.logger.Error("Relay stopped with error", "error", err)
	} else {
		r.logger.Info("Shutting down")
	}

	r.drain(err)
	return err
}

func (r *Relay) drain(cause error) {
	// A second instance owns the bot; announcing would mislead the destinations
	if !errors.Is(cause, domain.ErrDuplicateInstance) {
		report := r.notifier.AnnounceShutdown(context.Background())
		r.logger.Info("Shutdown announced", "delivered", report.Succeeded(), "failed", len(report.Failed))
	}
	r.session.Shutdown()
}
