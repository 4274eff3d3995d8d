package service

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/usecase"
)

// PollRunner drives poll cycles and session health checks on fixed intervals
type PollRunner struct {
	pollUC    *usecase.PollUsecase
	sessionUC *usecase.SessionUsecase

	pollInterval   time.Duration
	healthInterval time.Duration
	clock          clockwork.Clock
	logger         *slog.Logger

	// cycles tracks spawned poll cycles so Run can wait for them
	cycles sync.WaitGroup
}

// NewPollRunner creates a new poll runner
func NewPollRunner(
	pollUC *usecase.PollUsecase,
	sessionUC *usecase.SessionUsecase,
	pollInterval time.Duration,
	healthInterval time.Duration,
	clock clockwork.Clock,
	logger *slog.Logger,
) *PollRunner {
	return &PollRunner{
		pollUC:         pollUC,
		sessionUC:      sessionUC,
		pollInterval:   pollInterval,
		healthInterval: healthInterval,
		clock:          clock,
		logger:         logger.With("component", "runner"),
	}
}

// Run starts the poll and health loops and blocks until ctx is done.
// The first poll cycle starts immediately.
func (r *PollRunner) Run(ctx context.Context) error {
	r.logger.Info("Started",
		"poll_interval", r.pollInterval.String(),
		"health_interval", r.healthInterval.String())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.pollLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		r.healthLoop(ctx)
	}()

	wg.Wait()
	r.cycles.Wait()
	r.logger.Info("Stopped")
	return nil
}

// pollLoop fires one cycle per tick. Cycles run in their own goroutine so a slow
// cycle never delays the ticker; overlapping triggers are dropped by the poller.
func (r *PollRunner) pollLoop(ctx context.Context) {
	r.trigger(ctx)

	ticker := r.clock.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.trigger(ctx)
		}
	}
}

// healthLoop runs the stale-session check
func (r *PollRunner) healthLoop(ctx context.Context) {
	ticker := r.clock.NewTicker(r.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.checkHealth(ctx)
		}
	}
}

func (r *PollRunner) trigger(ctx context.Context) {
	r.cycles.Add(1)
	go func() {
		defer r.cycles.Done()
		r.runCycle(ctx)
	}()
}

func (r *PollRunner) runCycle(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Poll cycle panicked", "panic", rec, "stack", string(debug.Stack()))
		}
	}()

	res, err := r.pollUC.RunCycle(ctx)
	if errors.Is(err, usecase.ErrCycleInFlight) {
		return
	}
	if err != nil {
		r.logger.Error("Poll cycle failed", "error", err)
		return
	}
	r.logger.Debug("Poll cycle done", "cycle", res.ID, "duration", res.Duration.String())
}

func (r *PollRunner) checkHealth(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Health check panicked", "panic", rec, "stack", string(debug.Stack()))
		}
	}()

	if err := r.sessionUC.CheckHealth(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("Health check could not restore session", "error", err)
	}
}
