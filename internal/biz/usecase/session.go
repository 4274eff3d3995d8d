package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/domain"
	"github.com/otp-relay/sms-otp-bridge/internal/biz/repo"
)

// SessionConfig holds the reconnect and staleness policy of the source session
type SessionConfig struct {
	MaxReconnectAttempts int           // Attempts per cycle before giving up
	ReconnectDelay       time.Duration // Fixed delay between attempts
	StaleAfter           time.Duration // Recycle a live session with no successful fetch for this long
}

// DefaultSessionConfig returns the default session policy
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxReconnectAttempts: 5,
		ReconnectDelay:       5 * time.Second,
		StaleAfter:           5 * time.Minute,
	}
}

// SessionUsecase keeps the source session alive: it probes before every fetch,
// rebuilds dead sessions with bounded retries, and recycles sessions that stopped
// producing successful fetches.
type SessionUsecase struct {
	source repo.SourceRepo
	config SessionConfig
	clock  clockwork.Clock
	logger *slog.Logger

	// opMu serialises every operation that touches the session
	opMu sync.Mutex

	mu          sync.RWMutex
	state       domain.SessionState
	lastSuccess time.Time
	reconnects  int64
}

// NewSessionUsecase creates a new session usecase
func NewSessionUsecase(source repo.SourceRepo, config SessionConfig, clock clockwork.Clock, logger *slog.Logger) *SessionUsecase {
	if config.MaxReconnectAttempts <= 0 {
		config.MaxReconnectAttempts = 1
	}
	return &SessionUsecase{
		source:      source,
		config:      config,
		clock:       clock,
		logger:      logger.With("component", "session"),
		state:       domain.SessionInactive,
		lastSuccess: clock.Now(),
	}
}

// Fetch returns the records newer than cursor, making sure a responsive session exists first.
// Any failure yields an empty batch together with the reason.
func (uc *SessionUsecase) Fetch(ctx context.Context, cursor int64) ([]domain.SMSRecord, error) {
	uc.opMu.Lock()
	defer uc.opMu.Unlock()

	if err := uc.ensureLocked(ctx); err != nil {
		return nil, err
	}

	records, err := uc.source.Fetch(ctx, cursor)
	if err != nil {
		if errors.Is(err, domain.ErrSessionLost) {
			uc.logger.Warn("Session failed during fetch, tearing down", "error", err)
			uc.teardownLocked()
		}
		return nil, err
	}

	uc.mu.Lock()
	uc.lastSuccess = uc.clock.Now()
	uc.mu.Unlock()
	return records, nil
}

// CheckHealth recycles the session when it still exists but has not produced a
// successful fetch within StaleAfter. A session that looks alive but is stuck is
// treated the same as a dead one.
func (uc *SessionUsecase) CheckHealth(ctx context.Context) error {
	uc.opMu.Lock()
	defer uc.opMu.Unlock()

	if !uc.source.Active() {
		return nil
	}

	since := uc.clock.Since(uc.LastSuccess())
	if since <= uc.config.StaleAfter {
		return nil
	}

	uc.logger.Warn("No successful fetch recently, recycling session",
		"since_last_success", since.Round(time.Second).String())
	uc.teardownLocked()
	return uc.reconnectLocked(ctx)
}

// Shutdown closes the session for good
func (uc *SessionUsecase) Shutdown() {
	uc.opMu.Lock()
	defer uc.opMu.Unlock()

	uc.teardownLocked()
	uc.logger.Info("Session closed")
}

// State returns the current session state
func (uc *SessionUsecase) State() domain.SessionState {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.state
}

// Active reports whether a session handle exists
func (uc *SessionUsecase) Active() bool {
	return uc.source.Active()
}

// LastSuccess returns the time of the last successful fetch (process start if none yet)
func (uc *SessionUsecase) LastSuccess() time.Time {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.lastSuccess
}

// Reconnects returns how many reconnect attempts have been made in total
func (uc *SessionUsecase) Reconnects() int64 {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.reconnects
}

func (uc *SessionUsecase) ensureLocked(ctx context.Context) error {
	if uc.source.Active() {
		if uc.source.IsResponsive(ctx) {
			uc.setState(domain.SessionActive)
			return nil
		}
		uc.logger.Warn("Session unresponsive, tearing down")
		uc.teardownLocked()
	} else {
		uc.logger.Info("No session available, initializing")
	}
	return uc.reconnectLocked(ctx)
}

func (uc *SessionUsecase) reconnectLocked(ctx context.Context) error {
	maxAttempts := uc.config.MaxReconnectAttempts

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		uc.setState(domain.SessionReconnecting)
		uc.mu.Lock()
		uc.reconnects++
		uc.mu.Unlock()

		uc.logger.Info("Initializing session", "attempt", attempt, "max_attempts", maxAttempts)
		err := uc.source.Initialize(ctx)
		if err == nil {
			uc.setState(domain.SessionActive)
			uc.logger.Info("Session ready", "attempt", attempt)
			return nil
		}
		uc.logger.Error("Session initialization failed", "attempt", attempt, "error", err)

		if attempt < maxAttempts {
			if err := uc.wait(ctx, uc.config.ReconnectDelay); err != nil {
				uc.setState(domain.SessionFailed)
				return err
			}
		}
	}

	uc.setState(domain.SessionFailed)
	uc.logger.Error("Giving up on session for this cycle", "attempts", maxAttempts)
	return fmt.Errorf("%w after %d attempts", domain.ErrReconnectExhausted, maxAttempts)
}

func (uc *SessionUsecase) teardownLocked() {
	uc.setState(domain.SessionTearingDown)
	uc.source.Teardown()
	uc.setState(domain.SessionInactive)
}

func (uc *SessionUsecase) setState(state domain.SessionState) {
	uc.mu.Lock()
	uc.state = state
	uc.mu.Unlock()
}

func (uc *SessionUsecase) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-uc.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
