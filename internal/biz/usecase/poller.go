package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/domain"
)

// ErrCycleInFlight is returned when a poll cycle is triggered while another one runs
var ErrCycleInFlight = errors.New("poll cycle already in flight")

// CycleResult summarises one poll cycle
type CycleResult struct {
	ID        string
	Fetched   int
	Delivered int
	Skipped   int
	Cursor    int64
	Duration  time.Duration
	Err       error // fetch failure; the batch was treated as empty
}

// PollUsecase owns the cursor and runs poll cycles: fetch the records after the
// cursor, deliver each newer one in returned order, and advance the cursor per record.
type PollUsecase struct {
	session  *SessionUsecase
	notifier *NotifyUsecase
	clock    clockwork.Clock
	logger   *slog.Logger

	inFlight atomic.Bool

	mu        sync.RWMutex
	cursor    int64
	pollCount int64
	delivered int64
}

// NewPollUsecase creates a new poll usecase
func NewPollUsecase(session *SessionUsecase, notifier *NotifyUsecase, clock clockwork.Clock, logger *slog.Logger) *PollUsecase {
	return &PollUsecase{
		session:  session,
		notifier: notifier,
		clock:    clock,
		logger:   logger.With("component", "poller"),
	}
}

// RunCycle executes one poll cycle. It returns ErrCycleInFlight without fetching
// anything when a cycle is already running. Fetch failures do not fail the cycle;
// they are logged and reported in CycleResult.Err.
func (uc *PollUsecase) RunCycle(ctx context.Context) (*CycleResult, error) {
	if !uc.inFlight.CompareAndSwap(false, true) {
		uc.logger.Debug("Previous poll still running, skipping")
		return nil, ErrCycleInFlight
	}
	defer uc.inFlight.Store(false)

	start := uc.clock.Now()
	result := &CycleResult{ID: uuid.NewString()}
	logger := uc.logger.With("cycle", result.ID)

	uc.mu.Lock()
	uc.pollCount++
	cursor := uc.cursor
	uc.mu.Unlock()

	records, err := uc.session.Fetch(ctx, cursor)
	if err != nil {
		result.Err = err
		result.Cursor = cursor
		result.Duration = uc.clock.Since(start)
		logFetchError(logger, err)
		return result, nil
	}
	result.Fetched = len(records)

	for i := range records {
		if ctx.Err() != nil {
			logger.Info("Poll cycle interrupted", "remaining", len(records)-i)
			break
		}

		rec := &records[i]
		if !rec.IsNewerThan(cursor) {
			result.Skipped++
			continue
		}

		uc.notifier.Deliver(ctx, rec)
		if ctx.Err() != nil {
			// Sends after cancellation fail; leave the record for the next cycle
			logger.Info("Poll cycle interrupted during delivery", "sms_id", rec.ID, "remaining", len(records)-i)
			break
		}
		cursor = rec.ID

		uc.mu.Lock()
		uc.cursor = cursor
		uc.delivered++
		uc.mu.Unlock()
		result.Delivered++
	}

	result.Cursor = cursor
	result.Duration = uc.clock.Since(start)
	if result.Delivered > 0 {
		logger.Info("Poll cycle finished",
			"fetched", result.Fetched,
			"delivered", result.Delivered,
			"skipped", result.Skipped,
			"cursor", result.Cursor)
	} else {
		logger.Debug("No new messages", "fetched", result.Fetched, "cursor", result.Cursor)
	}
	return result, nil
}

// Cursor returns the highest record id delivered so far
func (uc *PollUsecase) Cursor() int64 {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.cursor
}

// PollCount returns the number of cycles executed
func (uc *PollUsecase) PollCount() int64 {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.pollCount
}

// Delivered returns the number of records delivered
func (uc *PollUsecase) Delivered() int64 {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.delivered
}

// InFlight reports whether a cycle is running right now
func (uc *PollUsecase) InFlight() bool {
	return uc.inFlight.Load()
}

func logFetchError(logger *slog.Logger, err error) {
	var statusErr *domain.SourceStatusError
	var transportErr *domain.SourceTransportError

	switch {
	case errors.As(err, &statusErr) && statusErr.IsRateLimited():
		logger.Warn("Rate limited by source, skipping batch", "status", statusErr.Code)
	case errors.As(err, &statusErr):
		logger.Error("Source returned error status, skipping batch", "status", statusErr.Code, "status_text", statusErr.StatusText)
	case errors.As(err, &transportErr):
		logger.Error("Source request failed, skipping batch", "error", transportErr.Message)
	case errors.Is(err, domain.ErrUnexpectedShape):
		logger.Warn("Unexpected response format, skipping batch", "error", err)
	case errors.Is(err, context.Canceled):
		logger.Debug("Fetch cancelled")
	default:
		logger.Error("Fetch failed, skipping batch", "error", err)
	}
}
