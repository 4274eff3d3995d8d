package repo

import (
	"context"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/domain"
)

// SourceRepo is the authenticated fetch agent for the SMS gateway
// Implementations own one session (browser or plain HTTP) and must be safe for concurrent calls
type SourceRepo interface {
	// Initialize establishes a fresh session, replacing any existing one
	Initialize(ctx context.Context) error

	// Fetch returns the records newer than cursor (cursor 0 means no filter)
	// Errors are typed: *domain.SourceStatusError, *domain.SourceTransportError,
	// domain.ErrUnexpectedShape, or an error wrapping domain.ErrSessionLost
	Fetch(ctx context.Context, cursor int64) ([]domain.SMSRecord, error)

	// IsResponsive runs a trivial probe inside the session
	IsResponsive(ctx context.Context) bool

	// Teardown closes the session and clears its handles, ignoring errors
	Teardown()

	// Active reports whether a session handle currently exists
	Active() bool
}
