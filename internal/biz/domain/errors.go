package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSessionLost means the browser session itself failed and must be rebuilt
	ErrSessionLost = errors.New("source session lost")

	// ErrUnexpectedShape means the source answered 2xx with something other than a JSON array
	ErrUnexpectedShape = errors.New("unexpected response format")

	// ErrReconnectExhausted means every reconnect attempt of the current cycle failed
	ErrReconnectExhausted = errors.New("session reconnect attempts exhausted")

	// ErrDuplicateInstance means another process is consuming the same bot's updates
	ErrDuplicateInstance = errors.New("another instance is polling the same bot")
)

// SourceStatusError is returned when the source API answers with a non-2xx status
type SourceStatusError struct {
	Code       int
	StatusText string
}

func (e *SourceStatusError) Error() string {
	if e.StatusText != "" {
		return fmt.Sprintf("source returned status %d (%s)", e.Code, e.StatusText)
	}
	return fmt.Sprintf("source returned status %d", e.Code)
}

// IsRateLimited reports whether the source throttled the request
func (e *SourceStatusError) IsRateLimited() bool {
	return e.Code == http.StatusTooManyRequests
}

// SourceTransportError is returned when the request never produced an HTTP response
type SourceTransportError struct {
	Message string
}

func (e *SourceTransportError) Error() string {
	return "fetch error: " + e.Message
}
