package domain

import "time"

// Status is a point-in-time snapshot of the relay, shared by /status and the liveness endpoint
type Status struct {
	Running             bool
	LastSeenID          int64
	PollInterval        time.Duration
	Session             SessionState
	SessionActive       bool
	Destinations        int
	PollCount           int64
	Delivered           int64
	StartedAt           time.Time
	LastSuccessfulFetch time.Time
	Now                 time.Time
}

// Uptime returns how long the relay has been running
func (s *Status) Uptime() time.Duration {
	return s.Now.Sub(s.StartedAt)
}

// SinceLastSuccess returns the time elapsed since the last successful fetch
func (s *Status) SinceLastSuccess() time.Duration {
	return s.Now.Sub(s.LastSuccessfulFetch)
}

// IsHealthy reports whether a successful fetch happened within window
func (s *Status) IsHealthy(window time.Duration) bool {
	return s.SinceLastSuccess() <= window
}
