package domain

// SessionState is the lifecycle state of the authenticated source session
type SessionState string

const (
	SessionInactive     SessionState = "inactive"
	SessionActive       SessionState = "active"
	SessionTearingDown  SessionState = "tearing_down"
	SessionReconnecting SessionState = "reconnecting"
	SessionFailed       SessionState = "failed"
)

// String implements fmt.Stringer
func (s SessionState) String() string {
	return string(s)
}
