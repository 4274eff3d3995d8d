package domain

import "testing"

func TestSessionState_String(t *testing.T) {
	states := map[SessionState]string{
		SessionInactive:     "inactive",
		SessionActive:       "active",
		SessionTearingDown:  "tearing_down",
		SessionReconnecting: "reconnecting",
		SessionFailed:       "failed",
	}

	for state, want := range states {
		if state.String() != want {
			t.Errorf("Expected %q, got %q", want, state.String())
		}
	}
}
