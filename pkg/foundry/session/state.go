package session

import (
	"github.com/conneroisu/foundry/pkg/foundry/ports"
)

// State is the connection lifecycle state.
type State string

// Lifecycle states, in the order one successful attempt visits them.
const (
	StateDisconnected   State = "disconnected"
	StateAuthenticating State = "authenticating"
	StateConnecting     State = "connecting"
	StateConnected      State = "connected"
	StateReady          State = "ready"
)

// Status is a point-in-time snapshot of the manager.
type Status struct {
	State     State
	UserID    string
	World     *ports.StatusInfo
	Connected bool
}

// confirmation is the payload of the remote's session event.
type confirmation struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}
