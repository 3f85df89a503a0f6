package ports

import (
	"context"
	"encoding/json"
)

// EventHandler receives the arguments of one inbound event.
type EventHandler func(args []json.RawMessage)

// Connection is what the gateway and the RPC correlator need from the
// session layer. They never touch a Channel directly.
type Connection interface {
	// EnsureConnected returns once the session is ready.
	EnsureConnected(ctx context.Context) error

	// Generation identifies the current link. Every connection attempt
	// gets a new, larger generation.
	Generation() uint64

	// Reconnect replaces the link identified by stale, or any link that
	// has seen a transport fault, and connects from scratch. When the
	// link was already replaced it only waits for the current session.
	Reconnect(ctx context.Context, stale uint64) error

	// Emit sends an event without a reply.
	Emit(ctx context.Context, event string, args ...any) error

	// EmitWithAck sends an event and waits for its callback reply.
	EmitWithAck(
		ctx context.Context,
		event string,
		args ...any,
	) ([]json.RawMessage, error)

	// On attaches a listener for a named event. The returned function
	// detaches it and is safe to call more than once.
	On(event string, handler EventHandler) (off func())

	// SessionToken returns the current session token, connecting first
	// if needed.
	SessionToken(ctx context.Context) (string, error)
}
