// Package ports defines interfaces that the domain needs from infrastructure.
// These are "ports" in hexagonal architecture - contracts defined by
// domain needs, not by external systems.
package ports

import (
	"context"
	"encoding/json"
)

// DisconnectReason classifies why a channel went down.
type DisconnectReason string

const (
	// DisconnectServerKick is a disconnect initiated by the remote server.
	// The session is no longer valid and the channel does not reconnect.
	DisconnectServerKick DisconnectReason = "io server disconnect"
	// DisconnectClient is a disconnect requested locally via Close.
	DisconnectClient DisconnectReason = "io client disconnect"
	// DisconnectTransport is a dropped connection. The channel attempts
	// to reconnect on its own.
	DisconnectTransport DisconnectReason = "transport close"
)

// ChannelHandlers receives inbound traffic and lifecycle callbacks.
// Callbacks run on the channel's read goroutine and must not block.
type ChannelHandlers struct {
	// OnEvent is called once per inbound event, in arrival order.
	OnEvent func(event string, args []json.RawMessage)
	// OnDisconnect is called when the channel goes down.
	OnDisconnect func(reason DisconnectReason, err error)
	// OnReconnect is called after the channel recovered from a transport
	// drop on its own.
	OnReconnect func(attempt int)
}

// DialRequest describes a channel to open.
type DialRequest struct {
	// BaseURL is the remote's HTTP(S) base URL.
	BaseURL string
	// SessionToken is presented as query parameter and cookie.
	SessionToken string
	// Handlers receives events. Handlers are installed before the
	// connection is opened so that no early event is lost.
	Handlers ChannelHandlers
}

// ChannelDialer opens duplex channels.
type ChannelDialer interface {
	// Dial opens a channel and returns once the remote accepted it.
	Dial(ctx context.Context, req DialRequest) (Channel, error)
}

// Channel is a live event-based duplex connection.
type Channel interface {
	// Emit sends an event without expecting a reply.
	Emit(ctx context.Context, event string, args ...any) error

	// EmitWithAck sends an event and waits for the single callback
	// reply. The wait is bounded by ctx.
	EmitWithAck(
		ctx context.Context,
		event string,
		args ...any,
	) ([]json.RawMessage, error)

	// Connected reports whether the channel is currently usable.
	Connected() bool

	// Close terminates the channel and stops reconnection.
	Close() error
}
