// Package testutil provides test utilities and fakes.
package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/conneroisu/foundry/pkg/foundry/ports"
	"github.com/conneroisu/foundry/pkg/foundryerrs"
)

// Emission records one outbound event.
type Emission struct {
	Event string
	Args  []any
	Ack   bool
}

// FakeChannel implements ports.Channel in memory. Inbound traffic and
// lifecycle callbacks are driven by the test.
type FakeChannel struct {
	// EmitWithAckFunc answers ack-requesting emits. When nil the call
	// returns an empty ack.
	EmitWithAckFunc func(ctx context.Context, event string, args []any) ([]json.RawMessage, error)
	// EmitFunc observes fire-and-forget emits.
	EmitFunc func(ctx context.Context, event string, args []any) error

	mu        sync.Mutex
	handlers  ports.ChannelHandlers
	connected bool
	closed    bool
	emitted   []Emission
}

// Verify interface compliance at compile time.
var _ ports.Channel = (*FakeChannel)(nil)

// NewFakeChannel creates a connected fake channel.
func NewFakeChannel(handlers ports.ChannelHandlers) *FakeChannel {
	return &FakeChannel{handlers: handlers, connected: true}
}

// Emit implements ports.Channel.
func (f *FakeChannel) Emit(ctx context.Context, event string, args ...any) error {
	if err := f.record(event, args, false); err != nil {
		return err
	}
	if f.EmitFunc != nil {
		return f.EmitFunc(ctx, event, args)
	}

	return nil
}

// EmitWithAck implements ports.Channel.
func (f *FakeChannel) EmitWithAck(
	ctx context.Context,
	event string,
	args ...any,
) ([]json.RawMessage, error) {
	if err := f.record(event, args, true); err != nil {
		return nil, err
	}
	if f.EmitWithAckFunc != nil {
		return f.EmitWithAckFunc(ctx, event, args)
	}

	return nil, nil
}

func (f *FakeChannel) record(event string, args []any, ack bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return foundryerrs.NotConnected(event)
	}
	f.emitted = append(f.emitted, Emission{Event: event, Args: args, Ack: ack})

	return nil
}

// Connected implements ports.Channel.
func (f *FakeChannel) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.connected
}

// Close implements ports.Channel.
func (f *FakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connected = false
	f.closed = true

	return nil
}

// Closed reports whether Close was called.
func (f *FakeChannel) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closed
}

// Emitted returns every recorded emission.
func (f *FakeChannel) Emitted() []Emission {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]Emission(nil), f.emitted...)
}

// Deliver simulates an inbound event. Each argument is JSON encoded.
func (f *FakeChannel) Deliver(event string, args ...any) {
	raw := RawArgs(args...)
	if f.handlers.OnEvent != nil {
		f.handlers.OnEvent(event, raw)
	}
}

// Kick simulates a server-initiated disconnect.
func (f *FakeChannel) Kick() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()

	if f.handlers.OnDisconnect != nil {
		f.handlers.OnDisconnect(ports.DisconnectServerKick, nil)
	}
}

// Drop simulates a transport drop that the channel will recover from.
func (f *FakeChannel) Drop(err error) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()

	if f.handlers.OnDisconnect != nil {
		f.handlers.OnDisconnect(ports.DisconnectTransport, err)
	}
}

// Recover simulates a successful automatic reconnection.
func (f *FakeChannel) Recover(attempt int) {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()

	if f.handlers.OnReconnect != nil {
		f.handlers.OnReconnect(attempt)
	}
}

// RawArgs JSON encodes each argument.
func RawArgs(args ...any) []json.RawMessage {
	raw := make([]json.RawMessage, 0, len(args))
	for _, arg := range args {
		data, err := json.Marshal(arg)
		if err != nil {
			panic(err)
		}
		raw = append(raw, data)
	}

	return raw
}
