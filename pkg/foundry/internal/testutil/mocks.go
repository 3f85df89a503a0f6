package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/conneroisu/foundry/pkg/foundry/ports"
	"github.com/conneroisu/foundry/pkg/foundryerrs"
)

// MockRemoteAPI implements ports.RemoteAPI for testing.
type MockRemoteAPI struct {
	StatusFunc func(context.Context) (*ports.StatusInfo, error)
	JoinFunc   func(ctx context.Context, userID, password string) (string, error)
	UploadFunc func(ctx context.Context, token string, upload ports.Upload) (*ports.UploadResult, error)

	StatusCalls atomic.Int32
	JoinCalls   atomic.Int32
	UploadCalls atomic.Int32
}

// Verify interface compliance at compile time.
var _ ports.RemoteAPI = (*MockRemoteAPI)(nil)

// Status calls the mock function. The default reports an active world.
func (m *MockRemoteAPI) Status(ctx context.Context) (*ports.StatusInfo, error) {
	m.StatusCalls.Add(1)
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx)
	}

	return &ports.StatusInfo{Active: true, Version: "12.331", World: "test-world"}, nil
}

// Join calls the mock function. The default returns a fixed token.
func (m *MockRemoteAPI) Join(ctx context.Context, userID, password string) (string, error) {
	m.JoinCalls.Add(1)
	if m.JoinFunc != nil {
		return m.JoinFunc(ctx, userID, password)
	}

	return "token-1", nil
}

// Upload calls the mock function.
func (m *MockRemoteAPI) Upload(
	ctx context.Context,
	token string,
	upload ports.Upload,
) (*ports.UploadResult, error) {
	m.UploadCalls.Add(1)
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, token, upload)
	}

	return &ports.UploadResult{Path: upload.TargetPath + "/" + upload.FileName}, nil
}

// MockConnection implements ports.Connection for testing. Listeners
// registered with On receive events passed to Deliver.
type MockConnection struct {
	EnsureConnectedFunc func(context.Context) error
	ReconnectFunc       func(ctx context.Context, stale uint64) error
	EmitFunc            func(ctx context.Context, event string, args []any) error
	EmitWithAckFunc     func(ctx context.Context, event string, args []any) ([]json.RawMessage, error)
	SessionTokenFunc    func(context.Context) (string, error)

	EnsureCalls    atomic.Int32
	ReconnectCalls atomic.Int32

	mu        sync.Mutex
	nextID    int
	listeners map[string]map[int]ports.EventHandler
	emitted   []Emission
}

// Verify interface compliance at compile time.
var _ ports.Connection = (*MockConnection)(nil)

// EnsureConnected calls the mock function.
func (m *MockConnection) EnsureConnected(ctx context.Context) error {
	m.EnsureCalls.Add(1)
	if m.EnsureConnectedFunc != nil {
		return m.EnsureConnectedFunc(ctx)
	}

	return nil
}

// Generation returns the number of reconnects so far.
func (m *MockConnection) Generation() uint64 {
	return uint64(m.ReconnectCalls.Load())
}

// Reconnect calls the mock function.
func (m *MockConnection) Reconnect(ctx context.Context, stale uint64) error {
	m.ReconnectCalls.Add(1)
	if m.ReconnectFunc != nil {
		return m.ReconnectFunc(ctx, stale)
	}

	return nil
}

// Emit records the emission and calls the mock function.
func (m *MockConnection) Emit(ctx context.Context, event string, args ...any) error {
	m.record(event, args, false)
	if m.EmitFunc != nil {
		return m.EmitFunc(ctx, event, args)
	}

	return nil
}

// EmitWithAck records the emission and calls the mock function.
func (m *MockConnection) EmitWithAck(
	ctx context.Context,
	event string,
	args ...any,
) ([]json.RawMessage, error) {
	m.record(event, args, true)
	if m.EmitWithAckFunc != nil {
		return m.EmitWithAckFunc(ctx, event, args)
	}

	return nil, nil
}

func (m *MockConnection) record(event string, args []any, ack bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.emitted = append(m.emitted, Emission{Event: event, Args: args, Ack: ack})
}

// Emitted returns every recorded emission.
func (m *MockConnection) Emitted() []Emission {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Emission(nil), m.emitted...)
}

// On registers a listener.
func (m *MockConnection) On(event string, handler ports.EventHandler) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listeners == nil {
		m.listeners = make(map[string]map[int]ports.EventHandler)
	}
	if m.listeners[event] == nil {
		m.listeners[event] = make(map[int]ports.EventHandler)
	}
	m.nextID++
	id := m.nextID
	m.listeners[event][id] = handler

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		delete(m.listeners[event], id)
	}
}

// Listeners returns how many listeners are attached to event.
func (m *MockConnection) Listeners(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.listeners[event])
}

// Deliver simulates an inbound event to every attached listener.
func (m *MockConnection) Deliver(event string, args ...any) {
	m.mu.Lock()
	handlers := make([]ports.EventHandler, 0, len(m.listeners[event]))
	for _, h := range m.listeners[event] {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	raw := RawArgs(args...)
	for _, h := range handlers {
		h(raw)
	}
}

// SessionToken calls the mock function.
func (m *MockConnection) SessionToken(ctx context.Context) (string, error) {
	if m.SessionTokenFunc != nil {
		return m.SessionTokenFunc(ctx)
	}

	return "token-1", nil
}

// Ack builds the callback arguments of a single-object reply.
func Ack(reply any) []json.RawMessage {
	return RawArgs(reply)
}

// TimeoutErr is the transport timeout a channel reports for event.
func TimeoutErr(event string) error {
	return foundryerrs.Timeout(event, 0)
}
