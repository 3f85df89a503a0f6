// Package rpc correlates out-of-band requests and responses exchanged with
// the companion module over a shared broadcast channel.
//
// Several clients of the remote may be listening on the channel. The first
// response carrying a request's id resolves the call; later ones are
// dropped. A call that timed out may still have been executed by a
// responder.
package rpc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/conneroisu/foundry/pkg/foundry/ports"
	"github.com/conneroisu/foundry/pkg/foundryerrs"
)

const (
	// DefaultBridgeID names the companion module's channel.
	DefaultBridgeID = "foundry-mcp-bridge"

	defaultCallTimeout = 15 * time.Second
	defaultPingTimeout = 5 * time.Second
)

// Config configures the correlator.
type Config struct {
	// BridgeID selects the module.<BridgeID> channel.
	BridgeID string
	// CallTimeout is used when Call gets no timeout.
	CallTimeout time.Duration
	// PingTimeout is used when Ping gets no timeout.
	PingTimeout time.Duration
	// NewID generates correlation ids.
	NewID func() string
	// Logger is used for structured logging.
	Logger zerolog.Logger
}

// WithDefaults returns a copy of cfg with zero fields filled in.
func (cfg Config) WithDefaults() Config {
	if cfg.BridgeID == "" {
		cfg.BridgeID = DefaultBridgeID
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = defaultPingTimeout
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	return cfg
}

type callResult struct {
	resp *Response
	err  error
}

type pendingCall struct {
	method string
	done   chan callResult
}

// Correlator issues calls and matches responses by request id.
type Correlator struct {
	cfg    Config
	conn   ports.Connection
	event  string
	logger zerolog.Logger

	mu      sync.Mutex
	pending map[string]*pendingCall
	detach  func()
}

// NewCorrelator creates a correlator on conn.
func NewCorrelator(cfg Config, conn ports.Connection) *Correlator {
	cfg = cfg.WithDefaults()

	return &Correlator{
		cfg:     cfg,
		conn:    conn,
		event:   "module." + cfg.BridgeID,
		logger:  cfg.Logger.With().Str("component", "rpc").Logger(),
		pending: make(map[string]*pendingCall),
	}
}

// Event returns the channel event name the correlator uses.
func (c *Correlator) Event() string {
	return c.event
}

// Call invokes method on a responder and waits for the first response.
// A zero timeout uses the configured default.
func (c *Correlator) Call(
	ctx context.Context,
	method string,
	args []any,
	timeout time.Duration,
) (*Response, error) {
	if method == "" {
		return nil, foundryerrs.NewValidationError(
			foundryerrs.ErrCodeMissingField,
			"method is required",
			"method",
			nil,
		)
	}
	if timeout <= 0 {
		timeout = c.cfg.CallTimeout
	}
	if args == nil {
		args = []any{}
	}

	if err := c.conn.EnsureConnected(ctx); err != nil {
		return nil, err
	}

	id := c.cfg.NewID()
	call := &pendingCall{method: method, done: make(chan callResult, 1)}

	c.mu.Lock()
	c.attachLocked()
	c.pending[id] = call
	c.mu.Unlock()

	logger := c.logger.With().Str("method", method).Str("request_id", id).Logger()
	logger.Debug().Msg("rpc call")

	err := c.conn.Emit(ctx, c.event, request{
		Type:      typeRequest,
		RequestID: id,
		Method:    method,
		Args:      args,
	})
	if err != nil {
		c.remove(id)

		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-call.done:
		return res.resp, res.err
	case <-timer.C:
		c.remove(id)
		logger.Warn().Dur("timeout", timeout).Msg("rpc call timed out")

		return nil, foundryerrs.RPCTimeout(method, timeout).WithRequestID(id)
	case <-ctx.Done():
		c.remove(id)

		return nil, ctx.Err()
	}
}

// attachLocked installs the shared response listener once.
func (c *Correlator) attachLocked() {
	if c.detach == nil {
		c.detach = c.conn.On(c.event, c.onMessage)
	}
}

func (c *Correlator) onMessage(args []json.RawMessage) {
	msg, ok := decodeInbound(args)
	if !ok || msg.Type != typeResponse {
		return
	}

	c.mu.Lock()
	call, found := c.pending[msg.RequestID]
	delete(c.pending, msg.RequestID)
	c.mu.Unlock()

	if !found {
		c.logger.Debug().Str("request_id", msg.RequestID).Msg("dropping unmatched response")

		return
	}

	call.done <- callResult{resp: &Response{
		Success:  msg.Success,
		Result:   msg.Result,
		Error:    msg.Error,
		Duration: msg.Duration,
	}}
}

func (c *Correlator) remove(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Ping probes for a live responder. It never fails; every failure reports
// Alive false. A zero timeout uses the configured default.
func (c *Correlator) Ping(ctx context.Context, timeout time.Duration) PingResult {
	if timeout <= 0 {
		timeout = c.cfg.PingTimeout
	}

	if err := c.conn.EnsureConnected(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("ping: not connected")

		return PingResult{}
	}

	id := c.cfg.NewID()
	pong := make(chan PingResult, 1)
	off := c.conn.On(c.event, func(args []json.RawMessage) {
		msg, ok := decodeInbound(args)
		if !ok || msg.Type != typePong || msg.RequestID != id {
			return
		}
		select {
		case pong <- PingResult{Alive: true, ModuleVersion: msg.ModuleVersion, UserID: msg.UserID}:
		default:
		}
	})
	defer off()

	if err := c.conn.Emit(ctx, c.event, ping{Type: typePing, RequestID: id}); err != nil {
		c.logger.Debug().Err(err).Msg("ping: emit failed")

		return PingResult{}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-pong:
		return res
	case <-timer.C:
		return PingResult{}
	case <-ctx.Done():
		return PingResult{}
	}
}

// Pending returns the number of calls awaiting a response.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.pending)
}

// Destroy fails every pending call with a shutdown error and detaches the
// shared listener. It is safe to call more than once. A later Call
// attaches a new listener.
func (c *Correlator) Destroy() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]*pendingCall)
	detach := c.detach
	c.detach = nil
	c.mu.Unlock()

	for id, call := range pending {
		call.done <- callResult{err: foundryerrs.RPCShutdown(call.method).WithRequestID(id)}
	}
	if detach != nil {
		detach()
	}

	if len(pending) > 0 {
		c.logger.Info().Int("pending", len(pending)).Msg("correlator destroyed")
	}
}
