package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/conneroisu/foundry/pkg/foundry/ports"
	"github.com/conneroisu/foundry/pkg/foundryerrs"
)

type ackResult struct {
	args []json.RawMessage
	err  error
}

// channel implements ports.Channel over one websocket at a time. The
// websocket is replaced when the channel recovers from a transport drop.
type channel struct {
	cfg      Config
	endpoint string
	token    string
	handlers ports.ChannelHandlers
	logger   zerolog.Logger

	// gorilla/websocket allows one concurrent writer.
	writeMu sync.Mutex

	mu           sync.Mutex
	ws           *websocket.Conn
	connected    bool
	closed       bool
	acks         map[int]chan ackResult
	nextAck      int
	pingInterval time.Duration
	pingTimeout  time.Duration
	done         chan struct{}
}

// Verify interface compliance at compile time.
var _ ports.Channel = (*channel)(nil)

func newChannel(
	cfg Config,
	endpoint string,
	token string,
	handlers ports.ChannelHandlers,
) *channel {
	return &channel{
		cfg:          cfg,
		endpoint:     endpoint,
		token:        token,
		handlers:     handlers,
		logger:       cfg.Logger.With().Str("component", "socketio").Logger(),
		acks:         make(map[int]chan ackResult),
		pingInterval: defaultPingInterval,
		pingTimeout:  defaultPingTimeout,
		done:         make(chan struct{}),
	}
}

// open performs the first handshake and starts the read loop.
func (c *channel) open(ctx context.Context) error {
	ws, early, err := c.handshake(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.ws = ws
	c.connected = true
	c.mu.Unlock()

	c.replay(ws, early)
	go c.readLoop(ws)

	return nil
}

// handshake dials the websocket and joins the default namespace. Frames
// that arrive before the namespace is confirmed are returned so the caller
// can dispatch them once its own state is in place.
func (c *channel) handshake(ctx context.Context) (*websocket.Conn, [][]byte, error) {
	hctx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	ws, response, err := c.cfg.Dialer.DialContext(hctx, c.endpoint, sessionHeader(c.token))
	if err != nil {
		if response != nil {
			err = fmt.Errorf("%w (status %d)", err, response.StatusCode)
		}

		return nil, nil, foundryerrs.NewTransportError(
			foundryerrs.ErrCodeNotConnected,
			"websocket dial failed",
			err,
		)
	}

	success := false
	defer func() {
		if !success {
			_ = ws.Close()
		}
	}()

	if deadline, ok := hctx.Deadline(); ok {
		_ = ws.SetReadDeadline(deadline)
	}

	if err := c.readOpen(ws); err != nil {
		return nil, nil, err
	}

	if err := c.writeFrame(ws, []byte{engineMessage, packetConnect}); err != nil {
		return nil, nil, foundryerrs.NewTransportError(
			foundryerrs.ErrCodeWriteFailed,
			"namespace connect failed",
			err,
		)
	}

	var early [][]byte
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return nil, nil, foundryerrs.NewTransportError(
				foundryerrs.ErrCodeNotConnected,
				"namespace connect not confirmed",
				err,
			)
		}
		if len(data) == 0 {
			continue
		}

		switch data[0] {
		case enginePing:
			if err := c.writeFrame(ws, []byte{enginePong}); err != nil {
				return nil, nil, foundryerrs.NewTransportError(
					foundryerrs.ErrCodeWriteFailed,
					"pong failed during handshake",
					err,
				)
			}
		case engineMessage:
			p, err := decodePacket(data[1:])
			if err != nil {
				c.logger.Debug().Err(err).Msg("dropping malformed frame")

				continue
			}
			switch p.kind {
			case packetConnect:
				_ = ws.SetReadDeadline(time.Time{})
				success = true

				return ws, early, nil
			case packetConnectError:
				var payload connectErrorPayload
				_ = json.Unmarshal(p.payload, &payload)

				return nil, nil, foundryerrs.NewHandshakeError(
					"channel connect refused: "+payload.Message,
					nil,
				)
			default:
				early = append(early, data)
			}
		case engineClose:
			return nil, nil, foundryerrs.ConnectionClosed("connect", nil)
		}
	}
}

func (c *channel) readOpen(ws *websocket.Conn) error {
	_, data, err := ws.ReadMessage()
	if err != nil {
		return foundryerrs.NewTransportError(
			foundryerrs.ErrCodeNotConnected,
			"engine open not received",
			err,
		)
	}
	if len(data) == 0 || data[0] != engineOpen {
		return foundryerrs.NewTransportError(
			foundryerrs.ErrCodeNotConnected,
			fmt.Sprintf("unexpected first frame %q", truncate(data)),
			nil,
		)
	}

	var open openPayload
	if err := json.Unmarshal(data[1:], &open); err != nil {
		return foundryerrs.NewTransportError(
			foundryerrs.ErrCodeNotConnected,
			"malformed engine open",
			err,
		)
	}

	c.mu.Lock()
	if open.PingInterval > 0 {
		c.pingInterval = time.Duration(open.PingInterval) * time.Millisecond
	}
	if open.PingTimeout > 0 {
		c.pingTimeout = time.Duration(open.PingTimeout) * time.Millisecond
	}
	c.mu.Unlock()

	c.logger.Debug().Str("sid", open.SID).Msg("engine open")

	return nil
}

func (c *channel) replay(ws *websocket.Conn, frames [][]byte) {
	for _, frame := range frames {
		c.handleFrame(ws, frame)
	}
}

func (c *channel) readLoop(ws *websocket.Conn) {
	for {
		c.mu.Lock()
		idle := c.pingInterval + c.pingTimeout
		c.mu.Unlock()

		_ = ws.SetReadDeadline(time.Now().Add(idle))
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.handleDrop(ws, err)

			return
		}

		if stop := c.handleFrame(ws, data); stop {
			return
		}
	}
}

// handleFrame processes one inbound frame and reports whether the read
// loop must stop.
func (c *channel) handleFrame(ws *websocket.Conn, data []byte) bool {
	if len(data) == 0 {
		return false
	}

	switch data[0] {
	case enginePing:
		if err := c.writeFrame(ws, []byte{enginePong}); err != nil {
			c.logger.Debug().Err(err).Msg("pong failed")
		}
	case engineClose:
		c.handleDrop(ws, errors.New("socketio: engine closed by server"))

		return true
	case engineNoop, enginePong:
	case engineMessage:
		p, err := decodePacket(data[1:])
		if err != nil {
			c.logger.Debug().Err(err).Msg("dropping malformed packet")

			return false
		}

		return c.handlePacket(ws, p)
	default:
		c.logger.Debug().Str("frame", truncate(data)).Msg("ignoring frame")
	}

	return false
}

func (c *channel) handlePacket(ws *websocket.Conn, p packet) bool {
	switch p.kind {
	case packetEvent:
		name, args, err := eventArgs(p.payload)
		if err != nil {
			c.logger.Debug().Err(err).Msg("dropping malformed event")

			return false
		}
		if p.hasAck {
			if frame, err := encodeAck(p.ackID, nil); err == nil {
				_ = c.writeFrame(ws, frame)
			}
		}
		if c.handlers.OnEvent != nil {
			c.handlers.OnEvent(name, args)
		}
	case packetAck:
		c.resolveAck(p)
	case packetDisconnect:
		c.handleKick(ws)

		return true
	case packetConnectError:
		c.logger.Warn().RawJSON("payload", nonEmpty(p.payload)).Msg("connect error")
	case packetBinaryEvent, packetBinaryAck:
		c.logger.Debug().Msg("binary packets are not supported")
	}

	return false
}

func (c *channel) resolveAck(p packet) {
	if !p.hasAck {
		return
	}

	c.mu.Lock()
	ch, ok := c.acks[p.ackID]
	delete(c.acks, p.ackID)
	c.mu.Unlock()

	if !ok {
		return
	}

	args, err := ackArgs(p.payload)
	if err != nil {
		ch <- ackResult{err: foundryerrs.NewMalformedReplyError("ack", err)}

		return
	}
	ch <- ackResult{args: args}
}

// takeAcks removes every pending ack. Callers must hold c.mu.
func (c *channel) takeAcks() map[int]chan ackResult {
	pending := c.acks
	c.acks = make(map[int]chan ackResult)

	return pending
}

func failAcks(pending map[int]chan ackResult, err error) {
	for _, ch := range pending {
		ch <- ackResult{err: err}
	}
}

func (c *channel) handleDrop(ws *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.ws != ws || !c.connected {
		c.mu.Unlock()

		return
	}
	c.connected = false
	closed := c.closed
	pending := c.takeAcks()
	c.mu.Unlock()

	_ = ws.Close()
	failAcks(pending, foundryerrs.ConnectionClosed("ack", cause))

	if closed {
		return
	}

	c.logger.Info().Err(cause).Msg("transport dropped")
	if c.handlers.OnDisconnect != nil {
		c.handlers.OnDisconnect(ports.DisconnectTransport, cause)
	}

	if !c.cfg.DisableReconnect {
		c.reconnect()
	}
}

func (c *channel) handleKick(ws *websocket.Conn) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()

		return
	}
	c.closed = true
	c.connected = false
	pending := c.takeAcks()
	close(c.done)
	c.mu.Unlock()

	_ = ws.Close()
	failAcks(pending, foundryerrs.ConnectionClosed("ack", nil))

	c.logger.Warn().Msg("disconnected by server")
	if c.handlers.OnDisconnect != nil {
		c.handlers.OnDisconnect(ports.DisconnectServerKick, nil)
	}
}

// reconnect redials with exponential backoff. It runs on the goroutine of
// the read loop that observed the drop.
func (c *channel) reconnect() {
	delay := c.cfg.ReconnectDelay

	for attempt := 1; attempt <= c.cfg.ReconnectAttempts; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-c.done:
			timer.Stop()

			return
		case <-timer.C:
		}
		delay = min(delay*2, c.cfg.ReconnectDelayMax)

		ws, early, err := c.handshake(context.Background())
		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")
			if foundryerrs.IsHandshakeError(err) {
				break
			}

			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = ws.Close()

			return
		}
		c.ws = ws
		c.connected = true
		c.mu.Unlock()

		c.logger.Info().Int("attempt", attempt).Msg("reconnected")
		if c.handlers.OnReconnect != nil {
			c.handlers.OnReconnect(attempt)
		}
		c.replay(ws, early)
		go c.readLoop(ws)

		return
	}

	c.logger.Warn().Msg("giving up on reconnect")
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	c.mu.Unlock()
}

func (c *channel) writeFrame(ws *websocket.Conn, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))

	return ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *channel) current(event string) (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.ws == nil {
		return nil, foundryerrs.NotConnected(event)
	}

	return c.ws, nil
}

// Emit implements ports.Channel.
func (c *channel) Emit(_ context.Context, event string, args ...any) error {
	frame, err := encodeEvent(event, -1, args)
	if err != nil {
		return err
	}

	ws, err := c.current(event)
	if err != nil {
		return err
	}

	if err := c.writeFrame(ws, frame); err != nil {
		return foundryerrs.NewTransportError(
			foundryerrs.ErrCodeWriteFailed,
			"write failed",
			err,
		).WithEvent(event)
	}

	return nil
}

// EmitWithAck implements ports.Channel.
func (c *channel) EmitWithAck(
	ctx context.Context,
	event string,
	args ...any,
) ([]json.RawMessage, error) {
	resCh := make(chan ackResult, 1)

	c.mu.Lock()
	if !c.connected || c.ws == nil {
		c.mu.Unlock()

		return nil, foundryerrs.NotConnected(event)
	}
	id := c.nextAck
	c.nextAck++
	c.acks[id] = resCh
	ws := c.ws
	c.mu.Unlock()

	frame, err := encodeEvent(event, id, args)
	if err != nil {
		c.removeAck(id)

		return nil, err
	}

	start := time.Now()
	if err := c.writeFrame(ws, frame); err != nil {
		c.removeAck(id)

		return nil, foundryerrs.NewTransportError(
			foundryerrs.ErrCodeWriteFailed,
			"write failed",
			err,
		).WithEvent(event)
	}

	select {
	case res := <-resCh:
		return res.args, res.err
	case <-ctx.Done():
		c.removeAck(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, foundryerrs.Timeout(
				event,
				time.Since(start).Round(time.Millisecond),
			)
		}

		return nil, ctx.Err()
	}
}

func (c *channel) removeAck(id int) {
	c.mu.Lock()
	delete(c.acks, id)
	c.mu.Unlock()
}

// Connected implements ports.Channel.
func (c *channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connected && !c.closed
}

// Close implements ports.Channel.
func (c *channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()

		return nil
	}
	c.closed = true
	wasConnected := c.connected
	c.connected = false
	ws := c.ws
	pending := c.takeAcks()
	close(c.done)
	c.mu.Unlock()

	failAcks(pending, foundryerrs.ConnectionClosed("ack", nil))

	if ws == nil {
		return nil
	}
	if wasConnected {
		_ = c.writeFrame(ws, []byte{engineMessage, packetDisconnect})
	}

	return ws.Close()
}

func truncate(data []byte) string {
	const limit = 64
	if len(data) > limit {
		return string(data[:limit]) + "..."
	}

	return string(data)
}

func nonEmpty(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}

	return raw
}
