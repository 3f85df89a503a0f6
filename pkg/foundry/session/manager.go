// Package session owns the connection to the remote environment: status
// probe, login, and the duplex channel bound to the resulting session
// token. Other components reach the channel only through the Manager.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/conneroisu/foundry/pkg/foundry/ports"
	"github.com/conneroisu/foundry/pkg/foundryerrs"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultReconfirmTimeout = 5 * time.Second

	sessionEvent = "session"
	flightKey    = "connect"
)

// Config configures the session manager.
type Config struct {
	// BaseURL is the remote's HTTP(S) base URL.
	BaseURL string
	// UserID and Password are the static login credentials.
	UserID   string
	Password string
	// HandshakeTimeout bounds the wait for the session confirmation after
	// the channel opened.
	HandshakeTimeout time.Duration
	// ReconfirmTimeout bounds the wait for a fresh confirmation after the
	// channel recovered from a transport drop.
	ReconfirmTimeout time.Duration
	// OnStateChange observes every transition. It runs with the manager's
	// lock held and must not call back into the manager.
	OnStateChange func(from, to State)
	// Logger is used for structured logging.
	Logger zerolog.Logger
}

// WithDefaults returns a copy of cfg with zero fields filled in.
func (cfg Config) WithDefaults() Config {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.ReconfirmTimeout <= 0 {
		cfg.ReconfirmTimeout = defaultReconfirmTimeout
	}

	return cfg
}

// Dependencies groups the infrastructure the manager drives.
type Dependencies struct {
	API    ports.RemoteAPI
	Dialer ports.ChannelDialer
}

// link is one dialed channel together with its handshake plumbing.
// Callbacks from a link that is no longer current are ignored.
type link struct {
	gen      uint64
	channel  ports.Channel
	confirm  chan confirmation
	lost     chan error
	lostOnce sync.Once

	// faulted is set once an emit on channel failed at the transport
	// level. Guarded by Manager.mu.
	faulted bool
}

func newLink(gen uint64) *link {
	return &link{
		gen:     gen,
		confirm: make(chan confirmation, 1),
		lost:    make(chan error, 1),
	}
}

func (l *link) markLost(err error) {
	l.lostOnce.Do(func() { l.lost <- err })
}

// Manager implements ports.Connection.
type Manager struct {
	cfg    Config
	api    ports.RemoteAPI
	dialer ports.ChannelDialer
	logger zerolog.Logger
	flight singleflight.Group

	mu           sync.Mutex
	state        State
	token        string
	userID       string
	world        *ports.StatusInfo
	link         *link
	gen          uint64
	reconfirmGen uint64
	reconfirm    *time.Timer
	closed       bool
	listeners    map[string]map[uint64]ports.EventHandler
	nextListener uint64
}

// Verify interface compliance at compile time.
var _ ports.Connection = (*Manager)(nil)

// NewManager creates a disconnected session manager.
func NewManager(cfg Config, deps Dependencies) *Manager {
	cfg = cfg.WithDefaults()

	return &Manager{
		cfg:       cfg,
		api:       deps.API,
		dialer:    deps.Dialer,
		logger:    cfg.Logger.With().Str("component", "session").Logger(),
		state:     StateDisconnected,
		listeners: make(map[string]map[uint64]ports.EventHandler),
	}
}

// EnsureConnected returns once the session is ready. Concurrent callers
// share one connection attempt. Cancelling ctx abandons the wait but not
// the shared attempt.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	ready, err := m.isReady()
	if err != nil || ready {
		return err
	}

	resultCh := m.flight.DoChan(flightKey, func() (any, error) {
		return nil, m.connect(context.WithoutCancel(ctx))
	})

	select {
	case res := <-resultCh:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) isReady() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, errClosed()
	}

	return m.readyLocked(), nil
}

func (m *Manager) readyLocked() bool {
	return m.state == StateReady &&
		m.link != nil &&
		m.link.channel != nil &&
		m.link.channel.Connected()
}

func errClosed() error {
	return foundryerrs.NewClientError(
		foundryerrs.ErrCodeClientClosed,
		"session manager is closed",
		nil,
	)
}

// connect runs one full attempt: probe, login, dial, confirm.
func (m *Manager) connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()

		return errClosed()
	}
	if m.readyLocked() {
		m.mu.Unlock()

		return nil
	}
	stale := m.detachLocked()
	m.setStateLocked(StateDisconnected)
	m.gen++
	l := newLink(m.gen)
	m.link = l
	m.setStateLocked(StateAuthenticating)
	m.mu.Unlock()
	closeLink(stale)

	status, err := m.api.Status(ctx)
	if status != nil {
		m.mu.Lock()
		m.world = status
		m.mu.Unlock()
	}
	if err != nil {
		return m.fail(l, err)
	}

	token, err := m.api.Join(ctx, m.cfg.UserID, m.cfg.Password)
	if err != nil {
		return m.fail(l, err)
	}

	if err := m.advance(l, func() {
		m.token = token
		m.setStateLocked(StateConnecting)
	}); err != nil {
		return err
	}

	channel, err := m.dialer.Dial(ctx, ports.DialRequest{
		BaseURL:      m.cfg.BaseURL,
		SessionToken: token,
		Handlers:     m.handlers(l),
	})
	if err != nil {
		return m.fail(l, err)
	}

	if err := m.advance(l, func() {
		l.channel = channel
		m.setStateLocked(StateConnected)
	}); err != nil {
		_ = channel.Close()

		return err
	}

	confirmed, err := m.awaitConfirmation(l)
	if err != nil {
		return m.fail(l, err)
	}

	if err := m.advance(l, func() {
		m.userID = confirmed.UserID
		m.setStateLocked(StateReady)
	}); err != nil {
		return err
	}

	m.logger.Info().Str("user_id", confirmed.UserID).Msg("session ready")

	return nil
}

// advance applies fn under the lock if l is still the current link.
func (m *Manager) advance(l *link, fn func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.link != l {
		return foundryerrs.ConnectionClosed("connect", errors.New("connection attempt superseded"))
	}
	fn()

	return nil
}

func (m *Manager) awaitConfirmation(l *link) (confirmation, error) {
	timer := time.NewTimer(m.cfg.HandshakeTimeout)
	defer timer.Stop()

	select {
	case c := <-l.confirm:
		if c.UserID == "" {
			return c, foundryerrs.NewHandshakeError(
				"session rejected: confirmation carried no user id",
				nil,
			)
		}

		return c, nil
	case err := <-l.lost:
		return confirmation{}, foundryerrs.NewHandshakeError(
			"session rejected: channel closed before confirmation",
			err,
		)
	case <-timer.C:
		return confirmation{}, foundryerrs.NewHandshakeError(
			fmt.Sprintf("session rejected: no confirmation within %s", m.cfg.HandshakeTimeout),
			nil,
		)
	}
}

// fail resets the manager after a failed attempt, if l is still current.
func (m *Manager) fail(l *link, cause error) error {
	m.mu.Lock()
	if m.link == l {
		m.link = nil
		m.stopReconfirmLocked()
		m.token = ""
		m.userID = ""
		m.setStateLocked(StateDisconnected)
	}
	m.mu.Unlock()
	closeLink(l)

	m.logger.Warn().Err(cause).Msg("connection attempt failed")

	return cause
}

func (m *Manager) handlers(l *link) ports.ChannelHandlers {
	return ports.ChannelHandlers{
		OnEvent: func(event string, args []json.RawMessage) {
			if event == sessionEvent {
				m.onSession(l, args)
			}
			m.dispatch(event, args)
		},
		OnDisconnect: func(reason ports.DisconnectReason, err error) {
			m.onDisconnect(l, reason, err)
		},
		OnReconnect: func(attempt int) {
			m.onReconnect(l, attempt)
		},
	}
}

func (m *Manager) onSession(l *link, args []json.RawMessage) {
	var c confirmation
	if len(args) > 0 {
		if err := json.Unmarshal(args[0], &c); err != nil {
			m.logger.Debug().Err(err).Msg("malformed session event")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.link != l {
		return
	}

	if m.reconfirm != nil {
		m.stopReconfirmLocked()
		if c.UserID == "" {
			m.logger.Warn().Msg("session not reconfirmed after reconnect")
			m.setStateLocked(StateDisconnected)

			return
		}
		m.userID = c.UserID
		m.setStateLocked(StateReady)

		return
	}

	select {
	case l.confirm <- c:
	default:
	}
}

func (m *Manager) onDisconnect(l *link, reason ports.DisconnectReason, err error) {
	l.markLost(err)

	m.mu.Lock()
	if m.link != l {
		m.mu.Unlock()

		return
	}
	m.stopReconfirmLocked()

	kicked := reason == ports.DisconnectServerKick
	if kicked {
		// The session is gone server-side; the next attempt logs in again.
		m.token = ""
		m.userID = ""
	}
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if kicked {
		closeLink(l)
	}

	m.logger.Warn().
		Str("reason", string(reason)).
		Err(err).
		Msg("channel disconnected")
}

func (m *Manager) onReconnect(l *link, attempt int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.link != l || l.channel == nil {
		return
	}

	m.setStateLocked(StateConnected)
	m.stopReconfirmLocked()
	m.reconfirmGen++
	gen := m.reconfirmGen
	m.reconfirm = time.AfterFunc(m.cfg.ReconfirmTimeout, func() {
		m.reconfirmExpired(l, gen)
	})

	m.logger.Info().Int("attempt", attempt).Msg("channel reconnected, awaiting session")
}

func (m *Manager) reconfirmExpired(l *link, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.link != l || m.reconfirmGen != gen || m.reconfirm == nil {
		return
	}
	m.reconfirm = nil
	m.logger.Warn().Msg("session not reconfirmed in time")
	m.setStateLocked(StateDisconnected)
}

func (m *Manager) stopReconfirmLocked() {
	if m.reconfirm != nil {
		m.reconfirm.Stop()
		m.reconfirm = nil
	}
}

// detachLocked forgets the current link and returns it for closing.
func (m *Manager) detachLocked() *link {
	l := m.link
	m.link = nil
	m.stopReconfirmLocked()

	return l
}

func closeLink(l *link) {
	if l == nil {
		return
	}
	l.markLost(nil)
	if l.channel != nil {
		_ = l.channel.Close()
	}
}

func (m *Manager) setStateLocked(next State) {
	prev := m.state
	if prev == next {
		return
	}
	m.state = next
	m.logger.Debug().
		Str("from", string(prev)).
		Str("state", string(next)).
		Msg("state change")
	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(prev, next)
	}
}

// Reset tears down the channel and forgets the session token. The next
// EnsureConnected performs a full attempt.
func (m *Manager) Reset(_ context.Context) {
	m.mu.Lock()
	stale := m.resetLocked()
	m.mu.Unlock()

	m.afterReset(stale)
}

func (m *Manager) resetLocked() *link {
	stale := m.detachLocked()
	m.token = ""
	m.userID = ""
	m.setStateLocked(StateDisconnected)

	return stale
}

func (m *Manager) afterReset(stale *link) {
	m.flight.Forget(flightKey)
	closeLink(stale)

	m.logger.Debug().Msg("session reset")
}

// Reconnect implements ports.Connection. Concurrent callers that saw
// the same fault tear the link down once and share the next attempt.
func (m *Manager) Reconnect(ctx context.Context, stale uint64) error {
	m.mu.Lock()
	l := m.link
	replace := l != nil && (l.gen == stale || l.faulted)
	var detached *link
	if replace {
		detached = m.resetLocked()
	}
	m.mu.Unlock()

	if replace {
		m.afterReset(detached)
	} else {
		m.logger.Debug().Uint64("stale", stale).Msg("link already replaced")
	}

	return m.EnsureConnected(ctx)
}

// Generation implements ports.Connection. It is zero when there is no
// link.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.link == nil {
		return 0
	}

	return m.link.gen
}

// Close shuts the manager down. Further calls fail with a client error.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()

		return nil
	}
	m.closed = true
	stale := m.detachLocked()
	m.token = ""
	m.userID = ""
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	closeLink(stale)

	return nil
}

func (m *Manager) current(event string) (*link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errClosed()
	}
	if m.link == nil || m.link.channel == nil {
		return nil, foundryerrs.NotConnected(event)
	}

	return m.link, nil
}

// observe marks l faulted when err is a transport fault that the caller
// did not cause by cancelling ctx. A missed deadline counts as a fault.
func (m *Manager) observe(ctx context.Context, l *link, err error) {
	if err == nil || errors.Is(ctx.Err(), context.Canceled) || !foundryerrs.IsTransportError(err) {
		return
	}

	m.mu.Lock()
	l.faulted = true
	m.mu.Unlock()
}

// Emit implements ports.Connection.
func (m *Manager) Emit(ctx context.Context, event string, args ...any) error {
	l, err := m.current(event)
	if err != nil {
		return err
	}

	err = l.channel.Emit(ctx, event, args...)
	m.observe(ctx, l, err)

	return err
}

// EmitWithAck implements ports.Connection.
func (m *Manager) EmitWithAck(
	ctx context.Context,
	event string,
	args ...any,
) ([]json.RawMessage, error) {
	l, err := m.current(event)
	if err != nil {
		return nil, err
	}

	reply, err := l.channel.EmitWithAck(ctx, event, args...)
	m.observe(ctx, l, err)

	return reply, err
}

// On implements ports.Connection. Listeners belong to the manager and
// keep receiving events across channel re-creation.
func (m *Manager) On(event string, handler ports.EventHandler) func() {
	m.mu.Lock()
	m.nextListener++
	id := m.nextListener
	if m.listeners[event] == nil {
		m.listeners[event] = make(map[uint64]ports.EventHandler)
	}
	m.listeners[event][id] = handler
	m.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()

			delete(m.listeners[event], id)
			if len(m.listeners[event]) == 0 {
				delete(m.listeners, event)
			}
		})
	}
}

func (m *Manager) dispatch(event string, args []json.RawMessage) {
	m.mu.Lock()
	registered := m.listeners[event]
	ids := make([]uint64, 0, len(registered))
	for id := range registered {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]ports.EventHandler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, registered[id])
	}
	m.mu.Unlock()

	for _, handler := range handlers {
		handler(args)
	}
}

// SessionToken implements ports.Connection.
func (m *Manager) SessionToken(ctx context.Context) (string, error) {
	if err := m.EnsureConnected(ctx); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == "" {
		return "", foundryerrs.NotConnected("session")
	}

	return m.token, nil
}

// Status returns a snapshot of the connection.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status{
		State:  m.state,
		UserID: m.userID,
	}
	if m.world != nil {
		world := *m.world
		status.World = &world
	}
	if m.link != nil && m.link.channel != nil {
		status.Connected = m.link.channel.Connected()
	}

	return status
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}
