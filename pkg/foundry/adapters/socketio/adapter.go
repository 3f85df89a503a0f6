// Package socketio implements ports.ChannelDialer with a minimal Socket.IO
// v5 client (Engine.IO v4, websocket transport only) on top of
// gorilla/websocket.
//
// Only the default namespace and text frames are supported. The session
// token is presented both as a query parameter and as a cookie header.
package socketio

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/conneroisu/foundry/pkg/foundry/ports"
)

const (
	defaultPath              = "/socket.io/"
	defaultHandshakeTimeout  = 10 * time.Second
	defaultWriteTimeout      = 5 * time.Second
	defaultReconnectDelay    = 1 * time.Second
	defaultReconnectDelayMax = 5 * time.Second
	defaultReconnectAttempts = 10

	// Used until the server's open packet says otherwise.
	defaultPingInterval = 25 * time.Second
	defaultPingTimeout  = 20 * time.Second

	sessionParam = "session"
)

// Config configures the dialer.
type Config struct {
	// Path is the Socket.IO endpoint path.
	Path string
	// HandshakeTimeout bounds websocket upgrade plus namespace connect.
	HandshakeTimeout time.Duration
	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration
	// DisableReconnect turns off automatic recovery from transport drops.
	DisableReconnect bool
	// ReconnectDelay is the first backoff step.
	ReconnectDelay time.Duration
	// ReconnectDelayMax caps the backoff.
	ReconnectDelayMax time.Duration
	// ReconnectAttempts bounds recovery attempts per drop.
	ReconnectAttempts int
	// Dialer overrides the websocket dialer.
	Dialer *websocket.Dialer
	// Logger is used for structured logging.
	Logger zerolog.Logger
}

// WithDefaults returns a copy of cfg with zero fields filled in.
func (cfg Config) WithDefaults() Config {
	if cfg.Path == "" {
		cfg.Path = defaultPath
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.ReconnectDelayMax <= 0 {
		cfg.ReconnectDelayMax = defaultReconnectDelayMax
	}
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = defaultReconnectAttempts
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		}
	}

	return cfg
}

// Adapter implements ports.ChannelDialer.
type Adapter struct {
	cfg Config
}

// Verify interface compliance at compile time.
var _ ports.ChannelDialer = (*Adapter)(nil)

// NewAdapter creates a new Socket.IO dialer.
func NewAdapter(cfg Config) *Adapter {
	return &Adapter{cfg: cfg.WithDefaults()}
}

// Dial implements ports.ChannelDialer.
func (a *Adapter) Dial(
	ctx context.Context,
	req ports.DialRequest,
) (ports.Channel, error) {
	endpoint, err := socketURL(req.BaseURL, a.cfg.Path, req.SessionToken)
	if err != nil {
		return nil, err
	}

	ch := newChannel(a.cfg, endpoint, req.SessionToken, req.Handlers)
	if err := ch.open(ctx); err != nil {
		return nil, err
	}

	return ch, nil
}

// socketURL builds the websocket endpoint for a base HTTP URL.
func socketURL(baseURL, path, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("socketio: invalid base url %q: %w", baseURL, err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("socketio: unsupported scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + path
	query := url.Values{}
	query.Set("EIO", "4")
	query.Set("transport", "websocket")
	if token != "" {
		query.Set(sessionParam, token)
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}

func sessionHeader(token string) http.Header {
	header := http.Header{}
	if token != "" {
		header.Set("Cookie", (&http.Cookie{Name: sessionParam, Value: token}).String())
	}

	return header
}
