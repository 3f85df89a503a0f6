package foundry

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/conneroisu/foundry/pkg/foundry/adapters/httpapi"
	"github.com/conneroisu/foundry/pkg/foundry/adapters/socketio"
	"github.com/conneroisu/foundry/pkg/foundry/documents"
	"github.com/conneroisu/foundry/pkg/foundry/gateway"
	"github.com/conneroisu/foundry/pkg/foundry/ports"
	"github.com/conneroisu/foundry/pkg/foundry/rpc"
	"github.com/conneroisu/foundry/pkg/foundry/session"
	"github.com/conneroisu/foundry/pkg/foundryerrs"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the remote's base URL (e.g., "http://localhost:30000").
	BaseURL string
	// UserID and Password are the login credentials.
	UserID   string
	Password string
	// BridgeID selects the module.<BridgeID> RPC channel.
	BridgeID string
	// RequestTimeout bounds a single socket callback.
	RequestTimeout time.Duration
	// RPCTimeout is the default timeout of RPC calls.
	RPCTimeout time.Duration
	// HandshakeTimeout bounds the channel handshake and the session
	// confirmation.
	HandshakeTimeout time.Duration
	// HTTPClient is used for status, login and upload.
	HTTPClient *http.Client
	// OnStateChange observes session state transitions.
	OnStateChange func(from, to session.State)
	// Logger is used for structured logging.
	Logger zerolog.Logger
}

// Dependencies replaces the network adapters a Client builds by default.
// Nil fields keep the defaults.
type Dependencies struct {
	API    ports.RemoteAPI
	Dialer ports.ChannelDialer
}

// Client wires the session, the gateway and the RPC correlator to one
// remote world.
type Client struct {
	session *session.Manager
	gateway *gateway.Gateway
	rpc     *rpc.Correlator
	logger  zerolog.Logger
}

// NewClient creates a Client talking to cfg.BaseURL.
func NewClient(cfg Config) (*Client, error) {
	return NewClientWithDependencies(cfg, Dependencies{})
}

// NewClientWithDependencies creates a Client with some adapters replaced.
func NewClientWithDependencies(cfg Config, deps Dependencies) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, invalidConfig("base URL is required")
	}
	if cfg.UserID == "" {
		return nil, invalidConfig("user id is required")
	}

	if deps.API == nil {
		api, err := httpapi.NewAdapter(httpapi.Config{
			BaseURL:    cfg.BaseURL,
			HTTPClient: cfg.HTTPClient,
			Logger:     cfg.Logger,
		})
		if err != nil {
			return nil, foundryerrs.NewClientError(
				foundryerrs.ErrCodeInvalidConfig,
				"invalid base URL",
				err,
			)
		}
		deps.API = api
	}
	if deps.Dialer == nil {
		deps.Dialer = socketio.NewAdapter(socketio.Config{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Logger:           cfg.Logger,
		})
	}

	manager := session.NewManager(session.Config{
		BaseURL:          cfg.BaseURL,
		UserID:           cfg.UserID,
		Password:         cfg.Password,
		HandshakeTimeout: cfg.HandshakeTimeout,
		OnStateChange:    cfg.OnStateChange,
		Logger:           cfg.Logger,
	}, session.Dependencies{API: deps.API, Dialer: deps.Dialer})

	return &Client{
		session: manager,
		gateway: gateway.NewGateway(gateway.Config{
			RequestTimeout: cfg.RequestTimeout,
			Logger:         cfg.Logger,
		}, gateway.Dependencies{Connection: manager, API: deps.API}),
		rpc: rpc.NewCorrelator(rpc.Config{
			BridgeID:    cfg.BridgeID,
			CallTimeout: cfg.RPCTimeout,
			Logger:      cfg.Logger,
		}, manager),
		logger: cfg.Logger,
	}, nil
}

func invalidConfig(message string) error {
	return foundryerrs.NewClientError(foundryerrs.ErrCodeInvalidConfig, message, nil)
}

// Session returns the session manager.
func (c *Client) Session() *session.Manager { return c.session }

// Gateway returns the document gateway.
func (c *Client) Gateway() *gateway.Gateway { return c.gateway }

// RPC returns the out-of-band RPC correlator.
func (c *Client) RPC() *rpc.Correlator { return c.rpc }

// Status returns a snapshot of the session.
func (c *Client) Status() session.Status {
	return c.session.Status()
}

// EnsureConnected returns once the session is ready.
func (c *Client) EnsureConnected(ctx context.Context) error {
	return c.session.EnsureConnected(ctx)
}

// Reconnect drops the session and logs in again.
func (c *Client) Reconnect(ctx context.Context) error {
	return c.session.Reconnect(ctx, c.session.Generation())
}

// ModifyDocument runs one document operation.
func (c *Client) ModifyDocument(
	ctx context.Context,
	req documents.Request,
) (*documents.Response, error) {
	return c.gateway.ModifyDocument(ctx, req)
}

// Emit sends a socket event and returns the first callback argument.
func (c *Client) Emit(ctx context.Context, event string, data any) (json.RawMessage, error) {
	return c.gateway.Emit(ctx, event, data)
}

// GetActiveUsers lists the users that reported activity.
func (c *Client) GetActiveUsers(ctx context.Context) ([]gateway.UserActivity, error) {
	return c.gateway.GetActiveUsers(ctx)
}

// UploadFile pushes a file to the world's asset storage.
func (c *Client) UploadFile(
	ctx context.Context,
	upload ports.Upload,
) (*ports.UploadResult, error) {
	return c.gateway.UploadFile(ctx, upload)
}

// Call invokes a companion module method.
func (c *Client) Call(
	ctx context.Context,
	method string,
	args []any,
	timeout time.Duration,
) (*rpc.Response, error) {
	return c.rpc.Call(ctx, method, args, timeout)
}

// Ping probes the companion module.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) rpc.PingResult {
	return c.rpc.Ping(ctx, timeout)
}

// Close fails pending RPC calls and closes the session. Calls made after
// Close fail with a client error.
func (c *Client) Close() error {
	c.rpc.Destroy()
	c.logger.Debug().Msg("client closed")

	return c.session.Close()
}
