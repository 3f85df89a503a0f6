package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

// Transport selects how the MCP server is exposed.
type Transport string

// Supported transports.
const (
	TransportStdio Transport = "stdio"
	TransportSSE   Transport = "sse"
	TransportHTTP  Transport = "http"
)

// ServerConfig configures the server adapter.
type ServerConfig struct {
	// Name and Version identify the server to clients.
	Name    string
	Version string
	// Transport selects stdio, SSE or streamable HTTP.
	Transport Transport
	// ListenAddr is the listen address of the HTTP transports.
	ListenAddr string
	// BaseURL is the public URL advertised by the SSE transport.
	BaseURL string
	// RateLimit throttles tool calls.
	RateLimit RateLimitConfig
	// Logger is used for structured logging.
	Logger zerolog.Logger
}

// ServerAdapter serves the tool set over the configured transport.
type ServerAdapter struct {
	cfg     ServerConfig
	tools   *Tools
	limiter *RateLimiter
	logger  zerolog.Logger

	mu       sync.Mutex
	running  bool
	shutdown func(context.Context) error
}

// NewServerAdapter creates a new MCP server adapter.
func NewServerAdapter(bridge Bridge, cfg ServerConfig) *ServerAdapter {
	if cfg.Name == "" {
		cfg.Name = "foundry-mcp"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Transport == "" {
		cfg.Transport = TransportStdio
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}

	logger := cfg.Logger.With().Str("component", "mcp").Logger()

	return &ServerAdapter{
		cfg:     cfg,
		tools:   NewTools(bridge, cfg.Logger),
		limiter: NewRateLimiter(cfg.RateLimit),
		logger:  logger,
	}
}

// NewSDKServer builds a go-sdk server with every tool registered.
func (a *ServerAdapter) NewSDKServer() *mcpsdk.Server {
	s := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    a.cfg.Name,
		Version: a.cfg.Version,
	}, nil)
	for _, def := range a.definitions() {
		def.registerSDK(s)
	}

	return s
}

// NewMCPGoServer builds an mcp-go server with every tool registered.
func (a *ServerAdapter) NewMCPGoServer() (*server.MCPServer, error) {
	s := server.NewMCPServer(
		a.cfg.Name,
		a.cfg.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	for _, def := range a.definitions() {
		if err := def.registerGo(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Start serves until ctx is done or Stop is called.
func (a *ServerAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()

		return errors.New("server already running")
	}
	a.running = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.shutdown = nil
		a.mu.Unlock()
	}()

	a.logger.Info().
		Str("transport", string(a.cfg.Transport)).
		Str("addr", a.cfg.ListenAddr).
		Msg("serving MCP")

	switch a.cfg.Transport {
	case TransportStdio:
		return a.serveStdio(ctx)
	case TransportSSE, TransportHTTP:
		return a.serveHTTP(ctx)
	default:
		return fmt.Errorf("unsupported transport %q", a.cfg.Transport)
	}
}

func (a *ServerAdapter) serveStdio(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.setShutdown(func(context.Context) error {
		cancel()

		return nil
	})

	err := a.NewSDKServer().Run(ctx, &mcpsdk.StdioTransport{})
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// httpServer is what both mcp-go HTTP transports provide.
type httpServer interface {
	Start(addr string) error
	Shutdown(ctx context.Context) error
}

func (a *ServerAdapter) serveHTTP(ctx context.Context) error {
	s, err := a.NewMCPGoServer()
	if err != nil {
		return err
	}

	var srv httpServer
	if a.cfg.Transport == TransportSSE {
		var opts []server.SSEOption
		if a.cfg.BaseURL != "" {
			opts = append(opts, server.WithBaseURL(a.cfg.BaseURL))
		}
		srv = server.NewSSEServer(s, opts...)
	} else {
		srv = server.NewStreamableHTTPServer(s)
	}
	a.setShutdown(srv.Shutdown)

	stop := context.AfterFunc(ctx, func() {
		_ = srv.Shutdown(context.WithoutCancel(ctx))
	})
	defer stop()

	err = srv.Start(a.cfg.ListenAddr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

func (a *ServerAdapter) setShutdown(fn func(context.Context) error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.shutdown = fn
}

// Stop terminates a running server.
func (a *ServerAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	shutdown := a.shutdown
	a.mu.Unlock()

	if shutdown == nil {
		return nil
	}

	return shutdown(ctx)
}
