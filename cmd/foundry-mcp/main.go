// Package main runs an MCP server backed by a Foundry VTT world.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/conneroisu/foundry/internal/config"
	"github.com/conneroisu/foundry/pkg/foundry"
	"github.com/conneroisu/foundry/pkg/foundry/adapters/mcp"
	"github.com/conneroisu/foundry/pkg/foundry/session"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		return err
	}

	// stdout carries the stdio transport.
	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).Level(cfg.Level()).With().Timestamp().Str("app", "foundry-mcp").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := foundry.NewClient(foundry.Config{
		BaseURL:          cfg.URL,
		UserID:           cfg.UserID,
		Password:         cfg.Password,
		BridgeID:         cfg.BridgeID,
		RequestTimeout:   cfg.RequestTimeout,
		RPCTimeout:       cfg.RPCTimeout,
		HandshakeTimeout: cfg.HandshakeTimeout,
		OnStateChange: func(from, to session.State) {
			logger.Info().Str("from", string(from)).Str("state", string(to)).Msg("session state")
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	rateLimit := mcp.DefaultRateLimitConfig()
	rateLimit.ToolRPS[mcp.DefaultToolKey] = cfg.ToolRPS
	rateLimit.ToolBurst[mcp.DefaultToolKey] = cfg.ToolBurst

	server := mcp.NewServerAdapter(client, mcp.ServerConfig{
		Name:       "foundry-mcp",
		Version:    version,
		Transport:  mcp.Transport(cfg.Transport),
		ListenAddr: cfg.ListenAddr,
		RateLimit:  rateLimit,
		Logger:     logger,
	})

	// Connect eagerly so configuration problems surface at startup. Tools
	// reconnect on demand if this fails.
	if err := client.EnsureConnected(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial connection failed")
	}

	return server.Start(ctx)
}
