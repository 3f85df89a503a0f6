// Package gateway implements the document mutation gateway and the generic
// socket call helpers. Every call shape shares one retry policy: a
// transport fault triggers a full reconnect and exactly one retry, while
// errors reported by the remote are returned as they are.
//
// A call that times out locally may still have taken effect remotely.
// Retrying after a timeout can therefore apply a mutation twice.
package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/conneroisu/foundry/pkg/foundry/documents"
	"github.com/conneroisu/foundry/pkg/foundry/ports"
	"github.com/conneroisu/foundry/pkg/foundryerrs"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultCollectWindow  = 500 * time.Millisecond

	modifyDocumentEvent = "modifyDocument"
)

// Config configures the gateway.
type Config struct {
	// RequestTimeout bounds the wait for a single callback reply.
	RequestTimeout time.Duration
	// CollectWindow is how long broadcast replies are collected.
	CollectWindow time.Duration
	// Logger is used for structured logging.
	Logger zerolog.Logger
}

// WithDefaults returns a copy of cfg with zero fields filled in.
func (cfg Config) WithDefaults() Config {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.CollectWindow <= 0 {
		cfg.CollectWindow = defaultCollectWindow
	}

	return cfg
}

// Dependencies groups the gateway's collaborators.
type Dependencies struct {
	Connection ports.Connection
	API        ports.RemoteAPI
}

// Gateway talks to the remote document store over the session's channel.
type Gateway struct {
	cfg    Config
	conn   ports.Connection
	api    ports.RemoteAPI
	logger zerolog.Logger
}

// NewGateway creates a new gateway.
func NewGateway(cfg Config, deps Dependencies) *Gateway {
	cfg = cfg.WithDefaults()

	return &Gateway{
		cfg:    cfg,
		conn:   deps.Connection,
		api:    deps.API,
		logger: cfg.Logger.With().Str("component", "gateway").Logger(),
	}
}

// withRetry runs call, and on a transport fault reconnects from scratch
// and runs it exactly once more.
func (g *Gateway) withRetry(
	ctx context.Context,
	event string,
	call func(context.Context) error,
) error {
	gen := g.conn.Generation()
	err := call(ctx)
	if err == nil || !foundryerrs.IsTransportError(err) {
		return err
	}

	g.logger.Warn().Err(err).Str("event", event).Msg("transport fault, reconnecting")
	if err := g.conn.Reconnect(ctx, gen); err != nil {
		return err
	}

	return call(ctx)
}

// ack ensures the session, emits event and waits for its callback reply.
func (g *Gateway) ack(
	ctx context.Context,
	event string,
	args ...any,
) ([]json.RawMessage, error) {
	if err := g.conn.EnsureConnected(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	return g.conn.EmitWithAck(ctx, event, args...)
}

// ModifyDocument sends one modifyDocument request and returns its reply.
func (g *Gateway) ModifyDocument(
	ctx context.Context,
	req documents.Request,
) (*documents.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var resp *documents.Response
	err := g.withRetry(ctx, modifyDocumentEvent, func(ctx context.Context) error {
		reply, err := g.ack(ctx, modifyDocumentEvent, req)
		if err != nil {
			return err
		}
		if len(reply) == 0 {
			return foundryerrs.NewMalformedReplyError(modifyDocumentEvent, nil)
		}

		resp, err = documents.DecodeResponse(reply[0])

		return err
	})
	if err != nil {
		g.logger.Debug().
			Err(err).
			Str("type", kindName(req.Type)).
			Str("action", string(req.Action)).
			Msg("modifyDocument failed")

		return nil, err
	}

	return resp, nil
}

func kindName(kind documents.Kind) string {
	if kind == nil {
		return ""
	}

	return kind.String()
}

// Get returns the documents of kind matching op.Query.
func (g *Gateway) Get(
	ctx context.Context,
	kind documents.Kind,
	op documents.Operation,
) ([]documents.Document, error) {
	resp, err := g.ModifyDocument(ctx, documents.Request{
		Type:      kind,
		Action:    documents.ActionGet,
		Operation: op,
	})
	if err != nil {
		return nil, err
	}

	return resp.Documents()
}

// Create creates op.Data and returns the created documents.
func (g *Gateway) Create(
	ctx context.Context,
	kind documents.Kind,
	op documents.Operation,
) ([]documents.Document, error) {
	resp, err := g.ModifyDocument(ctx, documents.Request{
		Type:      kind,
		Action:    documents.ActionCreate,
		Operation: op,
	})
	if err != nil {
		return nil, err
	}

	return resp.Documents()
}

// Update applies op.Updates and returns the updated documents.
func (g *Gateway) Update(
	ctx context.Context,
	kind documents.Kind,
	op documents.Operation,
) ([]documents.Document, error) {
	resp, err := g.ModifyDocument(ctx, documents.Request{
		Type:      kind,
		Action:    documents.ActionUpdate,
		Operation: op,
	})
	if err != nil {
		return nil, err
	}

	return resp.Documents()
}

// Delete deletes op.IDs and returns the deleted ids.
func (g *Gateway) Delete(
	ctx context.Context,
	kind documents.Kind,
	op documents.Operation,
) ([]string, error) {
	resp, err := g.ModifyDocument(ctx, documents.Request{
		Type:      kind,
		Action:    documents.ActionDelete,
		Operation: op,
	})
	if err != nil {
		return nil, err
	}

	return resp.IDs()
}
