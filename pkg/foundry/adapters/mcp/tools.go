// Package mcp exposes the bridge to MCP clients. The same tool set is
// served over stdio with the official go-sdk, and over SSE or streamable
// HTTP with mcp-go.
package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/conneroisu/foundry/pkg/foundry/documents"
	"github.com/conneroisu/foundry/pkg/foundry/gateway"
	"github.com/conneroisu/foundry/pkg/foundry/ports"
	"github.com/conneroisu/foundry/pkg/foundry/rpc"
	"github.com/conneroisu/foundry/pkg/foundry/session"
	"github.com/conneroisu/foundry/pkg/foundryerrs"
)

// Bridge is what the tools need from the bridge.
type Bridge interface {
	Status() session.Status
	EnsureConnected(ctx context.Context) error
	ModifyDocument(ctx context.Context, req documents.Request) (*documents.Response, error)
	GetActiveUsers(ctx context.Context) ([]gateway.UserActivity, error)
	Call(ctx context.Context, method string, args []any, timeout time.Duration) (*rpc.Response, error)
	Ping(ctx context.Context, timeout time.Duration) rpc.PingResult
	UploadFile(ctx context.Context, upload ports.Upload) (*ports.UploadResult, error)
}

// Tool names.
const (
	ToolConnectionStatus = "connection_status"
	ToolModifyDocument   = "modify_document"
	ToolGetActiveUsers   = "get_active_users"
	ToolRPCCall          = "rpc_call"
	ToolRPCPing          = "rpc_ping"
	ToolUploadFile       = "upload_file"
)

// ConnectionStatusInput is the input of connection_status.
type ConnectionStatusInput struct {
	Connect bool `json:"connect,omitempty" jsonschema:"connect first when not ready"`
}

// ConnectionStatusOutput is the output of connection_status.
type ConnectionStatusOutput struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	UserID    string `json:"userId,omitempty"`
	World     string `json:"world,omitempty"`
	Version   string `json:"version,omitempty"`
	System    string `json:"system,omitempty"`
}

// ModifyDocumentInput is the input of modify_document.
type ModifyDocumentInput struct {
	Type       string           `json:"type" jsonschema:"document type such as Actor or Token"`
	Action     string           `json:"action" jsonschema:"get or create or update or delete"`
	Query      map[string]any   `json:"query,omitempty" jsonschema:"filter for get"`
	Data       []map[string]any `json:"data,omitempty" jsonschema:"documents to create"`
	Updates    []map[string]any `json:"updates,omitempty" jsonschema:"partial documents with _id to update"`
	IDs        []string         `json:"ids,omitempty" jsonschema:"ids to delete"`
	ParentUUID string           `json:"parentUuid,omitempty" jsonschema:"parent of embedded documents"`
	Pack       string           `json:"pack,omitempty" jsonschema:"compendium pack id"`
}

// ModifyDocumentOutput is the output of modify_document.
type ModifyDocumentOutput struct {
	Documents []map[string]any `json:"documents,omitempty"`
	IDs       []string         `json:"ids,omitempty"`
}

// EmptyInput is the input of tools without parameters.
type EmptyInput struct{}

// ActiveUser is one entry of get_active_users.
type ActiveUser struct {
	UserID   string `json:"userId"`
	Activity any    `json:"activity,omitempty"`
}

// ActiveUsersOutput is the output of get_active_users.
type ActiveUsersOutput struct {
	Users []ActiveUser `json:"users"`
}

// RPCCallInput is the input of rpc_call.
type RPCCallInput struct {
	Method    string `json:"method" jsonschema:"method registered by the companion module"`
	Args      []any  `json:"args,omitempty" jsonschema:"positional arguments"`
	TimeoutMs int    `json:"timeoutMs,omitempty" jsonschema:"timeout in milliseconds"`
}

// RPCCallOutput is the output of rpc_call.
type RPCCallOutput struct {
	Success  bool    `json:"success"`
	Result   any     `json:"result,omitempty"`
	Error    string  `json:"error,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// RPCPingInput is the input of rpc_ping.
type RPCPingInput struct {
	TimeoutMs int `json:"timeoutMs,omitempty" jsonschema:"timeout in milliseconds"`
}

// RPCPingOutput is the output of rpc_ping.
type RPCPingOutput struct {
	Alive         bool   `json:"alive"`
	ModuleVersion string `json:"moduleVersion,omitempty"`
	UserID        string `json:"userId,omitempty"`
}

// UploadFileInput is the input of upload_file.
type UploadFileInput struct {
	Source        string `json:"source,omitempty" jsonschema:"storage source; defaults to data"`
	TargetPath    string `json:"targetPath" jsonschema:"directory within the source"`
	FileName      string `json:"fileName" jsonschema:"stored file name"`
	ContentBase64 string `json:"contentBase64" jsonschema:"file content in base64"`
	MimeType      string `json:"mimeType,omitempty" jsonschema:"content type of the file"`
}

// UploadFileOutput is the output of upload_file.
type UploadFileOutput struct {
	Path    string `json:"path"`
	Message string `json:"message,omitempty"`
}

// Tools implements every tool on top of a Bridge.
type Tools struct {
	bridge Bridge
	logger zerolog.Logger
}

// NewTools creates the tool set.
func NewTools(bridge Bridge, logger zerolog.Logger) *Tools {
	return &Tools{
		bridge: bridge,
		logger: logger.With().Str("component", "mcp").Logger(),
	}
}

// ConnectionStatus reports the session state.
func (t *Tools) ConnectionStatus(
	ctx context.Context,
	in ConnectionStatusInput,
) (ConnectionStatusOutput, error) {
	if in.Connect {
		if err := t.bridge.EnsureConnected(ctx); err != nil {
			return ConnectionStatusOutput{}, err
		}
	}

	status := t.bridge.Status()
	out := ConnectionStatusOutput{
		State:     string(status.State),
		Connected: status.Connected,
		UserID:    status.UserID,
	}
	if status.World != nil {
		out.World = status.World.World
		out.Version = status.World.Version
		out.System = status.World.System
	}

	return out, nil
}

// ModifyDocument runs one document operation.
func (t *Tools) ModifyDocument(
	ctx context.Context,
	in ModifyDocumentInput,
) (ModifyDocumentOutput, error) {
	kind, err := documents.ParseKind(in.Type)
	if err != nil {
		return ModifyDocumentOutput{}, err
	}
	action, err := documents.ParseAction(in.Action)
	if err != nil {
		return ModifyDocumentOutput{}, err
	}

	resp, err := t.bridge.ModifyDocument(ctx, documents.Request{
		Type:   kind,
		Action: action,
		Operation: documents.Operation{
			Query:      in.Query,
			Data:       in.Data,
			Updates:    in.Updates,
			IDs:        in.IDs,
			ParentUUID: in.ParentUUID,
			Pack:       in.Pack,
		},
	})
	if err != nil {
		return ModifyDocumentOutput{}, err
	}

	if action == documents.ActionDelete {
		ids, err := resp.IDs()

		return ModifyDocumentOutput{IDs: ids}, err
	}

	docs, err := resp.Documents()
	if err != nil {
		return ModifyDocumentOutput{}, err
	}
	out := ModifyDocumentOutput{Documents: make([]map[string]any, 0, len(docs))}
	for _, doc := range docs {
		out.Documents = append(out.Documents, doc)
	}

	return out, nil
}

// GetActiveUsers lists users that reported activity.
func (t *Tools) GetActiveUsers(ctx context.Context, _ EmptyInput) (ActiveUsersOutput, error) {
	users, err := t.bridge.GetActiveUsers(ctx)
	if err != nil {
		return ActiveUsersOutput{}, err
	}

	out := ActiveUsersOutput{Users: make([]ActiveUser, 0, len(users))}
	for _, user := range users {
		out.Users = append(out.Users, ActiveUser{
			UserID:   user.UserID,
			Activity: decodeAny(user.Activity),
		})
	}

	return out, nil
}

// RPCCall invokes a companion module method.
func (t *Tools) RPCCall(ctx context.Context, in RPCCallInput) (RPCCallOutput, error) {
	resp, err := t.bridge.Call(ctx, in.Method, in.Args, millis(in.TimeoutMs))
	if err != nil {
		return RPCCallOutput{}, err
	}

	return RPCCallOutput{
		Success:  resp.Success,
		Result:   decodeAny(resp.Result),
		Error:    resp.Error,
		Duration: resp.Duration,
	}, nil
}

// RPCPing probes the companion module.
func (t *Tools) RPCPing(ctx context.Context, in RPCPingInput) (RPCPingOutput, error) {
	res := t.bridge.Ping(ctx, millis(in.TimeoutMs))

	return RPCPingOutput{
		Alive:         res.Alive,
		ModuleVersion: res.ModuleVersion,
		UserID:        res.UserID,
	}, nil
}

// UploadFile stores a file in the remote's asset storage.
func (t *Tools) UploadFile(ctx context.Context, in UploadFileInput) (UploadFileOutput, error) {
	data, err := base64.StdEncoding.DecodeString(in.ContentBase64)
	if err != nil {
		return UploadFileOutput{}, foundryerrs.NewValidationError(
			foundryerrs.ErrCodeInvalidType,
			"contentBase64 is not valid base64",
			"contentBase64",
			nil,
		)
	}

	res, err := t.bridge.UploadFile(ctx, ports.Upload{
		Source:     in.Source,
		TargetPath: in.TargetPath,
		FileName:   in.FileName,
		Data:       data,
		MimeType:   in.MimeType,
	})
	if err != nil {
		return UploadFileOutput{}, err
	}

	return UploadFileOutput{Path: res.Path, Message: res.Message}, nil
}

func millis(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}

	return time.Duration(ms) * time.Millisecond
}

func decodeAny(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}

	return v
}
