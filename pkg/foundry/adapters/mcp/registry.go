package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/conneroisu/foundry/pkg/foundryerrs"
)

// toolDef registers one tool on either MCP server implementation.
type toolDef struct {
	name        string
	description string
	registerSDK func(*mcpsdk.Server)
	registerGo  func(*server.MCPServer) error
}

// define builds a toolDef from a typed handler. Every invocation passes
// through the rate limiter first.
func define[In, Out any](
	name string,
	description string,
	limiter *RateLimiter,
	logger zerolog.Logger,
	fn func(context.Context, In) (Out, error),
) toolDef {
	invoke := func(ctx context.Context, in In) (Out, error) {
		var zero Out
		if err := limiter.AllowTool(ctx, name); err != nil {
			return zero, err
		}

		out, err := fn(ctx, in)
		if err != nil {
			ev := logger.Debug().Err(err).Str("tool", name)
			if bridgeErr, ok := foundryerrs.AsBridgeError(err); ok {
				ev = ev.Object("detail", bridgeErr)
			}
			ev.Msg("tool failed")
		}

		return out, err
	}

	return toolDef{
		name:        name,
		description: description,
		registerSDK: func(s *mcpsdk.Server) {
			mcpsdk.AddTool(s, &mcpsdk.Tool{Name: name, Description: description},
				func(ctx context.Context, _ *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, Out, error) {
					out, err := invoke(ctx, in)

					return nil, out, err
				})
		},
		registerGo: func(s *server.MCPServer) error {
			schema, err := inputSchema[In]()
			if err != nil {
				return fmt.Errorf("schema for %s: %w", name, err)
			}

			tool := mcpgo.NewToolWithRawSchema(name, description, schema)
			s.AddTool(tool, func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
				var in In
				raw, err := json.Marshal(req.GetRawArguments())
				if err != nil {
					return mcpgo.NewToolResultError(err.Error()), nil
				}
				if string(raw) != "null" {
					if err := json.Unmarshal(raw, &in); err != nil {
						return mcpgo.NewToolResultError("invalid arguments: " + err.Error()), nil
					}
				}

				out, err := invoke(ctx, in)
				if err != nil {
					return mcpgo.NewToolResultError(err.Error()), nil
				}

				text, err := json.Marshal(out)
				if err != nil {
					return mcpgo.NewToolResultError(err.Error()), nil
				}

				return mcpgo.NewToolResultText(string(text)), nil
			})

			return nil
		},
	}
}

// inputSchema reflects In into the raw JSON schema mcp-go expects. Field
// descriptions come from the same jsonschema tags the go-sdk reads.
func inputSchema[In any]() (json.RawMessage, error) {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}

	var in In
	schema := reflector.Reflect(&in)
	schema.Version = ""
	schema.ID = ""
	if schema.Type == "" {
		schema.Type = "object"
	}

	typ := reflect.TypeOf(in)
	if typ.Kind() == reflect.Struct && schema.Properties != nil {
		for i := range typ.NumField() {
			field := typ.Field(i)
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			desc := field.Tag.Get("jsonschema")
			if name == "" || desc == "" {
				continue
			}
			if prop, ok := schema.Properties.Get(name); ok {
				prop.Description = desc
			}
		}
	}

	return json.Marshal(schema)
}

func (a *ServerAdapter) definitions() []toolDef {
	t := a.tools

	return []toolDef{
		define(ToolConnectionStatus,
			"Report the connection state and the loaded world",
			a.limiter, a.logger, t.ConnectionStatus),
		define(ToolModifyDocument,
			"Get, create, update or delete documents of any type",
			a.limiter, a.logger, t.ModifyDocument),
		define(ToolGetActiveUsers,
			"List users currently active in the world",
			a.limiter, a.logger, t.GetActiveUsers),
		define(ToolRPCCall,
			"Call a method of the companion module running in a GM client",
			a.limiter, a.logger, t.RPCCall),
		define(ToolRPCPing,
			"Check whether the companion module is responding",
			a.limiter, a.logger, t.RPCPing),
		define(ToolUploadFile,
			"Upload a file to the world's asset storage",
			a.limiter, a.logger, t.UploadFile),
	}
}
