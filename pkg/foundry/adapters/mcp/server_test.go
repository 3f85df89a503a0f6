//nolint:revive // Test file - relaxed linting
package mcp_test

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/conneroisu/foundry/pkg/foundry/adapters/mcp"
	"github.com/conneroisu/foundry/pkg/foundry/documents"
	"github.com/conneroisu/foundry/pkg/foundry/ports"
	"github.com/conneroisu/foundry/pkg/foundry/session"
	"github.com/conneroisu/foundry/pkg/foundryerrs"
)

var toolNames = []string{
	mcp.ToolConnectionStatus,
	mcp.ToolGetActiveUsers,
	mcp.ToolModifyDocument,
	mcp.ToolRPCCall,
	mcp.ToolRPCPing,
	mcp.ToolUploadFile,
}

func testAdapter(bridge mcp.Bridge) *mcp.ServerAdapter {
	return mcp.NewServerAdapter(bridge, mcp.ServerConfig{
		Name:    "foundry-mcp",
		Version: "test",
		Logger:  zerolog.Nop(),
	})
}

// rpcResponse is the subset of a JSON-RPC response the tests read.
type rpcResponse struct {
	Result struct {
		Tools []struct {
			Name        string          `json:"name"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func handle(t *testing.T, adapter *mcp.ServerAdapter, message string) rpcResponse {
	t.Helper()

	s, err := adapter.NewMCPGoServer()
	if err != nil {
		t.Fatal(err)
	}

	reply := s.HandleMessage(context.Background(), json.RawMessage(message))
	raw, err := json.Marshal(reply)
	if err != nil {
		t.Fatal(err)
	}

	var resp rpcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	if resp.Error != nil {
		t.Fatalf("rpc error: %s", resp.Error.Message)
	}

	return resp
}

// TestMCPGoListTools tests the tool list and its reflected schemas.
func TestMCPGoListTools(t *testing.T) {
	resp := handle(t, testAdapter(&fakeBridge{}), `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)

	var names []string
	var modifySchema json.RawMessage
	for _, tool := range resp.Result.Tools {
		names = append(names, tool.Name)
		if tool.Name == mcp.ToolModifyDocument {
			modifySchema = tool.InputSchema
		}
	}
	slices.Sort(names)
	if diff := cmp.Diff(toolNames, names); diff != "" {
		t.Errorf("tools mismatch (-want +got):\n%s", diff)
	}

	var schema struct {
		Type       string `json:"type"`
		Required   []string
		Properties map[string]struct {
			Description string `json:"description"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(modifySchema, &schema); err != nil {
		t.Fatal(err)
	}
	if schema.Type != "object" {
		t.Errorf("schema type = %q", schema.Type)
	}
	slices.Sort(schema.Required)
	if diff := cmp.Diff([]string{"action", "type"}, schema.Required); diff != "" {
		t.Errorf("required mismatch (-want +got):\n%s", diff)
	}
	if got := schema.Properties["parentUuid"].Description; got != "parent of embedded documents" {
		t.Errorf("parentUuid description = %q", got)
	}
}

// TestMCPGoCallTool tests a successful and a failing tool call.
func TestMCPGoCallTool(t *testing.T) {
	bridge := &fakeBridge{
		modifyFunc: func(req documents.Request) (*documents.Response, error) {
			if req.Action == documents.ActionCreate {
				return nil, foundryerrs.NewRemoteError("Actor validation errors: name may not be undefined")
			}

			return response(t, req.Action, []map[string]any{{"_id": "a1"}}), nil
		},
	}
	adapter := testAdapter(bridge)

	resp := handle(t, adapter, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{
		"name":"modify_document","arguments":{"type":"Actor","action":"get"}}}`)
	if resp.Result.IsError || len(resp.Result.Content) != 1 {
		t.Fatalf("unexpected result %+v", resp.Result)
	}
	var out mcp.ModifyDocumentOutput
	if err := json.Unmarshal([]byte(resp.Result.Content[0].Text), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Documents) != 1 || out.Documents[0]["_id"] != "a1" {
		t.Errorf("unexpected output %+v", out)
	}

	resp = handle(t, adapter, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{
		"name":"modify_document","arguments":{"type":"Actor","action":"create","data":[{}]}}}`)
	if !resp.Result.IsError {
		t.Fatalf("expected tool error, got %+v", resp.Result)
	}
	if !strings.Contains(resp.Result.Content[0].Text, "name may not be undefined") {
		t.Errorf("error text = %q", resp.Result.Content[0].Text)
	}
}

// TestSDKServerCallTool tests the go-sdk server over in-memory transports.
func TestSDKServerCallTool(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bridge := &fakeBridge{
		status: session.Status{
			State:     session.StateReady,
			Connected: true,
			UserID:    "gm",
			World:     &ports.StatusInfo{Active: true, World: "w"},
		},
	}
	server := testAdapter(bridge).NewSDKServer()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ss.Close()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "v1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cs.Close()

	list, err := cs.ListTools(ctx, &mcpsdk.ListToolsParams{})
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	if diff := cmp.Diff(toolNames, names); diff != "" {
		t.Errorf("tools mismatch (-want +got):\n%s", diff)
	}

	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      mcp.ToolConnectionStatus,
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %+v", res.Content)
	}
	raw, err := json.Marshal(res.StructuredContent)
	if err != nil {
		t.Fatal(err)
	}
	var out mcp.ConnectionStatusOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	want := mcp.ConnectionStatusOutput{State: "ready", Connected: true, UserID: "gm", World: "w"}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
}

// TestStartRejectsUnknownTransport tests transport selection.
func TestStartRejectsUnknownTransport(t *testing.T) {
	adapter := mcp.NewServerAdapter(&fakeBridge{}, mcp.ServerConfig{
		Transport: "carrier-pigeon",
		Logger:    zerolog.Nop(),
	})
	if err := adapter.Start(context.Background()); err == nil {
		t.Fatal("expected error for unknown transport")
	}
	if err := adapter.Stop(context.Background()); err != nil {
		t.Errorf("Stop on idle adapter: %v", err)
	}
}
