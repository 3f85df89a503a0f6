//nolint:revive // Test file - relaxed linting
package mcp_test

import (
	"context"
	"testing"
	"time"

	"github.com/conneroisu/foundry/pkg/foundry/adapters/mcp"
)

// TestRateLimiter tests per-tool buckets and the wait bound.
func TestRateLimiter(t *testing.T) {
	rl := mcp.NewRateLimiter(mcp.RateLimitConfig{
		ToolRPS:   map[string]float64{mcp.DefaultToolKey: 0.001},
		ToolBurst: map[string]int{mcp.DefaultToolKey: 2},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	for i := range 2 {
		if err := rl.AllowTool(ctx, "rpc_call"); err != nil {
			t.Fatalf("call %d within burst: %v", i, err)
		}
	}
	if err := rl.AllowTool(ctx, "rpc_call"); err == nil {
		t.Fatal("expected the third call to exceed the limit")
	}

	if err := rl.AllowTool(ctx, "rpc_ping"); err != nil {
		t.Errorf("tools should not share a bucket: %v", err)
	}

	rl.UpdateToolLimit("rpc_call", 1000, 10)
	if err := rl.AllowTool(ctx, "rpc_call"); err != nil {
		t.Errorf("updated limit: %v", err)
	}
}

// TestNilRateLimiter tests that a nil limiter admits everything.
func TestNilRateLimiter(t *testing.T) {
	var rl *mcp.RateLimiter
	if err := rl.AllowTool(context.Background(), "rpc_call"); err != nil {
		t.Fatal(err)
	}
}
