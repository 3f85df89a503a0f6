package mcp

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// DefaultToolKey selects the limit applied to tools without their own.
const DefaultToolKey = "*"

// RateLimitConfig defines rate limiting settings.
type RateLimitConfig struct {
	// GlobalRPS bounds all tool calls together. Zero disables it.
	GlobalRPS float64
	// GlobalBurst is the burst size of the global limit.
	GlobalBurst int
	// ToolRPS holds per-tool limits, keyed by tool name or DefaultToolKey.
	ToolRPS map[string]float64
	// ToolBurst holds per-tool burst sizes.
	ToolBurst map[string]int
}

// DefaultRateLimitConfig limits every tool to 5 calls per second with a
// burst of 3.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		GlobalRPS:   50,
		GlobalBurst: 20,
		ToolRPS: map[string]float64{
			DefaultToolKey: 5,
		},
		ToolBurst: map[string]int{
			DefaultToolKey: 3,
		},
	}
}

// RateLimiter throttles tool invocations.
type RateLimiter struct {
	mu     sync.RWMutex
	global *rate.Limiter
	tools  map[string]*rate.Limiter
	// fallback settings for tools without an explicit limit
	defaultRPS   float64
	defaultBurst int
}

// NewRateLimiter creates a new rate limiter with the given config.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		tools: make(map[string]*rate.Limiter),
	}
	if cfg.GlobalRPS > 0 {
		rl.global = rate.NewLimiter(rate.Limit(cfg.GlobalRPS), max(cfg.GlobalBurst, 1))
	}

	for tool, rps := range cfg.ToolRPS {
		burst := max(cfg.ToolBurst[tool], 1)
		if tool == DefaultToolKey {
			rl.defaultRPS = rps
			rl.defaultBurst = burst

			continue
		}
		rl.tools[tool] = rate.NewLimiter(rate.Limit(rps), burst)
	}

	return rl
}

// AllowTool waits until tool may run. It fails when ctx ends first or
// when the wait would outlast ctx's deadline.
func (rl *RateLimiter) AllowTool(ctx context.Context, tool string) error {
	if rl == nil {
		return nil
	}

	if rl.global != nil {
		if err := rl.global.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	limiter := rl.toolLimiter(tool)
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit for %s: %w", tool, err)
	}

	return nil
}

// toolLimiter returns the tool's limiter, creating one from the default
// settings on first use. Each tool gets its own bucket.
func (rl *RateLimiter) toolLimiter(tool string) *rate.Limiter {
	rl.mu.RLock()
	limiter, ok := rl.tools[tool]
	rl.mu.RUnlock()
	if ok {
		return limiter
	}
	if rl.defaultRPS <= 0 {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, ok = rl.tools[tool]; !ok {
		limiter = rate.NewLimiter(rate.Limit(rl.defaultRPS), rl.defaultBurst)
		rl.tools[tool] = limiter
	}

	return limiter
}

// UpdateToolLimit updates the rate limit for a specific tool.
func (rl *RateLimiter) UpdateToolLimit(tool string, rps float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.tools[tool] = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
}
