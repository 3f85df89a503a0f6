package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/conneroisu/foundry/pkg/foundryerrs"
)

const (
	userActivityRequest = "getUserActivity"
	userActivityEvent   = "userActivity"
)

// Emit sends event with a single argument and returns the first value of
// the callback reply.
func (g *Gateway) Emit(ctx context.Context, event string, data any) (json.RawMessage, error) {
	reply, err := g.EmitArgs(ctx, event, data)
	if err != nil {
		return nil, err
	}

	return first(reply), nil
}

// EmitArgs sends event with any number of arguments and returns the whole
// callback reply.
func (g *Gateway) EmitArgs(ctx context.Context, event string, args ...any) ([]json.RawMessage, error) {
	if event == "" {
		return nil, missingEvent()
	}

	var reply []json.RawMessage
	err := g.withRetry(ctx, event, func(ctx context.Context) error {
		var err error
		reply, err = g.ack(ctx, event, args...)

		return err
	})

	return reply, err
}

// EmitCallback sends event without arguments and returns the first value
// of the callback reply.
func (g *Gateway) EmitCallback(ctx context.Context, event string) (json.RawMessage, error) {
	reply, err := g.EmitArgs(ctx, event)
	if err != nil {
		return nil, err
	}

	return first(reply), nil
}

// EmitRaw sends event without waiting for any reply.
func (g *Gateway) EmitRaw(ctx context.Context, event string, args ...any) error {
	if event == "" {
		return missingEvent()
	}

	return g.withRetry(ctx, event, func(ctx context.Context) error {
		if err := g.conn.EnsureConnected(ctx); err != nil {
			return err
		}

		return g.conn.Emit(ctx, event, args...)
	})
}

// CollectBroadcast emits request without arguments and gathers the
// arguments of every reply event that arrives within window. A zero
// window uses the configured default.
func (g *Gateway) CollectBroadcast(
	ctx context.Context,
	request string,
	reply string,
	window time.Duration,
) ([][]json.RawMessage, error) {
	if request == "" || reply == "" {
		return nil, missingEvent()
	}
	if window <= 0 {
		window = g.cfg.CollectWindow
	}

	var (
		mu        sync.Mutex
		collected [][]json.RawMessage
	)
	off := g.conn.On(reply, func(args []json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		collected = append(collected, args)
	})
	defer off()

	if err := g.EmitRaw(ctx, request); err != nil {
		return nil, err
	}

	timer := time.NewTimer(window)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()

	return append([][]json.RawMessage(nil), collected...), nil
}

// UserActivity is one connected user's activity report.
type UserActivity struct {
	UserID   string          `json:"userId"`
	Activity json.RawMessage `json:"activity,omitempty"`
}

// GetActiveUsers asks every connected client for its activity and returns
// one entry per user that answered within the collection window.
func (g *Gateway) GetActiveUsers(ctx context.Context) ([]UserActivity, error) {
	replies, err := g.CollectBroadcast(ctx, userActivityRequest, userActivityEvent, 0)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(replies))
	users := make([]UserActivity, 0, len(replies))
	for _, args := range replies {
		if len(args) == 0 {
			continue
		}

		var user UserActivity
		if err := json.Unmarshal(args[0], &user.UserID); err != nil || user.UserID == "" {
			g.logger.Debug().Err(err).Msg("ignoring malformed userActivity")

			continue
		}
		if len(args) > 1 {
			user.Activity = args[1]
		}

		if i, seen := index[user.UserID]; seen {
			users[i] = user

			continue
		}
		index[user.UserID] = len(users)
		users = append(users, user)
	}

	return users, nil
}

func first(reply []json.RawMessage) json.RawMessage {
	if len(reply) == 0 {
		return nil
	}

	return reply[0]
}

func missingEvent() error {
	return foundryerrs.NewValidationError(
		foundryerrs.ErrCodeMissingField,
		"event name is required",
		"event",
		nil,
	)
}
