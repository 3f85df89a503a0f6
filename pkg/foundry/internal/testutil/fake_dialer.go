package testutil

import (
	"context"
	"sync"

	"github.com/conneroisu/foundry/pkg/foundry/ports"
)

// FakeDialer implements ports.ChannelDialer with FakeChannels.
type FakeDialer struct {
	// OnDial scripts each new channel before Dial returns. Returning an
	// error fails the dial.
	OnDial func(ch *FakeChannel, req ports.DialRequest) error

	mu       sync.Mutex
	requests []ports.DialRequest
	channels []*FakeChannel
}

// Verify interface compliance at compile time.
var _ ports.ChannelDialer = (*FakeDialer)(nil)

// Dial implements ports.ChannelDialer.
func (d *FakeDialer) Dial(_ context.Context, req ports.DialRequest) (ports.Channel, error) {
	ch := NewFakeChannel(req.Handlers)

	d.mu.Lock()
	d.requests = append(d.requests, req)
	d.mu.Unlock()

	if d.OnDial != nil {
		if err := d.OnDial(ch, req); err != nil {
			return nil, err
		}
	}

	d.mu.Lock()
	d.channels = append(d.channels, ch)
	d.mu.Unlock()

	return ch, nil
}

// Dials returns how many times Dial was called.
func (d *FakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.requests)
}

// Requests returns every dial request.
func (d *FakeDialer) Requests() []ports.DialRequest {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]ports.DialRequest(nil), d.requests...)
}

// Last returns the most recently opened channel.
func (d *FakeDialer) Last() *FakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.channels) == 0 {
		return nil
	}

	return d.channels[len(d.channels)-1]
}

// ConfirmSession returns an OnDial script that confirms the session with
// the given user id, the way the remote does right after connect.
func ConfirmSession(userID string) func(*FakeChannel, ports.DialRequest) error {
	return func(ch *FakeChannel, req ports.DialRequest) error {
		ch.Deliver("session", map[string]any{
			"sessionId": req.SessionToken,
			"userId":    userID,
		})

		return nil
	}
}
