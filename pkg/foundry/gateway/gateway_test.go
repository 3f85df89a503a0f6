//nolint:revive // Test file - relaxed linting
package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/conneroisu/foundry/pkg/foundry/documents"
	"github.com/conneroisu/foundry/pkg/foundry/gateway"
	"github.com/conneroisu/foundry/pkg/foundry/internal/testutil"
	"github.com/conneroisu/foundry/pkg/foundry/ports"
	"github.com/conneroisu/foundry/pkg/foundry/session"
	"github.com/conneroisu/foundry/pkg/foundryerrs"
)

func newGateway(conn *testutil.MockConnection) *gateway.Gateway {
	return gateway.NewGateway(gateway.Config{}, gateway.Dependencies{
		Connection: conn,
		API:        &testutil.MockRemoteAPI{},
	})
}

// TestModifyDocumentGetSingle tests a get round trip and single document
// extraction.
func TestModifyDocumentGetSingle(t *testing.T) {
	conn := &testutil.MockConnection{
		EmitWithAckFunc: func(_ context.Context, event string, args []any) ([]json.RawMessage, error) {
			return testutil.Ack(map[string]any{
				"result": []map[string]any{{"_id": "x", "name": "Fighter"}},
			}), nil
		},
	}
	gw := newGateway(conn)

	resp, err := gw.ModifyDocument(context.Background(), documents.Request{
		Type:      documents.Actor,
		Action:    documents.ActionGet,
		Operation: documents.Operation{Query: map[string]any{"_id": "x"}},
	})
	if err != nil {
		t.Fatalf("ModifyDocument() error = %v", err)
	}

	doc, err := resp.Single()
	if err != nil {
		t.Fatalf("Single() error = %v", err)
	}
	if doc.Name() != "Fighter" {
		t.Errorf("name = %q, want Fighter", doc.Name())
	}

	emitted := conn.Emitted()
	if len(emitted) != 1 || emitted[0].Event != "modifyDocument" || !emitted[0].Ack {
		t.Fatalf("emitted = %+v", emitted)
	}
	wire, err := json.Marshal(emitted[0].Args[0])
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"type":"Actor","action":"get","operation":{"query":{"_id":"x"}}}`
	if string(wire) != want {
		t.Errorf("payload = %s, want %s", wire, want)
	}
	if n := conn.EnsureCalls.Load(); n != 1 {
		t.Errorf("EnsureConnected calls = %d, want 1", n)
	}
}

// TestModifyDocumentRetry tests the retry-once policy.
func TestModifyDocumentRetry(t *testing.T) {
	okReply := testutil.Ack(map[string]any{"result": []map[string]any{{"_id": "a"}}})

	tests := []struct {
		name       string
		replies    []error
		wantErr    bool
		wantCode   foundryerrs.ErrorCode
		attempts   int
		reconnects int32
	}{
		{
			name:       "timeout then success",
			replies:    []error{testutil.TimeoutErr("modifyDocument"), nil},
			attempts:   2,
			reconnects: 1,
		},
		{
			name:       "not connected then success",
			replies:    []error{foundryerrs.NotConnected("modifyDocument"), nil},
			attempts:   2,
			reconnects: 1,
		},
		{
			name: "two timeouts",
			replies: []error{
				testutil.TimeoutErr("modifyDocument"),
				foundryerrs.ConnectionClosed("modifyDocument", nil),
				nil,
			},
			wantErr:    true,
			wantCode:   foundryerrs.ErrCodeConnectionClosed,
			attempts:   2,
			reconnects: 1,
		},
		{
			name:     "cancelled context is not a transport fault",
			replies:  []error{context.Canceled, nil},
			wantErr:  true,
			attempts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			conn := &testutil.MockConnection{
				EmitWithAckFunc: func(context.Context, string, []any) ([]json.RawMessage, error) {
					n := calls.Add(1)
					if err := tt.replies[n-1]; err != nil {
						return nil, err
					}

					return okReply, nil
				},
			}
			gw := newGateway(conn)

			docs, err := gw.Get(context.Background(), documents.Actor, documents.Operation{})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if tt.wantCode != "" && !foundryerrs.HasCode(err, tt.wantCode) {
					t.Errorf("error = %v, want code %s", err, tt.wantCode)
				}
			} else {
				if err != nil {
					t.Fatalf("Get() error = %v", err)
				}
				if len(docs) != 1 || docs[0].ID() != "a" {
					t.Errorf("docs = %v", docs)
				}
			}

			if n := int(calls.Load()); n != tt.attempts {
				t.Errorf("attempts = %d, want %d", n, tt.attempts)
			}
			if n := conn.ReconnectCalls.Load(); n != tt.reconnects {
				t.Errorf("reconnects = %d, want %d", n, tt.reconnects)
			}
		})
	}
}

// TestModifyDocumentRemoteErrorNotRetried tests that an error reply fails
// immediately.
func TestModifyDocumentRemoteErrorNotRetried(t *testing.T) {
	conn := &testutil.MockConnection{
		EmitWithAckFunc: func(context.Context, string, []any) ([]json.RawMessage, error) {
			return testutil.Ack(map[string]any{
				"error": map[string]any{"message": "User lacks permission to update Actor", "stack": "Error: ..."},
			}), nil
		},
	}
	gw := newGateway(conn)

	_, err := gw.Update(context.Background(), documents.Actor, documents.Operation{
		Updates: []map[string]any{{"_id": "a", "name": "b"}},
	})
	if !foundryerrs.IsRemoteError(err) {
		t.Fatalf("Update() = %v, want remote error", err)
	}

	var remote *foundryerrs.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected *RemoteError, got %T", err)
	}
	if remote.Message() != "User lacks permission to update Actor" {
		t.Errorf("message = %q", remote.Message())
	}
	if n := conn.ReconnectCalls.Load(); n != 0 {
		t.Errorf("reconnects = %d, want 0", n)
	}
	if n := len(conn.Emitted()); n != 1 {
		t.Errorf("emits = %d, want 1", n)
	}
}

// TestModifyDocumentValidation tests that invalid requests are never sent.
func TestModifyDocumentValidation(t *testing.T) {
	conn := &testutil.MockConnection{}
	gw := newGateway(conn)

	_, err := gw.Delete(context.Background(), documents.Token, documents.Operation{IDs: []string{"t1"}})
	if !foundryerrs.IsValidationError(err) {
		t.Fatalf("Delete() = %v, want validation error", err)
	}
	if n := len(conn.Emitted()); n != 0 {
		t.Errorf("emits = %d, want 0", n)
	}
}

// TestModifyDocumentConnectFailure tests that precondition failures are
// not retried.
func TestModifyDocumentConnectFailure(t *testing.T) {
	conn := &testutil.MockConnection{
		EnsureConnectedFunc: func(context.Context) error {
			return foundryerrs.NewNetworkError(foundryerrs.ErrCodeUnreachable, "remote unreachable", nil)
		},
	}
	gw := newGateway(conn)

	_, err := gw.Get(context.Background(), documents.Scene, documents.Operation{})
	if !foundryerrs.HasCode(err, foundryerrs.ErrCodeUnreachable) {
		t.Fatalf("Get() = %v, want unreachable", err)
	}
	if n := conn.ReconnectCalls.Load(); n != 0 {
		t.Errorf("reconnects = %d, want 0", n)
	}
}

// TestDeleteReturnsIDs tests the delete reply shape.
func TestDeleteReturnsIDs(t *testing.T) {
	conn := &testutil.MockConnection{
		EmitWithAckFunc: func(context.Context, string, []any) ([]json.RawMessage, error) {
			return testutil.Ack(map[string]any{"result": []string{"t1", "t2"}}), nil
		},
	}
	gw := newGateway(conn)

	ids, err := gw.Delete(context.Background(), documents.Token, documents.Operation{
		IDs:        []string{"t1", "t2"},
		ParentUUID: "Scene.s1",
	})
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if diff := cmp.Diff([]string{"t1", "t2"}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

// TestModifyDocumentEmptyReply tests a callback without arguments.
func TestModifyDocumentEmptyReply(t *testing.T) {
	gw := newGateway(&testutil.MockConnection{})

	_, err := gw.Get(context.Background(), documents.Actor, documents.Operation{})
	if !foundryerrs.HasCode(err, foundryerrs.ErrCodeMalformedReply) {
		t.Fatalf("Get() = %v, want malformed reply", err)
	}
}

// TestConcurrentFaultsShareReconnect tests that two calls failing on the
// same link each get their retry on one shared replacement session.
func TestConcurrentFaultsShareReconnect(t *testing.T) {
	okReply := testutil.Ack(map[string]any{"result": []map[string]any{{"_id": "a"}}})

	var (
		arrived atomic.Int32
		both    = make(chan struct{})
		once    sync.Once
	)
	dialer := &testutil.FakeDialer{}
	dialer.OnDial = func(ch *testutil.FakeChannel, req ports.DialRequest) error {
		if dialer.Dials() == 1 {
			ch.EmitWithAckFunc = func(ctx context.Context, event string, _ []any) ([]json.RawMessage, error) {
				if arrived.Add(1) == 2 {
					once.Do(func() { close(both) })
				}
				select {
				case <-both:
				case <-ctx.Done():
				}

				return nil, testutil.TimeoutErr(event)
			}
		} else {
			ch.EmitWithAckFunc = func(context.Context, string, []any) ([]json.RawMessage, error) {
				return okReply, nil
			}
		}

		return testutil.ConfirmSession("gm")(ch, req)
	}
	api := &testutil.MockRemoteAPI{
		JoinFunc: func(context.Context, string, string) (string, error) {
			time.Sleep(30 * time.Millisecond)

			return "token-1", nil
		},
	}
	m := session.NewManager(session.Config{
		BaseURL:  "http://vtt.test:30000",
		UserID:   "gm",
		Password: "secret",
	}, session.Dependencies{API: api, Dialer: dialer})
	gw := gateway.NewGateway(gateway.Config{RequestTimeout: 2 * time.Second}, gateway.Dependencies{
		Connection: m,
		API:        api,
	})

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = gw.Get(context.Background(), documents.Actor, documents.Operation{})
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("call %d error = %v", i, err)
		}
	}
	if n := dialer.Dials(); n != 2 {
		t.Errorf("dials = %d, want 2", n)
	}
	if n := api.JoinCalls.Load(); n != 2 {
		t.Errorf("joins = %d, want 2", n)
	}
}
