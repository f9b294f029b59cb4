package session

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/adred-codev/indexer-sessiond/internal/rpc"
)

func newDispatchTestSession(t *testing.T, m *Manager, id uint64) *Session {
	t.Helper()
	s := sessionWithFramerNow(m, id, &recordingFramer{})
	return s
}

// A handler returning *rpc.ReplyAndDisconnect must flag the batch for
// disconnection after the reply is written (spec.md §7).
func TestInvokeReplyAndDisconnectSignalsDisconnect(t *testing.T) {
	m, err := newBareManager()
	if err != nil {
		t.Fatalf("newBareManager: %v", err)
	}
	s := newDispatchTestSession(t, m, 1)
	s.InstallHandlers(HandlerTable{
		"bye": func(s *Session, params []byte) (any, error) {
			return nil, &rpc.ReplyAndDisconnect{RPCError: rpc.NewError(rpc.BadRequest, "goodbye")}
		},
	})

	resp, disconnect := m.invoke(context.Background(), s, rpc.Request{ID: json.RawMessage(`1`), Method: "bye"})
	if !disconnect {
		t.Fatal("expected ReplyAndDisconnect to signal disconnection")
	}
	if resp.Error == nil || resp.Error.Message != "goodbye" {
		t.Fatalf("expected the wrapped error reply, got %+v", resp)
	}
}

// An ordinary bad-request error (same error code taxonomy) must NOT
// trigger disconnection — only the ReplyAndDisconnect wrapper does.
func TestInvokeOrdinaryBadRequestDoesNotDisconnect(t *testing.T) {
	m, err := newBareManager()
	if err != nil {
		t.Fatalf("newBareManager: %v", err)
	}
	s := newDispatchTestSession(t, m, 1)
	s.InstallHandlers(HandlerTable{
		"bad": func(s *Session, params []byte) (any, error) {
			return nil, rpc.NewError(rpc.BadRequest, "malformed params")
		},
	})

	resp, disconnect := m.invoke(context.Background(), s, rpc.Request{ID: json.RawMessage(`1`), Method: "bad"})
	if disconnect {
		t.Fatal("an ordinary BadRequest error must not disconnect the session")
	}
	if resp.Error == nil || resp.Error.Code != rpc.BadRequest {
		t.Fatalf("expected a BadRequest error reply, got %+v", resp)
	}
}

// Unknown methods get a BadRequest error reply and never disconnect.
func TestInvokeUnknownMethod(t *testing.T) {
	m, err := newBareManager()
	if err != nil {
		t.Fatalf("newBareManager: %v", err)
	}
	s := newDispatchTestSession(t, m, 1)

	resp, disconnect := m.invoke(context.Background(), s, rpc.Request{ID: json.RawMessage(`1`), Method: "nope"})
	if disconnect {
		t.Fatal("unknown method must not disconnect")
	}
	if resp.Error == nil || resp.Error.Code != rpc.BadRequest {
		t.Fatalf("expected BadRequest for unknown method, got %+v", resp)
	}
}

// dispatchBatch must bound concurrency to MaxConcurrent(): with a cap
// of 1, no two handler invocations may run at the same time.
func TestDispatchBatchBoundsConcurrency(t *testing.T) {
	m, err := newBareManager()
	if err != nil {
		t.Fatalf("newBareManager: %v", err)
	}
	s := newDispatchTestSession(t, m, 1)
	s.SetMaxConcurrent(1)

	var inFlight, maxSeen atomic.Int32
	s.InstallHandlers(HandlerTable{
		"work": func(s *Session, params []byte) (any, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				cur := maxSeen.Load()
				if n <= cur || maxSeen.CompareAndSwap(cur, n) {
					break
				}
			}
			return "ok", nil
		},
	})

	batch := make([]rpc.Request, 10)
	for i := range batch {
		batch[i] = rpc.Request{ID: json.RawMessage(`1`), Method: "work"}
	}

	m.dispatchBatch(context.Background(), s, batch, true)

	if maxSeen.Load() > 1 {
		t.Fatalf("expected at most 1 concurrent handler invocation, saw %d", maxSeen.Load())
	}
}

// Notifications (requests with no id) are never invoked or replied to.
func TestDispatchBatchSkipsNotifications(t *testing.T) {
	m, err := newBareManager()
	if err != nil {
		t.Fatalf("newBareManager: %v", err)
	}
	s := newDispatchTestSession(t, m, 1)
	var calls atomic.Int32
	s.InstallHandlers(HandlerTable{
		"ping": func(s *Session, params []byte) (any, error) {
			calls.Add(1)
			return "pong", nil
		},
	})

	batch := []rpc.Request{{Method: "ping"}}
	m.dispatchBatch(context.Background(), s, batch, false)

	if calls.Load() != 0 {
		t.Fatalf("expected notification to never invoke its handler, got %d calls", calls.Load())
	}
}
