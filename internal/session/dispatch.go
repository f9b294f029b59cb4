package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/adred-codev/indexer-sessiond/internal/logging"
	"github.com/adred-codev/indexer-sessiond/internal/rpc"
)

// RunRequestLoop is the per-connection read loop (spec.md §4.2): read
// a framed message, decode it (single request or batch), dispatch
// each call through the session's handler table bounded by
// max_concurrent, and write the response(s) back. Notifications are
// discarded; a ReplyAndDisconnect error sends its response then closes
// the connection.
func (m *Manager) RunRequestLoop(ctx context.Context, s *Session) {
	for {
		raw, err := s.ReadMessage()
		if err != nil {
			return
		}
		now := time.Now()
		s.Touch(now)
		s.Cost.BumpBandwidth(len(raw), now)

		batch, isBatch, err := rpc.Decode(raw)
		if err != nil {
			s.WriteMessage(mustEncodeErrorResponse(nil, rpc.NewError(rpc.BadRequest, "invalid JSON-RPC payload")))
			continue
		}

		if m.dispatchBatch(ctx, s, batch, isBatch) {
			return
		}
	}
}

// dispatchBatch runs every non-notification request in batch, bounded
// by a semaphore sized to s.MaxConcurrent(), and writes the collected
// responses back as a single reply (object or array per wasBatch).
// Returns true if the session should be disconnected after this round
// (spec.md §7 ReplyAndDisconnect).
func (m *Manager) dispatchBatch(ctx context.Context, s *Session, batch []rpc.Request, wasBatch bool) (disconnect bool) {
	sem := make(chan struct{}, maxInt(1, s.MaxConcurrent()))
	responses := make([]*rpc.Response, len(batch))

	var disconnectOnce sync.Once
	var wg sync.WaitGroup
	for i, req := range batch {
		if req.IsNotification() {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, req rpc.Request) {
			defer wg.Done()
			defer func() { <-sem }()
			resp, shouldDisconnect := m.invoke(ctx, s, req)
			responses[i] = resp
			if shouldDisconnect {
				disconnectOnce.Do(func() { disconnect = true })
			}
		}(i, req)
	}
	wg.Wait()

	out := make([]rpc.Response, 0, len(responses))
	for _, r := range responses {
		if r != nil {
			out = append(out, *r)
		}
	}
	if len(out) > 0 {
		if msg, err := rpc.EncodeBatch(out, wasBatch); err == nil && msg != nil {
			s.WriteMessage(msg)
		}
	}
	return disconnect
}

// invoke runs a single request's handler and reports whether the
// session must be disconnected after the reply is sent (spec.md §7
// ReplyAndDisconnect) — distinct from the response's error *code*,
// since an ordinary bad-request error never closes the connection.
func (m *Manager) invoke(ctx context.Context, s *Session, req rpc.Request) (resp *rpc.Response, disconnect bool) {
	handler, ok := s.Handler(req.Method)
	if !ok {
		return errorResponse(req.ID, rpc.NewError(rpc.BadRequest, "unknown method: "+req.Method)), false
	}

	m.IncrementMethodCount(req.Method)

	reqCtx, cancel := context.WithTimeout(ctx, m.limits.RequestTimeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		defer logging.RecoverPanic(m.logger, "dispatch", map[string]any{"session_id": s.ID, "method": req.Method})
		result, err := handler(s, req.Params)
		resultCh <- outcome{result, err}
	}()

	select {
	case <-reqCtx.Done():
		return errorResponse(req.ID, rpc.NewError(rpc.DaemonError, "request timed out")), false
	case out := <-resultCh:
		if out.err != nil {
			var rad *rpc.ReplyAndDisconnect
			if errors.As(out.err, &rad) {
				return errorResponse(req.ID, rad.RPCError), true
			}
			var rpcErr *rpc.RPCError
			if errors.As(out.err, &rpcErr) {
				return errorResponse(req.ID, rpcErr), false
			}
			if m.metrics != nil {
				m.metrics.MethodErrors.WithLabelValues(req.Method, "internal").Inc()
			}
			return errorResponse(req.ID, rpc.NewError(rpc.DaemonError, out.err.Error())), false
		}
		return &rpc.Response{JSONRPC: "2.0", ID: req.ID, Result: out.result}, false
	}
}

func errorResponse(id json.RawMessage, rpcErr *rpc.RPCError) *rpc.Response {
	return &rpc.Response{JSONRPC: "2.0", ID: id, Error: rpcErr}
}

func mustEncodeErrorResponse(id json.RawMessage, rpcErr *rpc.RPCError) []byte {
	msg, _ := json.Marshal(errorResponse(id, rpcErr))
	return msg
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
