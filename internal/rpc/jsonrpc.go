// Package rpc implements the newline-framed and WebSocket-framed
// JSON-RPC transport, with auto-detection of single vs. batched
// requests (spec.md §4.2, §6). No repo in the retrieval pack vendors a
// newline-framed JSON-RPC codec library (the original uses Python's
// aiorpcx); this package is hand-rolled on encoding/json, the one
// required-stdlib component documented in DESIGN.md.
package rpc

import (
	"encoding/json"
	"errors"
)

// Error codes from spec.md §7.
const (
	BadRequest  = 1
	DaemonError = 2
)

// Request is a single JSON-RPC 2.0 request or notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether this request carries no id — the
// spec requires these be silently discarded (§4.2 "Notifications from
// client to server are discarded").
func (r Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response is a single JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// NewError builds an RPCError for one of the taxonomy codes in
// spec.md §7.
func NewError(code int, message string) *RPCError {
	return &RPCError{Code: code, Message: message}
}

// ReplyAndDisconnect pairs a final error response with a protocol-level
// refusal: the session sends this error then closes the connection
// (spec.md §7).
type ReplyAndDisconnect struct {
	*RPCError
}

func (e *ReplyAndDisconnect) Error() string { return e.RPCError.Error() }

// Decode parses a raw JSON-RPC payload, auto-detecting a single
// request object versus a batch array (spec.md §4.2 "JSON-RPC
// auto-detect").
func Decode(raw []byte) (batch []Request, isBatch bool, err error) {
	trimmed := trimLeadingSpace(raw)
	if len(trimmed) == 0 {
		return nil, false, errors.New("empty payload")
	}

	switch trimmed[0] {
	case '[':
		var reqs []Request
		if err := json.Unmarshal(raw, &reqs); err != nil {
			return nil, true, err
		}
		return reqs, true, nil
	case '{':
		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, false, err
		}
		return []Request{req}, false, nil
	default:
		return nil, false, errors.New("payload is neither an object nor an array")
	}
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\n', '\r':
			i++
			continue
		}
		break
	}
	return b[i:]
}

// EncodeBatch renders responses as a batch array, or a single object
// when only one response is present and the request wasn't itself a
// batch — mirroring standard JSON-RPC batch semantics.
func EncodeBatch(responses []Response, wasBatch bool) ([]byte, error) {
	if len(responses) == 0 {
		return nil, nil
	}
	if !wasBatch && len(responses) == 1 {
		return json.Marshal(responses[0])
	}
	return json.Marshal(responses)
}
