package session

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"

	"github.com/adred-codev/indexer-sessiond/internal/rpc"
)

// bindParams decodes a JSON-RPC params value into v, a pointer to a
// struct whose fields are tagged with their positional index
// ("0", "1", ...). Handles both wire shapes JSON-RPC allows: a params
// object (bound by name, standard json.Unmarshal) or a params array
// (bound positionally into the same fields) — spec.md §9 "dynamic
// parameter binding". Missing trailing (optional) arguments are left
// at their zero value.
func bindParams(raw []byte, v any) error {
	trimmed := trimLeadingWS(raw)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] == '{' {
		if err := json.Unmarshal(raw, v); err != nil {
			return rpc.NewError(rpc.BadRequest, fmt.Sprintf("invalid params: %v", err))
		}
		return nil
	}

	var positional []json.RawMessage
	if err := json.Unmarshal(raw, &positional); err != nil {
		return rpc.NewError(rpc.BadRequest, fmt.Sprintf("invalid params: %v", err))
	}

	rv := reflect.ValueOf(v).Elem()
	rt := rv.Type()
	for i := 0; i < rt.NumField() && i < len(positional); i++ {
		field := rv.Field(i)
		if err := json.Unmarshal(positional[i], field.Addr().Interface()); err != nil {
			return rpc.NewError(rpc.BadRequest, fmt.Sprintf("invalid params[%d]: %v", i, err))
		}
	}
	return nil
}

func trimLeadingWS(b []byte) []byte {
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

var hexRe = regexp.MustCompile(`^[0-9a-fA-F]+$`)

func nonNegativeInt(n int) error {
	if n < 0 {
		return rpc.NewError(rpc.BadRequest, "expected a non-negative integer")
	}
	return nil
}

func parseHexHash32(s string) ([32]byte, error) {
	var out [32]byte
	if len(s) != 64 || !hexRe.MatchString(s) {
		return out, rpc.NewError(rpc.BadRequest, "expected a 32-byte hex hash")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, rpc.NewError(rpc.BadRequest, "invalid hex hash")
	}
	copy(out[:], b)
	return out, nil
}

func parseHexBytes(s string) ([]byte, error) {
	if !hexRe.MatchString(s) || len(s)%2 != 0 {
		return nil, rpc.NewError(rpc.BadRequest, "invalid hex string")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, rpc.NewError(rpc.BadRequest, "invalid hex string")
	}
	return b, nil
}

func assetName(s string) (string, error) {
	if s == "" || len(s) > 32 {
		return "", rpc.NewError(rpc.BadRequest, "invalid asset name")
	}
	return s, nil
}

func h160Hex(s string) (string, error) {
	if len(s) != 40 || !hexRe.MatchString(s) {
		return "", rpc.NewError(rpc.BadRequest, "expected a 20-byte hex h160")
	}
	return s, nil
}

// scripthashToHashX maps a client-supplied scripthash string to the
// internal hashX key. In this repo the two are the same 32-byte hex
// identity — hashX derivation (address/script -> hashX) is explicitly
// a Non-goal, delegated to the DB/indexer collaborator upstream.
func scripthashToHashX(scripthash string) (string, error) {
	if _, err := parseHexHash32(scripthash); err != nil {
		return "", err
	}
	return scripthash, nil
}
