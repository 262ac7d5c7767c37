package rpc_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/valkyrie-lang/valkyrie-lsp/rpc"
)

func TestDecodeClassifiesMessages(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind rpc.Kind
		id   string
	}{
		{"numeric request", `{"jsonrpc":"2.0","id":7,"method":"textDocument/hover","params":{}}`, rpc.KindRequest, "7"},
		{"string request", `{"jsonrpc":"2.0","id":"abc","method":"shutdown"}`, rpc.KindRequest, `"abc"`},
		{"notification", `{"jsonrpc":"2.0","method":"initialized","params":{}}`, rpc.KindNotification, ""},
		{"response", `{"jsonrpc":"2.0","id":3,"result":null}`, rpc.KindResponse, "3"},
		{"error response", `{"jsonrpc":"2.0","id":3,"error":{"code":-32601,"message":"nope"}}`, rpc.KindResponse, "3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := rpc.Decode([]byte(tt.body))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if msg.Kind() != tt.kind {
				t.Fatalf("Expected kind %s, got %s", tt.kind, msg.Kind())
			}
			if tt.id == "" {
				if msg.ID != nil {
					t.Fatalf("Expected no id, got %s", msg.ID)
				}
				return
			}
			if msg.ID == nil || msg.ID.String() != tt.id {
				t.Fatalf("Expected id %s, got %v", tt.id, msg.ID)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		code   rpc.Code
		withID bool
	}{
		{"not json", `{"jsonrpc":`, rpc.CodeParseError, false},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"x"}`, rpc.CodeInvalidRequest, true},
		{"batch", `[{"jsonrpc":"2.0","method":"x"}]`, rpc.CodeInvalidRequest, false},
		{"null id request", `{"jsonrpc":"2.0","id":null,"method":"x"}`, rpc.CodeInvalidRequest, false},
		{"fractional id", `{"jsonrpc":"2.0","id":1.5,"method":"x"}`, rpc.CodeInvalidRequest, false},
		{"scalar params", `{"jsonrpc":"2.0","id":2,"method":"x","params":3}`, rpc.CodeInvalidRequest, true},
		{"response with both", `{"jsonrpc":"2.0","id":1,"result":1,"error":{"code":1,"message":"m"}}`, rpc.CodeInvalidRequest, true},
		{"empty method", `{"jsonrpc":"2.0","id":4,"method":""}`, rpc.CodeInvalidRequest, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := rpc.Decode([]byte(tt.body))
			var rpcErr *rpc.Error
			if !errors.As(err, &rpcErr) {
				t.Fatalf("Expected *rpc.Error, got %v", err)
			}
			if rpcErr.Code != tt.code {
				t.Fatalf("Expected code %s, got %s", tt.code, rpcErr.Code)
			}
			if tt.withID && (msg == nil || msg.ID == nil) {
				t.Fatalf("Expected the id to be recovered for the error response")
			}
		})
	}
}

func TestIDKeepsNumbersAndStringsApart(t *testing.T) {
	n := rpc.NumberID(1)
	s := rpc.StringID("1")
	if n.Key() == s.Key() {
		t.Fatalf("Numeric and string ids must not share a key")
	}

	var decoded rpc.ID
	if err := json.Unmarshal([]byte(`"1"`), &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded != s {
		t.Fatalf("Expected string id, got %s", decoded)
	}

	data, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != "1" {
		t.Fatalf("Expected 1, got %s", data)
	}
}

func TestErrorResponseWithoutIDEncodesNull(t *testing.T) {
	resp := rpc.NewErrorResponse(nil, rpc.Errorf(rpc.CodeParseError, "bad"))
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	expected := `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"bad"}}`
	if string(data) != expected {
		t.Fatalf("Expected %s, got %s", expected, data)
	}
}

func TestNilResultEncodesNull(t *testing.T) {
	resp, err := rpc.NewResult(rpc.NumberID(9), nil)
	if err != nil {
		t.Fatalf("NewResult failed: %v", err)
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	expected := `{"jsonrpc":"2.0","id":9,"result":null}`
	if string(data) != expected {
		t.Fatalf("Expected %s, got %s", expected, data)
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := rpc.Errorf(rpc.CodeInvalidParams, "missing uri")
	if !errors.Is(err, rpc.ErrInvalidParams) {
		t.Fatalf("Expected errors.Is to match on code")
	}
	if errors.Is(err, rpc.ErrInternal) {
		t.Fatalf("Did not expect a match for a different code")
	}
}
