package rpc

import (
	"bytes"
	"encoding/json"
)

// ProtocolVersion is the only JSON-RPC version spoken on the wire.
const ProtocolVersion = "2.0"

// Kind classifies a decoded message.
type Kind int

const (
	KindRequest Kind = iota
	KindNotification
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	default:
		return "response"
	}
}

// Message is a decoded incoming JSON-RPC message of any kind.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Kind reports whether the message is a request, notification or response.
func (m *Message) Kind() Kind {
	switch {
	case m.Method == "":
		return KindResponse
	case m.ID == nil:
		return KindNotification
	default:
		return KindRequest
	}
}

// Response is an outgoing JSON-RPC response. A nil ID is written as null, which
// is what the protocol requires when the request id could not be determined.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Notification is an outgoing JSON-RPC notification.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewResult builds a success response. A nil result is encoded as null.
func NewResult(id ID, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{JSONRPC: ProtocolVersion, ID: &id, Result: raw}, nil
}

// NewErrorResponse builds an error response. id may be nil.
func NewErrorResponse(id *ID, err *Error) *Response {
	return &Response{JSONRPC: ProtocolVersion, ID: id, Error: err}
}

// NewNotification builds an outgoing notification.
func NewNotification(method string, params any) *Notification {
	return &Notification{JSONRPC: ProtocolVersion, Method: method, Params: params}
}

// wireMessage keeps id and params raw so their shape can be validated.
type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  *string         `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
}

// Decode parses one message body.
//
// A body that is not JSON yields a CodeParseError error. A JSON body that is
// not a valid JSON-RPC 2.0 message yields CodeInvalidRequest; in that case the
// returned message is non-nil and carries the request id when one could be
// read, so the caller can still answer it.
func Decode(data []byte) (*Message, error) {
	if !json.Valid(data) {
		return nil, Errorf(CodeParseError, "invalid JSON")
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return &Message{}, Errorf(CodeInvalidRequest, "batch messages are not supported")
	}

	var wire wireMessage
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return &Message{}, Errorf(CodeInvalidRequest, "malformed message: %v", err)
	}

	msg := &Message{JSONRPC: wire.JSONRPC, Params: wire.Params, Result: wire.Result, Error: wire.Error}

	hasID := len(wire.ID) > 0 && !bytes.Equal(wire.ID, []byte("null"))
	if hasID {
		var id ID
		if err := json.Unmarshal(wire.ID, &id); err != nil {
			return msg, Errorf(CodeInvalidRequest, "%v", err)
		}
		msg.ID = &id
	}

	if wire.JSONRPC != ProtocolVersion {
		return msg, Errorf(CodeInvalidRequest, "unsupported jsonrpc version %q", wire.JSONRPC)
	}

	if wire.Method != nil {
		msg.Method = *wire.Method
		if msg.Method == "" {
			return msg, Errorf(CodeInvalidRequest, "empty method name")
		}
		if len(wire.ID) > 0 && !hasID {
			return msg, Errorf(CodeInvalidRequest, "request id must not be null")
		}
		if len(wire.Result) > 0 || wire.Error != nil {
			return msg, Errorf(CodeInvalidRequest, "request cannot carry result or error")
		}
		if !isStructured(wire.Params) {
			return msg, Errorf(CodeInvalidRequest, "params must be an object or an array")
		}
		return msg, nil
	}

	hasResult := len(wire.Result) > 0
	if hasResult == (wire.Error != nil) {
		return msg, Errorf(CodeInvalidRequest, "response must have exactly one of result or error")
	}
	return msg, nil
}

func isStructured(params json.RawMessage) bool {
	p := bytes.TrimSpace(params)
	if len(p) == 0 || bytes.Equal(p, []byte("null")) {
		return true
	}
	return p[0] == '{' || p[0] == '['
}
