package rpc

import "fmt"

// Code is a JSON-RPC error code.
type Code int

const (
	// JSON-RPC standard errors
	CodeParseError     Code = -32700
	CodeInvalidRequest Code = -32600
	CodeMethodNotFound Code = -32601
	CodeInvalidParams  Code = -32602
	CodeInternalError  Code = -32603

	// LSP-specific errors
	CodeServerNotInitialized Code = -32002
	CodeUnknownErrorCode     Code = -32001
	CodeRequestFailed        Code = -32803
	CodeServerCancelled      Code = -32802
	CodeContentModified      Code = -32801
	CodeRequestCancelled     Code = -32800
)

var codeNames = map[Code]string{
	CodeParseError:           "ParseError",
	CodeInvalidRequest:       "InvalidRequest",
	CodeMethodNotFound:       "MethodNotFound",
	CodeInvalidParams:        "InvalidParams",
	CodeInternalError:        "InternalError",
	CodeServerNotInitialized: "ServerNotInitialized",
	CodeUnknownErrorCode:     "UnknownErrorCode",
	CodeRequestFailed:        "RequestFailed",
	CodeServerCancelled:      "ServerCancelled",
	CodeContentModified:      "ContentModified",
	CodeRequestCancelled:     "RequestCancelled",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error is a JSON-RPC error object. It doubles as a Go error so handlers can
// return a precise code.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d (%s): %s (data: %v)", int(e.Code), e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d (%s): %s", int(e.Code), e.Code, e.Message)
}

// Is lets errors.Is match on the code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Sentinels usable with errors.Is; they match any message with the same code.
var (
	ErrParse                = &Error{Code: CodeParseError}
	ErrInvalidRequest       = &Error{Code: CodeInvalidRequest}
	ErrMethodNotFound       = &Error{Code: CodeMethodNotFound}
	ErrInvalidParams        = &Error{Code: CodeInvalidParams}
	ErrInternal             = &Error{Code: CodeInternalError}
	ErrServerNotInitialized = &Error{Code: CodeServerNotInitialized}
	ErrContentModified      = &Error{Code: CodeContentModified}
	ErrRequestCancelled     = &Error{Code: CodeRequestCancelled}
)
