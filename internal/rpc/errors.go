package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/bbernstein/lacylights-showsync/internal/showerr"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Application error codes, one per showerr.Kind.
const (
	CodeInvalidState  = -32001
	CodeIndexError    = -32002
	CodeEncodingError = -32003
	CodeHardwareError = -32004
	CodeClockError    = -32005
	CodeConfigError   = -32006
)

var kindCodes = map[showerr.Kind]int{
	showerr.KindInvalidState: CodeInvalidState,
	showerr.KindIndex:        CodeIndexError,
	showerr.KindEncoding:     CodeEncodingError,
	showerr.KindHardware:     CodeHardwareError,
	showerr.KindClock:        CodeClockError,
	showerr.KindConfig:       CodeConfigError,
}

// ErrorData carries the error taxonomy to clients.
type ErrorData struct {
	Kind   showerr.Kind `json:"kind"`
	Detail string       `json:"detail"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Data != nil && e.Data.Detail != "" {
		return fmt.Sprintf("rpc error %d: %s: %s", e.Code, e.Message, e.Data.Detail)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Kind returns the error's showerr kind, or "" for protocol errors.
func (e *Error) Kind() showerr.Kind {
	if e.Data == nil {
		return ""
	}
	return e.Data.Kind
}

func newError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

func invalidParams(format string, args ...interface{}) *Error {
	return &Error{Code: CodeInvalidParams, Message: "Invalid params", Data: &ErrorData{Detail: fmt.Sprintf(format, args...)}}
}

// toError maps a handler error onto a JSON-RPC error.
func toError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	var se *showerr.Error
	if errors.As(err, &se) {
		code, ok := kindCodes[se.Kind]
		if !ok {
			code = CodeInternalError
		}
		return &Error{Code: code, Message: string(se.Kind), Data: &ErrorData{Kind: se.Kind, Detail: se.Detail}}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Code: CodeInternalError, Message: "Internal error", Data: &ErrorData{Detail: "request timed out"}}
	}
	return &Error{Code: CodeInternalError, Message: "Internal error", Data: &ErrorData{Detail: err.Error()}}
}
