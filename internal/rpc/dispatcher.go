// Package rpc is the JSON-RPC 2.0 control plane: a transport-agnostic
// dispatcher, its HTTP and websocket server, and a client.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
)

// Version is the only protocol version accepted.
const Version = "2.0"

// MethodPrefix is accepted in front of every method name for older clients.
const MethodPrefix = "wotabag."

// Request is a JSON-RPC request or notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	// ID is nil for notifications.
	ID json.RawMessage `json:"id,omitempty"`
}

// Response is a JSON-RPC response. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// HandlerFunc implements one method.
type HandlerFunc func(ctx context.Context, params Params) (interface{}, error)

// Dispatcher routes requests to registered methods.
type Dispatcher struct {
	mu      sync.RWMutex
	methods map[string]HandlerFunc
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{methods: make(map[string]HandlerFunc)}
}

// Register adds or replaces a method.
func (d *Dispatcher) Register(name string, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.methods[name] = fn
}

// Methods returns the registered method names.
func (d *Dispatcher) Methods() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.methods))
	for name := range d.methods {
		names = append(names, name)
	}
	return names
}

// Handle processes one encoded request or batch and returns the encoded
// response. It returns nil when nothing must be sent back (notifications only).
func (d *Dispatcher) Handle(ctx context.Context, data []byte) []byte {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || !json.Valid(data) {
		return encode(errorResponse(nil, newError(CodeParseError, "Parse error")))
	}

	if data[0] != '[' {
		resp := d.handleOne(ctx, data)
		if resp == nil {
			return nil
		}
		return encode(resp)
	}

	var batch []json.RawMessage
	if err := json.Unmarshal(data, &batch); err != nil || len(batch) == 0 {
		return encode(errorResponse(nil, newError(CodeInvalidRequest, "Invalid Request")))
	}
	responses := make([]*Response, 0, len(batch))
	for _, raw := range batch {
		if resp := d.handleOne(ctx, raw); resp != nil {
			responses = append(responses, resp)
		}
	}
	if len(responses) == 0 {
		return nil
	}
	return encode(responses)
}

func (d *Dispatcher) handleOne(ctx context.Context, raw json.RawMessage) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nil, newError(CodeInvalidRequest, "Invalid Request"))
	}
	if req.JSONRPC != Version || req.Method == "" {
		return errorResponse(req.ID, newError(CodeInvalidRequest, "Invalid Request"))
	}
	notification := req.ID == nil

	name := strings.TrimPrefix(req.Method, MethodPrefix)
	d.mu.RLock()
	fn, ok := d.methods[name]
	d.mu.RUnlock()
	if !ok {
		if notification {
			return nil
		}
		return errorResponse(req.ID, &Error{Code: CodeMethodNotFound, Message: "Method not found",
			Data: &ErrorData{Detail: req.Method}})
	}

	params, perr := parseParams(req.Params)
	if perr != nil {
		if notification {
			return nil
		}
		return errorResponse(req.ID, perr)
	}

	result, err := d.call(ctx, name, fn, params)
	if notification {
		if err != nil {
			log.Printf("Warning: notification %s failed: %v", name, err)
		}
		return nil
	}
	if err != nil {
		return errorResponse(req.ID, toError(err))
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, toError(fmt.Errorf("encode result: %w", err)))
	}
	return &Response{JSONRPC: Version, Result: encoded, ID: req.ID}
}

// call runs a handler, turning a panic into an internal error.
func (d *Dispatcher) call(ctx context.Context, name string, fn HandlerFunc, params Params) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Panic in rpc method %s: %v", name, r)
			err = newError(CodeInternalError, "Internal error")
		}
	}()
	return fn(ctx, params)
}

func errorResponse(id json.RawMessage, err *Error) *Response {
	return &Response{JSONRPC: Version, Error: err, ID: id}
}

func encode(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Responses only contain marshalable values.
		log.Printf("Warning: failed to encode rpc response: %v", err)
		return []byte(`{"jsonrpc":"2.0","error":{"code":-32603,"message":"Internal error"},"id":null}`)
	}
	return data
}

// Params gives typed access to positional or named parameters.
type Params struct {
	positional []json.RawMessage
	named      map[string]json.RawMessage
}

func parseParams(raw json.RawMessage) (Params, *Error) {
	var p Params
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return p, nil
	}
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &p.positional); err != nil {
			return p, invalidParams("%v", err)
		}
	case '{':
		if err := json.Unmarshal(raw, &p.named); err != nil {
			return p, invalidParams("%v", err)
		}
	default:
		return p, invalidParams("params must be an array or an object")
	}
	return p, nil
}

// lookup returns the raw value at position pos or under name.
func (p Params) lookup(pos int, name string) (json.RawMessage, bool) {
	if p.named != nil {
		v, ok := p.named[name]
		return v, ok && !bytes.Equal(v, []byte("null"))
	}
	if pos < len(p.positional) && !bytes.Equal(p.positional[pos], []byte("null")) {
		return p.positional[pos], true
	}
	return nil, false
}

// Decode unmarshals the parameter at pos or name into v. It reports whether
// the parameter was present.
func (p Params) Decode(pos int, name string, v interface{}) (bool, error) {
	raw, ok := p.lookup(pos, name)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, invalidParams("%s: %v", name, err)
	}
	return true, nil
}

// Int returns an optional integer parameter.
func (p Params) Int(pos int, name string) (*int, error) {
	var v int
	ok, err := p.Decode(pos, name, &v)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

// RequireInt returns a mandatory integer parameter.
func (p Params) RequireInt(pos int, name string) (int, error) {
	v, err := p.Int(pos, name)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, invalidParams("missing %s", name)
	}
	return *v, nil
}
