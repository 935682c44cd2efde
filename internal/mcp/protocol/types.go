package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// JSONRPCVersion is the only version spoken.
const JSONRPCVersion = "2.0"

// Error codes beyond the JSON-RPC standard set.
const (
	// CodeUnauthorized is returned with HTTP 401 when the bearer token is
	// missing or invalid.
	CodeUnauthorized = -32001
)

var nullID = json.RawMessage("null")

// Request is an inbound JSON-RPC message.
type Request struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// HasID reports whether the request carries an id. Requests without one
// are notifications when their method allows it.
func (r *Request) HasID() bool {
	return len(r.ID) > 0
}

func (r *Request) responseID() json.RawMessage {
	if !r.HasID() {
		return nullID
	}
	return r.ID
}

// Response is an outbound JSON-RPC message.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object. Handlers return it to choose the code
// sent to the caller; any other error becomes an internal error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError creates a JSON-RPC error.
func NewError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrInvalidParams is shorthand for an invalid params error.
func ErrInvalidParams(format string, args ...any) *Error {
	return NewError(mcp.INVALID_PARAMS, format, args...)
}

func resultResponse(id json.RawMessage, result any) *Response {
	if result == nil {
		result = struct{}{}
	}
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Result: result}
}

func errorResponse(id json.RawMessage, err *Error) *Response {
	if len(id) == 0 {
		id = nullID
	}
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Error: err}
}
