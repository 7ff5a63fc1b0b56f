package hub

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// JSON-RPC 2.0 specification: https://www.jsonrpc.org/specification

// jsonrpcVersion is the JSON-RPC version required by the MCP wire protocol.
const jsonrpcVersion = "2.0"

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id,omitempty"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response. Result is kept raw so callers decode
// into method-specific shapes.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("JSON-RPC error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// Notification is a JSON-RPC 2.0 notification. No ID, no response expected.
type Notification struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

// requestIDs hands out monotonically increasing request IDs per client.
type requestIDs struct {
	counter atomic.Int64
}

func (g *requestIDs) next() int64 {
	return g.counter.Add(1)
}

// NewRequest builds a JSON-RPC request with the protocol version filled in.
func NewRequest(id any, method string, params map[string]any) *Request {
	return &Request{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// NewNotification builds a JSON-RPC notification.
func NewNotification(method string, params map[string]any) *Notification {
	return &Notification{
		JSONRPC: jsonrpcVersion,
		Method:  method,
		Params:  params,
	}
}

// UnmarshalResponse parses and validates a JSON-RPC response body.
func UnmarshalResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &RPCError{
			Code:    CodeParseError,
			Message: "failed to parse JSON-RPC response",
			Data:    err.Error(),
		}
	}
	if resp.JSONRPC != jsonrpcVersion {
		return nil, &RPCError{
			Code:    CodeInvalidRequest,
			Message: fmt.Sprintf("invalid JSON-RPC version: %q", resp.JSONRPC),
		}
	}
	return &resp, nil
}

// IsError reports whether the response carries an error object.
func (r *Response) IsError() bool {
	return r.Error != nil
}
