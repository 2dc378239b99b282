package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

const jsonrpcVersion = "2.0"

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
)

// Error messages clients match on.
const (
	MsgNoValidSession   = "Bad Request: No valid session ID provided"
	MsgInternalError    = "Internal server error"
	MsgMethodNotAllowed = "Method not allowed."
	MsgParseError       = "Parse error"
)

// Request is an inbound JSON-RPC request or notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the peer expects no response.
func (r *Request) IsNotification() bool { return len(r.ID) == 0 }

// Response is an outbound JSON-RPC response. A nil ID encodes as null.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Notification is a server-initiated message with no id.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

func resultResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: jsonrpcVersion, ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{JSONRPC: jsonrpcVersion, ID: id, Error: &Error{Code: code, Message: message}}
}

// decodeRequest parses one message. On failure it returns the error
// response to send instead.
func decodeRequest(body []byte) (*Request, *Response) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return nil, errorResponse(nil, CodeInvalidRequest, "Batch requests are not supported")
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, errorResponse(nil, CodeParseError, MsgParseError)
	}
	if req.JSONRPC != jsonrpcVersion || req.Method == "" {
		return nil, errorResponse(req.ID, CodeInvalidRequest, "Invalid Request")
	}
	return &req, nil
}

func encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// writeJSON writes v as the HTTP response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := encode(v)
	if err != nil {
		data, _ = encode(errorResponse(nil, CodeInternalError, MsgInternalError))
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeRPCError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string) {
	writeJSON(w, status, errorResponse(id, code, message))
}
