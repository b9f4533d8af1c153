// Package mcp implements the Model Context Protocol gateway: a
// JSON-RPC 2.0 method dispatcher shared by two transport generations,
// the legacy dual-endpoint transport (POST /mcp-rpc + GET
// /mcp-sse/{client_id}) and the streamable single-endpoint transport
// (POST /mcp) that negotiates JSON vs. SSE per request.
package mcp

import "encoding/json"

// jsonRPCVersion is the only JSON-RPC version the gateway speaks.
const jsonRPCVersion = "2.0"

// Supported MCP protocol versions. The version marker selects the
// transport family: the 2024 version is legacy-only, the 2025 versions
// are streamable-only.
const (
	VersionLegacy         = "2024-11-05"
	VersionStreamable2503 = "2025-03-26"
	VersionStreamable2506 = "2025-06-18"
)

// SupportedVersions lists every protocol version initialize accepts.
var SupportedVersions = []string{VersionLegacy, VersionStreamable2503, VersionStreamable2506}

// StreamableVersions lists the versions served by the single-endpoint
// transport.
var StreamableVersions = []string{VersionStreamable2503, VersionStreamable2506}

// IsSupportedVersion reports whether initialize accepts the version.
func IsSupportedVersion(v string) bool {
	for _, s := range SupportedVersions {
		if s == v {
			return true
		}
	}
	return false
}

// IsStreamableVersion reports whether the version belongs to the
// streamable transport family.
func IsStreamableVersion(v string) bool {
	for _, s := range StreamableVersions {
		if s == v {
			return true
		}
	}
	return false
}

// JSON-RPC error codes, including the MCP-specific range.
const (
	CodeParseError         = -32700
	CodeInvalidRequest     = -32600
	CodeMethodNotFound     = -32601
	CodeInvalidParams      = -32602
	CodeInternalError      = -32603
	CodeInvalidVersion     = -32000
	CodeToolExecutionError = -32002
	CodeResourceNotFound   = -32003
)

// Request is a JSON-RPC 2.0 request. A nil ID with a method present
// marks a notification, which produces no response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Response is a JSON-RPC 2.0 response carrying either a result or an
// error, never both.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// NewResult builds a success response.
func NewResult(id any, result any) *Response {
	return &Response{JSONRPC: jsonRPCVersion, ID: id, Result: result}
}

// NewError builds an error response.
func NewError(id any, code int, message string) *Response {
	return &Response{JSONRPC: jsonRPCVersion, ID: id, Error: &Error{Code: code, Message: message}}
}

// NewErrorData builds an error response with attached data.
func NewErrorData(id any, code int, message string, data any) *Response {
	return &Response{JSONRPC: jsonRPCVersion, ID: id, Error: &Error{Code: code, Message: message, Data: data}}
}

// ParseRequest decodes a JSON-RPC request from raw bytes. The second
// return distinguishes a parse error (malformed JSON) from an invalid
// request (valid JSON, wrong shape).
func ParseRequest(data []byte) (*Request, *Response) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, NewError(nil, CodeParseError, "Invalid JSON")
	}
	if req.JSONRPC != jsonRPCVersion || req.Method == "" {
		return nil, NewError(req.ID, CodeInvalidRequest, "Invalid JSON-RPC request")
	}
	return &req, nil
}
