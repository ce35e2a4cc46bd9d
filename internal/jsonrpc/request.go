package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Request represents a JSON-RPC request. Value is an extension member: a
// hex-encoded native amount attached to the call, rejected by every
// entrypoint method when non-zero.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	Value   string          `json:"value,omitempty"`
	ID      ID              `json:"id"`
}

// Validate checks if the request is valid.
func (r *Request) Validate() error {
	if r.JSONRPC != Version {
		return fmt.Errorf("invalid jsonrpc version: %s", r.JSONRPC)
	}
	if r.Method == "" {
		return fmt.Errorf("method is required")
	}
	return nil
}

// ParseRequest parses a single JSON-RPC request from bytes.
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// NewRequest creates a new JSON-RPC request.
func NewRequest(method string, params interface{}, id ID) (*Request, error) {
	req := &Request{
		JSONRPC: Version,
		Method:  method,
		ID:      id,
	}
	if params != nil {
		paramsBytes, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		req.Params = paramsBytes
	}
	return req, nil
}

// Bytes returns the request as JSON bytes.
func (r *Request) Bytes() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalParams decodes the params array into dst pointers, one per
// positional parameter.
func (r *Request) UnmarshalParams(dst ...interface{}) error {
	var raw []json.RawMessage
	if len(r.Params) > 0 {
		if err := json.Unmarshal(r.Params, &raw); err != nil {
			return fmt.Errorf("params must be an array: %w", err)
		}
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("expected %d params, got %d", len(dst), len(raw))
	}
	for i, p := range raw {
		if err := json.Unmarshal(p, dst[i]); err != nil {
			return fmt.Errorf("param %d: %w", i, err)
		}
	}
	return nil
}
