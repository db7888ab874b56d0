// Package jsonrpc implements the JSON-RPC 2.0 over HTTP transport used to talk
// to Syscoin-style nodes.
package jsonrpc

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Protocol constants.
const (
	// Version is the JSON-RPC protocol version sent with every request.
	Version = "2.0"

	// RequestID is the id sent with every request. Each call is a single
	// HTTP round trip, so responses never need to be matched by id.
	RequestID = "1"

	// DefaultErrorMessage is used when the remote reports an error object
	// without a message.
	DefaultErrorMessage = "Unknown error"
)

// Request is a JSON-RPC request envelope.
type Request struct {
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      string `json:"id"`
	JSONRPC string `json:"jsonrpc"`
}

// NewRequest returns a request envelope for method with the given params.
func NewRequest(method string, params any) Request {
	return Request{
		Method:  method,
		Params:  params,
		ID:      RequestID,
		JSONRPC: Version,
	}
}

// Response is a JSON-RPC response envelope. Result and Error are kept raw so
// that absence and JSON null can be told apart from present values.
type Response struct {
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
	ID     json.RawMessage `json:"id,omitempty"`
}

// Error is a JSON-RPC error object returned by the remote node.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error returns the remote message unchanged.
func (e *Error) Error() string {
	return e.Message
}

// HasResult returns true if the envelope carries a non-null result.
func (r *Response) HasResult() bool {
	return !isNull(r.Result)
}

// RemoteError returns the error carried by the envelope, or nil if the error
// member is absent or null. An error object without a message gets
// DefaultErrorMessage. A bare JSON string is taken as the message.
func (r *Response) RemoteError() (*Error, error) {
	if isNull(r.Error) {
		return nil, nil
	}
	raw := bytes.TrimSpace(r.Error)
	switch raw[0] {
	case '{':
		var obj struct {
			Code    int     `json:"code"`
			Message *string `json:"message"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, errors.Wrap(err, "decoding error object")
		}
		e := &Error{Code: obj.Code, Message: DefaultErrorMessage}
		if obj.Message != nil {
			e.Message = *obj.Message
		}
		return e, nil
	case '"':
		var msg string
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, errors.Wrap(err, "decoding error string")
		}
		return &Error{Message: msg}, nil
	default:
		return &Error{Message: DefaultErrorMessage}, nil
	}
}

// DecodeResponse parses a response body into an envelope. A body carrying
// neither a result nor an error member is not an envelope.
func DecodeResponse(body []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return Response{}, errors.Wrap(err, "decoding response envelope")
	}
	if len(resp.Result) == 0 && len(resp.Error) == 0 {
		return Response{}, errors.New("response envelope has neither result nor error")
	}
	return resp, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
