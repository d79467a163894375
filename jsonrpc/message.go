package jsonrpc

import (
	"encoding/json"
	"fmt"
)

//Version is the JSON-RPC protocol version string every envelope carries.
const Version = "2.0"

//MethodInitialize is the one method name the transport itself inspects, to
//detect the initialize handshake (spec.md section 4.1 step 5). Every other
//method name is opaque to the transport.
const MethodInitialize = "initialize"

//RawMessage is a JSON-RPC message kept opaque except for the three fields the
//transport is allowed to look at: method, id, result/error (spec.md section 3).
type RawMessage map[string]json.RawMessage

//Method returns the "method" field, if present.
func (m RawMessage) Method() (string, bool) {
	raw, ok := m["method"]
	if !ok {
		return "", false
	}
	var method string
	if err := json.Unmarshal(raw, &method); err != nil {
		return "", false
	}
	return method, true
}

//ID returns the "id" field, if present and non-null.
func (m RawMessage) ID() (RequestID, bool) {
	raw, ok := m["id"]
	if !ok {
		return RequestID{}, false
	}
	var id RequestID
	if err := json.Unmarshal(raw, &id); err != nil {
		return RequestID{}, false
	}
	if id.IsEmpty() {
		return RequestID{}, false
	}
	return id, true
}

//HasResult reports whether the "result" field is present.
func (m RawMessage) HasResult() bool {
	_, ok := m["result"]
	return ok
}

//HasError reports whether the "error" field is present.
func (m RawMessage) HasError() bool {
	_, ok := m["error"]
	return ok
}

//IsRequest reports method-and-id presence: a request.
func (m RawMessage) IsRequest() bool {
	_, hasMethod := m.Method()
	_, hasID := m.ID()
	return hasMethod && hasID
}

//IsNotification reports method-without-id presence: a notification.
func (m RawMessage) IsNotification() bool {
	_, hasMethod := m.Method()
	_, hasID := m.ID()
	return hasMethod && !hasID
}

//IsResponse reports result/error presence without a method: a response.
func (m RawMessage) IsResponse() bool {
	_, hasMethod := m.Method()
	return !hasMethod && (m.HasResult() || m.HasError())
}

//IsInitializeRequest reports whether this message is the initialize request.
func (m RawMessage) IsInitializeRequest() bool {
	method, ok := m.Method()
	return ok && method == MethodInitialize
}

//Marshal re-serializes the raw message back to wire bytes.
func (m RawMessage) Marshal() ([]byte, error) {
	b, err := json.Marshal(map[string]json.RawMessage(m))
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: marshal message: %w", err)
	}
	return b, nil
}

//ParseMessageOrBatch decodes an HTTP body into a Batch, accepting either a
//single JSON object or a JSON array of objects (spec.md section 3: "A batch
//is an ordered sequence of messages in one HTTP body").
func ParseMessageOrBatch(data []byte) (Batch, error) {
	trimmed := jsonFirstNonSpace(data)
	switch trimmed {
	case '[':
		var batch Batch
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("jsonrpc: parse batch: %w", err)
		}
		return batch, nil
	default:
		var single RawMessage
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("jsonrpc: parse message: %w", err)
		}
		return Batch{single}, nil
	}
}

func jsonFirstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b
		}
	}
	return 0
}
