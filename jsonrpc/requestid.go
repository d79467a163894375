package jsonrpc

import (
	"encoding/json"
	"fmt"
	"strconv"
)

//RequestID is a JSON-RPC request identifier: a JSON scalar, either a string or a number.
//The zero value represents "no id" (e.g. a notification, or the standalone SSE stream).
type RequestID struct {
	str      string
	num      float64
	isString bool
	isNumber bool
}

//NewRequestIDString builds a RequestID backed by a string value.
func NewRequestIDString(v string) RequestID {
	return RequestID{str: v, isString: true}
}

//NewRequestIDNumber builds a RequestID backed by a numeric value.
func NewRequestIDNumber(v float64) RequestID {
	return RequestID{num: v, isNumber: true}
}

//IsEmpty reports whether this RequestID carries neither a string nor a number, i.e. "no id".
func (r RequestID) IsEmpty() bool {
	return !r.isString && !r.isNumber
}

//String renders the id for logging and map-key debugging; it is not the wire format.
func (r RequestID) String() string {
	switch {
	case r.isString:
		return r.str
	case r.isNumber:
		return strconv.FormatFloat(r.num, 'f', -1, 64)
	default:
		return "<empty>"
	}
}

func (r RequestID) MarshalJSON() ([]byte, error) {
	switch {
	case r.isString:
		return json.Marshal(r.str)
	case r.isNumber:
		return json.Marshal(r.num)
	default:
		return []byte("null"), nil
	}
}

func (r *RequestID) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("jsonrpc: unmarshal request id: %w", err)
	}
	switch v := raw.(type) {
	case nil:
		*r = RequestID{}
	case string:
		*r = NewRequestIDString(v)
	case float64:
		*r = NewRequestIDNumber(v)
	default:
		return fmt.Errorf("jsonrpc: request id must be a string or number, got %T", raw)
	}
	return nil
}
