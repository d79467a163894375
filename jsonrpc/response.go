package jsonrpc

import "encoding/json"

//Responder is implemented by outbound messages that are themselves a
//response (result or error), so Send can recover the routing id from the
//message (spec.md section 4.1 "send"): "if the message is a response, use
//message.id; else use relatedRequestId".
type Responder interface {
	ResponseID() RequestID
}

//Response is a successful JSON-RPC response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Result  json.RawMessage `json:"result"`
}

func NewResponse(id RequestID, result json.RawMessage) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

func (r *Response) ResponseID() RequestID { return r.ID }

//ErrorResponse is a failed JSON-RPC response.
type ErrorResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      RequestID `json:"id"`
	Error   *Error    `json:"error"`
}

func NewErrorResponse(id RequestID, err *Error) *ErrorResponse {
	return &ErrorResponse{JSONRPC: Version, ID: id, Error: err}
}

func (r *ErrorResponse) ResponseID() RequestID { return r.ID }
