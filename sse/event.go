// Package sse implements the Server-Sent Events wire format used to carry
// JSON-RPC responses and notifications over the Streamable HTTP transport
// (spec.md section 4.3).
package sse

//Event is a single parsed SSE record: id/event/data lines between two blank
//line separators, with Event defaulting to "message" when the event field is
//absent.
type Event struct {
	ID    string
	Event string
	Data  string
}

//IsMessageEvent reports whether this event carries a JSON-RPC message, i.e.
//its event field is empty or explicitly "message" (spec.md section 4.3).
func (e Event) IsMessageEvent() bool {
	return e.Event == "" || e.Event == "message"
}
