// Package transport holds the contracts shared by the server and client
// Streamable HTTP transports: the callback-slot consumer interface, the
// per-send options, and the extra per-message metadata (spec.md section 9
// "Callback slots vs. ownership").
package transport

import (
	"net/http"

	"github.com/kalvera/mcpstream/jsonrpc"
)

//SendOptions carries the per-send routing hint described in spec.md
//section 4.1 "send": RelatedRequestID tells the transport which inbound
//request an outbound notification or response belongs to.
//
//ResumptionToken/OnResumptionToken are kept as pass-through fields for a
//future resumable-event-store layer to use; this transport's resumability
//is limited to forwarding Last-Event-ID (spec.md Non-goals), so neither
//field is read by server or client today.
type SendOptions struct {
	RelatedRequestID  jsonrpc.RequestID
	ResumptionToken   string
	OnResumptionToken func(string)
}

//AuthInfo carries the validated access token for a request, set by a host
//framework/auth middleware ahead of the transport and threaded through to
//the message callback. The transport never validates tokens itself.
type AuthInfo struct {
	Token     string
	ExpiresAt int64
}

//ExtraInfo accompanies every message delivered to a Consumer's OnMessage.
type ExtraInfo struct {
	AuthInfo    *AuthInfo
	RequestInfo *RequestInfo
}

//RequestInfo exposes the originating HTTP headers to the message consumer.
type RequestInfo struct {
	Headers http.Header
}

//Consumer is the set of callback slots a transport is driven by (spec.md
//section 9): OnMessage for inbound messages, OnError for out-of-band
//failures, OnClose for connection teardown. Modeling this as an interface
//the transport is constructed with avoids the teacher's mutable nullable
//callback fields.
type Consumer interface {
	OnMessage(msg jsonrpc.RawMessage, extra ExtraInfo)
	OnError(err error)
	OnClose()
}
