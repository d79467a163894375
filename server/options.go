package server

import (
	"github.com/kalvera/mcpstream/jsonrpc"
	"github.com/kalvera/mcpstream/logging"
)

// Options configures a StreamableHTTPServerTransport (spec.md section 4.1
// construction). Grounded on the teacher's StreamableHTTPServerTransportOptions,
// trimmed to drop EnableJSONResponse and EventStore: this server has no
// success branch for GET (spec.md section 4.1's dispatch table only ever
// reaches handlePost/handleDelete/405), so there is nowhere for a standalone
// SSE stream or an event-replay store to attach.
type Options struct {
	// SessionIDGenerator produces a session id once the initialize request
	// is received. A nil generator puts the transport in stateless mode:
	// no Mcp-Session-Id is ever required or emitted.
	SessionIDGenerator func() string

	// Validator checks each decoded message against the JSON-RPC schema.
	// Defaults to jsonrpc.DefaultValidator{} when nil.
	Validator jsonrpc.Validator

	// Logger receives structured events for every handled request. Defaults
	// to a no-op logger when nil.
	Logger logging.Logger

	// OnSessionInitialized is called once, with the new session id, right
	// after a successful initialize handshake assigns one.
	OnSessionInitialized func(sessionID string)

	// OnSessionClosed is called when a DELETE request tears the session
	// down, before the transport's own Close runs.
	OnSessionClosed func(sessionID string)

	// AllowedHosts/AllowedOrigins/EnableDNSRebindingProtection mirror the
	// teacher's DNS-rebinding protection (validateRequestHeaders): when
	// enabled, Host and Origin headers are checked against these sets.
	AllowedHosts                 map[string]struct{}
	AllowedOrigins               map[string]struct{}
	EnableDNSRebindingProtection bool
}
