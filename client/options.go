package client

import (
	"net/http"

	"github.com/kalvera/mcpstream/auth"
	"github.com/kalvera/mcpstream/logging"
)

// Options configures a StreamableHTTPClientTransport (spec.md section 4.2
// "Construction"). Grounded on HildaM-scaled-mcp's httpClient/ClientOptions
// shape, trimmed to the fields this transport actually reads.
type Options struct {
	// AuthProvider drives the 401-retry-once flow on both the standalone
	// GET listener and send(). Nil means no authentication is attempted.
	AuthProvider auth.Provider

	// Header carries additional request-init headers merged onto every
	// outbound request (spec.md section 4.2 "requestInit").
	Header http.Header

	// HTTPClient is the client used for every request. Defaults to
	// http.DefaultClient's settings via a fresh *http.Client when nil.
	HTTPClient *http.Client

	// Logger receives structured events. Defaults to a no-op logger.
	Logger logging.Logger
}
