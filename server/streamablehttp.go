// Package server implements the server side of the Streamable HTTP
// transport (spec.md section 4.1): a single net/http handler fielding POST
// (JSON-RPC batches, answered over SSE), DELETE (session termination), and
// rejecting every other method with 405. Grounded on the teacher's
// mcp/server/streamablehttp.go, restructured around the routing/session
// primitives in responsemap.go and session.go.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/kalvera/mcpstream/jsonrpc"
	"github.com/kalvera/mcpstream/logging"
	"github.com/kalvera/mcpstream/transport"
	"golang.org/x/text/encoding/htmlindex"
)

// MaxMessageSize bounds a POST body, matching the teacher's
// MAXIMUM_MESSAGE_SIZE.
const MaxMessageSize = 4 * 1024 * 1024

// HeaderSessionID is the session-identity header (spec.md section 3).
const HeaderSessionID = "Mcp-Session-Id"

// HeaderProtocolVersion is the negotiated-version header the teacher
// validates on every non-initialize request (SPEC_FULL.md section 10).
const HeaderProtocolVersion = "Mcp-Protocol-Version"

// DefaultProtocolVersion is assumed when a request omits HeaderProtocolVersion.
const DefaultProtocolVersion = "2025-03-26"

// SupportedProtocolVersions mirrors the teacher's SUPPORTED_PROTOCOL_VERSIONS.
var SupportedProtocolVersions = map[string]struct{}{
	"2025-03-26": {},
	"2024-11-05": {},
	"2024-10-07": {},
}

// StreamableHTTPServerTransport is one session's worth of Streamable HTTP
// server plumbing. It is constructed with its Consumer up front (spec.md
// section 9's callback-slot generalization), not wired via setters, so it
// can never fire callbacks into a nil slot.
type StreamableHTTPServerTransport struct {
	opts     Options
	consumer transport.Consumer
	log      logging.Logger

	started bool

	session   session
	responses *responseMap
}

// NewStreamableHTTPServerTransport builds a transport bound to consumer.
// A nil opts.SessionIDGenerator puts the session in stateless mode.
func NewStreamableHTTPServerTransport(opts Options, consumer transport.Consumer) *StreamableHTTPServerTransport {
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	if opts.Validator == nil {
		opts.Validator = jsonrpc.DefaultValidator{}
	}
	return &StreamableHTTPServerTransport{
		opts:      opts,
		consumer:  consumer,
		log:       log,
		responses: newResponseMap(),
	}
}

// Start marks the transport ready to handle requests. It may be called only
// once; a second call errors like the teacher's Start.
func (s *StreamableHTTPServerTransport) Start() error {
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	return nil
}

// SessionID returns the session id assigned at initialize, or "" before
// initialize or in stateless mode.
func (s *StreamableHTTPServerTransport) SessionID() string {
	return s.session.sessionID()
}

// HandleRequest is the single entry point from the host HTTP framework
// (spec.md section 4.1 "handleRequest"), dispatching by method.
func (s *StreamableHTTPServerTransport) HandleRequest(w http.ResponseWriter, r *http.Request) {
	if err := s.validateRequestHeaders(r); err != nil {
		writeError(w, http.StatusForbidden, jsonrpc.ErrCodeGeneric, err.Error())
		s.consumer.OnError(fmt.Errorf("server: validateRequestHeaders: %w", err))
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		s.handleUnsupported(w)
	}
}

func (s *StreamableHTTPServerTransport) validateRequestHeaders(r *http.Request) error {
	if !s.opts.EnableDNSRebindingProtection {
		return nil
	}
	if len(s.opts.AllowedHosts) > 0 {
		if _, ok := s.opts.AllowedHosts[r.Host]; !ok {
			return fmt.Errorf("invalid Host header: %s", r.Host)
		}
	}
	if len(s.opts.AllowedOrigins) > 0 {
		origin := r.Header.Get("Origin")
		if _, ok := s.opts.AllowedOrigins[origin]; !ok {
			return fmt.Errorf("invalid Origin header: %s", origin)
		}
	}
	return nil
}

// validateSession implements spec.md section 4.1 "validateSession": the
// initialized check is unconditional on mode (spec.md section 8's "DELETE
// before initialize" boundary case names no stateful/stateless qualifier);
// only the session-header comparison is skipped in stateless mode. Returns
// false after already writing an error response.
func (s *StreamableHTTPServerTransport) validateSession(w http.ResponseWriter, r *http.Request) bool {
	if !s.session.isInitialized() {
		writeError(w, http.StatusBadRequest, jsonrpc.ErrCodeGeneric, "Bad Request: Server not initialized")
		return false
	}
	if s.opts.SessionIDGenerator == nil {
		return true
	}

	values := r.Header.Values(HeaderSessionID)
	switch len(values) {
	case 0:
		writeError(w, http.StatusBadRequest, jsonrpc.ErrCodeGeneric, "Bad Request: Mcp-Session-Id header is required")
		return false
	case 1:
	default:
		writeError(w, http.StatusBadRequest, jsonrpc.ErrCodeGeneric, "Bad Request: Mcp-Session-Id header must be a single value")
		return false
	}

	if values[0] != s.session.sessionID() {
		writeError(w, http.StatusNotFound, jsonrpc.ErrCodeSessionNotFound, "Session not found")
		return false
	}
	return true
}

func (s *StreamableHTTPServerTransport) validateProtocolVersion(w http.ResponseWriter, r *http.Request) bool {
	version := r.Header.Get(HeaderProtocolVersion)
	if version == "" {
		version = DefaultProtocolVersion
	}
	if _, ok := SupportedProtocolVersions[version]; !ok {
		writeError(w, http.StatusBadRequest, jsonrpc.ErrCodeGeneric,
			fmt.Sprintf("Bad Request: unsupported protocol version %q", version))
		return false
	}
	return true
}

// handlePost implements spec.md section 4.1 "handlePost" end to end.
func (s *StreamableHTTPServerTransport) handlePost(w http.ResponseWriter, r *http.Request) {
	accept := r.Header.Get("Accept")
	if !strings.Contains(accept, "application/json") || !strings.Contains(accept, "text/event-stream") {
		writeError(w, http.StatusNotAcceptable, jsonrpc.ErrCodeGeneric,
			"Not Acceptable: client must accept both application/json and text/event-stream")
		return
	}

	contentType := r.Header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		writeError(w, http.StatusUnsupportedMediaType, jsonrpc.ErrCodeGeneric,
			"Unsupported Media Type: Content-Type must be application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxMessageSize)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		s.parseError(w, fmt.Errorf("server: read body: %w", err))
		return
	}
	raw, err = decodeCharset(raw, params["charset"])
	if err != nil {
		s.parseError(w, fmt.Errorf("server: decode charset: %w", err))
		return
	}

	batch, err := jsonrpc.ParseMessageOrBatch(raw)
	if err != nil {
		s.parseError(w, fmt.Errorf("server: parse body: %w", err))
		return
	}
	for _, msg := range batch {
		if err := s.opts.Validator.Validate(msg); err != nil {
			s.parseError(w, fmt.Errorf("server: validate message: %w", err))
			return
		}
	}

	if batch.HasInitialize() {
		if s.session.isInitialized() {
			writeError(w, http.StatusBadRequest, jsonrpc.ErrCodeInvalidRequest, "Invalid Request: Server already initialized")
			return
		}
		if len(batch) > 1 {
			writeError(w, http.StatusBadRequest, jsonrpc.ErrCodeInvalidRequest, "Invalid Request: Only one initialization request is allowed")
			return
		}
		id := ""
		if s.opts.SessionIDGenerator != nil {
			id = s.opts.SessionIDGenerator()
		}
		if !s.session.initialize(id) {
			writeError(w, http.StatusBadRequest, jsonrpc.ErrCodeInvalidRequest, "Invalid Request: Server already initialized")
			return
		}
		if id != "" && s.opts.OnSessionInitialized != nil {
			s.opts.OnSessionInitialized(id)
		}
		s.log.Info("session initialized", logging.Fields{"sessionId": id})
	} else {
		if !s.validateSession(w, r) {
			return
		}
		if !s.validateProtocolVersion(w, r) {
			return
		}
	}

	authInfo := extractAuthInfo(r)
	extra := transport.ExtraInfo{
		AuthInfo:    authInfo,
		RequestInfo: &transport.RequestInfo{Headers: r.Header},
	}

	if batch.OnlyNotificationsOrResponses() {
		w.WriteHeader(http.StatusAccepted)
		for _, msg := range batch {
			s.consumer.OnMessage(msg, extra)
		}
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if sid := s.session.sessionID(); sid != "" {
		w.Header().Set(HeaderSessionID, sid)
	}
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	ids := make([]jsonrpc.RequestID, 0, len(batch))
	for _, req := range batch.Requests() {
		id, _ := req.ID()
		ids = append(ids, id)
	}
	conn := newSSEConnection(w, ids)
	for _, id := range ids {
		s.responses.set(id, conn)
	}

	go func() {
		select {
		case <-r.Context().Done():
			s.responses.deleteConnection(conn)
			conn.markDone()
		case <-conn.done:
		}
	}()

	for _, msg := range batch {
		s.consumer.OnMessage(msg, extra)
	}

	<-conn.done
}

func (s *StreamableHTTPServerTransport) parseError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, jsonrpc.ErrCodeParseError, "Parse error")
	s.log.Warn("rejected malformed request body", logging.Fields{"error": err.Error()})
	s.consumer.OnError(err)
}

// handleDelete implements spec.md section 4.1 "handleDelete".
func (s *StreamableHTTPServerTransport) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !s.validateSession(w, r) {
		return
	}
	if !s.validateProtocolVersion(w, r) {
		return
	}
	sid := s.session.sessionID()
	if s.opts.OnSessionClosed != nil {
		s.opts.OnSessionClosed(sid)
	}
	if err := s.Close(); err != nil {
		writeError(w, http.StatusInternalServerError, jsonrpc.ErrCodeInternalError, "Error on close")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *StreamableHTTPServerTransport) handleUnsupported(w http.ResponseWriter) {
	w.Header().Set("Allow", "POST, DELETE")
	writeError(w, http.StatusMethodNotAllowed, jsonrpc.ErrCodeGeneric, "Method not allowed.")
}

// Send implements spec.md section 4.1 "send": the routing id comes from the
// outbound message itself (if it is a response) or from opts.RelatedRequestID
// otherwise; absence of any routing id, or no live connection for it, fails.
func (s *StreamableHTTPServerTransport) Send(msg interface{}, opts *transport.SendOptions) error {
	id := routingID(msg, opts)
	if id.IsEmpty() {
		return ErrNoRequestID
	}

	conn, ok := s.responses.get(id)
	if !ok {
		return ErrNoConnection
	}

	data, err := marshalOutbound(msg)
	if err != nil {
		return fmt.Errorf("server: marshal outbound message: %w", err)
	}
	if err := conn.writeEvent(data, ""); err != nil {
		return fmt.Errorf("server: write sse event: %w", err)
	}

	_, isResponder := msg.(jsonrpc.Responder)
	raw, isRaw := msg.(jsonrpc.RawMessage)
	if isResponder || (isRaw && raw.IsResponse()) {
		s.responses.delete(id)
		conn.finishID(id)
	}
	return nil
}

func routingID(msg interface{}, opts *transport.SendOptions) jsonrpc.RequestID {
	if responder, ok := msg.(jsonrpc.Responder); ok {
		return responder.ResponseID()
	}
	if raw, ok := msg.(jsonrpc.RawMessage); ok && raw.IsResponse() {
		id, _ := raw.ID()
		return id
	}
	if opts != nil {
		return opts.RelatedRequestID
	}
	return jsonrpc.RequestID{}
}

func marshalOutbound(msg interface{}) ([]byte, error) {
	if marshaler, ok := msg.(interface{ Marshal() ([]byte, error) }); ok {
		return marshaler.Marshal()
	}
	return json.Marshal(msg)
}

// Close tears down every live SSE connection and fires OnClose.
func (s *StreamableHTTPServerTransport) Close() error {
	s.session.close()
	s.responses.clear()
	s.log.Info("session closed", logging.Fields{"sessionId": s.session.sessionID()})
	s.consumer.OnClose()
	return nil
}

func extractAuthInfo(r *http.Request) *transport.AuthInfo {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return nil
	}
	return &transport.AuthInfo{Token: strings.TrimPrefix(auth, "Bearer ")}
}

// decodeCharset transcodes raw to UTF-8 per the Content-Type's charset
// parameter (spec.md section 4.1 step 3), defaulting to UTF-8 when charset
// is empty or already utf-8. Grounded on golang.org/x/text's encoding
// registry, the way golang-tools' own gopls module resolves file charsets.
func decodeCharset(raw []byte, charset string) ([]byte, error) {
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return raw, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("transcode charset %q: %w", charset, err)
	}
	return decoded, nil
}

func writeError(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonrpc.NewErrorEnvelope(code, message))
}
