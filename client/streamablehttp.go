// Package client implements the client side of the Streamable HTTP
// transport (spec.md section 4.2): POST for outbound messages, an optional
// standalone GET/SSE listener, session-id learning, and a single retry on
// 401 through the auth.Provider seam. The teacher's client/streamablehttp.go
// is an empty stub; this is a full implementation, grounded on the pack's
// other client transports (HildaM-scaled-mcp's httpClient for the
// session-id/response-routing shape) but built against this module's own
// jsonrpc/sse/auth packages.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kalvera/mcpstream/auth"
	"github.com/kalvera/mcpstream/jsonrpc"
	"github.com/kalvera/mcpstream/logging"
	"github.com/kalvera/mcpstream/sse"
	"github.com/kalvera/mcpstream/transport"
)

// HeaderSessionID matches the server's session-identity header.
const HeaderSessionID = "Mcp-Session-Id"

// HeaderLastEventID is forwarded on GET reconnects (spec.md section 4.2
// "startOrAuth"), carrying the last event id observed on a prior stream.
const HeaderLastEventID = "Last-Event-ID"

// StreamableHTTPClientTransport is the client half of the Streamable HTTP
// transport, bound to one target endpoint and one Consumer.
type StreamableHTTPClientTransport struct {
	url      string
	opts     Options
	consumer transport.Consumer
	http     *http.Client
	log      logging.Logger

	mu            sync.RWMutex
	sessionID     string
	lastEventID   string
	sessionCancel context.CancelFunc

	streams *streamSet
}

// NewStreamableHTTPClientTransport builds a transport targeting url.
func NewStreamableHTTPClientTransport(url string, opts Options, consumer transport.Consumer) *StreamableHTTPClientTransport {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	return &StreamableHTTPClientTransport{
		url:      url,
		opts:     opts,
		consumer: consumer,
		http:     httpClient,
		log:      log,
		streams:  newStreamSet(),
	}
}

// SessionID returns the session id learned from the server, if any.
func (c *StreamableHTTPClientTransport) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *StreamableHTTPClientTransport) setSessionID(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

func (c *StreamableHTTPClientTransport) setLastEventID(id string) {
	c.mu.Lock()
	c.lastEventID = id
	c.mu.Unlock()
}

func (c *StreamableHTTPClientTransport) lastEventIDValue() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastEventID
}

// applyCommonHeaders sets the headers every outbound request composes
// (spec.md section 4.2 "Common headers"): the configured extra headers,
// a bearer token if the auth provider holds one, and the session id once known.
func (c *StreamableHTTPClientTransport) applyCommonHeaders(ctx context.Context, req *http.Request) {
	for k, values := range c.opts.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if c.opts.AuthProvider != nil {
		if tokens, ok := c.opts.AuthProvider.Tokens(ctx); ok && tokens.AccessToken != "" {
			req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
		}
	}
	if sid := c.SessionID(); sid != "" {
		req.Header.Set(HeaderSessionID, sid)
	}
}

// Start fails with ErrAlreadyStarted if any stream is active, otherwise
// scopes an abort controller to this session and attempts the standalone
// SSE listener (spec.md section 4.2 "start").
func (c *StreamableHTTPClientTransport) Start(ctx context.Context) error {
	if c.streams.len() > 0 {
		return ErrAlreadyStarted
	}
	c.mu.Lock()
	if c.sessionCancel != nil {
		c.sessionCancel()
	}
	sessionCtx, cancel := context.WithCancel(ctx)
	c.sessionCancel = cancel
	c.mu.Unlock()

	return c.startOrAuth(sessionCtx, false)
}

// startOrAuth implements spec.md section 4.2 "startOrAuth". retrying guards
// against looping forever if the server keeps returning 401 after a
// successful auth attempt.
func (c *StreamableHTTPClientTransport) startOrAuth(ctx context.Context, retrying bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("client: startOrAuth: build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if id := c.lastEventIDValue(); id != "" {
		req.Header.Set(HeaderLastEventID, id)
	}
	c.applyCommonHeaders(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: startOrAuth: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusMethodNotAllowed:
		resp.Body.Close()
		c.log.Info("server has no standalone GET/SSE listener", nil)
		return nil

	case resp.StatusCode == http.StatusUnauthorized:
		resp.Body.Close()
		if c.opts.AuthProvider == nil || retrying {
			return ErrUnauthorized
		}
		outcome, authErr := c.opts.AuthProvider.Auth(ctx, auth.AuthParams{ServerURL: c.url})
		if authErr != nil {
			return fmt.Errorf("client: startOrAuth: auth: %w", authErr)
		}
		if outcome != auth.Authorized {
			return ErrUnauthorized
		}
		return c.startOrAuth(ctx, true)

	case resp.StatusCode/100 != 2:
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return fmt.Errorf("client: startOrAuth: unexpected status %d: %s", resp.StatusCode, body)

	default:
		streamID := fmt.Sprintf("initial-%d", time.Now().UnixNano())
		streamCtx, cancel := context.WithCancel(ctx)
		c.streams.add(streamID, cancel)
		go c.consumeSSE(streamCtx, resp.Body, streamID)
		return nil
	}
}

// consumeSSE runs one SSE reader to completion, delivering each parsed
// message event to the consumer and tracking the last event id for
// reconnects. It owns closing body and removes itself from streams on exit.
func (c *StreamableHTTPClientTransport) consumeSSE(ctx context.Context, body io.ReadCloser, streamID string) {
	defer body.Close()
	defer c.streams.remove(streamID)

	go func() {
		<-ctx.Done()
		body.Close()
	}()

	dec := sse.NewDecoder(body)
	for {
		ev, err := dec.Next()
		if err != nil {
			if err != io.EOF {
				c.consumer.OnError(fmt.Errorf("client: sse decode (%s): %w", streamID, err))
			}
			return
		}
		if ev.ID != "" {
			c.setLastEventID(ev.ID)
		}
		if !ev.IsMessageEvent() || ev.Data == "" {
			continue
		}
		msg, err := parseRawMessage([]byte(ev.Data))
		if err != nil {
			c.consumer.OnError(fmt.Errorf("client: sse payload (%s): %w", streamID, err))
			continue
		}
		c.consumer.OnMessage(msg, transport.ExtraInfo{})
	}
}

// Send implements spec.md section 4.2 "send(message)". batch may hold a
// single message (per spec.md section 3's "single or batched" wording).
func (c *StreamableHTTPClientTransport) Send(ctx context.Context, batch jsonrpc.Batch) error {
	return c.send(ctx, batch, false)
}

func (c *StreamableHTTPClientTransport) send(ctx context.Context, batch jsonrpc.Batch, retrying bool) error {
	payload, err := marshalBatch(batch)
	if err != nil {
		return fmt.Errorf("client: send: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("client: send: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	c.applyCommonHeaders(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: send: %w", err)
	}

	if sid := resp.Header.Get(HeaderSessionID); sid != "" {
		c.setSessionID(sid)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		resp.Body.Close()
		if c.opts.AuthProvider == nil || retrying {
			return ErrUnauthorized
		}
		outcome, authErr := c.opts.AuthProvider.Auth(ctx, auth.AuthParams{ServerURL: c.url})
		if authErr != nil {
			return fmt.Errorf("client: send: auth: %w", authErr)
		}
		if outcome != auth.Authorized {
			return ErrUnauthorized
		}
		// Single retry, not awaited: onerror must not fire twice for one
		// logical send (spec.md section 4.2 "send" step 4).
		go func() {
			if err := c.send(ctx, batch, true); err != nil {
				c.consumer.OnError(fmt.Errorf("client: send retry: %w", err))
			}
		}()
		return nil

	case resp.StatusCode/100 != 2:
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return fmt.Errorf("client: send: unexpected status %d: %s", resp.StatusCode, data)

	case resp.StatusCode == http.StatusAccepted:
		resp.Body.Close()
		return nil
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case strings.Contains(mediaType, "event-stream"):
		ids := make([]string, 0, len(batch))
		for _, msg := range batch.Requests() {
			if id, ok := msg.ID(); ok {
				ids = append(ids, id.String())
			}
		}
		streamID := fmt.Sprintf("req-%s-%d", strings.Join(ids, ","), time.Now().UnixNano())
		streamCtx, cancel := context.WithCancel(ctx)
		c.streams.add(streamID, cancel)
		go c.consumeSSE(streamCtx, resp.Body, streamID)
		return nil

	case mediaType == "application/json":
		defer resp.Body.Close()
		if !batch.HasRequests() {
			// spec.md section 9 Open Question 2: a JSON body replying to a
			// notification/response-only batch is a protocol violation,
			// surfaced rather than silently dropped.
			c.consumer.OnError(fmt.Errorf("client: send: server returned a JSON body for a notification/response-only batch"))
			return nil
		}
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("client: send: read response: %w", err)
		}
		respBatch, err := jsonrpc.ParseMessageOrBatch(raw)
		if err != nil {
			return fmt.Errorf("client: send: parse response: %w", err)
		}
		for _, msg := range respBatch {
			c.consumer.OnMessage(msg, transport.ExtraInfo{})
		}
		return nil

	default:
		// No Content-Type with a body: undefined per spec.md section 4.2
		// step 7; drop.
		resp.Body.Close()
		return nil
	}
}

// Close cancels every active SSE reader, aborts the session controller, and
// best-effort terminates the session with DELETE (spec.md section 4.2 "close").
func (c *StreamableHTTPClientTransport) Close() error {
	c.streams.cancelAll()

	c.mu.Lock()
	cancel := c.sessionCancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if sid := c.SessionID(); sid != "" {
		ctx := context.Background()
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url, nil)
		if err != nil {
			c.consumer.OnError(fmt.Errorf("client: close: build delete request: %w", err))
		} else {
			c.applyCommonHeaders(ctx, req)
			resp, doErr := c.http.Do(req)
			switch {
			case doErr != nil:
				c.consumer.OnError(fmt.Errorf("client: close: delete: %w", doErr))
			default:
				resp.Body.Close()
			}
		}
	}

	c.consumer.OnClose()
	return nil
}

// FinishAuth implements spec.md section 4.2 "finishAuth(code)".
func (c *StreamableHTTPClientTransport) FinishAuth(ctx context.Context, code string) error {
	if c.opts.AuthProvider == nil {
		return fmt.Errorf("client: finishAuth: no auth provider configured")
	}
	outcome, err := c.opts.AuthProvider.Auth(ctx, auth.AuthParams{ServerURL: c.url, AuthorizationCode: code})
	if err != nil {
		return fmt.Errorf("client: finishAuth: %w", err)
	}
	if outcome != auth.Authorized {
		return ErrUnauthorized
	}
	return nil
}

func parseRawMessage(data []byte) (jsonrpc.RawMessage, error) {
	batch, err := jsonrpc.ParseMessageOrBatch(data)
	if err != nil {
		return nil, err
	}
	if len(batch) != 1 {
		return nil, fmt.Errorf("expected exactly one message, got %d", len(batch))
	}
	return batch[0], nil
}

func marshalBatch(batch jsonrpc.Batch) ([]byte, error) {
	if len(batch) == 1 {
		return batch[0].Marshal()
	}
	parts := make([]json.RawMessage, 0, len(batch))
	for _, msg := range batch {
		part, err := msg.Marshal()
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return json.Marshal(parts)
}
