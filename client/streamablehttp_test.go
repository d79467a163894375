package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalvera/mcpstream/auth"
	"github.com/kalvera/mcpstream/jsonrpc"
	"github.com/kalvera/mcpstream/transport"
	"github.com/stretchr/testify/require"
)

type recordingConsumer struct {
	mu       sync.Mutex
	messages []jsonrpc.RawMessage
	errors   []error
	closed   bool
}

func (c *recordingConsumer) OnMessage(msg jsonrpc.RawMessage, _ transport.ExtraInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

func (c *recordingConsumer) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
}

func (c *recordingConsumer) OnClose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *recordingConsumer) snapshot() ([]jsonrpc.RawMessage, []error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]jsonrpc.RawMessage(nil), c.messages...), append([]error(nil), c.errors...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within timeout")
}

func TestSend_JSONResponseRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Mcp-Session-Id", "sess-1")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`))
	}))
	defer srv.Close()

	consumer := &recordingConsumer{}
	c := NewStreamableHTTPClientTransport(srv.URL, Options{}, consumer)

	req := jsonrpc.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      json.RawMessage(`1`),
		"method":  json.RawMessage(`"ping"`),
	}
	err := c.Send(context.Background(), jsonrpc.Batch{req})
	require.NoError(t, err)

	waitFor(t, func() bool { msgs, _ := consumer.snapshot(); return len(msgs) == 1 })
	require.Equal(t, "sess-1", c.SessionID())
}

func TestSend_AcceptedNotificationNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	consumer := &recordingConsumer{}
	c := NewStreamableHTTPClientTransport(srv.URL, Options{}, consumer)

	notif := jsonrpc.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"method":  json.RawMessage(`"notifications/progress"`),
	}
	err := c.Send(context.Background(), jsonrpc.Batch{notif})
	require.NoError(t, err)
	msgs, errs := consumer.snapshot()
	require.Empty(t, msgs)
	require.Empty(t, errs)
}

func TestSend_JSONBodyForNotificationOnlyBatchReportsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	}))
	defer srv.Close()

	consumer := &recordingConsumer{}
	c := NewStreamableHTTPClientTransport(srv.URL, Options{}, consumer)

	notif := jsonrpc.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"method":  json.RawMessage(`"notifications/progress"`),
	}
	err := c.Send(context.Background(), jsonrpc.Batch{notif})
	require.NoError(t, err)

	waitFor(t, func() bool { _, errs := consumer.snapshot(); return len(errs) == 1 })
}

type fakeAuthProvider struct {
	authCalls int32
	token     atomic.Value
}

func (p *fakeAuthProvider) Tokens(ctx context.Context) (auth.Tokens, bool) {
	v := p.token.Load()
	if v == nil {
		return auth.Tokens{}, false
	}
	return auth.Tokens{AccessToken: v.(string)}, true
}

func (p *fakeAuthProvider) Auth(ctx context.Context, params auth.AuthParams) (auth.Outcome, error) {
	atomic.AddInt32(&p.authCalls, 1)
	p.token.Store("fresh-token")
	return auth.Authorized, nil
}

func TestSend_RetriesOnceAfter401(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.Equal(t, "Bearer fresh-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	consumer := &recordingConsumer{}
	provider := &fakeAuthProvider{}
	c := NewStreamableHTTPClientTransport(srv.URL, Options{AuthProvider: provider}, consumer)

	req := jsonrpc.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      json.RawMessage(`1`),
		"method":  json.RawMessage(`"ping"`),
	}
	err := c.Send(context.Background(), jsonrpc.Batch{req})
	require.NoError(t, err)

	waitFor(t, func() bool { return atomic.LoadInt32(&attempts) == 2 })
	require.Equal(t, int32(1), atomic.LoadInt32(&provider.authCalls))
}

func TestStart_ToleratesServerWithout405GetSupport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", "POST, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	consumer := &recordingConsumer{}
	c := NewStreamableHTTPClientTransport(srv.URL, Options{}, consumer)

	err := c.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, c.streams.len())
}

func TestStart_AlreadyStartedFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Keep the standalone SSE listener open so a stream stays active.
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	consumer := &recordingConsumer{}
	c := NewStreamableHTTPClientTransport(srv.URL, Options{}, consumer)
	defer c.Close()

	require.NoError(t, c.Start(context.Background()))
	require.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)
}

func TestStartSSE_IgnoresDatalessKeepAliveEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		// A keep-alive/resumption-marker record carrying only an id, no
		// data line at all: must not be treated as a malformed payload.
		_, _ = io.WriteString(w, "id: 1\n\n")
		flusher.Flush()
		_, _ = io.WriteString(w, "event: message\nid: 2\ndata: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/progress\"}\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	consumer := &recordingConsumer{}
	c := NewStreamableHTTPClientTransport(srv.URL, Options{}, consumer)

	require.NoError(t, c.Start(context.Background()))
	waitFor(t, func() bool { msgs, _ := consumer.snapshot(); return len(msgs) == 1 })

	_, errs := consumer.snapshot()
	require.Empty(t, errs)
}

func TestClose_TerminatesSessionWithDelete(t *testing.T) {
	var sawDelete int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.Header().Set("Mcp-Session-Id", "sess-7")
			w.WriteHeader(http.StatusAccepted)
		case http.MethodDelete:
			require.Equal(t, "sess-7", r.Header.Get(HeaderSessionID))
			atomic.AddInt32(&sawDelete, 1)
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	consumer := &recordingConsumer{}
	c := NewStreamableHTTPClientTransport(srv.URL, Options{}, consumer)

	notif := jsonrpc.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"method":  json.RawMessage(`"notifications/initialized"`),
	}
	require.NoError(t, c.Send(context.Background(), jsonrpc.Batch{notif}))
	require.Equal(t, "sess-7", c.SessionID())

	require.NoError(t, c.Close())
	require.Equal(t, int32(1), atomic.LoadInt32(&sawDelete))

	_, _ = consumer.snapshot()
	require.True(t, consumer.closed)
}
