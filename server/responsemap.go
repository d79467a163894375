package server

import (
	"net/http"
	"sync"

	"github.com/kalvera/mcpstream/jsonrpc"
	"github.com/kalvera/mcpstream/sse"
)

// sseConnection is one live HTTP response streaming SSE frames back to a
// client, shared by every request id that arrived in the same POST batch
// (spec.md section 3: "a batch is an ordered sequence of messages in one
// HTTP body"). writeEvent serializes concurrent writers, the way the
// teacher's single ResponseWriter.Writer() is always reached under the
// caller's own synchronization.
//
// done closes once every id routed to this connection has received a
// terminal response; handlePost blocks on it so the net/http handler
// goroutine returns (and the underlying connection closes) only after
// send() has emitted every reply, not before - the teacher's handlePostRequest
// returns immediately after installing the stream mapping and relies on the
// caller never observing that the response is, in real net/http, already
// finalized by the time send() tries to write to it. The blocking handoff
// here is grounded on the teacher's own waitResponse channel in
// replayEvents, generalized from one-shot replay to the general case.
type sseConnection struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu   sync.Mutex
	ids  map[jsonrpc.RequestID]struct{}
	done chan struct{}
	once sync.Once
}

func newSSEConnection(w http.ResponseWriter, ids []jsonrpc.RequestID) *sseConnection {
	set := make(map[jsonrpc.RequestID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	flusher, _ := w.(http.Flusher)
	return &sseConnection{w: w, flusher: flusher, ids: set, done: make(chan struct{})}
}

func (c *sseConnection) writeEvent(data []byte, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := sse.WriteEvent(c.w, data, eventID); err != nil {
		return err
	}
	if c.flusher != nil {
		c.flusher.Flush()
	}
	return nil
}

// finishID marks id as answered. Once every id this connection was opened
// for has been answered, done closes and the blocked handlePost call returns.
func (c *sseConnection) finishID(id jsonrpc.RequestID) {
	c.mu.Lock()
	delete(c.ids, id)
	remaining := len(c.ids)
	c.mu.Unlock()
	if remaining == 0 {
		c.markDone()
	}
}

func (c *sseConnection) markDone() {
	c.once.Do(func() { close(c.done) })
}

// responseMap is the concurrent requestID -> connection routing table (spec.md
// section 9 "Response routing map"), the generalization of the teacher's
// muxMapStreamMapping/muxMapRequestToStreamMapping pair: since this server
// never runs enableJSONResponse or multiple streams per session, one map
// keyed directly by request id replaces the teacher's two-hop
// id -> streamID -> ResponseWriter indirection.
type responseMap struct {
	mu sync.RWMutex
	m  map[jsonrpc.RequestID]*sseConnection
}

func newResponseMap() *responseMap {
	return &responseMap{m: make(map[jsonrpc.RequestID]*sseConnection)}
}

func (rm *responseMap) set(id jsonrpc.RequestID, conn *sseConnection) {
	rm.mu.Lock()
	rm.m[id] = conn
	rm.mu.Unlock()
}

func (rm *responseMap) get(id jsonrpc.RequestID) (*sseConnection, bool) {
	rm.mu.RLock()
	conn, ok := rm.m[id]
	rm.mu.RUnlock()
	return conn, ok
}

func (rm *responseMap) delete(id jsonrpc.RequestID) {
	rm.mu.Lock()
	delete(rm.m, id)
	rm.mu.Unlock()
}

// deleteConnection removes every id in the map that still routes to conn,
// used when the peer disconnects before every reply arrived.
func (rm *responseMap) deleteConnection(conn *sseConnection) {
	rm.mu.Lock()
	for id, c := range rm.m {
		if c == conn {
			delete(rm.m, id)
		}
	}
	rm.mu.Unlock()
}

// clear empties the map and marks every connection it held as done, so each
// handlePost call blocked on one of them returns and ends its response.
func (rm *responseMap) clear() {
	rm.mu.Lock()
	old := rm.m
	rm.m = make(map[jsonrpc.RequestID]*sseConnection)
	rm.mu.Unlock()
	for _, conn := range old {
		conn.markDone()
	}
}
