package client

import "sync"

// streamSet tracks every live SSE reader by a synthetic stream id (spec.md
// section 4.2: "initial-<timestamp>" for the standalone listener,
// "req-<ids>-<timestamp>" per send()), so Close can cancel all of them.
// Generalizes the teacher's single sseConnection field to the N-readers
// case this client actually has (one standalone GET plus one per streamed
// POST response).
type streamSet struct {
	mu sync.Mutex
	m  map[string]func()
}

func newStreamSet() *streamSet {
	return &streamSet{m: make(map[string]func())}
}

func (s *streamSet) add(id string, cancel func()) {
	s.mu.Lock()
	s.m[id] = cancel
	s.mu.Unlock()
}

func (s *streamSet) remove(id string) {
	s.mu.Lock()
	delete(s.m, id)
	s.mu.Unlock()
}

// cancelAll cancels and forgets every tracked reader.
func (s *streamSet) cancelAll() {
	s.mu.Lock()
	cancels := make([]func(), 0, len(s.m))
	for _, c := range s.m {
		cancels = append(cancels, c)
	}
	s.m = make(map[string]func())
	s.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

func (s *streamSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
