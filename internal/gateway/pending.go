// ABOUTME: Table of in-flight requests keyed by correlation id
// ABOUTME: Whoever removes an entry owns its completion, so each request finishes exactly once

package gateway

import (
	"encoding/json"
	"sync"
	"time"
)

// result is what a waiting caller receives.
type result struct {
	payload json.RawMessage
	err     error
}

// pendingRequest is one call awaiting its reply.
type pendingRequest struct {
	id     string
	method string
	sentAt time.Time
	timer  *time.Timer
	done   chan result
}

func newPendingRequest(id, method string) *pendingRequest {
	return &pendingRequest{
		id:     id,
		method: method,
		sentAt: time.Now(),
		done:   make(chan result, 1),
	}
}

// resolve cancels the deadline and hands res to the caller. Only the goroutine
// that took the entry out of the table may call it.
func (p *pendingRequest) resolve(res result) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.done <- res
}

// expire hands a timeout to the caller. Called from the timer itself, so the
// timer is not stopped a second time.
func (p *pendingRequest) expire(res result) {
	p.done <- res
}

type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[string]*pendingRequest)}
}

func (t *pendingTable) add(p *pendingRequest) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[p.id] = p
}

// take removes and returns the entry for id.
func (t *pendingTable) take(id string) (*pendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return p, ok
}

// takeExact removes id only if it still maps to p.
func (t *pendingTable) takeExact(id string, p *pendingRequest) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entries[id] != p {
		return false
	}
	delete(t.entries, id)
	return true
}

// drain empties the table and returns everything that was in it.
func (t *pendingTable) drain() []*pendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*pendingRequest, 0, len(t.entries))
	for id, p := range t.entries {
		out = append(out, p)
		delete(t.entries, id)
	}
	return out
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
