// ABOUTME: Hub is an in-process broadcast channel; each replica gets its own Endpoint on it.
// ABOUTME: Publishing never blocks and never echoes to the publishing endpoint.
package bus

import (
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/2389-research/retroboard/board/core"
)

// Hub connects endpoints living in the same process.
type Hub struct {
	out *fanout
}

// NewHub creates a hub whose subscriptions queue buffer frames each. A
// non-positive buffer uses DefaultBuffer.
func NewHub(name string, buffer int) *Hub {
	return &Hub{out: newFanout(name, buffer)}
}

// Endpoint opens a new participant handle on the hub.
func (h *Hub) Endpoint() *HubEndpoint {
	return &HubEndpoint{hub: h, ID: core.NewULID()}
}

// Subscribers reports how many subscriptions are registered.
func (h *Hub) Subscribers() int {
	return h.out.len()
}

// HubEndpoint is one participant on a Hub. ID identifies it in log lines.
type HubEndpoint struct {
	ID ulid.ULID

	hub    *Hub
	mu     sync.Mutex
	closed bool
}

var _ Endpoint = (*HubEndpoint)(nil)

// Publish delivers a copy of frame to every other endpoint's subscribers.
func (e *HubEndpoint) Publish(frame []byte) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}
	e.hub.out.deliver(e, append([]byte(nil), frame...))
	return nil
}

// Subscribe registers h for frames from other endpoints.
func (e *HubEndpoint) Subscribe(h Handler) (Subscription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	return e.hub.out.add(e, h), nil
}

// Close drops every subscription of this endpoint.
func (e *HubEndpoint) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.hub.out.removeOwned(e)
	return nil
}
