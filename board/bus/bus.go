// ABOUTME: Endpoint is the best-effort broadcast surface replicas publish to and subscribe on.
// ABOUTME: fanout delivers frames to subscriptions asynchronously and drops when a buffer is full.
package bus

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned when publishing or subscribing on a closed endpoint.
var ErrClosed = errors.New("bus endpoint closed")

// DefaultBuffer is how many frames a subscription queues before dropping.
const DefaultBuffer = 1024

// Handler receives one frame. Frames are shared between subscribers and must
// not be modified.
type Handler func(frame []byte)

// Subscription is a live handler registration.
type Subscription interface {
	// Unsubscribe stops delivery of new frames. It is safe to call more than once.
	Unsubscribe()
}

// Endpoint is one participant's handle on a broadcast channel. Frames
// published on an endpoint reach every other endpoint's subscribers, at most
// once, in no guaranteed order, and never the publisher itself.
type Endpoint interface {
	// Publish hands a frame to the channel without waiting for delivery.
	Publish(frame []byte) error
	// Subscribe registers h for frames published by other endpoints.
	Subscribe(h Handler) (Subscription, error)
	// Close unsubscribes everything and releases the endpoint.
	Close() error
}

// subscription owns a queue and the goroutine draining it into a handler.
type subscription struct {
	owner   any
	ch      chan []byte
	done    chan struct{}
	handler Handler
	stop    func(*subscription)
	once    sync.Once
	stopped atomic.Bool
}

func (s *subscription) pump() {
	defer close(s.done)
	for frame := range s.ch {
		if s.stopped.Load() {
			continue
		}
		s.handler(frame)
	}
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.stopped.Store(true)
		s.stop(s)
	})
}

// fanout is a set of subscriptions with non-blocking delivery.
type fanout struct {
	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	buffer int
	name   string
}

func newFanout(name string, buffer int) *fanout {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &fanout{subs: map[*subscription]struct{}{}, buffer: buffer, name: name}
}

func (f *fanout) add(owner any, h Handler) *subscription {
	sub := &subscription{
		owner:   owner,
		ch:      make(chan []byte, f.buffer),
		done:    make(chan struct{}),
		handler: h,
		stop:    f.remove,
	}
	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()
	go sub.pump()
	return sub
}

func (f *fanout) remove(sub *subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[sub]; !ok {
		return
	}
	delete(f.subs, sub)
	close(sub.ch)
}

// deliver queues frame on every subscription not owned by from.
func (f *fanout) deliver(from any, frame []byte) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for sub := range f.subs {
		if from != nil && sub.owner == from {
			continue
		}
		select {
		case sub.ch <- frame:
		default:
			log.Printf("component=board.bus action=drop bus=%s from=%s to=%s reason=buffer_full bytes=%d",
				f.name, ownerID(from), ownerID(sub.owner), len(frame))
		}
	}
}

// ownerID names a subscription owner in log lines.
func ownerID(owner any) string {
	if e, ok := owner.(*HubEndpoint); ok {
		return e.ID.String()
	}
	return "-"
}

// removeOwned unsubscribes every subscription owned by owner.
func (f *fanout) removeOwned(owner any) {
	f.mu.RLock()
	var owned []*subscription
	for sub := range f.subs {
		if sub.owner == owner {
			owned = append(owned, sub)
		}
	}
	f.mu.RUnlock()
	for _, sub := range owned {
		sub.Unsubscribe()
	}
}

func (f *fanout) len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
