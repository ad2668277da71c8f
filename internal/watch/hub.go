// Package watch turns point-in-time reads into streams that re-emit after
// every change.
package watch

import "sync"

// Hub fans change signals out to subscribers. Signals carry no payload:
// a subscriber that is behind sees one pending signal however many writes
// happened, and re-reads the current state.
type Hub struct {
	mu   sync.RWMutex
	subs map[uint64]chan struct{}
	next uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan struct{})}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called to release it; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Notify signals every subscriber without blocking.
func (h *Hub) Notify() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Len reports the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
