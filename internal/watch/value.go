package watch

import (
	"context"
	"sync"
)

// Value holds a single piece of state and lets callers observe it. Watchers
// get the current value on subscription and the latest value after each Set.
type Value[T any] struct {
	mu  sync.RWMutex
	v   T
	hub *Hub
}

func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{v: initial, hub: NewHub()}
}

func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.v
}

func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	v.v = val
	v.mu.Unlock()
	v.hub.Notify()
}

// Watch streams the value until ctx is done. Intermediate values set while a
// watcher is not receiving are skipped; the latest one is always delivered.
func (v *Value[T]) Watch(ctx context.Context) <-chan T {
	out := make(chan T)
	changed, cancel := v.hub.Subscribe()

	go func() {
		defer close(out)
		defer cancel()

		for {
			select {
			case out <- v.Get():
			case <-ctx.Done():
				return
			}

			select {
			case <-changed:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
