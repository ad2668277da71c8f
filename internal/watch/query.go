package watch

import "context"

// Result is one emission of a watched query.
type Result[T any] struct {
	Value T
	Err   error
}

// Query runs fetch once immediately and again after every hub signal,
// sending each outcome on the returned channel. A failed fetch is emitted as
// a Result with Err set and the stream keeps going. The channel is closed
// once ctx is done.
func Query[T any](ctx context.Context, hub *Hub, fetch func(context.Context) (T, error)) <-chan Result[T] {
	out := make(chan Result[T])
	// Subscribe before the first read so a write racing with it is not lost.
	changed, cancel := hub.Subscribe()

	go func() {
		defer close(out)
		defer cancel()

		for {
			v, err := fetch(ctx)
			if ctx.Err() != nil {
				return
			}
			select {
			case out <- Result[T]{Value: v, Err: err}:
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
