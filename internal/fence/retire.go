package fence

import "sync"

type retiring[T any] struct {
	after uint64
	value T
}

// Retirement is a queue of values that become safe to destroy once a given
// frame has completed. It is safe for concurrent use.
type Retirement[T any] struct {
	mu    sync.Mutex
	queue []retiring[T]
}

// Push schedules v for destruction after frame serial completes.
func (r *Retirement[T]) Push(after uint64, v T) {
	r.mu.Lock()
	r.queue = append(r.queue, retiring[T]{after: after, value: v})
	r.mu.Unlock()
}

// Drain removes and returns, in push order, every value whose frame is
// at or below completed.
func (r *Retirement[T]) Drain(completed uint64) []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []T
	kept := r.queue[:0]
	for _, e := range r.queue {
		if e.after <= completed {
			out = append(out, e.value)
		} else {
			kept = append(kept, e)
		}
	}
	clear(r.queue[len(kept):])
	r.queue = kept
	return out
}

// Len returns the number of queued values.
func (r *Retirement[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}
