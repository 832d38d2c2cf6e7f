// Package fence tracks frame serials, per-frame resource slots and
// deferred destruction.
//
// Every backend numbers its frames with a monotonically increasing serial
// starting at 1. A frame is "in flight" between BeginFrame and the moment
// its completion is observed (fence signal, sync object, or synchronous
// execution). Resources that a frame may still read are reclaimed only
// after that observation.
package fence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrTimeout is returned when waiting for a frame exceeds its deadline.
var ErrTimeout = errors.New("fence: timed out waiting for frame completion")

// Tracker numbers frames and records completion.
//
// Begin and Complete are called from the render thread; Completed and Last
// may be read from any goroutine.
type Tracker struct {
	last      atomic.Uint64
	completed atomic.Uint64

	mu     sync.Mutex
	signal chan struct{}
}

// NewTracker returns a tracker with no frames begun.
func NewTracker() *Tracker {
	return &Tracker{signal: make(chan struct{})}
}

// Begin allocates the next frame serial.
func (t *Tracker) Begin() uint64 { return t.last.Add(1) }

// Last returns the most recent serial handed out by Begin.
func (t *Tracker) Last() uint64 { return t.last.Load() }

// Completed returns the highest serial known to be complete.
func (t *Tracker) Completed() uint64 { return t.completed.Load() }

// Complete records that every frame up to and including serial finished.
// Completion never moves backwards.
func (t *Tracker) Complete(serial uint64) {
	for {
		cur := t.completed.Load()
		if serial <= cur {
			return
		}
		if t.completed.CompareAndSwap(cur, serial) {
			break
		}
	}
	t.mu.Lock()
	close(t.signal)
	t.signal = make(chan struct{})
	t.mu.Unlock()
}

// CompleteAll marks every begun frame complete.
func (t *Tracker) CompleteAll() { t.Complete(t.Last()) }

// Wait blocks until serial is complete, the timeout elapses or ctx is done.
// poll, when non-nil, is invoked between waits so backends can query their
// native sync objects; it should call Complete itself.
func (t *Tracker) Wait(ctx context.Context, serial uint64, timeout time.Duration, poll func()) error {
	if t.Completed() >= serial {
		return nil
	}
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	const pollInterval = time.Millisecond
	for {
		if poll != nil {
			poll()
		}
		if t.Completed() >= serial {
			return nil
		}
		t.mu.Lock()
		sig := t.signal
		t.mu.Unlock()

		var tick <-chan time.Time
		if poll != nil {
			tick = time.After(pollInterval)
		}
		select {
		case <-sig:
		case <-tick:
		case <-deadline:
			if t.Completed() >= serial {
				return nil
			}
			return ErrTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
