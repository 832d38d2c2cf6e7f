package fence

// Ring holds one value per frame-in-flight slot. The slot used by frame
// serial s is s % depth, so a slot can be reused by frame s only once frame
// s-depth has completed.
type Ring[T any] struct {
	slots []T
	owner []uint64 // serial that last used each slot
}

// MinDepth and MaxDepth bound the number of frames in flight.
const (
	MinDepth = 1
	MaxDepth = 3
)

// ClampDepth clamps n to [MinDepth, MaxDepth]; zero selects 2.
func ClampDepth(n int) int {
	switch {
	case n == 0:
		return 2
	case n < MinDepth:
		return MinDepth
	case n > MaxDepth:
		return MaxDepth
	}
	return n
}

// NewRing creates a ring with depth slots, each initialized by newSlot.
func NewRing[T any](depth int, newSlot func(i int) T) *Ring[T] {
	depth = ClampDepth(depth)
	r := &Ring[T]{slots: make([]T, depth), owner: make([]uint64, depth)}
	for i := range r.slots {
		r.slots[i] = newSlot(i)
	}
	return r
}

// Depth returns the number of slots.
func (r *Ring[T]) Depth() int { return len(r.slots) }

// Index returns the slot index for serial.
func (r *Ring[T]) Index(serial uint64) int { return int(serial % uint64(len(r.slots))) }

// Pending returns the serial that must complete before serial may claim
// its slot, or 0 if the slot is free.
func (r *Ring[T]) Pending(serial uint64) uint64 { return r.owner[r.Index(serial)] }

// Claim assigns the slot to serial and returns it.
func (r *Ring[T]) Claim(serial uint64) T {
	i := r.Index(serial)
	r.owner[i] = serial
	return r.slots[i]
}

// Slot returns the slot of serial without claiming it.
func (r *Ring[T]) Slot(serial uint64) T { return r.slots[r.Index(serial)] }

// Each calls fn for every slot.
func (r *Ring[T]) Each(fn func(T)) {
	for _, s := range r.slots {
		fn(s)
	}
}
