package backend

import (
	"fmt"
	"slices"
	"sync"
)

// State is an adapter lifecycle state.
type State uint8

// Lifecycle states.
const (
	Uninitialized State = iota
	DeviceReady
	SurfaceReady
	FrameInFlight
	SurfaceLost
	Shutdown
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case DeviceReady:
		return "device-ready"
	case SurfaceReady:
		return "surface-ready"
	case FrameInFlight:
		return "frame-in-flight"
	case SurfaceLost:
		return "surface-lost"
	case Shutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// transitions lists, per operation, the states it may start from.
var transitions = map[string][]State{
	"Initialize":    {Uninitialized},
	"CreateSurface": {DeviceReady, SurfaceReady, SurfaceLost},
	"BeginFrame":    {SurfaceReady},
	"Record":        {FrameInFlight},
	"EndFrame":      {FrameInFlight},
	"Resource":      {DeviceReady, SurfaceReady, FrameInFlight, SurfaceLost},
	"SetVSync":      {DeviceReady, SurfaceReady, SurfaceLost},
}

// Lifecycle is the state machine shared by the adapters. The zero value is
// Uninitialized.
type Lifecycle struct {
	mu    sync.Mutex
	state State
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Check returns ErrInvalidState unless op may run in the current state.
// A Shutdown adapter additionally reports ErrNotInitialized for
// resource operations.
func (l *Lifecycle) Check(op string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.check(op)
}

func (l *Lifecycle) check(op string) error {
	allowed, ok := transitions[op]
	if !ok {
		panic("backend: unknown lifecycle operation " + op)
	}
	if slices.Contains(allowed, l.state) {
		return nil
	}
	if l.state == Uninitialized || l.state == Shutdown {
		return fmt.Errorf("%s in state %s: %w: %w", op, l.state, ErrInvalidState, ErrNotInitialized)
	}
	return fmt.Errorf("%s in state %s: %w", op, l.state, ErrInvalidState)
}

// Enter moves to next if op may run in the current state.
func (l *Lifecycle) Enter(op string, next State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.check(op); err != nil {
		return err
	}
	l.state = next
	return nil
}

// Set forces the state. Used for failure transitions such as SurfaceLost.
func (l *Lifecycle) Set(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// CheckFrame verifies that f is the frame currently being recorded.
func CheckFrame(f Frame, current uint64) error {
	if f.Serial == 0 || f.Serial != current {
		return fmt.Errorf("frame %d is not the current frame %d: %w", f.Serial, current, ErrInvalidState)
	}
	return nil
}
