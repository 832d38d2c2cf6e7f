package backend

import (
	"errors"
	"fmt"
	"sync"
)

// Factory creates a new, uninitialized adapter.
type Factory func() Adapter

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	factories  = make(map[Kind]Factory)
	// Priority order for backend selection (first that initializes wins).
	backendPriority = []Kind{KindVulkan, KindWebGPU, KindOpenGL, KindSoftware}
)

// Register registers a backend factory under kind.
// This is typically called from init() functions in backend packages.
// A later registration for the same kind replaces the earlier one.
func Register(kind Kind, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[kind] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(kind Kind) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, kind)
}

// Available returns the registered kinds in priority order.
func Available() []Kind {
	registryMu.RLock()
	defer registryMu.RUnlock()

	kinds := make([]Kind, 0, len(factories))
	for _, k := range backendPriority {
		if _, ok := factories[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// IsRegistered checks if a backend of the given kind is registered.
func IsRegistered(kind Kind) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[kind]
	return ok
}

// Get returns a new adapter of the given kind, or nil if it is not
// registered.
func Get(kind Kind) Adapter {
	registryMu.RLock()
	factory, ok := factories[kind]
	registryMu.RUnlock()
	if !ok {
		return nil
	}
	return factory()
}

// Default returns a new adapter of the highest-priority registered kind.
// Returns nil if no backends are registered.
func Default() Adapter {
	for _, k := range Available() {
		if a := Get(k); a != nil {
			return a
		}
	}
	return nil
}

// MustDefault returns the default adapter or panics.
func MustDefault() Adapter {
	a := Default()
	if a == nil {
		panic("backend: no backend available")
	}
	return a
}

// Open creates and initializes an adapter. With opts.Kind set only that
// backend is tried; otherwise backends are tried in priority order and the
// first whose device initializes is returned.
func Open(win Window, opts Options) (Adapter, error) {
	if opts.Kind != "" {
		a := Get(opts.Kind)
		if a == nil {
			return nil, fmt.Errorf("%s: %w", opts.Kind, ErrBackendNotAvailable)
		}
		if err := a.Initialize(win, opts); err != nil {
			return nil, err
		}
		Logger().Info("backend selected", "backend", a.Name())
		return a, nil
	}

	var errs []error
	for _, k := range Available() {
		a := Get(k)
		if a == nil {
			continue
		}
		if err := a.Initialize(win, opts); err != nil {
			Logger().Warn("backend unavailable, trying next", "backend", k, "err", err)
			errs = append(errs, err)
			continue
		}
		Logger().Info("backend selected", "backend", a.Name())
		return a, nil
	}
	if len(errs) == 0 {
		return nil, ErrBackendNotAvailable
	}
	return nil, fmt.Errorf("%w: %w", ErrBackendNotAvailable, errors.Join(errs...))
}
