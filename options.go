package gfx2d

import "github.com/gogpu/gfx2d/backend"

// Option configures a Renderer during creation.
//
// Example:
//
//	// Backend chosen by the config
//	r, err := gfx2d.New(win, cfg)
//
//	// Injected adapter (tests, custom hosts)
//	r, err := gfx2d.New(win, cfg, gfx2d.WithAdapter(myAdapter))
type Option func(*options)

type options struct {
	adapter backend.Adapter
	host    any
	width   int
	height  int
}

// WithAdapter uses an adapter instead of opening one from the registry.
// The adapter must be uninitialized; New initializes it with the config's
// options.
func WithAdapter(a backend.Adapter) Option {
	return func(o *options) {
		o.adapter = a
	}
}

// WithHost passes a backend-specific host object through
// backend.Options.Host: a shared gpucontext device provider for Vulkan or a
// presenter for the software backend.
func WithHost(host any) Option {
	return func(o *options) {
		o.host = host
	}
}

// WithSize sets the initial surface size, for windowless hosts whose
// framebuffer size is not known to the renderer.
func WithSize(width, height int) Option {
	return func(o *options) {
		o.width, o.height = width, height
	}
}
