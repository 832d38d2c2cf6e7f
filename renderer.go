package gfx2d

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/gfx2d/backend"
	"github.com/gogpu/gfx2d/frame"
	"github.com/gogpu/gfx2d/texture"
)

// ErrClosed is returned by a Renderer after Close.
var ErrClosed = errors.New("gfx2d: renderer closed")

// Renderer ties one backend adapter to its texture manager and frame
// submitter. Frame methods belong to a single render goroutine; Textures
// may be used from loader goroutines.
type Renderer struct {
	cfg      Config
	win      backend.Window
	dev      backend.Adapter
	textures *texture.Manager
	sub      *frame.Submitter
	closed   bool
}

// New opens the configured backend for win and sizes its surface.
func New(win backend.Window, cfg Config, opts ...Option) (*Renderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	bopts := cfg.Options()
	bopts.Host = o.host

	dev := o.adapter
	if dev != nil {
		if err := dev.Initialize(win, bopts); err != nil {
			return nil, err
		}
	} else {
		var err error
		dev, err = backend.Open(win, bopts)
		if err != nil {
			return nil, err
		}
	}

	width, height := o.width, o.height
	if width == 0 && height == 0 && win != nil {
		width, height = win.GetFramebufferSize()
	}
	r := &Renderer{cfg: cfg, win: win, dev: dev}
	textures, err := texture.NewManager(dev)
	if err != nil {
		_ = dev.Shutdown()
		return nil, err
	}
	r.textures = textures
	r.sub = frame.New(dev, textures, win)
	r.sub.SetClearColor(cfg.Clear())
	if err := r.sub.Resize(width, height); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("gfx2d: initial surface %dx%d: %w", width, height, err)
	}
	Logger().Info("renderer ready", "backend", dev.Name(), "width", width, "height", height)
	return r, nil
}

// Backend returns the active backend kind.
func (r *Renderer) Backend() backend.Kind { return r.dev.Name() }

// Adapter returns the underlying adapter.
func (r *Renderer) Adapter() backend.Adapter { return r.dev }

// Textures returns the texture manager.
func (r *Renderer) Textures() *texture.Manager { return r.textures }

// Config returns the configuration in effect.
func (r *Renderer) Config() Config { return r.cfg }

// Begin starts a frame projected onto the current viewport.
func (r *Renderer) Begin(ctx context.Context) (*frame.Frame, error) {
	if r.closed {
		return nil, ErrClosed
	}
	return r.sub.Begin(ctx)
}

// Resize recreates the surface at the new framebuffer size and updates
// the projection. Textures and pipelines survive.
func (r *Renderer) Resize(width, height int) error {
	if r.closed {
		return ErrClosed
	}
	return r.sub.Resize(width, height)
}

// Viewport returns the logical viewport size.
func (r *Renderer) Viewport() (width, height int) { return r.sub.Viewport() }

// Apply switches to cfg where that is possible on a live device: vsync
// and clear color. Fields that need a new device are kept and reported
// as needing a restart.
func (r *Renderer) Apply(cfg Config) (restart bool, err error) {
	if r.closed {
		return false, ErrClosed
	}
	if err := cfg.Validate(); err != nil {
		return false, err
	}
	if cfg.VSync != r.cfg.VSync {
		if err := r.dev.SetVSync(cfg.VSync); err != nil {
			return false, err
		}
		Logger().Info("vsync changed", "vsync", cfg.VSync)
	}
	r.sub.SetClearColor(cfg.Clear())
	restart = cfg.Backend != r.cfg.Backend ||
		cfg.Validation != r.cfg.Validation ||
		cfg.FramesInFlight != r.cfg.FramesInFlight ||
		cfg.FrameTimeout != r.cfg.FrameTimeout ||
		cfg.SoftwareThreads != r.cfg.SoftwareThreads
	live := cfg
	if restart {
		live.Backend = r.cfg.Backend
		live.Validation = r.cfg.Validation
		live.FramesInFlight = r.cfg.FramesInFlight
		live.FrameTimeout = r.cfg.FrameTimeout
		live.SoftwareThreads = r.cfg.SoftwareThreads
	}
	r.cfg = live
	return restart, nil
}

// Snapshot returns the last presented image when the backend supports
// readback.
func (r *Renderer) Snapshot() (width, height int, rgba []byte, err error) {
	s, ok := r.dev.(backend.Snapshotter)
	if !ok {
		return 0, 0, nil, fmt.Errorf("gfx2d: %s cannot read back frames: %w", r.dev.Name(), backend.ErrBackendNotAvailable)
	}
	return s.Snapshot()
}

// Close waits for the device, frees every texture and shuts the adapter
// down. It is safe to call more than once.
func (r *Renderer) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	var errs []error
	if err := r.dev.WaitIdle(context.Background()); err != nil {
		errs = append(errs, err)
	}
	if r.textures != nil {
		if err := r.textures.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.dev.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
