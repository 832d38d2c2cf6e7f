// Package backendtest provides an in-memory Adapter whose frames complete
// only when the test says so.
package backendtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/gfx2d/backend"
	"github.com/gogpu/gfx2d/internal/fence"
)

// Draw is a recorded draw with copies of its uploaded data.
type Draw struct {
	Call      backend.DrawCall
	Vertices  []byte
	Instances []byte
}

// RecordedFrame is everything one frame did.
type RecordedFrame struct {
	Serial    uint64
	Desc      backend.FrameDesc
	Draws     []Draw
	Presented bool
}

// Adapter is a backend.Adapter for tests. By default frames stay in flight
// after EndFrame until Complete is called; set AutoComplete to finish them
// at EndFrame.
type Adapter struct {
	backend.Lifecycle

	// AutoComplete finishes every frame at EndFrame.
	AutoComplete bool

	// Injected failures, consumed by the next call.
	FailInitialize  error
	FailSurface     error
	FailBeginFrame  error
	FailEndFrame    error
	FailTexture     error
	FailUploadAfter int // fail uploads once this many succeeded in a frame; 0 disables

	mu        sync.Mutex
	opts      backend.Options
	tracker   *fence.Tracker
	staging   backend.Staging
	current   RecordedFrame
	frames    []RecordedFrame
	nextTex   backend.TextureID
	textures  map[backend.TextureID]backend.TextureDesc
	destroyed []backend.TextureID
	uploads   int
	width     int
	height    int
	vsync     bool
}

var _ backend.Adapter = (*Adapter)(nil)

// New returns an uninitialized mock adapter.
func New() *Adapter {
	return &Adapter{
		tracker:  fence.NewTracker(),
		textures: make(map[backend.TextureID]backend.TextureDesc),
	}
}

// Register installs the mock as the software backend factory for the
// duration of the test.
func Register(tb interface{ Cleanup(func()) }, a *Adapter) {
	backend.Register(backend.KindSoftware, func() backend.Adapter { return a })
	tb.Cleanup(func() { backend.Unregister(backend.KindSoftware) })
}

// Name implements backend.Adapter.
func (a *Adapter) Name() backend.Kind { return backend.KindSoftware }

// Initialize implements backend.Adapter.
func (a *Adapter) Initialize(_ backend.Window, opts backend.Options) error {
	if err := take(&a.FailInitialize); err != nil {
		return backend.Wrap(backend.ErrDeviceInit, "Initialize", err)
	}
	a.opts = opts
	a.vsync = opts.VSync
	return a.Enter("Initialize", backend.DeviceReady)
}

// CreateSurface implements backend.Adapter.
func (a *Adapter) CreateSurface(_ backend.Window, width, height int) error {
	if err := a.Check("CreateSurface"); err != nil {
		return err
	}
	if err := take(&a.FailSurface); err != nil {
		return backend.Wrap(backend.ErrSurfaceCreation, "CreateSurface", err)
	}
	if width <= 0 || height <= 0 {
		return backend.Wrap(backend.ErrSurfaceCreation, "CreateSurface", fmt.Errorf("size %dx%d", width, height))
	}
	a.mu.Lock()
	a.width, a.height = width, height
	a.mu.Unlock()
	return a.Enter("CreateSurface", backend.SurfaceReady)
}

// BeginFrame implements backend.Adapter.
func (a *Adapter) BeginFrame(_ context.Context, desc backend.FrameDesc) (backend.Frame, error) {
	if err := a.Check("BeginFrame"); err != nil {
		return backend.Frame{}, err
	}
	if err := take(&a.FailBeginFrame); err != nil {
		a.Set(backend.SurfaceLost)
		return backend.Frame{}, backend.Wrap(backend.ErrSurfaceLost, "BeginFrame", err)
	}
	serial := a.tracker.Begin()
	a.mu.Lock()
	a.staging.Reset(serial)
	a.current = RecordedFrame{Serial: serial, Desc: desc}
	a.uploads = 0
	f := backend.Frame{Serial: serial, Width: a.width, Height: a.height, Projection: desc.Projection}
	a.mu.Unlock()
	if err := a.Enter("BeginFrame", backend.FrameInFlight); err != nil {
		return backend.Frame{}, err
	}
	return f, nil
}

func (a *Adapter) upload(f backend.Frame, data []byte) (backend.BufferRef, error) {
	if err := a.Check("Record"); err != nil {
		return backend.BufferRef{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := backend.CheckFrame(f, a.current.Serial); err != nil {
		return backend.BufferRef{}, err
	}
	if a.FailUploadAfter > 0 && a.uploads >= a.FailUploadAfter {
		return backend.BufferRef{}, backend.Wrap(backend.ErrResourceUpload, "upload", fmt.Errorf("injected after %d uploads", a.uploads))
	}
	a.uploads++
	return a.staging.Append(data), nil
}

// UploadVertices implements backend.Adapter.
func (a *Adapter) UploadVertices(f backend.Frame, data []byte) (backend.BufferRef, error) {
	return a.upload(f, data)
}

// UploadInstances implements backend.Adapter.
func (a *Adapter) UploadInstances(f backend.Frame, data []byte) (backend.BufferRef, error) {
	return a.upload(f, data)
}

// Draw implements backend.Adapter.
func (a *Adapter) Draw(f backend.Frame, call backend.DrawCall) error {
	if err := a.Check("Record"); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := backend.CheckFrame(f, a.current.Serial); err != nil {
		return err
	}
	if call.Texture != 0 {
		if _, ok := a.textures[call.Texture]; !ok {
			return fmt.Errorf("draw with destroyed texture %d: %w", call.Texture, backend.ErrInvalidState)
		}
	}
	d := Draw{Call: call}
	if call.Vertices.Valid() {
		b, err := a.staging.Slice(call.Vertices)
		if err != nil {
			return err
		}
		d.Vertices = append([]byte(nil), b...)
	}
	b, err := a.staging.Slice(call.Instances)
	if err != nil {
		return err
	}
	d.Instances = append([]byte(nil), b...)
	a.current.Draws = append(a.current.Draws, d)
	return nil
}

// EndFrame implements backend.Adapter.
func (a *Adapter) EndFrame(f backend.Frame) error {
	if err := a.Check("EndFrame"); err != nil {
		return err
	}
	a.mu.Lock()
	if err := backend.CheckFrame(f, a.current.Serial); err != nil {
		a.mu.Unlock()
		return err
	}
	if err := take(&a.FailEndFrame); err != nil {
		a.frames = append(a.frames, a.current)
		a.mu.Unlock()
		if backend.IsRecoverable(err) {
			a.Set(backend.SurfaceLost)
			return err
		}
		a.Set(backend.Shutdown)
		return backend.Wrap(backend.ErrDeviceLost, "EndFrame", err)
	}
	a.current.Presented = true
	a.frames = append(a.frames, a.current)
	a.mu.Unlock()
	if a.AutoComplete {
		a.tracker.Complete(f.Serial)
	}
	return a.Enter("EndFrame", backend.SurfaceReady)
}

// CreateTexture implements backend.Adapter.
func (a *Adapter) CreateTexture(desc backend.TextureDesc, rgba []byte) (backend.TextureID, error) {
	if err := a.Check("Resource"); err != nil {
		return 0, err
	}
	if err := take(&a.FailTexture); err != nil {
		return 0, backend.Wrap(backend.ErrResourceUpload, "CreateTexture", err)
	}
	if len(rgba) != desc.Width*desc.Height*4 {
		return 0, backend.Wrap(backend.ErrResourceUpload, "CreateTexture", fmt.Errorf("%d bytes for %dx%d", len(rgba), desc.Width, desc.Height))
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextTex++
	a.textures[a.nextTex] = desc
	return a.nextTex, nil
}

// DestroyTexture implements backend.Adapter.
func (a *Adapter) DestroyTexture(id backend.TextureID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.textures[id]; !ok {
		return fmt.Errorf("destroy unknown texture %d: %w", id, backend.ErrInvalidState)
	}
	delete(a.textures, id)
	a.destroyed = append(a.destroyed, id)
	return nil
}

// LastFrame implements backend.Adapter.
func (a *Adapter) LastFrame() uint64 { return a.tracker.Last() }

// CompletedFrame implements backend.Adapter.
func (a *Adapter) CompletedFrame() uint64 { return a.tracker.Completed() }

// WaitIdle completes every frame; the mock has no GPU to wait for.
func (a *Adapter) WaitIdle(context.Context) error {
	a.tracker.CompleteAll()
	return nil
}

// SetVSync implements backend.Adapter.
func (a *Adapter) SetVSync(on bool) error {
	if err := a.Check("SetVSync"); err != nil {
		return err
	}
	a.mu.Lock()
	a.vsync = on
	a.mu.Unlock()
	return nil
}

// Shutdown implements backend.Adapter.
func (a *Adapter) Shutdown() error {
	a.Set(backend.Shutdown)
	return nil
}

// Complete marks frames up to serial as finished by the "GPU".
func (a *Adapter) Complete(serial uint64) { a.tracker.Complete(serial) }

// Frames returns the frames ended so far.
func (a *Adapter) Frames() []RecordedFrame {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]RecordedFrame(nil), a.frames...)
}

// LastRecorded returns the most recently ended frame.
func (a *Adapter) LastRecorded() (RecordedFrame, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.frames) == 0 {
		return RecordedFrame{}, false
	}
	return a.frames[len(a.frames)-1], true
}

// Alive reports whether texture id exists on the "device".
func (a *Adapter) Alive(id backend.TextureID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.textures[id]
	return ok
}

// Destroyed returns destroyed texture ids in order.
func (a *Adapter) Destroyed() []backend.TextureID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]backend.TextureID(nil), a.destroyed...)
}

// Texture returns the description a texture was created with.
func (a *Adapter) Texture(id backend.TextureID) (backend.TextureDesc, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok := a.textures[id]
	return d, ok
}

// VSync returns the current vsync setting.
func (a *Adapter) VSync() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.vsync
}

// Options returns the options passed to Initialize.
func (a *Adapter) Options() backend.Options { return a.opts }

func take(p *error) error {
	err := *p
	*p = nil
	return err
}

// Window is a fixed-size backend.Window.
type Window struct{ W, H int }

// GetFramebufferSize implements backend.Window.
func (w Window) GetFramebufferSize() (int, int) { return w.W, w.H }
