//go:build !nogpu

// Package webgpu implements backend.Adapter on the WebGPU C API through
// github.com/cogentcore/webgpu.
//
// The surface is created from a GLFW window. Completion is observed with
// Queue.OnSubmittedWorkDone callbacks, delivered by non-blocking device
// polls in BeginFrame.
package webgpu

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/gogpu/gfx2d/backend"
	"github.com/gogpu/gfx2d/internal/fence"
	"github.com/gogpu/gfx2d/pipeline"
)

func init() {
	backend.Register(backend.KindWebGPU, func() backend.Adapter { return New() })
}

var errNoWindow = errors.New("webgpu surfaces need a *glfw.Window")

type slot struct {
	uniform    *wgpu.Buffer
	globals    *wgpu.BindGroup
	stream     *wgpu.Buffer
	streamSize uint64
}

type gpuTexture struct {
	tex   *wgpu.Texture
	view  *wgpu.TextureView
	group *wgpu.BindGroup
}

// Adapter is the WebGPU backend.
type Adapter struct {
	backend.Lifecycle

	mu       sync.Mutex
	opts     backend.Options
	instance *wgpu.Instance
	surface  *wgpu.Surface
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	format   wgpu.TextureFormat
	tracker  *fence.Tracker
	ring     *fence.Ring[*slot]
	staging  backend.Staging
	res      *resources
	textures map[backend.TextureID]*gpuTexture
	nextTex  backend.TextureID

	submitted uint64
	width     int
	height    int
	serial    uint64
	desc      backend.FrameDesc
	frameTex  *wgpu.Texture
	view      *wgpu.TextureView
	draws     []backend.DrawCall
	vsync     bool
}

var _ backend.Adapter = (*Adapter)(nil)

// New returns an uninitialized adapter.
func New() *Adapter {
	return &Adapter{
		tracker:  fence.NewTracker(),
		textures: make(map[backend.TextureID]*gpuTexture),
	}
}

// Name implements backend.Adapter.
func (a *Adapter) Name() backend.Kind { return backend.KindWebGPU }

// Initialize creates the instance and surface for win, then requests an
// adapter compatible with that surface and its device.
func (a *Adapter) Initialize(win backend.Window, opts backend.Options) error {
	if err := a.Check("Initialize"); err != nil {
		return backend.Wrap(backend.ErrDeviceInit, "Initialize", err)
	}
	if err := pipeline.Checked(); err != nil {
		return backend.Wrap(backend.ErrDeviceInit, "Initialize", err)
	}
	w, ok := win.(*glfw.Window)
	if !ok {
		return backend.Wrap(backend.ErrDeviceInit, "Initialize", errNoWindow)
	}
	if opts.Validation {
		wgpu.SetLogLevel(wgpu.LogLevelWarn)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opts, a.vsync = opts, opts.VSync
	if err := a.open(w); err != nil {
		a.release()
		return backend.Wrap(backend.ErrDeviceInit, "Initialize", err)
	}
	backend.Logger().Info("webgpu: device ready", "format", a.format.String(), "framesInFlight", a.ring.Depth())
	return a.Enter("Initialize", backend.DeviceReady)
}

func (a *Adapter) open(w *glfw.Window) error {
	a.instance = wgpu.CreateInstance(nil)
	a.surface = a.instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(w))
	adapter, err := a.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: a.surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return fmt.Errorf("request adapter: %w", err)
	}
	a.adapter = adapter
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		return fmt.Errorf("request device: %w", err)
	}
	a.device = device
	a.queue = device.GetQueue()
	a.format = pickFormat(a.surface.GetCapabilities(adapter).Formats)
	if a.format == wgpu.TextureFormatUndefined {
		return errors.New("surface reports no formats")
	}

	a.res, err = newResources(device, a.queue, a.format)
	if err != nil {
		return err
	}
	var slotErr error
	a.ring = fence.NewRing(a.opts.FramesInFlight, func(i int) *slot {
		s, err := a.newSlot(i)
		if err != nil && slotErr == nil {
			slotErr = err
		}
		return s
	})
	return slotErr
}

func (a *Adapter) newSlot(i int) (*slot, error) {
	s := &slot{}
	var err error
	s.uniform, err = a.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: fmt.Sprintf("globals_%d", i),
		Size:  globalsSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return s, fmt.Errorf("create globals buffer: %w", err)
	}
	s.globals, err = a.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  fmt.Sprintf("globals_%d", i),
		Layout: a.res.globalsLayout,
		Entries: []wgpu.BindGroupEntry{{
			Binding: 0,
			Buffer:  s.uniform,
			Size:    globalsSize,
		}},
	})
	if err != nil {
		return s, fmt.Errorf("create globals bind group: %w", err)
	}
	return s, nil
}

// pickFormat prefers an 8-bit UNORM format so blending happens on the
// stored values, matching the other backends.
func pickFormat(formats []wgpu.TextureFormat) wgpu.TextureFormat {
	for _, f := range formats {
		if f == wgpu.TextureFormatBGRA8Unorm || f == wgpu.TextureFormatRGBA8Unorm {
			return f
		}
	}
	if len(formats) > 0 {
		return formats[0]
	}
	return wgpu.TextureFormatUndefined
}

func presentMode(vsync bool) wgpu.PresentMode {
	if vsync {
		return wgpu.PresentModeFifo
	}
	return wgpu.PresentModeImmediate
}

// CreateSurface configures the swap chain at the given size. It waits
// for in-flight frames first, since they may still reference the old
// textures.
func (a *Adapter) CreateSurface(_ backend.Window, width, height int) error {
	if err := a.Check("CreateSurface"); err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return backend.Wrap(backend.ErrSurfaceCreation, "CreateSurface", fmt.Errorf("size %dx%d", width, height))
	}
	if err := a.WaitIdle(context.Background()); err != nil {
		return backend.Wrap(backend.ErrSurfaceCreation, "CreateSurface", err)
	}
	a.mu.Lock()
	a.width, a.height = width, height
	a.configure()
	a.mu.Unlock()
	return a.Enter("CreateSurface", backend.SurfaceReady)
}

func (a *Adapter) configure() {
	caps := a.surface.GetCapabilities(a.adapter)
	alpha := wgpu.CompositeAlphaModeAuto
	if len(caps.AlphaModes) > 0 {
		alpha = caps.AlphaModes[0]
	}
	a.surface.Configure(a.adapter, a.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      a.format,
		Width:       uint32(a.width),  //nolint:gosec // validated positive
		Height:      uint32(a.height), //nolint:gosec // validated positive
		PresentMode: presentMode(a.vsync),
		AlphaMode:   alpha,
	})
}

// poll lets the device run completion callbacks without blocking.
func (a *Adapter) poll() {
	if a.device != nil {
		a.device.Poll(false, nil)
	}
}

// CreateTexture uploads every level and builds the texture's bind group.
func (a *Adapter) CreateTexture(desc backend.TextureDesc, rgba []byte) (backend.TextureID, error) {
	if err := a.Check("Resource"); err != nil {
		return 0, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	t, err := a.res.createTexture(desc, rgba)
	if err != nil {
		return 0, backend.Wrap(backend.ErrResourceUpload, "CreateTexture", err)
	}
	a.nextTex++
	a.textures[a.nextTex] = t
	return a.nextTex, nil
}

// DestroyTexture implements backend.Adapter.
func (a *Adapter) DestroyTexture(id backend.TextureID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.textures[id]
	if !ok {
		return fmt.Errorf("destroy unknown texture %d: %w", id, backend.ErrInvalidState)
	}
	t.release()
	delete(a.textures, id)
	return nil
}

// LastFrame implements backend.Adapter.
func (a *Adapter) LastFrame() uint64 { return a.tracker.Last() }

// CompletedFrame implements backend.Adapter.
func (a *Adapter) CompletedFrame() uint64 { return a.tracker.Completed() }

// WaitIdle polls the device until the last submitted frame completed.
func (a *Adapter) WaitIdle(ctx context.Context) error {
	if a.submitted == 0 {
		return nil
	}
	return a.tracker.Wait(ctx, a.submitted, a.opts.Timeout(), a.poll)
}

// SetVSync reconfigures the surface with the matching present mode.
func (a *Adapter) SetVSync(on bool) error {
	if err := a.Check("SetVSync"); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.vsync = on
	if a.width > 0 && a.height > 0 {
		a.configure()
	}
	return nil
}

// Shutdown waits for the GPU and releases everything.
func (a *Adapter) Shutdown() error {
	switch a.State() {
	case backend.Shutdown:
		return nil
	case backend.Uninitialized:
		a.Set(backend.Shutdown)
		return nil
	}
	if err := a.WaitIdle(context.Background()); err != nil {
		backend.Logger().Warn("webgpu: shutdown before the GPU finished", "err", err)
	}
	a.mu.Lock()
	a.release()
	a.mu.Unlock()
	a.tracker.CompleteAll()
	a.Set(backend.Shutdown)
	return nil
}

func (a *Adapter) release() {
	for id, t := range a.textures {
		t.release()
		delete(a.textures, id)
	}
	if a.ring != nil {
		a.ring.Each(func(s *slot) {
			if s.globals != nil {
				s.globals.Release()
			}
			if s.uniform != nil {
				s.uniform.Release()
			}
			if s.stream != nil {
				s.stream.Release()
			}
		})
		a.ring = nil
	}
	if a.res != nil {
		a.res.release()
		a.res = nil
	}
	if a.surface != nil {
		a.surface.Release()
		a.surface = nil
	}
	if a.queue != nil {
		a.queue.Release()
		a.queue = nil
	}
	if a.device != nil {
		a.device.Release()
		a.device = nil
	}
	if a.adapter != nil {
		a.adapter.Release()
		a.adapter = nil
	}
	if a.instance != nil {
		a.instance.Release()
		a.instance = nil
	}
}

func (t *gpuTexture) release() {
	if t.group != nil {
		t.group.Release()
	}
	if t.view != nil {
		t.view.Release()
	}
	if t.tex != nil {
		t.tex.Release()
	}
}
