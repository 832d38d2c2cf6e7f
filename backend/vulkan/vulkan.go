//go:build !nogpu

// Package vulkan implements backend.Adapter on the gogpu HAL with the
// Vulkan backend.
//
// The adapter either opens its own device or shares one with a host that
// exposes HAL handles (see [Initialize]). Frames render into a view handed
// out by a host [SurfaceTarget]; without one they render offscreen and are
// read back for Snapshot.
//
// Synchronization uses one timeline fence whose values are frame serials.
// Each frame slot owns a projection uniform, a transient stream buffer and
// the command buffer last submitted from it; all three are reused only
// after the fence passes the serial that last claimed the slot.
package vulkan

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan" // registers gputypes.BackendVulkan

	"github.com/gogpu/gfx2d/backend"
	"github.com/gogpu/gfx2d/internal/fence"
	"github.com/gogpu/gfx2d/pipeline"
)

func init() {
	backend.Register(backend.KindVulkan, func() backend.Adapter { return New() })
}

// validationLayer is enabled through the loader when Options.Validation is
// set.
const validationLayer = "VK_LAYER_KHRONOS_validation"

// SurfaceTarget is implemented by hosts that own the swapchain. The adapter
// renders each frame into the view returned by Acquire and calls Present
// after the frame's commands are submitted.
type SurfaceTarget interface {
	Format() gputypes.TextureFormat
	Acquire(width, height int) (hal.TextureView, error)
	Present() error
}

// halProvider is implemented by hosts that share their device.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

type slot struct {
	uniform    hal.Buffer
	globals    hal.BindGroup
	stream     hal.Buffer
	streamSize uint64
	cmd        hal.CommandBuffer
}

type gpuTexture struct {
	tex   hal.Texture
	view  hal.TextureView
	group hal.BindGroup
}

// Adapter is the Vulkan backend.
type Adapter struct {
	backend.Lifecycle

	mu       sync.Mutex
	opts     backend.Options
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	shared   bool
	target   SurfaceTarget
	format   gputypes.TextureFormat

	fence     hal.Fence
	tracker   *fence.Tracker
	submitted uint64
	ring      *fence.Ring[*slot]
	staging   backend.Staging

	res       *resources
	textures  map[backend.TextureID]*gpuTexture
	nextTex   backend.TextureID
	offscreen *offscreen

	width, height int
	serial        uint64
	desc          backend.FrameDesc
	view          hal.TextureView
	draws         []backend.DrawCall
	presented     *image.NRGBA
	vsync         bool
}

var (
	_ backend.Adapter     = (*Adapter)(nil)
	_ backend.Snapshotter = (*Adapter)(nil)
)

// New returns an uninitialized adapter.
func New() *Adapter {
	return &Adapter{
		tracker:  fence.NewTracker(),
		textures: make(map[backend.TextureID]*gpuTexture),
	}
}

// Name implements backend.Adapter.
func (a *Adapter) Name() backend.Kind { return backend.KindVulkan }

// Initialize opens the device.
//
// When opts.Host exposes HalDevice and HalQueue, that device is shared and
// never destroyed by the adapter; if the host is also a
// gpucontext.DeviceProvider its SurfaceFormat selects the render format.
// When opts.Host is a SurfaceTarget, frames are presented through it.
func (a *Adapter) Initialize(_ backend.Window, opts backend.Options) error {
	if err := a.Check("Initialize"); err != nil {
		return backend.Wrap(backend.ErrDeviceInit, "Initialize", err)
	}
	if err := pipeline.Checked(); err != nil {
		return backend.Wrap(backend.ErrDeviceInit, "Initialize", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opts = opts
	a.vsync = opts.VSync
	a.format = gputypes.TextureFormatRGBA8Unorm

	if hp, ok := opts.Host.(halProvider); ok {
		if err := a.useShared(hp); err != nil {
			return backend.Wrap(backend.ErrDeviceInit, "Initialize", err)
		}
		if dp, ok := opts.Host.(gpucontext.DeviceProvider); ok {
			if f := dp.SurfaceFormat(); f != gputypes.TextureFormatUndefined {
				a.format = f
			}
		}
	} else if err := a.open(opts.Validation); err != nil {
		return backend.Wrap(backend.ErrDeviceInit, "Initialize", err)
	}
	if t, ok := opts.Host.(SurfaceTarget); ok {
		a.target = t
		a.format = t.Format()
	}

	if err := a.setup(); err != nil {
		a.release()
		return backend.Wrap(backend.ErrDeviceInit, "Initialize", err)
	}
	backend.Logger().Info("vulkan: device ready",
		"shared", a.shared, "format", a.format, "framesInFlight", a.ring.Depth())
	return a.Enter("Initialize", backend.DeviceReady)
}

func (a *Adapter) useShared(hp halProvider) error {
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("host HalDevice is not a hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("host HalQueue is not a hal.Queue")
	}
	a.device, a.queue, a.shared = device, queue, true
	return nil
}

func (a *Adapter) open(validation bool) error {
	if validation {
		os.Setenv("VK_INSTANCE_LAYERS", validationLayer) //nolint:errcheck // best effort
	}
	b, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return backend.ErrBackendNotAvailable
	}
	instance, err := b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return fmt.Errorf("no GPU adapters found")
	}
	selected := &adapters[0]
	for i := range adapters {
		t := adapters[i].Info.DeviceType
		if t == gputypes.DeviceTypeDiscreteGPU || t == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return fmt.Errorf("open device %q: %w", selected.Info.Name, err)
	}
	a.instance = instance
	a.device, a.queue = openDev.Device, openDev.Queue
	backend.Logger().Info("vulkan: adapter selected", "name", selected.Info.Name)
	return nil
}

// setup creates the objects that live as long as the device.
func (a *Adapter) setup() error {
	f, err := a.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	a.fence = f
	if a.res, err = newResources(a.device, a.queue, a.format); err != nil {
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
	buf, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: fmt.Sprintf("globals_%d", i),
		Size:  globalsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return s, fmt.Errorf("create globals buffer: %w", err)
	}
	s.uniform = buf
	s.globals, err = a.res.globalsGroup(buf)
	return s, err
}

// CreateSurface sizes the frame. Offscreen adapters recreate their color
// target and readback buffer.
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
	if a.target == nil {
		if a.offscreen != nil {
			a.offscreen.destroy(a.device)
		}
		o, err := newOffscreen(a.device, a.format, width, height)
		if err != nil {
			a.offscreen = nil
			a.mu.Unlock()
			return backend.Wrap(backend.ErrSurfaceCreation, "CreateSurface", err)
		}
		a.offscreen = o
	}
	a.width, a.height = width, height
	a.mu.Unlock()
	backend.Logger().Debug("vulkan: surface", "width", width, "height", height, "offscreen", a.target == nil)
	return a.Enter("CreateSurface", backend.SurfaceReady)
}

// refresh advances the completed serial without blocking.
func (a *Adapter) refresh() {
	if a.submitted > a.tracker.Completed() {
		if ok, err := a.device.Wait(a.fence, a.submitted, 0); err == nil && ok {
			a.tracker.Complete(a.submitted)
		}
	}
}

func (a *Adapter) poll(serial uint64) func() {
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if ok, err := a.device.Wait(a.fence, serial, 0); err == nil && ok {
			a.tracker.Complete(serial)
		}
	}
}

// CreateTexture implements backend.Adapter.
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
	delete(a.textures, id)
	a.res.destroyTexture(t)
	return nil
}

// LastFrame implements backend.Adapter.
func (a *Adapter) LastFrame() uint64 { return a.tracker.Last() }

// CompletedFrame implements backend.Adapter.
func (a *Adapter) CompletedFrame() uint64 { return a.tracker.Completed() }

// WaitIdle blocks until every submitted frame completed.
func (a *Adapter) WaitIdle(ctx context.Context) error {
	a.mu.Lock()
	last := a.submitted
	a.mu.Unlock()
	if last == 0 {
		return nil
	}
	return a.tracker.Wait(ctx, last, a.opts.Timeout(), a.poll(last))
}

// SetVSync forwards the setting to the host surface when it supports it.
func (a *Adapter) SetVSync(on bool) error {
	if err := a.Check("SetVSync"); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.target.(interface{ SetVSync(bool) error }); ok {
		if err := s.SetVSync(on); err != nil {
			return backend.Wrap(backend.ErrSurfaceCreation, "SetVSync", err)
		}
	}
	a.vsync = on
	return nil
}

// Shutdown waits for the GPU and releases everything the adapter created.
func (a *Adapter) Shutdown() error {
	switch a.State() {
	case backend.Shutdown:
		return nil
	case backend.Uninitialized:
		a.Set(backend.Shutdown)
		return nil
	}
	if err := a.WaitIdle(context.Background()); err != nil {
		backend.Logger().Warn("vulkan: shutdown without idle device", "err", err)
	}
	a.mu.Lock()
	a.release()
	a.mu.Unlock()
	a.Set(backend.Shutdown)
	return nil
}

func (a *Adapter) release() {
	if a.device == nil {
		return
	}
	for id, t := range a.textures {
		a.res.destroyTexture(t)
		delete(a.textures, id)
	}
	if a.ring != nil {
		a.ring.Each(func(s *slot) {
			if s == nil {
				return
			}
			if s.cmd != nil {
				a.device.FreeCommandBuffer(s.cmd)
			}
			if s.globals != nil {
				a.device.DestroyBindGroup(s.globals)
			}
			if s.uniform != nil {
				a.device.DestroyBuffer(s.uniform)
			}
			if s.stream != nil {
				a.device.DestroyBuffer(s.stream)
			}
		})
		a.ring = nil
	}
	if a.offscreen != nil {
		a.offscreen.destroy(a.device)
		a.offscreen = nil
	}
	if a.res != nil {
		a.res.destroy()
		a.res = nil
	}
	if a.fence != nil {
		a.device.DestroyFence(a.fence)
		a.fence = nil
	}
	if !a.shared {
		a.device.Destroy()
		if a.instance != nil {
			a.instance.Destroy()
		}
	}
	a.device, a.queue, a.instance = nil, nil, nil
}

// Snapshot returns the last frame read back from an offscreen target.
func (a *Adapter) Snapshot() (width, height int, rgba []byte, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.presented == nil {
		return 0, 0, nil, fmt.Errorf("no offscreen frame presented: %w", backend.ErrInvalidState)
	}
	b := a.presented.Bounds()
	return b.Dx(), b.Dy(), append([]byte(nil), a.presented.Pix...), nil
}
