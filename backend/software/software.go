// Package software implements backend.Adapter on the CPU.
//
// Frames are rasterized at EndFrame into an RGBA float target that is then
// quantized into an *image.NRGBA. Draws run in submission order; rows are
// split into bands and rasterized in parallel. The adapter needs no window:
// it is the fallback when no GPU backend opens, and the reference the GPU
// shaders are checked against.
//
// Completion is synchronous, so CompletedFrame equals LastFrame after every
// EndFrame.
package software

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/gfx2d/backend"
	"github.com/gogpu/gfx2d/internal/fence"
	"github.com/gogpu/gfx2d/internal/parallel"
	"github.com/gogpu/gfx2d/schema"
)

func init() {
	backend.Register(backend.KindSoftware, func() backend.Adapter { return New() })
}

// Presenter receives every finished frame. Pass one as Options.Host to
// show software frames in a window or stream them elsewhere.
type Presenter interface {
	Present(img *image.NRGBA) error
}

// Adapter is the CPU backend.
type Adapter struct {
	backend.Lifecycle

	mu        sync.Mutex
	opts      backend.Options
	presenter Presenter
	pool      *parallel.Pool
	tracker   *fence.Tracker
	staging   backend.Staging

	textures map[backend.TextureID]*texture
	nextTex  backend.TextureID

	width, height int
	target        []float32
	desc          backend.FrameDesc
	serial        uint64
	draws         []backend.DrawCall
	presented     *image.NRGBA
	vsync         bool
}

var (
	_ backend.Adapter     = (*Adapter)(nil)
	_ backend.Snapshotter = (*Adapter)(nil)
)

// New returns an uninitialized software adapter.
func New() *Adapter {
	return &Adapter{
		tracker:  fence.NewTracker(),
		textures: make(map[backend.TextureID]*texture),
	}
}

// Name implements backend.Adapter.
func (a *Adapter) Name() backend.Kind { return backend.KindSoftware }

// Initialize starts the raster workers. The window is not used.
func (a *Adapter) Initialize(_ backend.Window, opts backend.Options) error {
	if err := a.Check("Initialize"); err != nil {
		return backend.Wrap(backend.ErrDeviceInit, "Initialize", err)
	}
	a.mu.Lock()
	a.opts = opts
	a.vsync = opts.VSync
	if p, ok := opts.Host.(Presenter); ok {
		a.presenter = p
	}
	a.pool = parallel.New(opts.Threads)
	workers := a.pool.Workers()
	a.mu.Unlock()
	backend.Logger().Info("software: device ready", "workers", workers)
	return a.Enter("Initialize", backend.DeviceReady)
}

// CreateSurface sizes the render target.
func (a *Adapter) CreateSurface(_ backend.Window, width, height int) error {
	if err := a.Check("CreateSurface"); err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return backend.Wrap(backend.ErrSurfaceCreation, "CreateSurface", fmt.Errorf("size %dx%d", width, height))
	}
	a.mu.Lock()
	a.width, a.height = width, height
	a.target = make([]float32, width*height*4)
	a.mu.Unlock()
	backend.Logger().Debug("software: surface", "width", width, "height", height)
	return a.Enter("CreateSurface", backend.SurfaceReady)
}

// BeginFrame implements backend.Adapter. It never blocks: the previous
// frame finished inside its EndFrame.
func (a *Adapter) BeginFrame(ctx context.Context, desc backend.FrameDesc) (backend.Frame, error) {
	if err := ctx.Err(); err != nil {
		return backend.Frame{}, err
	}
	if err := a.Enter("BeginFrame", backend.FrameInFlight); err != nil {
		return backend.Frame{}, err
	}
	serial := a.tracker.Begin()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.serial = serial
	a.desc = desc
	a.draws = a.draws[:0]
	a.staging.Reset(serial)
	return backend.Frame{
		Serial:     serial,
		Width:      a.width,
		Height:     a.height,
		Projection: desc.Projection,
	}, nil
}

func (a *Adapter) upload(f backend.Frame, data []byte) (backend.BufferRef, error) {
	if err := a.Check("Record"); err != nil {
		return backend.BufferRef{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := backend.CheckFrame(f, a.serial); err != nil {
		return backend.BufferRef{}, err
	}
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

// Draw validates call and queues it for EndFrame.
func (a *Adapter) Draw(f backend.Frame, call backend.DrawCall) error {
	if err := a.Check("Record"); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := backend.CheckFrame(f, a.serial); err != nil {
		return err
	}
	kind := call.Pipeline.Kind
	if schema.NeedsTexture(kind) {
		if _, ok := a.textures[call.Texture]; !ok {
			return fmt.Errorf("%s draw with unknown texture %d: %w", call.Pipeline, call.Texture, backend.ErrInvalidState)
		}
	}
	layout := schema.LayoutOf(kind)
	inst, err := a.staging.Slice(call.Instances)
	if err != nil {
		return err
	}
	if uint64(call.InstanceCount)*uint64(layout.Instance.Stride) > uint64(len(inst)) {
		return fmt.Errorf("%d instances do not fit %d bytes: %w", call.InstanceCount, len(inst), backend.ErrInvalidState)
	}
	if schema.UsesVertexStream(kind) {
		verts, err := a.staging.Slice(call.Vertices)
		if err != nil {
			return err
		}
		if uint64(call.VertexCount)*uint64(layout.Vertex.Stride) > uint64(len(verts)) {
			return fmt.Errorf("%d vertices do not fit %d bytes: %w", call.VertexCount, len(verts), backend.ErrInvalidState)
		}
	}
	a.draws = append(a.draws, call)
	return nil
}

// EndFrame rasterizes the queued draws, publishes the image and completes
// the frame.
func (a *Adapter) EndFrame(f backend.Frame) error {
	if err := a.Check("EndFrame"); err != nil {
		return err
	}
	a.mu.Lock()
	if err := backend.CheckFrame(f, a.serial); err != nil {
		a.mu.Unlock()
		return err
	}
	batches, err := a.setup()
	if err != nil {
		a.mu.Unlock()
		a.Set(backend.Shutdown)
		return backend.Wrap(backend.ErrDeviceLost, "EndFrame", err)
	}
	a.clear(a.desc.Clear)
	w, h, target := a.width, a.height, a.target
	a.pool.Bands(h, 16, func(y0, y1 int) {
		for i := range batches {
			batches[i].raster(target, w, y0, y1)
		}
	})
	img := quantize(target, w, h)
	a.presented = img
	presenter := a.presenter
	a.mu.Unlock()

	a.tracker.Complete(f.Serial)
	if presenter != nil {
		if err := presenter.Present(img); err != nil {
			a.Set(backend.SurfaceLost)
			return backend.Wrap(backend.ErrSurfaceLost, "EndFrame", err)
		}
	}
	return a.Enter("EndFrame", backend.SurfaceReady)
}

func (a *Adapter) clear(c mgl32.Vec4) {
	for i := 0; i < len(a.target); i += 4 {
		copy(a.target[i:i+4], c[:])
	}
}

// CreateTexture copies the image and its mip levels.
func (a *Adapter) CreateTexture(desc backend.TextureDesc, rgba []byte) (backend.TextureID, error) {
	if err := a.Check("Resource"); err != nil {
		return 0, err
	}
	tex, err := newTexture(desc, rgba)
	if err != nil {
		return 0, backend.Wrap(backend.ErrResourceUpload, "CreateTexture", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextTex++
	a.textures[a.nextTex] = tex
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
	return nil
}

// LastFrame implements backend.Adapter.
func (a *Adapter) LastFrame() uint64 { return a.tracker.Last() }

// CompletedFrame implements backend.Adapter.
func (a *Adapter) CompletedFrame() uint64 { return a.tracker.Completed() }

// WaitIdle returns immediately; frames complete inside EndFrame.
func (a *Adapter) WaitIdle(ctx context.Context) error { return ctx.Err() }

// SetVSync records the setting. Software presentation is never paced.
func (a *Adapter) SetVSync(on bool) error {
	if err := a.Check("SetVSync"); err != nil {
		return err
	}
	a.mu.Lock()
	a.vsync = on
	a.mu.Unlock()
	return nil
}

// Shutdown stops the workers and frees every texture.
func (a *Adapter) Shutdown() error {
	if a.State() == backend.Shutdown {
		return nil
	}
	a.mu.Lock()
	if a.pool != nil {
		a.pool.Close()
	}
	clear(a.textures)
	a.target = nil
	a.mu.Unlock()
	a.tracker.CompleteAll()
	a.Set(backend.Shutdown)
	return nil
}

// Snapshot returns a copy of the last presented frame.
func (a *Adapter) Snapshot() (width, height int, rgba []byte, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.presented == nil {
		return 0, 0, nil, fmt.Errorf("no frame presented yet: %w", backend.ErrInvalidState)
	}
	b := a.presented.Bounds()
	return b.Dx(), b.Dy(), append([]byte(nil), a.presented.Pix...), nil
}

// Image returns the last presented frame, or nil. The image must not be
// modified.
func (a *Adapter) Image() *image.NRGBA {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.presented
}

func quantize(target []float32, w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, v := range target {
		img.Pix[i] = unorm8(v)
	}
	return img
}

func unorm8(v float32) uint8 {
	return uint8(mgl32.Clamp(v, 0, 1)*255 + 0.5)
}
