package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/gfx2d/pipeline"
)

// Kind names a backend.
type Kind string

// Backend kinds.
const (
	KindVulkan   Kind = "vulkan"
	KindOpenGL   Kind = "opengl"
	KindWebGPU   Kind = "webgpu"
	KindSoftware Kind = "software"
)

// ParseKind resolves a backend name or alias.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vulkan", "vk":
		return KindVulkan, nil
	case "opengl", "gl":
		return KindOpenGL, nil
	case "webgpu", "wgpu", "vulkan-wgpu", "opengl-wgpu":
		return KindWebGPU, nil
	case "software", "cpu":
		return KindSoftware, nil
	default:
		return "", fmt.Errorf("'%s' is not a valid video renderer", s)
	}
}

// UnmarshalText lets config files use any accepted alias.
func (k *Kind) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*k = ""
		return nil
	}
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Window is the part of a host window an adapter needs. *glfw.Window
// satisfies it; adapters type-assert for anything more specific.
type Window interface {
	GetFramebufferSize() (width, height int)
}

// Default frame pacing.
const (
	DefaultFramesInFlight = 2
	DefaultFrameTimeout   = 2 * time.Second
)

// Options configure an adapter at Initialize.
type Options struct {
	// Kind selects the backend in Open. Empty picks the best available.
	Kind Kind

	// Validation enables API validation layers or debug contexts.
	Validation bool

	// VSync synchronizes presentation with the display refresh.
	VSync bool

	// FramesInFlight bounds how many frames may be queued on the GPU
	// (1..3). Zero means DefaultFramesInFlight.
	FramesInFlight int

	// FrameTimeout bounds the wait in BeginFrame. Zero means
	// DefaultFrameTimeout.
	FrameTimeout time.Duration

	// Threads is a worker hint for CPU-side rasterization. Zero means
	// GOMAXPROCS.
	Threads int

	// Host carries a backend-specific host object, such as a shared
	// device provider or a presentation target. Adapters ignore values
	// they do not recognize.
	Host any
}

// Timeout returns the effective frame timeout.
func (o Options) Timeout() time.Duration {
	if o.FrameTimeout <= 0 {
		return DefaultFrameTimeout
	}
	return o.FrameTimeout
}

// FrameDesc parameterizes a frame.
type FrameDesc struct {
	// Projection is used by every draw of the frame.
	Projection mgl32.Mat4
	// Clear is the straight-alpha RGBA clear color.
	Clear mgl32.Vec4
}

// Frame identifies a frame between BeginFrame and EndFrame.
type Frame struct {
	Serial     uint64
	Slot       int
	Width      int
	Height     int
	Projection mgl32.Mat4
}

// BufferRef points into the transient upload storage of one frame.
type BufferRef struct {
	Serial uint64
	Offset uint64
	Size   uint64
}

// Valid reports whether r refers to uploaded data.
func (r BufferRef) Valid() bool { return r.Serial != 0 }

// TextureID identifies a device texture. Zero means no texture.
type TextureID uint64

// Filter is a texture sampling filter.
type Filter uint8

// Filters.
const (
	FilterLinear Filter = iota
	FilterNearest
)

// AddressMode is a texture addressing mode.
type AddressMode uint8

// Address modes.
const (
	WrapClamp AddressMode = iota
	WrapRepeat
	WrapMirror
)

// SamplerDesc describes how a texture is sampled.
type SamplerDesc struct {
	Filter  Filter
	Wrap    AddressMode
	Mipmaps bool
}

// TextureDesc describes a texture to create. Pixel data is RGBA8, straight
// alpha, rows top to bottom.
type TextureDesc struct {
	Label   string
	Width   int
	Height  int
	Sampler SamplerDesc
	// Levels holds the mip levels below the base, each half the size of
	// the previous one. Empty when Sampler.Mipmaps is false.
	Levels [][]byte
}

// MipCount returns the total number of levels including the base.
func (d TextureDesc) MipCount() int { return 1 + len(d.Levels) }

// DrawCall records one instanced draw.
type DrawCall struct {
	Pipeline pipeline.Key
	Texture  TextureID

	// Vertices is ignored for sprites, which use the built-in unit quad.
	Vertices    BufferRef
	VertexCount uint32

	Instances     BufferRef
	InstanceCount uint32
}

// Adapter is the capability set every backend implements. A single render
// goroutine drives it; CompletedFrame and LastFrame may be read from any
// goroutine.
type Adapter interface {
	// Name returns the backend kind.
	Name() Kind

	// State returns the lifecycle state.
	State() State

	// Initialize creates the device. Errors wrap ErrDeviceInit.
	Initialize(win Window, opts Options) error

	// CreateSurface binds the device to win at the given framebuffer size.
	// Calling it again tears down only the surface. Errors wrap
	// ErrSurfaceCreation.
	CreateSurface(win Window, width, height int) error

	// BeginFrame acquires the next frame. It blocks while the frame slot
	// is still in use by the GPU, up to the frame timeout; a timeout or
	// an outdated surface returns ErrSurfaceLost.
	BeginFrame(ctx context.Context, desc FrameDesc) (Frame, error)

	// UploadVertices copies per-vertex data into the frame's transient
	// storage. The data is visible to the GPU before any draw of the
	// frame executes.
	UploadVertices(f Frame, data []byte) (BufferRef, error)

	// UploadInstances copies per-instance data like UploadVertices.
	UploadInstances(f Frame, data []byte) (BufferRef, error)

	// Draw records a draw. Nothing becomes visible before EndFrame.
	Draw(f Frame, call DrawCall) error

	// EndFrame submits the recorded draws and presents. Errors wrap
	// ErrDeviceLost or ErrSurfaceLost.
	EndFrame(f Frame) error

	// CreateTexture uploads an RGBA8 image. Errors wrap ErrResourceUpload.
	CreateTexture(desc TextureDesc, rgba []byte) (TextureID, error)

	// DestroyTexture frees a texture immediately. Callers must make sure no
	// in-flight frame references it.
	DestroyTexture(id TextureID) error

	// LastFrame returns the serial of the most recent BeginFrame.
	LastFrame() uint64

	// CompletedFrame returns the newest serial the device has finished.
	CompletedFrame() uint64

	// WaitIdle blocks until every submitted frame completed.
	WaitIdle(ctx context.Context) error

	// SetVSync changes the presentation mode on the live surface.
	SetVSync(on bool) error

	// Shutdown releases every resource. The adapter cannot be reused.
	Shutdown() error
}

// Snapshotter is implemented by adapters that can return the last
// presented image as straight-alpha RGBA rows.
type Snapshotter interface {
	Snapshot() (width, height int, rgba []byte, err error)
}
