//go:build !nogpu

package vulkan

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/gfx2d/backend"
	"github.com/gogpu/gfx2d/internal/fence"
	"github.com/gogpu/gfx2d/pipeline"
	"github.com/gogpu/gfx2d/schema"
)

// host shares a noop device the way an application host shares its own.
type host struct {
	device hal.Device
	queue  hal.Queue
	format gputypes.TextureFormat
}

func (h *host) HalDevice() any                        { return h.device }
func (h *host) HalQueue() any                         { return h.queue }
func (h *host) Device() gpucontext.Device             { return nil }
func (h *host) Queue() gpucontext.Queue               { return nil }
func (h *host) Adapter() gpucontext.Adapter           { return nil }
func (h *host) SurfaceFormat() gputypes.TextureFormat { return h.format }
func (h *host) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: "noop", Type: gpucontext.AdapterTypeUnknown}
}

var _ gpucontext.DeviceProvider = (*host)(nil)

func newHost(t *testing.T) *host {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return &host{device: openDev.Device, queue: openDev.Queue}
}

func newAdapter(t *testing.T, h *host, frames int) *Adapter {
	t.Helper()
	a := New()
	if err := a.Initialize(nil, backend.Options{Host: h, FramesInFlight: frames}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := a.CreateSurface(nil, 8, 4); err != nil {
		t.Fatalf("CreateSurface: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown() })
	return a
}

func drawSprite(t *testing.T, a *Adapter, f backend.Frame, tex backend.TextureID) {
	t.Helper()
	ref, err := a.UploadInstances(f, schema.AppendSprites(nil, schema.DefaultSprite(mgl32.Vec2{}, mgl32.Vec2{2, 2})))
	if err != nil {
		t.Fatal(err)
	}
	err = a.Draw(f, backend.DrawCall{
		Pipeline:      pipeline.Key{Kind: pipeline.Sprite, Blend: pipeline.BlendAlpha},
		Texture:       tex,
		Instances:     ref,
		InstanceCount: 1,
	})
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
}

func TestInitializeWithSharedDevice(t *testing.T) {
	h := newHost(t)
	h.format = gputypes.TextureFormatBGRA8Unorm
	a := newAdapter(t, h, 0)

	if a.State() != backend.SurfaceReady {
		t.Errorf("state = %s, want surface-ready", a.State())
	}
	if !a.shared {
		t.Error("adapter should use the host device")
	}
	if a.format != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("format = %v, want the host surface format", a.format)
	}
	if a.ring.Depth() != backend.DefaultFramesInFlight {
		t.Errorf("frames in flight = %d, want %d", a.ring.Depth(), backend.DefaultFramesInFlight)
	}
}

func TestFramesSubmitAndComplete(t *testing.T) {
	a := newAdapter(t, newHost(t), 2)
	tex, err := a.CreateTexture(backend.TextureDesc{Label: "white", Width: 1, Height: 1}, []byte{255, 255, 255, 255})
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}

	for i := range 4 {
		f, err := a.BeginFrame(context.Background(), backend.FrameDesc{Projection: mgl32.Ident4()})
		if err != nil {
			t.Fatalf("frame %d: BeginFrame: %v", i, err)
		}
		if f.Slot != int(f.Serial%2) {
			t.Errorf("frame %d: slot = %d", f.Serial, f.Slot)
		}
		drawSprite(t, a, f, tex)
		if err := a.EndFrame(f); err != nil {
			t.Fatalf("frame %d: EndFrame: %v", i, err)
		}
	}
	if a.CompletedFrame() != 4 {
		t.Errorf("CompletedFrame = %d, want 4", a.CompletedFrame())
	}
	if w, h, pix, err := a.Snapshot(); err != nil || w != 8 || h != 4 || len(pix) != 8*4*4 {
		t.Errorf("Snapshot = %dx%d, %d bytes, %v", w, h, len(pix), err)
	}
}

func TestPipelinesAreCachedPerKey(t *testing.T) {
	a := newAdapter(t, newHost(t), 1)
	for range 2 {
		for _, key := range pipeline.Keys() {
			if _, err := a.res.pipeline(key); err != nil {
				t.Fatalf("pipeline %s: %v", key, err)
			}
		}
	}
	if got, want := len(a.res.pipelines), len(pipeline.Keys()); got != want {
		t.Errorf("pipelines = %d, want %d", got, want)
	}
	if len(a.res.modules) != len(schema.Kinds) {
		t.Errorf("shader modules = %d, want %d", len(a.res.modules), len(schema.Kinds))
	}
}

func TestSamplersAreShared(t *testing.T) {
	a := newAdapter(t, newHost(t), 1)
	desc := backend.TextureDesc{Width: 2, Height: 2, Sampler: backend.SamplerDesc{Wrap: backend.WrapRepeat}}
	for range 3 {
		if _, err := a.CreateTexture(desc, make([]byte, 16)); err != nil {
			t.Fatal(err)
		}
	}
	if len(a.res.samplers) != 1 {
		t.Errorf("samplers = %d, want 1", len(a.res.samplers))
	}
}

func TestTextureErrors(t *testing.T) {
	a := newAdapter(t, newHost(t), 1)
	if _, err := a.CreateTexture(backend.TextureDesc{Width: 2, Height: 2}, make([]byte, 3)); !errors.Is(err, backend.ErrResourceUpload) {
		t.Errorf("short pixels = %v, want ErrResourceUpload", err)
	}
	if err := a.DestroyTexture(7); !errors.Is(err, backend.ErrInvalidState) {
		t.Errorf("DestroyTexture(unknown) = %v, want ErrInvalidState", err)
	}

	f, err := a.BeginFrame(context.Background(), backend.FrameDesc{Projection: mgl32.Ident4()})
	if err != nil {
		t.Fatal(err)
	}
	ref, _ := a.UploadInstances(f, schema.AppendSprites(nil, schema.DefaultSprite(mgl32.Vec2{}, mgl32.Vec2{1, 1})))
	err = a.Draw(f, backend.DrawCall{Pipeline: pipeline.Key{Kind: pipeline.Sprite}, Texture: 3, Instances: ref, InstanceCount: 1})
	if !errors.Is(err, backend.ErrInvalidState) {
		t.Errorf("draw with unknown texture = %v, want ErrInvalidState", err)
	}
	if err := a.EndFrame(f); err != nil {
		t.Fatal(err)
	}
}

func TestRecordOutsideFrame(t *testing.T) {
	a := newAdapter(t, newHost(t), 1)
	if _, err := a.UploadVertices(backend.Frame{Serial: 1}, []byte{0}); !errors.Is(err, backend.ErrInvalidState) {
		t.Errorf("upload outside a frame = %v, want ErrInvalidState", err)
	}
}

func TestShutdownKeepsSharedDevice(t *testing.T) {
	h := newHost(t)
	a := newAdapter(t, h, 1)
	if err := a.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if err := a.Shutdown(); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
	if a.State() != backend.Shutdown {
		t.Errorf("state = %s, want shutdown", a.State())
	}
	// The host still owns a working device.
	if _, err := h.device.CreateFence(); err != nil {
		t.Errorf("host device unusable after Shutdown: %v", err)
	}
}

func TestInitializeRejectsForeignHost(t *testing.T) {
	a := New()
	err := a.Initialize(nil, backend.Options{Host: &host{}})
	if !errors.Is(err, backend.ErrDeviceInit) {
		t.Errorf("Initialize = %v, want ErrDeviceInit", err)
	}
}

func TestMatrixBytesColumnMajor(t *testing.T) {
	b := matrixBytes(mgl32.Translate3D(3, 4, 0))
	if len(b) != globalsSize {
		t.Fatalf("len = %d", len(b))
	}
	// Column 3 holds the translation.
	if b[48] == 0 && b[49] == 0 && b[50] == 0 && b[51] == 0 {
		t.Error("translation not in column 3")
	}
}

func TestWaitError(t *testing.T) {
	lost := errors.New("device lost")
	tests := []struct {
		name    string
		ok      bool
		err     error
		want    error
		wantNil bool
	}{
		{name: "signaled", ok: true, wantNil: true},
		{name: "timed out", ok: false, want: fence.ErrTimeout},
		{name: "failed", ok: false, err: lost, want: lost},
		{name: "failed after signal", ok: true, err: lost, want: lost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := waitError(7, tt.ok, tt.err)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("waitError = %v, want nil", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Fatalf("waitError = %v, want wrapping %v", got, tt.want)
			}
			if strings.Contains(got.Error(), "%!") {
				t.Errorf("malformed message %q", got.Error())
			}
		})
	}
}
