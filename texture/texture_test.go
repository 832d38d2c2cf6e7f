package texture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/gfx2d/backend"
	"github.com/gogpu/gfx2d/backend/backendtest"
)

func newTestManager(t *testing.T) (*Manager, *backendtest.Adapter) {
	t.Helper()
	dev := backendtest.New()
	if err := dev.Initialize(nil, backend.Options{}); err != nil {
		t.Fatal(err)
	}
	if err := dev.CreateSurface(nil, 8, 8); err != nil {
		t.Fatal(err)
	}
	m, err := NewManager(dev)
	if err != nil {
		t.Fatal(err)
	}
	return m, dev
}

func TestToRGBA(t *testing.T) {
	tests := []struct {
		format PixelFormat
		in     []byte
		want   []byte
	}{
		{RGBA8, []byte{1, 2, 3, 4}, []byte{1, 2, 3, 4}},
		{BGRA8, []byte{1, 2, 3, 4}, []byte{3, 2, 1, 4}},
		{RGB8, []byte{1, 2, 3}, []byte{1, 2, 3, 255}},
		{Gray8, []byte{9}, []byte{9, 9, 9, 255}},
		{GrayAlpha8, []byte{9, 7}, []byte{9, 9, 9, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			got, err := ToRGBA(tt.in, 1, 1, tt.format)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != string(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToRGBARejects(t *testing.T) {
	if _, err := ToRGBA([]byte{1}, 1, 1, PixelFormat(99)); !errors.Is(err, backend.ErrUnsupportedFormat) {
		t.Errorf("unknown format: err = %v", err)
	}
	if _, err := ToRGBA([]byte{1, 2, 3}, 1, 1, RGBA8); !errors.Is(err, backend.ErrUnsupportedFormat) {
		t.Errorf("short data: err = %v", err)
	}
	if _, err := ToRGBA(nil, 0, 1, RGBA8); !errors.Is(err, backend.ErrUnsupportedFormat) {
		t.Errorf("zero size: err = %v", err)
	}
}

func TestSubRegionRoundTrip(t *testing.T) {
	sizes := [][2]int{{256, 256}, {1024, 512}, {37, 91}}
	rects := []image.Rectangle{
		image.Rect(0, 0, 1, 1),
		image.Rect(10, 20, 30, 25),
		image.Rect(3, 7, 37, 91),
	}
	for _, s := range sizes {
		for _, r := range rects {
			if !r.In(image.Rect(0, 0, s[0], s[1])) {
				continue
			}
			scale, off, err := SubRegionOf(s[0], s[1], r)
			if err != nil {
				t.Fatal(err)
			}
			got := RectFromUV(s[0], s[1], scale, off)
			d := got.Min.Sub(r.Min)
			e := got.Max.Sub(r.Max)
			if abs(d.X) > 1 || abs(d.Y) > 1 || abs(e.X) > 1 || abs(e.Y) > 1 {
				t.Errorf("%dx%d %v: round trip = %v", s[0], s[1], r, got)
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestSubRegionOutside(t *testing.T) {
	if _, _, err := SubRegionOf(16, 16, image.Rect(8, 8, 20, 12)); !errors.Is(err, ErrBadRegion) {
		t.Errorf("err = %v, want ErrBadRegion", err)
	}
	if _, _, err := SubRegionOf(16, 16, image.Rectangle{}); !errors.Is(err, ErrBadRegion) {
		t.Errorf("empty: err = %v", err)
	}
}

func TestManagerLoadAndLookup(t *testing.T) {
	m, dev := newTestManager(t)
	h, err := m.Load("Notes/Tap.png", make([]byte, 2*2*3), 2, 2, RGB8, backend.SamplerDesc{})
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := m.Lookup("notes/TAP.png"); !ok || got != h {
		t.Errorf("case-insensitive Lookup = %v, %v", got, ok)
	}
	id, err := m.Device(h)
	if err != nil || !dev.Alive(id) {
		t.Errorf("Device(h) = %v, %v", id, err)
	}
	scale, off, err := m.SubRegion(h, image.Rect(1, 0, 2, 1))
	if err != nil {
		t.Fatal(err)
	}
	if scale != (mgl32.Vec2{0.5, 0.5}) || off != (mgl32.Vec2{0.5, 0}) {
		t.Errorf("SubRegion = %v %v", scale, off)
	}
}

func TestManagerUploadFailureRegistersNothing(t *testing.T) {
	m, dev := newTestManager(t)
	dev.FailTexture = errors.New("out of device memory")
	_, err := m.Load("big", make([]byte, 4), 1, 1, RGBA8, backend.SamplerDesc{})
	if !errors.Is(err, backend.ErrResourceUpload) {
		t.Fatalf("err = %v, want ErrResourceUpload", err)
	}
	if _, ok := m.Lookup("big"); ok {
		t.Error("failed texture was registered")
	}
	if got := m.Resolve("big"); got != m.Placeholder() {
		t.Errorf("Resolve = %v, want placeholder", got)
	}
}

func TestManagerMipmaps(t *testing.T) {
	m, dev := newTestManager(t)
	h, err := m.Load("mip", make([]byte, 8*4*4), 8, 4, RGBA8, backend.SamplerDesc{Mipmaps: true})
	if err != nil {
		t.Fatal(err)
	}
	id, _ := m.Device(h)
	desc, _ := dev.Texture(id)
	// 8x4 -> 4x2 -> 2x1 -> 1x1
	if desc.MipCount() != 4 {
		t.Fatalf("MipCount = %d, want 4", desc.MipCount())
	}
	if len(desc.Levels[0]) != 4*2*4 || len(desc.Levels[3-1]) != 4 {
		t.Errorf("level sizes = %d, %d", len(desc.Levels[0]), len(desc.Levels[2]))
	}
}

// A texture released while a frame that may use it is in flight stays on
// the device until that frame completes.
func TestReleaseDeferredUntilFrameCompletes(t *testing.T) {
	m, dev := newTestManager(t)
	h, err := m.Load("judge", make([]byte, 4), 1, 1, RGBA8, backend.SamplerDesc{})
	if err != nil {
		t.Fatal(err)
	}
	id, _ := m.Device(h)

	f, err := dev.BeginFrame(context.Background(), backend.FrameDesc{Projection: mgl32.Ident4()})
	if err != nil {
		t.Fatal(err)
	}
	inst, _ := dev.UploadInstances(f, make([]byte, 72))
	if err := dev.Draw(f, backend.DrawCall{Texture: id, Instances: inst, InstanceCount: 1}); err != nil {
		t.Fatal(err)
	}
	if err := dev.EndFrame(f); err != nil {
		t.Fatal(err)
	}

	if err := m.Release(h); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Lookup("judge"); ok {
		t.Error("released name still resolves")
	}
	if n := m.Collect(); n != 0 || !dev.Alive(id) {
		t.Fatalf("destroyed while frame %d in flight (collected %d)", f.Serial, n)
	}

	dev.Complete(f.Serial)
	if n := m.Collect(); n != 1 || dev.Alive(id) {
		t.Fatalf("Collect after completion = %d, alive = %v", n, dev.Alive(id))
	}
	if m.Pending() != 0 {
		t.Errorf("Pending = %d", m.Pending())
	}
}

func TestReloadRetiresPrevious(t *testing.T) {
	m, dev := newTestManager(t)
	h1, _ := m.Load("bg", make([]byte, 4), 1, 1, RGBA8, backend.SamplerDesc{})
	id1, _ := m.Device(h1)
	h2, _ := m.Load("BG", make([]byte, 4), 1, 1, RGBA8, backend.SamplerDesc{})
	if got, _ := m.Lookup("bg"); got != h2 {
		t.Errorf("Lookup after reload = %v, want %v", got, h2)
	}
	if _, err := m.Device(h1); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("old handle still live: %v", err)
	}
	// No frame has begun, so nothing can reference the old texture.
	m.Collect()
	if dev.Alive(id1) {
		t.Error("old texture not destroyed")
	}
}

func TestPlaceholder(t *testing.T) {
	m, _ := newTestManager(t)
	if h, ok := m.Lookup(PlaceholderName); !ok || h != m.Placeholder() {
		t.Errorf("placeholder lookup = %v, %v", h, ok)
	}
	if err := m.Release(m.Placeholder()); err == nil {
		t.Error("placeholder release should fail")
	}
	if m.Resolve("missing") != m.Placeholder() {
		t.Error("Resolve should fall back to placeholder")
	}
}

func TestPackerShelves(t *testing.T) {
	p := NewPacker(256, 256, 1)
	a, ok := p.Allocate(100, 50)
	if !ok || a != image.Rect(0, 0, 100, 50) {
		t.Fatalf("first = %v, %v", a, ok)
	}
	b, ok := p.Allocate(100, 40)
	if !ok || b != image.Rect(101, 0, 201, 40) {
		t.Fatalf("second = %v, %v", b, ok)
	}
	c, ok := p.Allocate(100, 60)
	if !ok || c.Min.Y != 51 {
		t.Fatalf("taller item should open a new shelf, got %v", c)
	}
	if _, ok := p.Allocate(300, 10); ok {
		t.Error("oversized allocation succeeded")
	}
	if p.AllocCount() != 3 {
		t.Errorf("AllocCount = %d", p.AllocCount())
	}
	p.Reset()
	if p.Utilization() != 0 {
		t.Errorf("Utilization after Reset = %v", p.Utilization())
	}
}

func TestAtlasRegions(t *testing.T) {
	m, _ := newTestManager(t)
	a := NewAtlas(256, 256)
	red := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for i := range red.Pix {
		red.Pix[i] = 0xFF
	}
	red.Set(0, 0, color.NRGBA{R: 255, A: 255})
	r, err := a.Add("Red", red)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Add("huge", image.NewNRGBA(image.Rect(0, 0, 300, 10))); !errors.Is(err, ErrAtlasFull) {
		t.Errorf("huge: err = %v", err)
	}
	h, err := m.LoadAtlas("sheet", a, backend.SamplerDesc{})
	if err != nil {
		t.Fatal(err)
	}
	reg, ok := m.Region("red")
	if !ok || reg.Texture != h || reg.Rect != r {
		t.Fatalf("Region = %+v, %v", reg, ok)
	}
	if reg.UVScale != (mgl32.Vec2{16.0 / 256, 16.0 / 256}) {
		t.Errorf("UVScale = %v", reg.UVScale)
	}
	if got := a.Image().NRGBAAt(0, 0); got != (color.NRGBA{R: 255, A: 255}) {
		t.Errorf("atlas pixel = %v", got)
	}
}

func TestClose(t *testing.T) {
	m, dev := newTestManager(t)
	h, _ := m.Load("a", make([]byte, 4), 1, 1, RGBA8, backend.SamplerDesc{})
	id, _ := m.Device(h)
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if dev.Alive(id) || m.Len() != 0 {
		t.Error("Close left textures alive")
	}
}
