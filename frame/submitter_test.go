package frame

import (
	"context"
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/gfx2d/backend"
	"github.com/gogpu/gfx2d/backend/backendtest"
	"github.com/gogpu/gfx2d/pipeline"
	"github.com/gogpu/gfx2d/schema"
	"github.com/gogpu/gfx2d/texture"
)

type fixture struct {
	dev  *backendtest.Adapter
	tex  *texture.Manager
	sub  *Submitter
	tex1 texture.Handle
	tex2 texture.Handle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := backendtest.New()
	dev.AutoComplete = true
	win := backendtest.Window{W: 64, H: 32}
	if err := dev.Initialize(win, backend.Options{}); err != nil {
		t.Fatal(err)
	}
	tex, err := texture.NewManager(dev)
	if err != nil {
		t.Fatal(err)
	}
	sub := New(dev, tex, win)
	if err := sub.Resize(64, 32); err != nil {
		t.Fatal(err)
	}
	f := &fixture{dev: dev, tex: tex, sub: sub}
	f.tex1, _ = tex.Load("tex1", make([]byte, 4), 1, 1, texture.RGBA8, backend.SamplerDesc{})
	f.tex2, _ = tex.Load("tex2", make([]byte, 4), 1, 1, texture.RGBA8, backend.SamplerDesc{})
	return f
}

func (f *fixture) id(t *testing.T, h texture.Handle) backend.TextureID {
	t.Helper()
	id, err := f.tex.Device(h)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func sprite(x float32) schema.SpriteInstance {
	return schema.DefaultSprite(mgl32.Vec2{x, 0}, mgl32.Vec2{1, 1})
}

func spriteReq(h texture.Handle, xs ...float32) Request {
	r := Request{Kind: pipeline.Sprite, Texture: h}
	for _, x := range xs {
		r.Sprites = append(r.Sprites, sprite(x))
	}
	return r
}

func TestBatchOrderIsSubmissionOrder(t *testing.T) {
	f := newFixture(t)
	fr, err := f.sub.Begin(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// A and C share a texture but B sits between them.
	for _, r := range []Request{spriteReq(f.tex1, 1), spriteReq(f.tex2, 2), spriteReq(f.tex1, 3)} {
		if err := fr.Submit(r); err != nil {
			t.Fatal(err)
		}
	}
	res := fr.End()
	if res.Err != nil || !res.Presented {
		t.Fatalf("End = %+v", res)
	}
	rec, _ := f.dev.LastRecorded()
	if len(rec.Draws) != 3 {
		t.Fatalf("draws = %d, want 3 (A, B, C)", len(rec.Draws))
	}
	wantTex := []backend.TextureID{f.id(t, f.tex1), f.id(t, f.tex2), f.id(t, f.tex1)}
	wantX := []float32{1, 2, 3}
	stream := schema.LayoutOf(schema.Sprite).Instance
	for i, d := range rec.Draws {
		if d.Call.Texture != wantTex[i] {
			t.Errorf("draw %d texture = %d, want %d", i, d.Call.Texture, wantTex[i])
		}
		got := schema.DecodeSprite(stream.Element(d.Instances, 0))
		if got.Center[0] != wantX[i] {
			t.Errorf("draw %d center.x = %v, want %v", i, got.Center[0], wantX[i])
		}
	}
}

func TestAdjacentRequestsMerge(t *testing.T) {
	f := newFixture(t)
	fr, _ := f.sub.Begin(context.Background())
	_ = fr.Submit(spriteReq(f.tex1, 1, 2))
	_ = fr.Submit(spriteReq(f.tex1, 3))
	_ = fr.Submit(Request{Kind: pipeline.Sprite, Blend: pipeline.BlendAdd, Texture: f.tex1, Sprites: []schema.SpriteInstance{sprite(4)}})
	res := fr.End()
	if res.Batches != 2 || res.Instances != 4 {
		t.Fatalf("result = %+v, want 2 batches / 4 instances", res)
	}
	rec, _ := f.dev.LastRecorded()
	first := rec.Draws[0]
	if first.Call.InstanceCount != 3 {
		t.Errorf("merged count = %d, want 3", first.Call.InstanceCount)
	}
	stream := schema.LayoutOf(schema.Sprite).Instance
	for i, want := range []float32{1, 2, 3} {
		if got := schema.DecodeSprite(stream.Element(first.Instances, i)).Center[0]; got != want {
			t.Errorf("instance %d center.x = %v, want %v", i, got, want)
		}
	}
	if rec.Draws[1].Call.Pipeline.Blend != pipeline.BlendAdd {
		t.Errorf("second batch blend = %v", rec.Draws[1].Call.Pipeline.Blend)
	}
}

func TestMeshesMergeOnlyWithSameGeometry(t *testing.T) {
	f := newFixture(t)
	tri := []schema.MeshVertex{
		{Pos: mgl32.Vec2{0, 0}, Color: mgl32.Vec4{1, 0, 0, 1}},
		{Pos: mgl32.Vec2{1, 0}, Color: mgl32.Vec4{1, 0, 0, 1}},
		{Pos: mgl32.Vec2{0, 1}, Color: mgl32.Vec4{1, 0, 0, 1}},
	}
	other := append([]schema.MeshVertex(nil), tri...)
	other[2].Pos = mgl32.Vec2{1, 1}

	fr, _ := f.sub.Begin(context.Background())
	_ = fr.Submit(Request{Kind: pipeline.Mesh, MeshVertices: tri})
	_ = fr.Submit(Request{Kind: pipeline.Mesh, MeshVertices: tri, MeshInstances: []schema.MeshInstance{{Model: mgl32.Translate3D(5, 0, 0)}}})
	_ = fr.Submit(Request{Kind: pipeline.Mesh, MeshVertices: other})
	_ = fr.Submit(Request{Kind: pipeline.Mesh, MeshVertices: tri})
	res := fr.End()
	if res.Batches != 3 {
		t.Fatalf("batches = %d, want 3", res.Batches)
	}
	rec, _ := f.dev.LastRecorded()
	if rec.Draws[0].Call.InstanceCount != 2 {
		t.Errorf("first batch instances = %d, want 2", rec.Draws[0].Call.InstanceCount)
	}
	if rec.Draws[0].Call.Vertices != rec.Draws[2].Call.Vertices {
		t.Error("identical geometry uploaded twice in one frame")
	}
	if rec.Draws[0].Call.Texture != 0 {
		t.Error("untextured mesh carries a texture")
	}
}

func TestGeometryKeyReusesEncoding(t *testing.T) {
	f := newFixture(t)
	verts := []schema.TexturedMeshVertex{
		{Pos: mgl32.Vec2{0, 0}, UV: mgl32.Vec2{0, 0}, Color: mgl32.Vec4{1, 1, 1, 1}},
		{Pos: mgl32.Vec2{1, 0}, UV: mgl32.Vec2{1, 0}, Color: mgl32.Vec4{1, 1, 1, 1}},
		{Pos: mgl32.Vec2{0, 1}, UV: mgl32.Vec2{0, 1}, Color: mgl32.Vec4{1, 1, 1, 1}},
	}
	for range 3 {
		fr, err := f.sub.Begin(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		_ = fr.Submit(Request{Kind: pipeline.TexturedMesh, Texture: f.tex1, TexturedVertices: verts, GeometryKey: 42})
		if res := fr.End(); res.Err != nil {
			t.Fatal(res.Err)
		}
	}
	if s := f.sub.GeometryStats(); s.Entries != 1 || s.Hits != 1 {
		t.Errorf("geometry stats = %+v, want 1 entry and 1 hit", s)
	}
}

func TestGeometryKeyIsScopedByArchetype(t *testing.T) {
	f := newFixture(t)
	mesh := []schema.MeshVertex{
		{Pos: mgl32.Vec2{0, 0}, Color: mgl32.Vec4{1, 0, 0, 1}},
		{Pos: mgl32.Vec2{1, 0}, Color: mgl32.Vec4{1, 0, 0, 1}},
		{Pos: mgl32.Vec2{0, 1}, Color: mgl32.Vec4{1, 0, 0, 1}},
	}
	tmesh := []schema.TexturedMeshVertex{
		{Pos: mgl32.Vec2{0, 0}, UV: mgl32.Vec2{0, 0}, Color: mgl32.Vec4{1, 1, 1, 1}},
		{Pos: mgl32.Vec2{1, 0}, UV: mgl32.Vec2{1, 0}, Color: mgl32.Vec4{1, 1, 1, 1}},
		{Pos: mgl32.Vec2{0, 1}, UV: mgl32.Vec2{0, 1}, Color: mgl32.Vec4{1, 1, 1, 1}},
	}
	meshBytes := 3 * int(schema.LayoutOf(pipeline.Mesh).Vertex.Stride)
	tmeshBytes := 3 * int(schema.LayoutOf(pipeline.TexturedMesh).Vertex.Stride)

	for i := range 3 {
		fr, err := f.sub.Begin(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		_ = fr.Submit(Request{Kind: pipeline.Mesh, MeshVertices: mesh, GeometryKey: 7})
		_ = fr.Submit(Request{Kind: pipeline.TexturedMesh, Texture: f.tex1, TexturedVertices: tmesh, GeometryKey: 7})
		if res := fr.End(); res.Err != nil || res.Draws != 2 {
			t.Fatalf("frame %d: result = %+v", i, res)
		}
		rec, _ := f.dev.LastRecorded()
		if got := len(rec.Draws[0].Vertices); got != meshBytes {
			t.Errorf("frame %d: mesh drew with %d vertex bytes, want %d", i, got, meshBytes)
		}
		if got := len(rec.Draws[1].Vertices); got != tmeshBytes {
			t.Errorf("frame %d: textured mesh drew with %d vertex bytes, want %d", i, got, tmeshBytes)
		}
		if rec.Draws[0].Call.Vertices == rec.Draws[1].Call.Vertices {
			t.Errorf("frame %d: archetypes share one vertex upload", i)
		}
	}
	if s := f.sub.GeometryStats(); s.Entries != 2 {
		t.Errorf("geometry entries = %d, want 2", s.Entries)
	}
}

func TestGeometryKeyWithNewVertexCount(t *testing.T) {
	f := newFixture(t)
	tri := []schema.MeshVertex{{}, {}, {}}
	quad := []schema.MeshVertex{{}, {}, {}, {}, {}, {}}
	for _, verts := range [][]schema.MeshVertex{tri, tri, tri, quad} {
		fr, _ := f.sub.Begin(context.Background())
		_ = fr.Submit(Request{Kind: pipeline.Mesh, MeshVertices: verts, GeometryKey: 9})
		fr.End()
	}
	rec, _ := f.dev.LastRecorded()
	want := len(quad) * int(schema.LayoutOf(pipeline.Mesh).Vertex.Stride)
	if got := len(rec.Draws[0].Vertices); got != want {
		t.Errorf("vertex bytes = %d, want %d", got, want)
	}
	if rec.Draws[0].Call.VertexCount != uint32(len(quad)) {
		t.Errorf("vertex count = %d", rec.Draws[0].Call.VertexCount)
	}
}

func TestUnkeyedGeometryIsNotCached(t *testing.T) {
	f := newFixture(t)
	tri := []schema.MeshVertex{{}, {Pos: mgl32.Vec2{1, 0}}, {Pos: mgl32.Vec2{0, 1}}}
	for range 3 {
		fr, _ := f.sub.Begin(context.Background())
		_ = fr.Submit(Request{Kind: pipeline.Mesh, MeshVertices: tri})
		fr.End()
	}
	if s := f.sub.GeometryStats(); s.Entries != 0 || s.Misses != 0 {
		t.Errorf("geometry stats = %+v, want an untouched cache", s)
	}
}

func TestBadRequestDoesNotAbortFrame(t *testing.T) {
	f := newFixture(t)
	fr, _ := f.sub.Begin(context.Background())
	if err := fr.Submit(Request{Kind: pipeline.Mesh}); !errors.Is(err, ErrEmptyRequest) {
		t.Errorf("empty mesh: err = %v", err)
	}
	_ = fr.Submit(spriteReq(f.tex1, 0))
	res := fr.End()
	if !res.Presented || res.Draws != 1 || len(res.Skipped) != 1 {
		t.Errorf("result = %+v", res)
	}
	if err := fr.Submit(spriteReq(f.tex1, 0)); !errors.Is(err, ErrFrameEnded) {
		t.Errorf("submit after End: err = %v", err)
	}
}

func TestReleasedTextureFallsBackToPlaceholder(t *testing.T) {
	f := newFixture(t)
	white := f.id(t, f.tex.Placeholder())
	if err := f.tex.Release(f.tex2); err != nil {
		t.Fatal(err)
	}
	fr, _ := f.sub.Begin(context.Background())
	_ = fr.Submit(spriteReq(f.tex2, 0))
	_ = fr.Submit(spriteReq(0, 1))
	fr.End()
	rec, _ := f.dev.LastRecorded()
	if len(rec.Draws) != 1 || rec.Draws[0].Call.Texture != white {
		t.Errorf("draws = %+v, want one placeholder batch", rec.Draws)
	}
}

func TestBeginCollectsReleasedTextures(t *testing.T) {
	f := newFixture(t)
	f.dev.AutoComplete = false
	id := f.id(t, f.tex1)

	fr, _ := f.sub.Begin(context.Background())
	_ = fr.Submit(spriteReq(f.tex1, 0))
	fr.End()
	_ = f.tex.Release(f.tex1)

	fr, _ = f.sub.Begin(context.Background())
	fr.End()
	if !f.dev.Alive(id) {
		t.Fatal("texture destroyed while its frame was in flight")
	}
	f.dev.Complete(fr.Serial())
	fr, _ = f.sub.Begin(context.Background())
	fr.End()
	if f.dev.Alive(id) {
		t.Error("texture not destroyed after its frame completed")
	}
}

func TestProjectionFixedPerFrame(t *testing.T) {
	f := newFixture(t)
	fr, _ := f.sub.Begin(context.Background())
	fr.End()
	rec, _ := f.dev.LastRecorded()
	// 64x32 viewport: x scale 2/64, y scale 2/32.
	if rec.Desc.Projection[0] != 2.0/64 || rec.Desc.Projection[5] != 2.0/32 {
		t.Errorf("projection = %v", rec.Desc.Projection)
	}
}

func TestSurfaceLostRecreatesSurface(t *testing.T) {
	f := newFixture(t)
	f.dev.FailBeginFrame = errors.New("VK_ERROR_OUT_OF_DATE_KHR")
	_, err := f.sub.Begin(context.Background())
	if !backend.IsRecoverable(err) {
		t.Fatalf("err = %v, want recoverable", err)
	}
	if f.dev.State() != backend.SurfaceReady {
		t.Fatalf("state after recovery = %v", f.dev.State())
	}
	fr, err := f.sub.Begin(context.Background())
	if err != nil {
		t.Fatalf("next frame: %v", err)
	}
	if res := fr.End(); !res.Presented {
		t.Errorf("result = %+v", res)
	}
}

func TestDeviceLostIsFatal(t *testing.T) {
	f := newFixture(t)
	f.dev.FailEndFrame = errors.New("VK_ERROR_DEVICE_LOST")
	fr, _ := f.sub.Begin(context.Background())
	res := fr.End()
	if !backend.IsFatal(res.Err) || res.Presented {
		t.Errorf("result = %+v, want fatal error", res)
	}
}

func TestUploadFailureSkipsBatch(t *testing.T) {
	f := newFixture(t)
	f.dev.FailUploadAfter = 1
	fr, _ := f.sub.Begin(context.Background())
	_ = fr.Submit(spriteReq(f.tex1, 0))
	_ = fr.Submit(spriteReq(f.tex2, 1))
	res := fr.End()
	if res.Draws != 1 || len(res.Skipped) != 1 || !res.Presented {
		t.Errorf("result = %+v", res)
	}
	if !errors.Is(res.Skipped[0], backend.ErrResourceUpload) {
		t.Errorf("skipped = %v", res.Skipped[0])
	}
}
