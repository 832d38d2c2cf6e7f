package schema

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
)

func TestLayoutStrides(t *testing.T) {
	tests := []struct {
		kind           Kind
		vertexStride   uint32
		instanceStride uint32
		attributes     int
	}{
		{Sprite, 16, 72, 9},
		{Mesh, 24, 64, 6},
		{TexturedMesh, 40, 104, 12},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			l := LayoutOf(tt.kind)
			if l.Vertex.Stride != tt.vertexStride {
				t.Errorf("vertex stride = %d, want %d", l.Vertex.Stride, tt.vertexStride)
			}
			if l.Instance.Stride != tt.instanceStride {
				t.Errorf("instance stride = %d, want %d", l.Instance.Stride, tt.instanceStride)
			}
			if got := len(l.Attributes()); got != tt.attributes {
				t.Errorf("attribute count = %d, want %d", got, tt.attributes)
			}
		})
	}
}

func TestLayoutLocationsAreContiguous(t *testing.T) {
	for _, k := range Kinds {
		for i, a := range LayoutOf(k).Attributes() {
			if a.Location != uint32(i) {
				t.Errorf("%s: attribute %q at location %d, want %d", k, a.Name, a.Location, i)
			}
			if a.Components < 1 || a.Components > 4 {
				t.Errorf("%s: attribute %q has %d components", k, a.Name, a.Components)
			}
		}
	}
}

func TestEncodedSizesMatchStride(t *testing.T) {
	sprite := AppendSprites(nil, DefaultSprite(mgl32.Vec2{}, mgl32.Vec2{1, 1}))
	if got, want := len(sprite), int(LayoutOf(Sprite).Instance.Stride); got != want {
		t.Errorf("sprite instance = %d bytes, want %d", got, want)
	}
	quad := AppendUnitQuad(nil)
	if got, want := len(quad), 4*int(LayoutOf(Sprite).Vertex.Stride); got != want {
		t.Errorf("unit quad = %d bytes, want %d", got, want)
	}
	mv := AppendMeshVertices(nil, MeshVertex{}, MeshVertex{})
	if got, want := len(mv), 2*int(LayoutOf(Mesh).Vertex.Stride); got != want {
		t.Errorf("mesh vertices = %d bytes, want %d", got, want)
	}
	mi := AppendMeshInstances(nil, MeshInstance{Model: mgl32.Ident4()})
	if got, want := len(mi), int(LayoutOf(Mesh).Instance.Stride); got != want {
		t.Errorf("mesh instance = %d bytes, want %d", got, want)
	}
	tv := AppendTexturedMeshVertices(nil, TexturedMeshVertex{})
	if got, want := len(tv), int(LayoutOf(TexturedMesh).Vertex.Stride); got != want {
		t.Errorf("tmesh vertex = %d bytes, want %d", got, want)
	}
	ti := AppendTexturedMeshInstances(nil, DefaultTexturedMeshInstance())
	if got, want := len(ti), int(LayoutOf(TexturedMesh).Instance.Stride); got != want {
		t.Errorf("tmesh instance = %d bytes, want %d", got, want)
	}
}

func TestDecodeSpriteReadsDeclaredOffsets(t *testing.T) {
	in := SpriteInstance{
		Center:    mgl32.Vec2{1, 2},
		Size:      mgl32.Vec2{3, 4},
		RotSinCos: mgl32.Vec2{0.5, 0.25},
		Tint:      mgl32.Vec4{0.1, 0.2, 0.3, 0.4},
		UVScale:   mgl32.Vec2{0.5, 0.5},
		UVOffset:  mgl32.Vec2{0.25, 0},
		EdgeFade:  mgl32.Vec4{0.1, 0, 0.2, 0},
	}
	b := AppendSprites(nil, in, in)
	s := LayoutOf(Sprite).Instance
	if n := s.Count(b); n != 2 {
		t.Fatalf("Count = %d, want 2", n)
	}
	if got := DecodeSprite(s.Element(b, 1)); got != in {
		t.Errorf("DecodeSprite = %+v, want %+v", got, in)
	}
}

func TestDecodeTexturedMeshInstance(t *testing.T) {
	in := TexturedMeshInstance{
		Model:      mgl32.Translate3D(3, 4, 0),
		UVScale:    mgl32.Vec2{0.5, 0.25},
		UVOffset:   mgl32.Vec2{0.5, 0},
		UVTexShift: mgl32.Vec2{0.1, 0.2},
		EdgeFade:   mgl32.Vec4{0, 0.3, 0, 0},
	}
	b := AppendTexturedMeshInstances(nil, in)
	if got := DecodeTexturedMeshInstance(Element(b)); got != in {
		t.Errorf("DecodeTexturedMeshInstance = %+v, want %+v", got, in)
	}
}

func TestBufferLayouts(t *testing.T) {
	bl := LayoutOf(TexturedMesh).BufferLayouts()
	if len(bl) != 2 {
		t.Fatalf("len = %d, want 2", len(bl))
	}
	if bl[0].StepMode != gputypes.VertexStepModeVertex {
		t.Errorf("slot 0 step = %v, want vertex", bl[0].StepMode)
	}
	if bl[1].StepMode != gputypes.VertexStepModeInstance {
		t.Errorf("slot 1 step = %v, want instance", bl[1].StepMode)
	}
	if bl[1].ArrayStride != 104 {
		t.Errorf("instance stride = %d, want 104", bl[1].ArrayStride)
	}
	last := bl[1].Attributes[len(bl[1].Attributes)-1]
	if last.ShaderLocation != 11 || last.Format != gputypes.VertexFormatFloat32x4 || last.Offset != 88 {
		t.Errorf("edge_fade attribute = %+v", last)
	}
}

func TestNeedsTexture(t *testing.T) {
	if NeedsTexture(Mesh) {
		t.Error("Mesh should not need a texture")
	}
	if !NeedsTexture(Sprite) || !NeedsTexture(TexturedMesh) {
		t.Error("Sprite and TexturedMesh need a texture")
	}
	if UsesVertexStream(Sprite) {
		t.Error("Sprite uses the built-in quad")
	}
}
