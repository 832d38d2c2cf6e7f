package schema

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Element is one encoded element of a stream.
type Element []byte

// Count returns how many whole elements of s fit in b.
func (s Stream) Count(b []byte) int {
	if s.Stride == 0 {
		return 0
	}
	return len(b) / int(s.Stride)
}

// Element returns the i-th element of b.
func (s Stream) Element(b []byte, i int) Element {
	off := i * int(s.Stride)
	return Element(b[off : off+int(s.Stride)])
}

// Float reads the float32 at byte offset off.
func (e Element) Float(off uint32) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(e[off:]))
}

// Vec2 reads a two-component attribute.
func (e Element) Vec2(a Attribute) mgl32.Vec2 {
	return mgl32.Vec2{e.Float(a.Offset), e.Float(a.Offset + 4)}
}

// Vec4 reads a four-component attribute.
func (e Element) Vec4(a Attribute) mgl32.Vec4 {
	return mgl32.Vec4{e.Float(a.Offset), e.Float(a.Offset + 4), e.Float(a.Offset + 8), e.Float(a.Offset + 12)}
}

func (e Element) mat4(cols [4]Attribute) mgl32.Mat4 {
	var m mgl32.Mat4
	for c, a := range cols {
		v := e.Vec4(a)
		copy(m[c*4:c*4+4], v[:])
	}
	return m
}

func mustAttr(k Kind, name string) Attribute {
	a, ok := LayoutOf(k).Attribute(name)
	if !ok {
		panic("schema: missing attribute " + name)
	}
	return a
}

func modelCols(k Kind) [4]Attribute {
	return [4]Attribute{
		mustAttr(k, "model_0"), mustAttr(k, "model_1"),
		mustAttr(k, "model_2"), mustAttr(k, "model_3"),
	}
}

var (
	spriteCenter    = mustAttr(Sprite, "center")
	spriteSize      = mustAttr(Sprite, "size")
	spriteRot       = mustAttr(Sprite, "rot_sin_cos")
	spriteTint      = mustAttr(Sprite, "tint")
	spriteUVScale   = mustAttr(Sprite, "uv_scale")
	spriteUVOffset  = mustAttr(Sprite, "uv_offset")
	spriteEdgeFade  = mustAttr(Sprite, "edge_fade")
	meshPos         = mustAttr(Mesh, "pos")
	meshColor       = mustAttr(Mesh, "color")
	meshModel       = modelCols(Mesh)
	tmeshPos        = mustAttr(TexturedMesh, "pos")
	tmeshUV         = mustAttr(TexturedMesh, "uv")
	tmeshTexScale   = mustAttr(TexturedMesh, "tex_matrix_scale")
	tmeshColor      = mustAttr(TexturedMesh, "color")
	tmeshModel      = modelCols(TexturedMesh)
	tmeshUVScale    = mustAttr(TexturedMesh, "uv_scale")
	tmeshUVOffset   = mustAttr(TexturedMesh, "uv_offset")
	tmeshUVTexShift = mustAttr(TexturedMesh, "uv_tex_shift")
	tmeshEdgeFade   = mustAttr(TexturedMesh, "edge_fade")
)

// DecodeSprite reads a sprite instance from its encoded form.
func DecodeSprite(e Element) SpriteInstance {
	return SpriteInstance{
		Center:    e.Vec2(spriteCenter),
		Size:      e.Vec2(spriteSize),
		RotSinCos: e.Vec2(spriteRot),
		Tint:      e.Vec4(spriteTint),
		UVScale:   e.Vec2(spriteUVScale),
		UVOffset:  e.Vec2(spriteUVOffset),
		EdgeFade:  e.Vec4(spriteEdgeFade),
	}
}

// DecodeMeshVertex reads a mesh vertex.
func DecodeMeshVertex(e Element) MeshVertex {
	return MeshVertex{Pos: e.Vec2(meshPos), Color: e.Vec4(meshColor)}
}

// DecodeMeshInstance reads a mesh instance.
func DecodeMeshInstance(e Element) MeshInstance {
	return MeshInstance{Model: e.mat4(meshModel)}
}

// DecodeTexturedMeshVertex reads a textured-mesh vertex.
func DecodeTexturedMeshVertex(e Element) TexturedMeshVertex {
	return TexturedMeshVertex{
		Pos:            e.Vec2(tmeshPos),
		UV:             e.Vec2(tmeshUV),
		TexMatrixScale: e.Vec2(tmeshTexScale),
		Color:          e.Vec4(tmeshColor),
	}
}

// DecodeTexturedMeshInstance reads a textured-mesh instance.
func DecodeTexturedMeshInstance(e Element) TexturedMeshInstance {
	return TexturedMeshInstance{
		Model:      e.mat4(tmeshModel),
		UVScale:    e.Vec2(tmeshUVScale),
		UVOffset:   e.Vec2(tmeshUVOffset),
		UVTexShift: e.Vec2(tmeshUVTexShift),
		EdgeFade:   e.Vec4(tmeshEdgeFade),
	}
}
