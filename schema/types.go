package schema

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// SpriteVertex is a corner of the built-in unit quad.
type SpriteVertex struct {
	Pos mgl32.Vec2
	UV  mgl32.Vec2
}

// SpriteInstance places one textured quad.
type SpriteInstance struct {
	Center    mgl32.Vec2
	Size      mgl32.Vec2
	RotSinCos mgl32.Vec2 // (sin, cos) of the rotation
	Tint      mgl32.Vec4
	UVScale   mgl32.Vec2
	UVOffset  mgl32.Vec2
	EdgeFade  mgl32.Vec4 // left, right, top, bottom feather widths in UV units
}

// MeshVertex is a vertex of an untextured mesh.
type MeshVertex struct {
	Pos   mgl32.Vec2
	Color mgl32.Vec4
}

// MeshInstance places one copy of an untextured mesh.
type MeshInstance struct {
	Model mgl32.Mat4
}

// TexturedMeshVertex is a vertex of a textured mesh.
//
// TexMatrixScale scales how much of the instance UVTexShift applies to the
// vertex; (1,1) applies the full shift, (0,0) pins the vertex UV.
type TexturedMeshVertex struct {
	Pos            mgl32.Vec2
	UV             mgl32.Vec2
	TexMatrixScale mgl32.Vec2
	Color          mgl32.Vec4
}

// TexturedMeshInstance places one copy of a textured mesh.
type TexturedMeshInstance struct {
	Model      mgl32.Mat4
	UVScale    mgl32.Vec2
	UVOffset   mgl32.Vec2
	UVTexShift mgl32.Vec2
	EdgeFade   mgl32.Vec4
}

// DefaultSprite returns an untinted, unfaded sprite instance that samples
// the whole texture.
func DefaultSprite(center, size mgl32.Vec2) SpriteInstance {
	return SpriteInstance{
		Center:    center,
		Size:      size,
		RotSinCos: mgl32.Vec2{0, 1},
		Tint:      mgl32.Vec4{1, 1, 1, 1},
		UVScale:   mgl32.Vec2{1, 1},
	}
}

// DefaultTexturedMeshInstance returns an identity-transformed instance
// that samples the whole texture.
func DefaultTexturedMeshInstance() TexturedMeshInstance {
	return TexturedMeshInstance{
		Model:   mgl32.Ident4(),
		UVScale: mgl32.Vec2{1, 1},
	}
}

// UnitQuad is the sprite geometry, centered on the origin with side 1.
var UnitQuad = [4]SpriteVertex{
	{Pos: mgl32.Vec2{-0.5, -0.5}, UV: mgl32.Vec2{0, 1}},
	{Pos: mgl32.Vec2{0.5, -0.5}, UV: mgl32.Vec2{1, 1}},
	{Pos: mgl32.Vec2{0.5, 0.5}, UV: mgl32.Vec2{1, 0}},
	{Pos: mgl32.Vec2{-0.5, 0.5}, UV: mgl32.Vec2{0, 0}},
}

// UnitQuadIndices triangulates [UnitQuad].
var UnitQuadIndices = [6]uint16{0, 1, 2, 2, 3, 0}

func appendFloats(dst []byte, vs ...float32) []byte {
	for _, v := range vs {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

func appendMat4(dst []byte, m mgl32.Mat4) []byte {
	// mgl32 stores matrices column-major, which is the stream order.
	return appendFloats(dst, m[:]...)
}

// AppendUnitQuad appends the encoded sprite vertices.
func AppendUnitQuad(dst []byte) []byte {
	for _, v := range UnitQuad {
		dst = appendFloats(dst, v.Pos[0], v.Pos[1], v.UV[0], v.UV[1])
	}
	return dst
}

// AppendUnitQuadIndices appends the quad indices as little-endian uint16.
func AppendUnitQuadIndices(dst []byte) []byte {
	for _, i := range UnitQuadIndices {
		dst = binary.LittleEndian.AppendUint16(dst, i)
	}
	return dst
}

// AppendSprites appends encoded sprite instances to dst.
func AppendSprites(dst []byte, in ...SpriteInstance) []byte {
	for i := range in {
		s := &in[i]
		dst = appendFloats(dst,
			s.Center[0], s.Center[1],
			s.Size[0], s.Size[1],
			s.RotSinCos[0], s.RotSinCos[1],
			s.Tint[0], s.Tint[1], s.Tint[2], s.Tint[3],
			s.UVScale[0], s.UVScale[1],
			s.UVOffset[0], s.UVOffset[1],
			s.EdgeFade[0], s.EdgeFade[1], s.EdgeFade[2], s.EdgeFade[3],
		)
	}
	return dst
}

// AppendMeshVertices appends encoded mesh vertices to dst.
func AppendMeshVertices(dst []byte, in ...MeshVertex) []byte {
	for i := range in {
		v := &in[i]
		dst = appendFloats(dst, v.Pos[0], v.Pos[1], v.Color[0], v.Color[1], v.Color[2], v.Color[3])
	}
	return dst
}

// AppendMeshInstances appends encoded mesh instances to dst.
func AppendMeshInstances(dst []byte, in ...MeshInstance) []byte {
	for i := range in {
		dst = appendMat4(dst, in[i].Model)
	}
	return dst
}

// AppendTexturedMeshVertices appends encoded textured-mesh vertices to dst.
func AppendTexturedMeshVertices(dst []byte, in ...TexturedMeshVertex) []byte {
	for i := range in {
		v := &in[i]
		dst = appendFloats(dst,
			v.Pos[0], v.Pos[1],
			v.UV[0], v.UV[1],
			v.TexMatrixScale[0], v.TexMatrixScale[1],
			v.Color[0], v.Color[1], v.Color[2], v.Color[3],
		)
	}
	return dst
}

// AppendTexturedMeshInstances appends encoded textured-mesh instances to dst.
func AppendTexturedMeshInstances(dst []byte, in ...TexturedMeshInstance) []byte {
	for i := range in {
		t := &in[i]
		dst = appendMat4(dst, t.Model)
		dst = appendFloats(dst,
			t.UVScale[0], t.UVScale[1],
			t.UVOffset[0], t.UVOffset[1],
			t.UVTexShift[0], t.UVTexShift[1],
			t.EdgeFade[0], t.EdgeFade[1], t.EdgeFade[2], t.EdgeFade[3],
		)
	}
	return dst
}
