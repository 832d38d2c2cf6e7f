package pipeline

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// EdgeFactor is the feather ramp for distance t from an edge of width w.
// A non-positive width disables the ramp.
func EdgeFactor(t, w float32) float32 {
	if w <= 0 {
		return 1
	}
	return mgl32.Clamp(t/w, 0, 1)
}

// AxisFactors returns the horizontal and vertical fade factors at local uv
// for fade widths (left, right, top, bottom). The two ramps of an axis
// combine with min.
func AxisFactors(uv mgl32.Vec2, fade mgl32.Vec4) (ax, ay float32) {
	ax = math32.Min(EdgeFactor(uv[0], fade[0]), EdgeFactor(1-uv[0], fade[1]))
	ay = math32.Min(EdgeFactor(uv[1], fade[2]), EdgeFactor(1-uv[1], fade[3]))
	return ax, ay
}

// SpriteFade is the alpha multiplier applied by the sprite shader.
func SpriteFade(uv mgl32.Vec2, fade mgl32.Vec4) float32 {
	ax, ay := AxisFactors(uv, fade)
	return math32.Min(ax, ay)
}

// MeshFade is the alpha multiplier applied by the textured-mesh shader.
func MeshFade(uv mgl32.Vec2, fade mgl32.Vec4) float32 {
	ax, ay := AxisFactors(uv, fade)
	return ax * ay
}

// Fade dispatches to the fade function of kind. Untextured meshes never fade.
func Fade(kind Kind, uv mgl32.Vec2, fade mgl32.Vec4) float32 {
	switch kind {
	case Sprite:
		return SpriteFade(uv, fade)
	case TexturedMesh:
		return MeshFade(uv, fade)
	default:
		return 1
	}
}
