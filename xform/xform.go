// Package xform builds projection and model matrices for 2D drawing.
//
// Logical coordinates have their origin at the viewport center with +Y
// pointing up. A viewport of width w and height h therefore spans
// [-w/2, w/2] x [-h/2, h/2]. All matrices are column-major mgl32 values.
package xform

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrDegenerate is returned for inputs that would produce a non-finite
// or singular transform.
var ErrDegenerate = errors.New("xform: degenerate transform")

func finite(vs ...float32) bool {
	for _, v := range vs {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// OrthoProjection returns the projection for a viewport of the given size.
// The corners (-w/2,-h/2) and (w/2,h/2) map to NDC (-1,-1) and (1,1).
// Non-positive or non-finite sizes return ErrDegenerate.
func OrthoProjection(width, height float32) (mgl32.Mat4, error) {
	if !finite(width, height) || width <= 0 || height <= 0 {
		return mgl32.Mat4{}, fmt.Errorf("%w: viewport %vx%v", ErrDegenerate, width, height)
	}
	return mgl32.Ortho(-width/2, width/2, -height/2, height/2, -1, 1), nil
}

// OrthoBounds returns the projection mapping the given bounds onto NDC.
func OrthoBounds(left, right, bottom, top float32) (mgl32.Mat4, error) {
	if !finite(left, right, bottom, top) || left == right || bottom == top {
		return mgl32.Mat4{}, fmt.Errorf("%w: bounds l=%v r=%v b=%v t=%v", ErrDegenerate, left, right, bottom, top)
	}
	return mgl32.Ortho(left, right, bottom, top, -1, 1), nil
}

// ModelMatrix composes translate(center) * rotate(radians) * scale(size).
// A zero size is allowed and collapses the geometry to a point; non-finite
// inputs return ErrDegenerate.
func ModelMatrix(center, size mgl32.Vec2, radians float32) (mgl32.Mat4, error) {
	if !finite(center[0], center[1], size[0], size[1], radians) {
		return mgl32.Mat4{}, fmt.Errorf("%w: center=%v size=%v rotation=%v", ErrDegenerate, center, size, radians)
	}
	sin, cos := RotationToSinCos(radians)
	return ModelMatrixSinCos(center, size, sin, cos), nil
}

// ModelMatrixSinCos is ModelMatrix with a precomputed rotation.
func ModelMatrixSinCos(center, size mgl32.Vec2, sin, cos float32) mgl32.Mat4 {
	return mgl32.Mat4{
		cos * size[0], sin * size[0], 0, 0,
		-sin * size[1], cos * size[1], 0, 0,
		0, 0, 1, 0,
		center[0], center[1], 0, 1,
	}
}

// RotationToSinCos returns the sine and cosine of the angle. The angle is
// reduced modulo 2*pi first, so θ and θ+2π give the same pair.
func RotationToSinCos(radians float32) (sin, cos float32) {
	r := math32.Mod(radians, 2*math32.Pi)
	return math32.Sincos(r)
}

// Rotate applies the (sin, cos) rotation to v.
func Rotate(v mgl32.Vec2, sin, cos float32) mgl32.Vec2 {
	return mgl32.Vec2{v[0]*cos - v[1]*sin, v[0]*sin + v[1]*cos}
}

// Decompose2D recovers center, size and (sin, cos) rotation from a
// translate*rotate*scale model matrix.
func Decompose2D(m mgl32.Mat4) (center, size, sinCos mgl32.Vec2) {
	center = mgl32.Vec2{m[12], m[13]}
	sx := math32.Hypot(m[0], m[1])
	sy := math32.Hypot(m[4], m[5])
	d := math32.Max(sx, 1e-12)
	sinCos = mgl32.Vec2{m[1] / d, m[0] / d}
	return center, mgl32.Vec2{sx, sy}, sinCos
}

// Apply transforms a 2D point by m.
func Apply(m mgl32.Mat4, p mgl32.Vec2) mgl32.Vec2 {
	v := m.Mul4x1(mgl32.Vec4{p[0], p[1], 0, 1})
	return mgl32.Vec2{v[0], v[1]}
}
