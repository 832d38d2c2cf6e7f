package xform

import "github.com/go-gl/mathgl/mgl32"

// Viewport tracks the drawable size and its projection.
// The zero value is not ready; call Resize first.
type Viewport struct {
	width, height int
	proj          mgl32.Mat4
	ready         bool
}

// Resize revalidates the projection for a new size. On error the previous
// size and projection stay in effect.
func (v *Viewport) Resize(width, height int) error {
	proj, err := OrthoProjection(float32(width), float32(height))
	if err != nil {
		return err
	}
	v.width, v.height = width, height
	v.proj = proj
	v.ready = true
	return nil
}

// Size returns the current size.
func (v *Viewport) Size() (width, height int) { return v.width, v.height }

// Projection returns the current projection and whether it is valid.
func (v *Viewport) Projection() (mgl32.Mat4, bool) { return v.proj, v.ready }
