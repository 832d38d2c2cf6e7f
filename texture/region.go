package texture

import (
	"fmt"
	"image"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// SubRegionOf converts a pixel rectangle inside a width×height texture
// into the uv scale and offset consumed by sprite and mesh instances.
func SubRegionOf(width, height int, r image.Rectangle) (uvScale, uvOffset mgl32.Vec2, err error) {
	if width <= 0 || height <= 0 {
		return mgl32.Vec2{}, mgl32.Vec2{}, fmt.Errorf("texture: region in %dx%d texture: %w", width, height, ErrBadRegion)
	}
	if r.Empty() || !r.In(image.Rect(0, 0, width, height)) {
		return mgl32.Vec2{}, mgl32.Vec2{}, fmt.Errorf("texture: region %v outside %dx%d: %w", r, width, height, ErrBadRegion)
	}
	w, h := float32(width), float32(height)
	uvScale = mgl32.Vec2{float32(r.Dx()) / w, float32(r.Dy()) / h}
	uvOffset = mgl32.Vec2{float32(r.Min.X) / w, float32(r.Min.Y) / h}
	return uvScale, uvOffset, nil
}

// RectFromUV inverts SubRegionOf, rounding to the nearest texel.
func RectFromUV(width, height int, uvScale, uvOffset mgl32.Vec2) image.Rectangle {
	w, h := float64(width), float64(height)
	x0 := int(math.Round(float64(uvOffset[0]) * w))
	y0 := int(math.Round(float64(uvOffset[1]) * h))
	x1 := int(math.Round(float64(uvOffset[0]+uvScale[0]) * w))
	y1 := int(math.Round(float64(uvOffset[1]+uvScale[1]) * h))
	return image.Rect(x0, y0, x1, y1)
}
