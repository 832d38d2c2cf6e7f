package texture

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/gogpu/gfx2d/backend"
)

// PixelFormat is the channel layout of pixel data passed to Load.
type PixelFormat uint8

// Supported formats. All are 8 bits per channel and converted to RGBA8
// before upload.
const (
	RGBA8 PixelFormat = iota + 1
	BGRA8
	RGB8
	Gray8
	GrayAlpha8
)

func (f PixelFormat) String() string {
	switch f {
	case RGBA8:
		return "rgba8"
	case BGRA8:
		return "bgra8"
	case RGB8:
		return "rgb8"
	case Gray8:
		return "gray8"
	case GrayAlpha8:
		return "gray-alpha8"
	default:
		return fmt.Sprintf("PixelFormat(%d)", uint8(f))
	}
}

// BytesPerPixel returns the pixel size, or 0 for unknown formats.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case RGBA8, BGRA8:
		return 4
	case RGB8:
		return 3
	case GrayAlpha8:
		return 2
	case Gray8:
		return 1
	default:
		return 0
	}
}

// ToRGBA converts pixels to tightly packed RGBA8. The returned slice is
// pixels itself when no conversion is needed.
func ToRGBA(pixels []byte, width, height int, format PixelFormat) ([]byte, error) {
	bpp := format.BytesPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("texture: %s: %w", format, backend.ErrUnsupportedFormat)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("texture: size %dx%d: %w", width, height, backend.ErrUnsupportedFormat)
	}
	n := width * height
	if len(pixels) != n*bpp {
		return nil, fmt.Errorf("texture: %d bytes for %dx%d %s: %w", len(pixels), width, height, format, backend.ErrUnsupportedFormat)
	}
	if format == RGBA8 {
		return pixels, nil
	}
	out := make([]byte, n*4)
	for i := range n {
		s, d := pixels[i*bpp:], out[i*4:i*4+4]
		switch format {
		case BGRA8:
			d[0], d[1], d[2], d[3] = s[2], s[1], s[0], s[3]
		case RGB8:
			d[0], d[1], d[2], d[3] = s[0], s[1], s[2], 0xFF
		case Gray8:
			d[0], d[1], d[2], d[3] = s[0], s[0], s[0], 0xFF
		case GrayAlpha8:
			d[0], d[1], d[2], d[3] = s[0], s[0], s[0], s[1]
		}
	}
	return out, nil
}

// ImageToRGBA converts any image to straight-alpha RGBA8 rows.
func ImageToRGBA(img image.Image) (pixels []byte, width, height int) {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && n.Stride == b.Dx()*4 && b.Min == (image.Point{}) {
		return n.Pix, b.Dx(), b.Dy()
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Copy(dst, image.Point{}, img, b, draw.Src, nil)
	return dst.Pix, b.Dx(), b.Dy()
}

// MipChain returns the levels below the base image, halving each axis
// until both reach 1. Levels are filtered with a bilinear kernel.
func MipChain(rgba []byte, width, height int) [][]byte {
	var levels [][]byte
	src := &image.NRGBA{Pix: rgba, Stride: width * 4, Rect: image.Rect(0, 0, width, height)}
	for width > 1 || height > 1 {
		width, height = max(width/2, 1), max(height/2, 1)
		dst := image.NewNRGBA(image.Rect(0, 0, width, height))
		draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		levels = append(levels, dst.Pix)
		src = dst
	}
	return levels
}
