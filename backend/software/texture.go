package software

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/gfx2d/backend"
)

type level struct {
	w, h int
	pix  []byte
}

type texture struct {
	sampler backend.SamplerDesc
	levels  []level
}

func newTexture(desc backend.TextureDesc, rgba []byte) (*texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("size %dx%d", desc.Width, desc.Height)
	}
	if len(rgba) != desc.Width*desc.Height*4 {
		return nil, fmt.Errorf("%d bytes for %dx%d", len(rgba), desc.Width, desc.Height)
	}
	t := &texture{sampler: desc.Sampler}
	w, h := desc.Width, desc.Height
	t.levels = append(t.levels, level{w, h, append([]byte(nil), rgba...)})
	for i, pix := range desc.Levels {
		w, h = max(w/2, 1), max(h/2, 1)
		if len(pix) != w*h*4 {
			return nil, fmt.Errorf("mip level %d: %d bytes for %dx%d", i+1, len(pix), w, h)
		}
		t.levels = append(t.levels, level{w, h, append([]byte(nil), pix...)})
	}
	return t, nil
}

// lod estimates the mip level of a triangle from its texel to pixel area
// ratio.
func (t *texture) lod(tri *triangle) float32 {
	v := &tri.v
	du1, dv1 := v[1].uv[0]-v[0].uv[0], v[1].uv[1]-v[0].uv[1]
	du2, dv2 := v[2].uv[0]-v[0].uv[0], v[2].uv[1]-v[0].uv[1]
	base := t.levels[0]
	texels := math32.Abs(du1*dv2-du2*dv1) * float32(base.w*base.h)
	if texels == 0 || tri.area == 0 {
		return 0
	}
	return math32.Max(0, 0.5*math32.Log2(texels/tri.area))
}

func wrap(i, n int, mode backend.AddressMode) int {
	switch mode {
	case backend.WrapRepeat:
		return ((i % n) + n) % n
	case backend.WrapMirror:
		p := 2 * n
		m := ((i % p) + p) % p
		if m >= n {
			m = p - 1 - m
		}
		return m
	default:
		return min(max(i, 0), n-1)
	}
}

func (l *level) fetch(x, y int, mode backend.AddressMode) mgl32.Vec4 {
	x, y = wrap(x, l.w, mode), wrap(y, l.h, mode)
	p := l.pix[(y*l.w+x)*4:]
	return mgl32.Vec4{
		float32(p[0]) / 255,
		float32(p[1]) / 255,
		float32(p[2]) / 255,
		float32(p[3]) / 255,
	}
}

// sample reads the texture at uv. Mip levels are picked nearest to lod.
func (t *texture) sample(uv mgl32.Vec2, lod float32) mgl32.Vec4 {
	idx := 0
	if t.sampler.Mipmaps {
		idx = min(int(lod+0.5), len(t.levels)-1)
	}
	l := &t.levels[idx]
	mode := t.sampler.Wrap
	u, v := uv[0]*float32(l.w), uv[1]*float32(l.h)
	if t.sampler.Filter == backend.FilterNearest {
		return l.fetch(int(math32.Floor(u)), int(math32.Floor(v)), mode)
	}
	u, v = u-0.5, v-0.5
	fx, fy := math32.Floor(u), math32.Floor(v)
	tx, ty := u-fx, v-fy
	x0, y0 := int(fx), int(fy)
	c00 := l.fetch(x0, y0, mode)
	c10 := l.fetch(x0+1, y0, mode)
	c01 := l.fetch(x0, y0+1, mode)
	c11 := l.fetch(x0+1, y0+1, mode)
	top := c00.Mul(1 - tx).Add(c10.Mul(tx))
	bottom := c01.Mul(1 - tx).Add(c11.Mul(tx))
	return top.Mul(1 - ty).Add(bottom.Mul(ty))
}
