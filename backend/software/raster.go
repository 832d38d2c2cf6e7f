package software

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/gfx2d/pipeline"
	"github.com/gogpu/gfx2d/schema"
)

// vertex is a post-transform vertex in pixel coordinates, y down.
type vertex struct {
	x, y  float32
	uv    mgl32.Vec2
	local mgl32.Vec2
	color mgl32.Vec4
}

type triangle struct {
	v      [3]vertex
	fade   mgl32.Vec4
	area   float32
	owned  [3]bool
	lod    float32
	y0, y1 int
	x0, x1 int
}

// batch holds the triangles of one draw call.
type batch struct {
	kind  pipeline.Kind
	blend pipeline.BlendState
	tex   *texture
	tris  []triangle
}

// setup decodes every queued draw into screen-space triangles.
func (a *Adapter) setup() ([]batch, error) {
	proj := a.desc.Projection
	batches := make([]batch, 0, len(a.draws))
	for _, call := range a.draws {
		b := batch{
			kind:  call.Pipeline.Kind,
			blend: call.Pipeline.Blend.State(),
			tex:   a.textures[call.Texture],
		}
		if schema.NeedsTexture(b.kind) && b.tex == nil {
			return nil, fmt.Errorf("texture %d destroyed while frame %d was recording", call.Texture, a.serial)
		}
		inst, err := a.staging.Slice(call.Instances)
		if err != nil {
			return nil, err
		}
		var verts []byte
		if schema.UsesVertexStream(b.kind) {
			if verts, err = a.staging.Slice(call.Vertices); err != nil {
				return nil, err
			}
		}
		layout := schema.LayoutOf(b.kind)
		for i := range int(call.InstanceCount) {
			e := layout.Instance.Element(inst, i)
			switch b.kind {
			case pipeline.Sprite:
				b.tris = a.spriteTriangles(b.tris, proj, schema.DecodeSprite(e))
			case pipeline.Mesh:
				b.tris = a.meshTriangles(b.tris, proj, schema.DecodeMeshInstance(e), layout.Vertex, verts, int(call.VertexCount))
			case pipeline.TexturedMesh:
				b.tris = a.texturedTriangles(b.tris, proj, schema.DecodeTexturedMeshInstance(e), layout.Vertex, verts, int(call.VertexCount))
			}
		}
		if b.tex != nil && b.tex.sampler.Mipmaps {
			for i := range b.tris {
				b.tris[i].lod = b.tex.lod(&b.tris[i])
			}
		}
		batches = append(batches, b)
	}
	return batches, nil
}

func (a *Adapter) toScreen(clip mgl32.Vec4) (x, y float32) {
	w := clip[3]
	if w == 0 {
		w = 1
	}
	x = (clip[0]/w + 1) * 0.5 * float32(a.width)
	y = (1 - clip[1]/w) * 0.5 * float32(a.height)
	return x, y
}

func (a *Adapter) spriteTriangles(dst []triangle, proj mgl32.Mat4, s schema.SpriteInstance) []triangle {
	var quad [4]vertex
	for i, q := range schema.UnitQuad {
		p := mgl32.Vec2{q.Pos[0] * s.Size[0], q.Pos[1] * s.Size[1]}
		sin, cos := s.RotSinCos[0], s.RotSinCos[1]
		world := mgl32.Vec2{p[0]*cos - p[1]*sin + s.Center[0], p[0]*sin + p[1]*cos + s.Center[1]}
		x, y := a.toScreen(proj.Mul4x1(mgl32.Vec4{world[0], world[1], 0, 1}))
		quad[i] = vertex{
			x: x, y: y,
			uv:    mgl32.Vec2{q.UV[0]*s.UVScale[0] + s.UVOffset[0], q.UV[1]*s.UVScale[1] + s.UVOffset[1]},
			local: q.UV,
			color: s.Tint,
		}
	}
	idx := schema.UnitQuadIndices
	for t := 0; t < len(idx); t += 3 {
		dst = a.appendTriangle(dst, [3]vertex{quad[idx[t]], quad[idx[t+1]], quad[idx[t+2]]}, s.EdgeFade)
	}
	return dst
}

func (a *Adapter) meshTriangles(dst []triangle, proj mgl32.Mat4, in schema.MeshInstance, s schema.Stream, verts []byte, n int) []triangle {
	mvp := proj.Mul4(in.Model)
	for t := 0; t+2 < n; t += 3 {
		var tri [3]vertex
		for k := range 3 {
			v := schema.DecodeMeshVertex(s.Element(verts, t+k))
			x, y := a.toScreen(mvp.Mul4x1(mgl32.Vec4{v.Pos[0], v.Pos[1], 0, 1}))
			tri[k] = vertex{x: x, y: y, color: v.Color}
		}
		dst = a.appendTriangle(dst, tri, mgl32.Vec4{})
	}
	return dst
}

func (a *Adapter) texturedTriangles(dst []triangle, proj mgl32.Mat4, in schema.TexturedMeshInstance, s schema.Stream, verts []byte, n int) []triangle {
	mvp := proj.Mul4(in.Model)
	for t := 0; t+2 < n; t += 3 {
		var tri [3]vertex
		for k := range 3 {
			v := schema.DecodeTexturedMeshVertex(s.Element(verts, t+k))
			x, y := a.toScreen(mvp.Mul4x1(mgl32.Vec4{v.Pos[0], v.Pos[1], 0, 1}))
			tri[k] = vertex{
				x: x, y: y,
				uv: mgl32.Vec2{
					v.UV[0]*in.UVScale[0] + in.UVOffset[0] + in.UVTexShift[0]*v.TexMatrixScale[0],
					v.UV[1]*in.UVScale[1] + in.UVOffset[1] + in.UVTexShift[1]*v.TexMatrixScale[1],
				},
				local: v.UV,
				color: v.Color,
			}
		}
		dst = a.appendTriangle(dst, tri, in.EdgeFade)
	}
	return dst
}

func edge(a, b vertex, px, py float32) float32 {
	return (b.x-a.x)*(py-a.y) - (b.y-a.y)*(px-a.x)
}

// owns reports whether pixels exactly on edge a->b belong to the triangle.
// Triangles are normalized to one winding, so a shared edge is walked in
// opposite directions by its two triangles and exactly one owns it.
func owns(a, b vertex) bool {
	dy := b.y - a.y
	return dy > 0 || (dy == 0 && b.x < a.x)
}

func (a *Adapter) appendTriangle(dst []triangle, v [3]vertex, fade mgl32.Vec4) []triangle {
	area := edge(v[0], v[1], v[2].x, v[2].y)
	if area == 0 || math32.IsNaN(area) {
		return dst
	}
	if area < 0 {
		v[1], v[2] = v[2], v[1]
		area = -area
	}
	minX := math32.Min(v[0].x, math32.Min(v[1].x, v[2].x))
	maxX := math32.Max(v[0].x, math32.Max(v[1].x, v[2].x))
	minY := math32.Min(v[0].y, math32.Min(v[1].y, v[2].y))
	maxY := math32.Max(v[0].y, math32.Max(v[1].y, v[2].y))
	t := triangle{
		v:    v,
		fade: fade,
		area: area,
		owned: [3]bool{
			owns(v[1], v[2]),
			owns(v[2], v[0]),
			owns(v[0], v[1]),
		},
		x0: max(int(math32.Floor(minX)), 0),
		x1: min(int(math32.Ceil(maxX)), a.width),
		y0: max(int(math32.Floor(minY)), 0),
		y1: min(int(math32.Ceil(maxY)), a.height),
	}
	if t.x0 >= t.x1 || t.y0 >= t.y1 {
		return dst
	}
	return append(dst, t)
}

func covers(w float32, owned bool) bool {
	return w > 0 || (w == 0 && owned)
}

// raster draws the batch into rows [y0, y1) of target.
func (b *batch) raster(target []float32, width, y0, y1 int) {
	for i := range b.tris {
		t := &b.tris[i]
		ys, ye := max(t.y0, y0), min(t.y1, y1)
		for py := ys; py < ye; py++ {
			cy := float32(py) + 0.5
			for px := t.x0; px < t.x1; px++ {
				cx := float32(px) + 0.5
				w0 := edge(t.v[1], t.v[2], cx, cy)
				w1 := edge(t.v[2], t.v[0], cx, cy)
				w2 := edge(t.v[0], t.v[1], cx, cy)
				if !covers(w0, t.owned[0]) || !covers(w1, t.owned[1]) || !covers(w2, t.owned[2]) {
					continue
				}
				b0, b1, b2 := w0/t.area, w1/t.area, w2/t.area
				src := b.shade(t, b0, b1, b2)
				blendInto(target[(py*width+px)*4:], src, b.blend)
			}
		}
	}
}

func lerp2(a, b, c mgl32.Vec2, b0, b1, b2 float32) mgl32.Vec2 {
	return mgl32.Vec2{a[0]*b0 + b[0]*b1 + c[0]*b2, a[1]*b0 + b[1]*b1 + c[1]*b2}
}

func (b *batch) shade(t *triangle, b0, b1, b2 float32) mgl32.Vec4 {
	v := &t.v
	var c mgl32.Vec4
	for k := range 4 {
		c[k] = v[0].color[k]*b0 + v[1].color[k]*b1 + v[2].color[k]*b2
	}
	if b.kind == pipeline.Mesh {
		return c
	}
	uv := lerp2(v[0].uv, v[1].uv, v[2].uv, b0, b1, b2)
	local := lerp2(v[0].local, v[1].local, v[2].local, b0, b1, b2)
	texel := b.tex.sample(uv, t.lod)
	for k := range 4 {
		c[k] *= texel[k]
	}
	c[3] *= pipeline.Fade(b.kind, local, t.fade)
	return c
}

func blendInto(dst []float32, src mgl32.Vec4, s pipeline.BlendState) {
	sa, da := src[3], dst[3]
	for k := range 3 {
		dst[k] = mgl32.Clamp(s.Color.Apply(src[k], dst[k], sa, da), 0, 1)
	}
	dst[3] = mgl32.Clamp(s.Alpha.Apply(sa, da, sa, da), 0, 1)
}
