package main

import (
	"context"
	"errors"
	"image"
	"image/color"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/gfx2d"
	"github.com/gogpu/gfx2d/backend"
	"github.com/gogpu/gfx2d/frame"
	"github.com/gogpu/gfx2d/pipeline"
	"github.com/gogpu/gfx2d/schema"
	"github.com/gogpu/gfx2d/texture"
	"github.com/gogpu/gfx2d/xform"
)

// scene is a lane of notes over a gradient background, a ring of
// rotating squares and a scrolling textured strip.
type scene struct {
	note    texture.Region
	checker texture.Handle
}

func newScene(m *texture.Manager) (*scene, error) {
	atlas := texture.NewAtlas(128, 64)
	if _, err := atlas.Add("note", noteImage(48)); err != nil {
		return nil, err
	}
	if _, err := atlas.Add("dot", noteImage(16)); err != nil {
		return nil, err
	}
	if _, err := m.LoadAtlas("demo-atlas", atlas, backend.SamplerDesc{}); err != nil {
		return nil, err
	}
	note, ok := m.Region("note")
	if !ok {
		return nil, errors.New("atlas region note missing")
	}
	checker, err := m.LoadImage("checker", checkerImage(64, 8), backend.SamplerDesc{
		Filter:  backend.FilterNearest,
		Wrap:    backend.WrapRepeat,
		Mipmaps: true,
	})
	if err != nil {
		return nil, err
	}
	return &scene{note: note, checker: checker}, nil
}

func (s *scene) draw(ctx context.Context, r *gfx2d.Renderer, t float32) error {
	fr, err := r.Begin(ctx)
	if err != nil {
		if backend.IsRecoverable(err) {
			return nil
		}
		return err
	}
	w, h := r.Viewport()
	hw, hh := float32(w)/2, float32(h)/2

	reqs := []frame.Request{
		s.background(hw, hh),
		s.strip(hw, hh, t),
		s.ring(t),
		s.lane(hh, t),
	}
	for _, req := range reqs {
		if err := fr.Submit(req); err != nil {
			gfx2d.Logger().Warn("request dropped", "kind", req.Kind, "err", err)
		}
	}
	res := fr.End()
	if res.Err != nil && backend.IsFatal(res.Err) {
		return res.Err
	}
	return nil
}

func (s *scene) background(hw, hh float32) frame.Request {
	top := mgl32.Vec4{0.1, 0.2, 0.4, 1}
	bottom := mgl32.Vec4{0.5, 0.5, 0.6, 1}
	v := []schema.MeshVertex{
		{Pos: mgl32.Vec2{-hw, -hh}, Color: bottom},
		{Pos: mgl32.Vec2{hw, -hh}, Color: bottom},
		{Pos: mgl32.Vec2{hw, hh}, Color: top},
		{Pos: mgl32.Vec2{hw, hh}, Color: top},
		{Pos: mgl32.Vec2{-hw, hh}, Color: top},
		{Pos: mgl32.Vec2{-hw, -hh}, Color: bottom},
	}
	return frame.Request{
		Kind:          pipeline.Mesh,
		MeshVertices:  v,
		MeshInstances: []schema.MeshInstance{{Model: mgl32.Ident4()}},
		GeometryKey:   uint64(hw)<<32 | uint64(hh),
	}
}

func (s *scene) strip(hw, hh, t float32) frame.Request {
	white := mgl32.Vec4{1, 1, 1, 0.6}
	height := hh / 4
	v := []schema.TexturedMeshVertex{
		{Pos: mgl32.Vec2{-hw, -height}, UV: mgl32.Vec2{0, 1}, TexMatrixScale: mgl32.Vec2{1, 1}, Color: white},
		{Pos: mgl32.Vec2{hw, -height}, UV: mgl32.Vec2{8, 1}, TexMatrixScale: mgl32.Vec2{1, 1}, Color: white},
		{Pos: mgl32.Vec2{hw, height}, UV: mgl32.Vec2{8, 0}, TexMatrixScale: mgl32.Vec2{1, 1}, Color: white},
		{Pos: mgl32.Vec2{hw, height}, UV: mgl32.Vec2{8, 0}, TexMatrixScale: mgl32.Vec2{1, 1}, Color: white},
		{Pos: mgl32.Vec2{-hw, height}, UV: mgl32.Vec2{0, 0}, TexMatrixScale: mgl32.Vec2{1, 1}, Color: white},
		{Pos: mgl32.Vec2{-hw, -height}, UV: mgl32.Vec2{0, 1}, TexMatrixScale: mgl32.Vec2{1, 1}, Color: white},
	}
	inst := schema.DefaultTexturedMeshInstance()
	inst.UVTexShift = mgl32.Vec2{t / 2, 0}
	inst.EdgeFade = mgl32.Vec4{0.05, 0.05, 0, 0}
	return frame.Request{
		Kind:              pipeline.TexturedMesh,
		Blend:             pipeline.BlendAlpha,
		Texture:           s.checker,
		TexturedVertices:  v,
		TexturedInstances: []schema.TexturedMeshInstance{inst},
		GeometryKey:       1<<63 | uint64(hw)<<32 | uint64(hh),
	}
}

func (s *scene) ring(t float32) frame.Request {
	v := []schema.MeshVertex{
		{Pos: mgl32.Vec2{-0.5, -0.5}, Color: mgl32.Vec4{1, 0.3, 0.3, 0.8}},
		{Pos: mgl32.Vec2{0.5, -0.5}, Color: mgl32.Vec4{0.3, 1, 0.3, 0.8}},
		{Pos: mgl32.Vec2{0.5, 0.5}, Color: mgl32.Vec4{0.3, 0.3, 1, 0.8}},
		{Pos: mgl32.Vec2{0.5, 0.5}, Color: mgl32.Vec4{0.3, 0.3, 1, 0.8}},
		{Pos: mgl32.Vec2{-0.5, 0.5}, Color: mgl32.Vec4{1, 1, 0.3, 0.8}},
		{Pos: mgl32.Vec2{-0.5, -0.5}, Color: mgl32.Vec4{1, 0.3, 0.3, 0.8}},
	}
	var inst []schema.MeshInstance
	for i := range 8 {
		angle := float32(i)*math32.Pi/4 + t
		sin, cos := xform.RotationToSinCos(angle)
		center := xform.Rotate(mgl32.Vec2{120, 0}, sin, cos)
		inst = append(inst, schema.MeshInstance{
			Model: xform.ModelMatrixSinCos(center, mgl32.Vec2{40, 40}, sin, cos),
		})
	}
	return frame.Request{Kind: pipeline.Mesh, Blend: pipeline.BlendAdd, MeshVertices: v, MeshInstances: inst, GeometryKey: 2}
}

func (s *scene) lane(hh, t float32) frame.Request {
	var notes []schema.SpriteInstance
	for i := range 6 {
		y := hh - math32.Mod(float32(i)*90+t*240, 2*hh)
		n := schema.DefaultSprite(mgl32.Vec2{-200, y}, mgl32.Vec2{48, 48})
		n.UVScale, n.UVOffset = s.note.UVScale, s.note.UVOffset
		n.EdgeFade = mgl32.Vec4{0, 0, 0.2, 0}
		notes = append(notes, n)
	}
	return frame.Request{Kind: pipeline.Sprite, Texture: s.note.Texture, Sprites: notes}
}

func noteImage(size int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	c := float32(size) / 2
	for y := range size {
		for x := range size {
			d := math32.Hypot(float32(x)+0.5-c, float32(y)+0.5-c) / c
			if d > 1 {
				continue
			}
			img.SetNRGBA(x, y, color.NRGBA{R: 255, G: uint8(255 * (1 - d)), B: 80, A: 255})
		}
	}
	return img
}

func checkerImage(size, cell int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := range size {
		for x := range size {
			v := uint8(40)
			if (x/cell+y/cell)%2 == 0 {
				v = 220
			}
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}
