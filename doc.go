// Package gfx2d is a multi-backend 2D rendering core.
//
// # Overview
//
// One drawing model (instanced sprites, vertex-colored meshes and
// textured meshes, all projected through a shared orthographic camera)
// produces the same image on Vulkan, OpenGL 4.1, WebGPU and a pure Go
// software rasterizer.
//
// # Quick Start
//
//	cfg, err := gfx2d.LoadConfig("gfx.yaml")
//	r, err := gfx2d.New(window, cfg)
//	defer r.Close()
//
//	tex, err := r.Textures().LoadImage("notes", img, backend.SamplerDesc{})
//
//	fr, err := r.Begin(ctx)
//	fr.Submit(frame.Request{
//	    Kind:    pipeline.Sprite,
//	    Texture: tex,
//	    Sprites: []schema.SpriteInstance{schema.DefaultSprite(center, size)},
//	})
//	res := fr.End()
//
// # Architecture
//
// The library is organized into:
//   - schema: vertex and instance layouts shared by every backend
//   - xform: projection and model matrices
//   - pipeline: archetypes, blend modes and embedded WGSL/GLSL programs
//   - texture: texture manager, atlas packing, deferred destruction
//   - frame: batching submitter, painter's order preserved
//   - backend: the adapter contract and the vulkan, opengl, webgpu and
//     software adapters
//
// # Coordinate System
//
// Logical coordinates have their origin at the viewport center:
//   - X increases right
//   - Y increases up
//   - Rotations in radians, counter-clockwise
//
// # Build Tags
//
// The nogpu tag drops the cgo GPU adapters and leaves only the software
// backend.
package gfx2d
