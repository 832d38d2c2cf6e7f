// Package frame turns caller draw requests into backend draws.
//
// Requests are grouped into batches by pipeline and texture, but only
// adjacent requests are ever merged: draw order is painter's order, and
// a request is never moved past one that uses a different pipeline,
// texture or geometry.
package frame

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/gfx2d/backend"
	"github.com/gogpu/gfx2d/internal/geomcache"
	"github.com/gogpu/gfx2d/pipeline"
	"github.com/gogpu/gfx2d/texture"
	"github.com/gogpu/gfx2d/xform"
)

// ErrFrameEnded is returned when a Frame is used after End.
var ErrFrameEnded = errors.New("frame: already ended")

// Result reports what a frame did.
type Result struct {
	Serial uint64
	// Batches is the number of batches formed; Draws those recorded.
	Batches   int
	Draws     int
	Instances int
	Presented bool

	// Skipped holds request-level failures. The rest of the frame was
	// still drawn.
	Skipped []error

	// Err is a device or surface failure. ErrSurfaceLost is recoverable;
	// see backend.IsFatal.
	Err error
}

// Submitter drives one adapter. It is used from a single render goroutine.
type Submitter struct {
	dev      backend.Adapter
	textures *texture.Manager
	win      backend.Window
	geom     *geomcache.Cache
	viewport xform.Viewport
	clear    mgl32.Vec4
}

// New returns a submitter. textures may be nil when only untextured meshes
// are drawn.
func New(dev backend.Adapter, textures *texture.Manager, win backend.Window) *Submitter {
	return &Submitter{
		dev:      dev,
		textures: textures,
		win:      win,
		geom:     geomcache.New(geomcache.Options{}),
	}
}

// SetClearColor sets the straight-alpha color frames start from.
func (s *Submitter) SetClearColor(c mgl32.Vec4) { s.clear = c }

// Viewport returns the current logical viewport size.
func (s *Submitter) Viewport() (width, height int) { return s.viewport.Size() }

// Resize recomputes the projection and recreates the surface. The device
// and every uploaded texture survive.
func (s *Submitter) Resize(width, height int) error {
	if err := s.viewport.Resize(width, height); err != nil {
		return err
	}
	if err := s.dev.CreateSurface(s.win, width, height); err != nil {
		return err
	}
	backend.Logger().Debug("viewport resized", "width", width, "height", height)
	return nil
}

// GeometryStats returns the mesh geometry cache counters.
func (s *Submitter) GeometryStats() geomcache.Stats { return s.geom.Stats() }

// Begin starts a frame with the viewport projection.
func (s *Submitter) Begin(ctx context.Context) (*Frame, error) {
	proj, ok := s.viewport.Projection()
	if !ok {
		return nil, fmt.Errorf("frame: viewport not sized: %w", backend.ErrInvalidState)
	}
	return s.BeginWith(ctx, proj)
}

// BeginWith starts a frame with an explicit projection. Released textures
// whose frames have completed are destroyed first.
//
// On ErrSurfaceLost the surface is recreated and the frame is skipped; the
// caller simply tries again next frame.
func (s *Submitter) BeginWith(ctx context.Context, projection mgl32.Mat4) (*Frame, error) {
	if s.textures != nil {
		s.textures.Collect()
	}
	f, err := s.dev.BeginFrame(ctx, backend.FrameDesc{Projection: projection, Clear: s.clear})
	if err != nil {
		if backend.IsRecoverable(err) {
			s.recoverSurface()
		}
		return nil, err
	}
	s.geom.BeginFrame(f.Serial)
	return &Frame{s: s, f: f}, nil
}

func (s *Submitter) recoverSurface() {
	if s.win == nil {
		return
	}
	w, h := s.win.GetFramebufferSize()
	if w <= 0 || h <= 0 {
		// Minimized; the next Resize recreates the surface.
		return
	}
	if err := s.dev.CreateSurface(s.win, w, h); err != nil {
		backend.Logger().Warn("surface recreation failed", "err", err)
		return
	}
	backend.Logger().Info("surface recreated", "width", w, "height", h)
}

// batch is a run of adjacent requests sharing pipeline, texture and
// geometry.
type batch struct {
	key           pipeline.Key
	texture       backend.TextureID
	geometry      geometryID
	vertices      []byte
	vertexCount   uint32
	instances     []byte
	instanceCount uint32
}

// Frame collects the requests of one frame.
type Frame struct {
	s       *Submitter
	f       backend.Frame
	batches []*batch
	skipped []error
	ended   bool
}

// Serial returns the backend frame serial.
func (fr *Frame) Serial() uint64 { return fr.f.Serial }

// Projection returns the projection every draw of the frame uses.
func (fr *Frame) Projection() mgl32.Mat4 { return fr.f.Projection }

// Submit appends a request. An invalid request is rejected on its own and
// also reported in the frame Result; it never affects other requests.
func (fr *Frame) Submit(req Request) error {
	if fr.ended {
		return ErrFrameEnded
	}
	if err := fr.submit(&req); err != nil {
		fr.skipped = append(fr.skipped, err)
		return err
	}
	return nil
}

func (fr *Frame) submit(req *Request) error {
	enc, err := req.encode(fr.s.geom)
	if err != nil {
		return err
	}
	if enc.instanceCount == 0 {
		return nil
	}
	tex, err := fr.texture(req)
	if err != nil {
		return err
	}
	key := req.Key()

	if n := len(fr.batches); n > 0 {
		last := fr.batches[n-1]
		if last.key == key && last.texture == tex && last.geometry == enc.geometry {
			last.instances = append(last.instances, enc.instances...)
			last.instanceCount += enc.instanceCount
			return nil
		}
	}
	fr.batches = append(fr.batches, &batch{
		key:           key,
		texture:       tex,
		geometry:      enc.geometry,
		vertices:      enc.vertices,
		vertexCount:   enc.vertexCount,
		instances:     enc.instances,
		instanceCount: enc.instanceCount,
	})
	return nil
}

func (fr *Frame) texture(req *Request) (backend.TextureID, error) {
	if req.Kind == pipeline.Mesh {
		return 0, nil
	}
	m := fr.s.textures
	if m == nil {
		return 0, fmt.Errorf("frame: %s needs a texture manager", req.Kind)
	}
	h := req.Texture
	if h == 0 {
		h = m.Placeholder()
	}
	id, err := m.Device(h)
	if err != nil {
		backend.Logger().Warn("texture unavailable, using placeholder", "handle", h, "err", err)
		return m.Device(m.Placeholder())
	}
	return id, nil
}

// End uploads every batch, records the draws in order and presents.
func (fr *Frame) End() Result {
	res := Result{Serial: fr.f.Serial, Batches: len(fr.batches)}
	if fr.ended {
		res.Err = ErrFrameEnded
		return res
	}
	fr.ended = true
	dev := fr.s.dev

	uploaded := make(map[geometryID]backend.BufferRef)
	for _, b := range fr.batches {
		call := backend.DrawCall{
			Pipeline:      b.key,
			Texture:       b.texture,
			InstanceCount: b.instanceCount,
		}
		if b.vertices != nil {
			ref, ok := uploaded[b.geometry]
			if !ok {
				var err error
				ref, err = dev.UploadVertices(fr.f, b.vertices)
				if err != nil {
					res.Skipped = append(res.Skipped, fmt.Errorf("batch %s: %w", b.key, err))
					continue
				}
				uploaded[b.geometry] = ref
			}
			call.Vertices = ref
			call.VertexCount = b.vertexCount
		}
		ref, err := dev.UploadInstances(fr.f, b.instances)
		if err != nil {
			res.Skipped = append(res.Skipped, fmt.Errorf("batch %s: %w", b.key, err))
			continue
		}
		call.Instances = ref
		if err := dev.Draw(fr.f, call); err != nil {
			res.Skipped = append(res.Skipped, fmt.Errorf("batch %s: %w", b.key, err))
			continue
		}
		res.Draws++
		res.Instances += int(b.instanceCount)
	}
	res.Skipped = append(fr.skipped, res.Skipped...)

	if err := dev.EndFrame(fr.f); err != nil {
		res.Err = err
		switch {
		case backend.IsRecoverable(err):
			backend.Logger().Warn("frame skipped", "serial", fr.f.Serial, "err", err)
			fr.s.recoverSurface()
		case backend.IsFatal(err):
			backend.Logger().Error("device lost", "serial", fr.f.Serial, "err", err)
		}
		return res
	}
	res.Presented = true
	backend.Logger().Debug("frame presented", "serial", res.Serial, "batches", res.Batches, "instances", res.Instances)
	return res
}
