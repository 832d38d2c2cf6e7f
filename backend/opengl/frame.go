//go:build !nogpu

package opengl

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/gogpu/gfx2d/backend"
	"github.com/gogpu/gfx2d/internal/fence"
	"github.com/gogpu/gfx2d/pipeline"
	"github.com/gogpu/gfx2d/schema"
)

// BeginFrame waits until the slot's previous frame signaled its sync
// object.
func (a *Adapter) BeginFrame(ctx context.Context, desc backend.FrameDesc) (backend.Frame, error) {
	if err := a.Check("BeginFrame"); err != nil {
		return backend.Frame{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	next := a.tracker.Last() + 1
	if pending := a.ring.Pending(next); pending != 0 {
		err := a.tracker.Wait(ctx, pending, a.opts.Timeout(), a.poll(pending))
		switch {
		case errors.Is(err, fence.ErrTimeout):
			a.Set(backend.SurfaceLost)
			backend.Logger().Warn("opengl: frame slot timed out", "waitingFor", pending)
			return backend.Frame{}, backend.Wrap(backend.ErrSurfaceLost, "BeginFrame", err)
		case err != nil:
			return backend.Frame{}, err
		}
	}
	serial := a.tracker.Begin()
	a.ring.Claim(serial)
	a.serial = serial
	a.desc = desc
	a.draws = a.draws[:0]
	a.staging.Reset(serial)
	if err := a.Enter("BeginFrame", backend.FrameInFlight); err != nil {
		return backend.Frame{}, err
	}
	return backend.Frame{
		Serial:     serial,
		Slot:       a.ring.Index(serial),
		Width:      a.width,
		Height:     a.height,
		Projection: desc.Projection,
	}, nil
}

func (a *Adapter) upload(f backend.Frame, data []byte) (backend.BufferRef, error) {
	if err := a.Check("Record"); err != nil {
		return backend.BufferRef{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := backend.CheckFrame(f, a.serial); err != nil {
		return backend.BufferRef{}, err
	}
	return a.staging.Append(data), nil
}

// UploadVertices implements backend.Adapter.
func (a *Adapter) UploadVertices(f backend.Frame, data []byte) (backend.BufferRef, error) {
	return a.upload(f, data)
}

// UploadInstances implements backend.Adapter.
func (a *Adapter) UploadInstances(f backend.Frame, data []byte) (backend.BufferRef, error) {
	return a.upload(f, data)
}

// Draw validates call and queues it for EndFrame.
func (a *Adapter) Draw(f backend.Frame, call backend.DrawCall) error {
	if err := a.Check("Record"); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := backend.CheckFrame(f, a.serial); err != nil {
		return err
	}
	kind := call.Pipeline.Kind
	if _, ok := a.programs[kind]; !ok {
		return backend.Wrap(backend.ErrResourceUpload, "Draw", fmt.Errorf("no program for %s", call.Pipeline))
	}
	if schema.NeedsTexture(kind) {
		if _, ok := a.textures[call.Texture]; !ok {
			return fmt.Errorf("%s draw with unknown texture %d: %w", call.Pipeline, call.Texture, backend.ErrInvalidState)
		}
	}
	if _, err := a.staging.Slice(call.Instances); err != nil {
		return err
	}
	if schema.UsesVertexStream(kind) {
		if _, err := a.staging.Slice(call.Vertices); err != nil {
			return err
		}
	}
	a.draws = append(a.draws, call)
	return nil
}

// EndFrame uploads the staged bytes into the slot buffer, replays the
// queued draws in order, fences the frame and swaps.
func (a *Adapter) EndFrame(f backend.Frame) error {
	if err := a.Check("EndFrame"); err != nil {
		return err
	}
	a.mu.Lock()
	if err := backend.CheckFrame(f, a.serial); err != nil {
		a.mu.Unlock()
		return err
	}
	s := a.ring.Slot(f.Serial)
	a.stream(s)

	gl.Viewport(0, 0, int32(a.width), int32(a.height)) //nolint:gosec // surface sizes fit int32
	c := a.desc.Clear
	gl.ClearColor(c[0], c[1], c[2], c[3])
	gl.Clear(gl.COLOR_BUFFER_BIT)
	gl.Enable(gl.BLEND)
	for _, call := range a.draws {
		a.record(s, call)
	}
	gl.BindVertexArray(0)
	gl.UseProgram(0)
	s.sync = gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0)
	a.submitted = f.Serial
	err := glError("EndFrame")
	a.mu.Unlock()
	if err != nil {
		a.Set(backend.Shutdown)
		return backend.Wrap(backend.ErrDeviceLost, "EndFrame", err)
	}

	a.win.SwapBuffers()
	return a.Enter("EndFrame", backend.SurfaceReady)
}

// stream copies the staging bytes into the slot buffer, reallocating it
// when it is too small.
func (a *Adapter) stream(s *slot) {
	n := uint64(a.staging.Len())
	if n == 0 {
		return
	}
	gl.BindBuffer(gl.ARRAY_BUFFER, s.vbo)
	if n > s.size {
		s.size = backend.GrowSize(s.size, n)
		gl.BufferData(gl.ARRAY_BUFFER, int(s.size), nil, gl.STREAM_DRAW) //nolint:gosec // bounded by staging
	}
	gl.BufferSubData(gl.ARRAY_BUFFER, 0, int(n), gl.Ptr(a.staging.Bytes())) //nolint:gosec // bounded by staging
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
}

func (a *Adapter) record(s *slot, call backend.DrawCall) {
	kind := call.Pipeline.Kind
	p := a.programs[kind]
	gl.UseProgram(p.id)
	proj := a.desc.Projection
	gl.UniformMatrix4fv(p.proj, 1, false, &proj[0])
	blendOf(call.Pipeline.Blend.State()).apply()
	if schema.NeedsTexture(kind) {
		t, ok := a.textures[call.Texture]
		if !ok {
			backend.Logger().Warn("opengl: draw skipped, texture destroyed", "texture", call.Texture)
			return
		}
		gl.ActiveTexture(gl.TEXTURE0)
		gl.BindTexture(gl.TEXTURE_2D, t.id)
	}

	gl.BindVertexArray(p.vao)
	vertexBuf, vertexBase := s.vbo, int(call.Vertices.Offset) //nolint:gosec // staging offsets fit int
	if !schema.UsesVertexStream(kind) {
		vertexBuf, vertexBase = a.quadVBO, 0
	}
	for _, at := range plans[kind] {
		buf, base := vertexBuf, vertexBase
		if at.instance {
			buf, base = s.vbo, int(call.Instances.Offset) //nolint:gosec // staging offsets fit int
		}
		gl.BindBuffer(gl.ARRAY_BUFFER, buf)
		gl.EnableVertexAttribArray(at.location)
		gl.VertexAttribPointerWithOffset(at.location, at.components, gl.FLOAT, false, at.stride, uintptr(base+at.offset))
		gl.VertexAttribDivisor(at.location, at.divisor)
	}
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)

	count := int32(call.InstanceCount) //nolint:gosec // instance counts fit int32
	if kind == pipeline.Sprite {
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, a.quadEBO)
		gl.DrawElementsInstanced(gl.TRIANGLES, int32(len(schema.UnitQuadIndices)), gl.UNSIGNED_SHORT, nil, count)
		return
	}
	gl.DrawArraysInstanced(gl.TRIANGLES, 0, int32(call.VertexCount), count) //nolint:gosec // vertex counts fit int32
}
