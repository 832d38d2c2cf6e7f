//go:build !nogpu

package webgpu

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gogpu/gfx2d/backend"
	"github.com/gogpu/gfx2d/internal/fence"
	"github.com/gogpu/gfx2d/schema"
)

// BeginFrame waits for the next slot, acquires the swap chain texture and
// writes the projection.
func (a *Adapter) BeginFrame(ctx context.Context, desc backend.FrameDesc) (backend.Frame, error) {
	if err := a.Check("BeginFrame"); err != nil {
		return backend.Frame{}, err
	}
	a.mu.Lock()
	a.poll()
	pending := a.ring.Pending(a.tracker.Last() + 1)
	a.mu.Unlock()

	if pending != 0 {
		err := a.tracker.Wait(ctx, pending, a.opts.Timeout(), a.poll)
		switch {
		case errors.Is(err, fence.ErrTimeout):
			a.Set(backend.SurfaceLost)
			backend.Logger().Warn("webgpu: frame slot timed out", "waitingFor", pending)
			return backend.Frame{}, backend.Wrap(backend.ErrSurfaceLost, "BeginFrame", err)
		case err != nil:
			return backend.Frame{}, err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	tex, err := a.surface.GetCurrentTexture()
	if err != nil {
		a.Set(backend.SurfaceLost)
		return backend.Frame{}, backend.Wrap(backend.ErrSurfaceLost, "BeginFrame", err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		a.Set(backend.SurfaceLost)
		return backend.Frame{}, backend.Wrap(backend.ErrSurfaceLost, "BeginFrame", err)
	}
	serial := a.tracker.Begin()
	s := a.ring.Claim(serial)
	if err := a.queue.WriteBuffer(s.uniform, 0, matrixBytes(desc.Projection)); err != nil {
		view.Release()
		tex.Release()
		return backend.Frame{}, backend.Wrap(backend.ErrDeviceLost, "BeginFrame", err)
	}

	a.serial = serial
	a.desc = desc
	a.frameTex, a.view = tex, view
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

func matrixBytes(m [16]float32) []byte {
	b := make([]byte, 0, globalsSize)
	for _, v := range m {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
	}
	return b
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

// Draw validates call and builds its pipeline if needed.
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
	if _, err := a.res.pipeline(call.Pipeline); err != nil {
		return backend.Wrap(backend.ErrResourceUpload, "Draw", err)
	}
	a.draws = append(a.draws, call)
	return nil
}

// EndFrame encodes one render pass, submits it, registers the completion
// callback for the serial and presents.
func (a *Adapter) EndFrame(f backend.Frame) error {
	if err := a.Check("EndFrame"); err != nil {
		return err
	}
	a.mu.Lock()
	if err := backend.CheckFrame(f, a.serial); err != nil {
		a.mu.Unlock()
		return err
	}
	err := a.submit(f.Serial)
	a.view.Release()
	a.frameTex.Release()
	a.view, a.frameTex = nil, nil
	if err != nil {
		a.mu.Unlock()
		a.Set(backend.Shutdown)
		return backend.Wrap(backend.ErrDeviceLost, "EndFrame", err)
	}
	a.surface.Present()
	a.mu.Unlock()
	return a.Enter("EndFrame", backend.SurfaceReady)
}

func (a *Adapter) submit(serial uint64) error {
	s := a.ring.Slot(serial)
	if n := uint64(a.staging.Len()); n > 0 {
		if n > s.streamSize {
			if s.stream != nil {
				s.stream.Release()
			}
			size := backend.GrowSize(s.streamSize, n)
			buf, err := a.device.CreateBuffer(&wgpu.BufferDescriptor{
				Label: fmt.Sprintf("stream_%d", a.ring.Index(serial)),
				Size:  size,
				Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
			})
			if err != nil {
				s.stream, s.streamSize = nil, 0
				return fmt.Errorf("create stream buffer: %w", err)
			}
			s.stream, s.streamSize = buf, size
		}
		if err := a.queue.WriteBuffer(s.stream, 0, a.staging.Bytes()); err != nil {
			return fmt.Errorf("write stream buffer: %w", err)
		}
	}

	enc, err := a.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	defer enc.Release()
	c := a.desc.Clear
	rp := enc.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "frame_pass",
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       a.view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: float64(c[0]), G: float64(c[1]), B: float64(c[2]), A: float64(c[3])},
		}},
	})
	for _, call := range a.draws {
		a.record(rp, s, call)
	}
	rp.End()
	rp.Release()
	cmd, err := enc.Finish(nil)
	if err != nil {
		return fmt.Errorf("finish encoding: %w", err)
	}
	a.queue.Submit(cmd)
	cmd.Release()
	a.queue.OnSubmittedWorkDone(func(wgpu.QueueWorkDoneStatus) {
		a.tracker.Complete(serial)
	})
	a.submitted = serial
	return nil
}

func (a *Adapter) record(rp *wgpu.RenderPassEncoder, s *slot, call backend.DrawCall) {
	p, err := a.res.pipeline(call.Pipeline)
	if err != nil {
		backend.Logger().Warn("webgpu: draw skipped", "pipeline", call.Pipeline, "err", err)
		return
	}
	rp.SetPipeline(p)
	rp.SetBindGroup(0, s.globals, nil)
	if schema.NeedsTexture(call.Pipeline.Kind) {
		t, ok := a.textures[call.Texture]
		if !ok {
			backend.Logger().Warn("webgpu: draw skipped, texture destroyed", "texture", call.Texture)
			return
		}
		rp.SetBindGroup(1, t.group, nil)
	}
	rp.SetVertexBuffer(1, s.stream, call.Instances.Offset, call.Instances.Size)
	if schema.UsesVertexStream(call.Pipeline.Kind) {
		rp.SetVertexBuffer(0, s.stream, call.Vertices.Offset, call.Vertices.Size)
		rp.Draw(call.VertexCount, call.InstanceCount, 0, 0)
		return
	}
	rp.SetVertexBuffer(0, a.res.quadVertices, 0, wgpu.WholeSize)
	rp.SetIndexBuffer(a.res.quadIndices, wgpu.IndexFormatUint16, 0, wgpu.WholeSize)
	rp.DrawIndexed(uint32(len(schema.UnitQuadIndices)), call.InstanceCount, 0, 0, 0)
}
