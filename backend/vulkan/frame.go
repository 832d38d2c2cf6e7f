//go:build !nogpu

package vulkan

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gfx2d/backend"
	"github.com/gogpu/gfx2d/internal/fence"
	"github.com/gogpu/gfx2d/schema"
)

// BeginFrame waits for the next slot, acquires the target view and writes
// the projection.
func (a *Adapter) BeginFrame(ctx context.Context, desc backend.FrameDesc) (backend.Frame, error) {
	if err := a.Check("BeginFrame"); err != nil {
		return backend.Frame{}, err
	}
	a.mu.Lock()
	a.refresh()
	next := a.tracker.Last() + 1
	pending := a.ring.Pending(next)
	a.mu.Unlock()

	if pending != 0 {
		err := a.tracker.Wait(ctx, pending, a.opts.Timeout(), a.poll(pending))
		switch {
		case errors.Is(err, fence.ErrTimeout):
			a.Set(backend.SurfaceLost)
			backend.Logger().Warn("vulkan: frame slot timed out", "waitingFor", pending)
			return backend.Frame{}, backend.Wrap(backend.ErrSurfaceLost, "BeginFrame", err)
		case err != nil:
			return backend.Frame{}, err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	view, err := a.acquire()
	if err != nil {
		a.Set(backend.SurfaceLost)
		return backend.Frame{}, backend.Wrap(backend.ErrSurfaceLost, "BeginFrame", err)
	}
	serial := a.tracker.Begin()
	s := a.ring.Claim(serial)
	if s.cmd != nil {
		a.device.FreeCommandBuffer(s.cmd)
		s.cmd = nil
	}
	a.queue.WriteBuffer(s.uniform, 0, matrixBytes(desc.Projection))

	a.serial = serial
	a.desc = desc
	a.view = view
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

func (a *Adapter) acquire() (hal.TextureView, error) {
	if a.target != nil {
		return a.target.Acquire(a.width, a.height)
	}
	if a.offscreen == nil {
		return nil, errNoTarget
	}
	return a.offscreen.view, nil
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

// Draw validates call and queues it for EndFrame. The pipeline is built
// here on first use so a failure affects only this draw.
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

// EndFrame flushes the staged data, records one render pass with every
// draw in order and submits it with the frame serial as fence value.
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
	if err != nil {
		a.mu.Unlock()
		a.Set(backend.Shutdown)
		return backend.Wrap(backend.ErrDeviceLost, "EndFrame", err)
	}
	if a.offscreen != nil && a.target == nil {
		if err := a.readback(f.Serial); err != nil {
			a.mu.Unlock()
			a.Set(backend.Shutdown)
			return backend.Wrap(backend.ErrDeviceLost, "EndFrame", err)
		}
	}
	target := a.target
	a.mu.Unlock()

	if target != nil {
		if err := target.Present(); err != nil {
			a.Set(backend.SurfaceLost)
			return backend.Wrap(backend.ErrSurfaceLost, "EndFrame", err)
		}
	}
	return a.Enter("EndFrame", backend.SurfaceReady)
}

func (a *Adapter) submit(serial uint64) error {
	s := a.ring.Slot(serial)
	if n := uint64(a.staging.Len()); n > 0 {
		if n > s.streamSize {
			if s.stream != nil {
				a.device.DestroyBuffer(s.stream)
				s.stream, s.streamSize = nil, 0
			}
			size := backend.GrowSize(s.streamSize, n)
			buf, err := a.device.CreateBuffer(&hal.BufferDescriptor{
				Label: fmt.Sprintf("stream_%d", a.ring.Index(serial)),
				Size:  size,
				Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
			})
			if err != nil {
				return fmt.Errorf("create stream buffer: %w", err)
			}
			s.stream, s.streamSize = buf, size
		}
		a.queue.WriteBuffer(s.stream, 0, a.staging.Bytes())
	}

	enc, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "frame"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := enc.BeginEncoding("frame"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	c := a.desc.Clear
	rp := enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "frame_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       a.view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: float64(c[0]), G: float64(c[1]), B: float64(c[2]), A: float64(c[3])},
		}},
	})
	for _, call := range a.draws {
		a.record(rp, s, call)
	}
	rp.End()
	if a.target == nil && a.offscreen != nil {
		a.offscreen.encodeCopy(enc)
	}
	cmd, err := enc.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	if err := a.queue.Submit([]hal.CommandBuffer{cmd}, a.fence, serial); err != nil {
		a.device.FreeCommandBuffer(cmd)
		return fmt.Errorf("submit: %w", err)
	}
	s.cmd = cmd
	a.submitted = serial
	return nil
}

func (a *Adapter) record(rp hal.RenderPassEncoder, s *slot, call backend.DrawCall) {
	p, err := a.res.pipeline(call.Pipeline)
	if err != nil {
		backend.Logger().Warn("vulkan: draw skipped", "pipeline", call.Pipeline, "err", err)
		return
	}
	rp.SetPipeline(p)
	rp.SetBindGroup(0, s.globals, nil)
	if schema.NeedsTexture(call.Pipeline.Kind) {
		t, ok := a.textures[call.Texture]
		if !ok {
			backend.Logger().Warn("vulkan: draw skipped, texture destroyed", "texture", call.Texture)
			return
		}
		rp.SetBindGroup(1, t.group, nil)
	}
	rp.SetVertexBuffer(1, s.stream, call.Instances.Offset)
	if schema.UsesVertexStream(call.Pipeline.Kind) {
		rp.SetVertexBuffer(0, s.stream, call.Vertices.Offset)
		rp.Draw(call.VertexCount, call.InstanceCount, 0, 0)
		return
	}
	rp.SetVertexBuffer(0, a.res.quadVertices, 0)
	rp.SetIndexBuffer(a.res.quadIndices, gputypes.IndexFormatUint16, 0)
	rp.DrawIndexed(uint32(len(schema.UnitQuadIndices)), call.InstanceCount, 0, 0, 0)
}

// waitError maps a hal fence wait result to an error. A wait that ends
// without the fence signaled is a timeout.
func waitError(serial uint64, ok bool, err error) error {
	switch {
	case err != nil:
		return fmt.Errorf("wait for frame %d: %w", serial, err)
	case !ok:
		return fmt.Errorf("wait for frame %d: %w", serial, fence.ErrTimeout)
	}
	return nil
}

// readback waits for serial and copies the offscreen image out.
func (a *Adapter) readback(serial uint64) error {
	ok, err := a.device.Wait(a.fence, serial, a.opts.Timeout())
	if werr := waitError(serial, ok, err); werr != nil {
		return werr
	}
	a.tracker.Complete(serial)
	pix, err := a.offscreen.read(a.queue, a.format)
	if err != nil {
		return err
	}
	w, h := int(a.offscreen.width), int(a.offscreen.height)
	a.presented = &image.NRGBA{Pix: pix, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}
	return nil
}
