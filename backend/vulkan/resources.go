//go:build !nogpu

package vulkan

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gfx2d/backend"
	"github.com/gogpu/gfx2d/internal/shadercc"
	"github.com/gogpu/gfx2d/pipeline"
	"github.com/gogpu/gfx2d/schema"
)

// globalsSize is one column-major mat4x4<f32>.
const globalsSize = 64

// resources owns everything shared by all frames: layouts, shader modules,
// pipelines, samplers and the sprite quad.
type resources struct {
	device hal.Device
	queue  hal.Queue
	format gputypes.TextureFormat

	globalsLayout hal.BindGroupLayout
	textureLayout hal.BindGroupLayout
	meshLayout    hal.PipelineLayout
	texLayout     hal.PipelineLayout

	modules   map[pipeline.Kind]hal.ShaderModule
	pipelines map[pipeline.Key]hal.RenderPipeline
	samplers  map[backend.SamplerDesc]hal.Sampler

	quadVertices hal.Buffer
	quadIndices  hal.Buffer
}

func newResources(device hal.Device, queue hal.Queue, format gputypes.TextureFormat) (*resources, error) {
	r := &resources{
		device:    device,
		queue:     queue,
		format:    format,
		modules:   make(map[pipeline.Kind]hal.ShaderModule),
		pipelines: make(map[pipeline.Key]hal.RenderPipeline),
		samplers:  make(map[backend.SamplerDesc]hal.Sampler),
	}
	if err := r.init(); err != nil {
		r.destroy()
		return nil, err
	}
	return r, nil
}

func (r *resources) init() error {
	var err error
	r.globalsLayout, err = r.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "globals_layout",
		Entries: []gputypes.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: gputypes.ShaderStageVertex,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		}},
	})
	if err != nil {
		return fmt.Errorf("create globals layout: %w", err)
	}
	r.textureLayout, err = r.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "texture_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create texture layout: %w", err)
	}
	r.meshLayout, err = r.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "mesh_pipeline_layout",
		BindGroupLayouts: []hal.BindGroupLayout{r.globalsLayout},
	})
	if err != nil {
		return fmt.Errorf("create mesh pipeline layout: %w", err)
	}
	r.texLayout, err = r.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "textured_pipeline_layout",
		BindGroupLayouts: []hal.BindGroupLayout{r.globalsLayout, r.textureLayout},
	})
	if err != nil {
		return fmt.Errorf("create textured pipeline layout: %w", err)
	}
	if r.quadVertices, err = r.upload("quad_vertices", schema.AppendUnitQuad(nil), gputypes.BufferUsageVertex); err != nil {
		return err
	}
	// Index data is padded to the 4-byte copy alignment.
	indices := schema.AppendUnitQuadIndices(nil)
	indices = append(indices, make([]byte, (4-len(indices)%4)%4)...)
	if r.quadIndices, err = r.upload("quad_indices", indices, gputypes.BufferUsageIndex); err != nil {
		return err
	}
	return nil
}

func (r *resources) upload(label string, data []byte, usage gputypes.BufferUsage) (hal.Buffer, error) {
	buf, err := r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: usage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	r.queue.WriteBuffer(buf, 0, data)
	return buf, nil
}

func (r *resources) globalsGroup(buf hal.Buffer) (hal.BindGroup, error) {
	g, err := r.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "globals",
		Layout: r.globalsLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Offset: 0, Size: globalsSize}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create globals bind group: %w", err)
	}
	return g, nil
}

func (r *resources) module(kind pipeline.Kind) (hal.ShaderModule, error) {
	if m, ok := r.modules[kind]; ok {
		return m, nil
	}
	m, err := shadercc.Module(r.device, kind)
	if err != nil {
		return nil, err
	}
	r.modules[kind] = m
	return m, nil
}

// pipeline returns the render pipeline for key, building it on first use.
func (r *resources) pipeline(key pipeline.Key) (hal.RenderPipeline, error) {
	if p, ok := r.pipelines[key]; ok {
		return p, nil
	}
	desc := pipeline.Describe(key)
	module, err := r.module(key.Kind)
	if err != nil {
		return nil, err
	}
	layout := r.meshLayout
	if desc.Textured {
		layout = r.texLayout
	}
	blend := desc.Blend.GPU()
	p, err := r.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  key.String(),
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     module,
			EntryPoint: pipeline.VertexEntry,
			Buffers:    desc.Layout.BufferLayouts(),
		},
		Fragment: &hal.FragmentState{
			Module:     module,
			EntryPoint: pipeline.FragmentEntry,
			Targets: []gputypes.ColorTargetState{{
				Format:    r.format,
				Blend:     &blend,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	})
	if err != nil {
		return nil, fmt.Errorf("create pipeline %s: %w", key, err)
	}
	r.pipelines[key] = p
	return p, nil
}

func (r *resources) sampler(d backend.SamplerDesc) (hal.Sampler, error) {
	if s, ok := r.samplers[d]; ok {
		return s, nil
	}
	filter := gputypes.FilterModeLinear
	if d.Filter == backend.FilterNearest {
		filter = gputypes.FilterModeNearest
	}
	var address gputypes.AddressMode
	switch d.Wrap {
	case backend.WrapRepeat:
		address = gputypes.AddressModeRepeat
	case backend.WrapMirror:
		address = gputypes.AddressModeMirrorRepeat
	default:
		address = gputypes.AddressModeClampToEdge
	}
	mip := gputypes.FilterModeNearest
	if d.Mipmaps {
		mip = filter
	}
	s, err := r.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "sampler",
		AddressModeU: address,
		AddressModeV: address,
		AddressModeW: address,
		MagFilter:    filter,
		MinFilter:    filter,
		MipmapFilter: mip,
	})
	if err != nil {
		return nil, fmt.Errorf("create sampler: %w", err)
	}
	r.samplers[d] = s
	return s, nil
}

func (r *resources) createTexture(desc backend.TextureDesc, rgba []byte) (*gpuTexture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("size %dx%d", desc.Width, desc.Height)
	}
	if len(rgba) != desc.Width*desc.Height*4 {
		return nil, fmt.Errorf("%d bytes for %dx%d", len(rgba), desc.Width, desc.Height)
	}
	levels := uint32(desc.MipCount()) //nolint:gosec // bounded by log2 of the size
	tex, err := r.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              uint32(desc.Width),  //nolint:gosec // checked positive
			Height:             uint32(desc.Height), //nolint:gosec // checked positive
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: levels,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture: %w", err)
	}
	t := &gpuTexture{tex: tex}

	w, h := desc.Width, desc.Height
	for level, pix := range append([][]byte{rgba}, desc.Levels...) {
		if level > 0 {
			w, h = max(w/2, 1), max(h/2, 1)
		}
		if len(pix) != w*h*4 {
			r.destroyTexture(t)
			return nil, fmt.Errorf("mip level %d: %d bytes for %dx%d", level, len(pix), w, h)
		}
		r.queue.WriteTexture(
			&hal.ImageCopyTexture{Texture: tex, MipLevel: uint32(level)}, //nolint:gosec // level < levels
			pix,
			&hal.ImageDataLayout{Offset: 0, BytesPerRow: uint32(w * 4), RowsPerImage: uint32(h)}, //nolint:gosec // positive
			&hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},            //nolint:gosec // positive
		)
	}

	t.view, err = r.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         desc.Label + "_view",
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: levels,
	})
	if err != nil {
		r.destroyTexture(t)
		return nil, fmt.Errorf("create texture view: %w", err)
	}
	s, err := r.sampler(desc.Sampler)
	if err != nil {
		r.destroyTexture(t)
		return nil, err
	}
	t.group, err = r.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  desc.Label + "_group",
		Layout: r.textureLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()}},
			{Binding: 1, Resource: gputypes.SamplerBinding{Sampler: s.NativeHandle()}},
		},
	})
	if err != nil {
		r.destroyTexture(t)
		return nil, fmt.Errorf("create texture bind group: %w", err)
	}
	return t, nil
}

func (r *resources) destroyTexture(t *gpuTexture) {
	if t.group != nil {
		r.device.DestroyBindGroup(t.group)
	}
	if t.view != nil {
		r.device.DestroyTextureView(t.view)
	}
	if t.tex != nil {
		r.device.DestroyTexture(t.tex)
	}
	*t = gpuTexture{}
}

// destroy releases pipelines before the layouts and modules they use.
func (r *resources) destroy() {
	for k, p := range r.pipelines {
		r.device.DestroyRenderPipeline(p)
		delete(r.pipelines, k)
	}
	for k, m := range r.modules {
		r.device.DestroyShaderModule(m)
		delete(r.modules, k)
	}
	for k, s := range r.samplers {
		r.device.DestroySampler(s)
		delete(r.samplers, k)
	}
	for _, l := range []hal.PipelineLayout{r.meshLayout, r.texLayout} {
		if l != nil {
			r.device.DestroyPipelineLayout(l)
		}
	}
	for _, l := range []hal.BindGroupLayout{r.globalsLayout, r.textureLayout} {
		if l != nil {
			r.device.DestroyBindGroupLayout(l)
		}
	}
	for _, b := range []hal.Buffer{r.quadVertices, r.quadIndices} {
		if b != nil {
			r.device.DestroyBuffer(b)
		}
	}
	r.meshLayout, r.texLayout = nil, nil
	r.globalsLayout, r.textureLayout = nil, nil
	r.quadVertices, r.quadIndices = nil, nil
}

// offscreen is the color target used when no host surface is attached.
type offscreen struct {
	tex      hal.Texture
	view     hal.TextureView
	readback hal.Buffer
	width    uint32
	height   uint32
	pitch    uint32
}

// copyPitchAlignment is the row alignment required by texture-to-buffer
// copies.
const copyPitchAlignment = 256

func newOffscreen(device hal.Device, format gputypes.TextureFormat, width, height int) (*offscreen, error) {
	o := &offscreen{width: uint32(width), height: uint32(height)} //nolint:gosec // checked positive
	o.pitch = (o.width*4 + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	var err error
	o.tex, err = device.CreateTexture(&hal.TextureDescriptor{
		Label:         "offscreen_color",
		Size:          hal.Extent3D{Width: o.width, Height: o.height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("create offscreen texture: %w", err)
	}
	o.view, err = device.CreateTextureView(o.tex, &hal.TextureViewDescriptor{
		Label:         "offscreen_color_view",
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		o.destroy(device)
		return nil, fmt.Errorf("create offscreen view: %w", err)
	}
	o.readback, err = device.CreateBuffer(&hal.BufferDescriptor{
		Label: "offscreen_readback",
		Size:  uint64(o.pitch) * uint64(o.height),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		o.destroy(device)
		return nil, fmt.Errorf("create readback buffer: %w", err)
	}
	return o, nil
}

func (o *offscreen) destroy(device hal.Device) {
	if o.readback != nil {
		device.DestroyBuffer(o.readback)
	}
	if o.view != nil {
		device.DestroyTextureView(o.view)
	}
	if o.tex != nil {
		device.DestroyTexture(o.tex)
	}
	*o = offscreen{}
}

// encodeCopy records the transfer of the rendered image into the readback
// buffer.
func (o *offscreen) encodeCopy(enc hal.CommandEncoder) {
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: o.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	enc.CopyTextureToBuffer(o.tex, o.readback, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: o.pitch, RowsPerImage: o.height},
		TextureBase:  hal.ImageCopyTexture{Texture: o.tex, MipLevel: 0},
		Size:         hal.Extent3D{Width: o.width, Height: o.height, DepthOrArrayLayers: 1},
	}})
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: o.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})
}

// read copies the readback buffer into tightly packed RGBA rows.
func (o *offscreen) read(queue hal.Queue, format gputypes.TextureFormat) ([]byte, error) {
	raw := make([]byte, uint64(o.pitch)*uint64(o.height))
	if err := queue.ReadBuffer(o.readback, 0, raw); err != nil {
		return nil, fmt.Errorf("readback: %w", err)
	}
	row := int(o.width) * 4
	out := make([]byte, row*int(o.height))
	for y := range int(o.height) {
		copy(out[y*row:(y+1)*row], raw[y*int(o.pitch):])
	}
	if format == gputypes.TextureFormatBGRA8Unorm {
		for i := 0; i < len(out); i += 4 {
			out[i], out[i+2] = out[i+2], out[i]
		}
	}
	return out, nil
}

var errNoTarget = errors.New("no render target")
